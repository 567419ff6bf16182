package client

import (
	"context"

	"github.com/kbase/cts-browser/pkg/types"
)

var _ Client = &SwitchClient{}

// SwitchClient routes every call to either the live or the mock client.
// The mode flag is consulted on each invocation, so toggling it takes
// effect on the next call.
type SwitchClient struct {
	live    Client
	mock    Client
	useMock func() bool
}

// NewSwitchingClient creates a client that picks live or mock per call
func NewSwitchingClient(live, mock Client, useMock func() bool) *SwitchClient {
	return &SwitchClient{live: live, mock: mock, useMock: useMock}
}

func (s *SwitchClient) current() Client {
	if s.useMock != nil && s.useMock() {
		return s.mock
	}
	return s.live
}

// ListJobs lists jobs matching the filters
func (s *SwitchClient) ListJobs(ctx context.Context, filters types.JobFilters) ([]types.Job, error) {
	return s.current().ListJobs(ctx, filters)
}

// GetJob retrieves a job by ID
func (s *SwitchClient) GetJob(ctx context.Context, id string) (types.Job, error) {
	return s.current().GetJob(ctx, id)
}

// GetJobStatus retrieves the status of a job
func (s *SwitchClient) GetJobStatus(ctx context.Context, id string) (types.JobStatus, error) {
	return s.current().GetJobStatus(ctx, id)
}

// CancelJob requests cancellation of a job
func (s *SwitchClient) CancelJob(ctx context.Context, id string) (types.Job, error) {
	return s.current().CancelJob(ctx, id)
}

// GetExitCodes retrieves the exit codes of a job
func (s *SwitchClient) GetExitCodes(ctx context.Context, id string) ([]types.ExitCode, error) {
	return s.current().GetExitCodes(ctx, id)
}

// GetJobLog retrieves one container log stream
func (s *SwitchClient) GetJobLog(ctx context.Context, id string, container int, stream types.LogStream) (string, error) {
	return s.current().GetJobLog(ctx, id, container, stream)
}

// ListSites lists the available clusters
func (s *SwitchClient) ListSites(ctx context.Context) ([]types.Site, error) {
	return s.current().ListSites(ctx)
}
