// Package mock provides a function-field Client for tests
package mock

import (
	"context"
	"sync"

	"github.com/kbase/cts-browser/pkg/api/v1/client"
	"github.com/kbase/cts-browser/pkg/types"
)

// MockClient implements the Client interface for testing
type MockClient struct {
	mu sync.Mutex

	// Function fields that can be set to mock behavior
	ListJobsFn     func(ctx context.Context, filters types.JobFilters) ([]types.Job, error)
	GetJobFn       func(ctx context.Context, id string) (types.Job, error)
	GetJobStatusFn func(ctx context.Context, id string) (types.JobStatus, error)
	CancelJobFn    func(ctx context.Context, id string) (types.Job, error)
	GetExitCodesFn func(ctx context.Context, id string) ([]types.ExitCode, error)
	GetJobLogFn    func(ctx context.Context, id string, container int, stream types.LogStream) (string, error)
	ListSitesFn    func(ctx context.Context) ([]types.Site, error)

	// Call tracking for verification
	ListJobsCalls     []types.JobFilters
	GetJobCalls       []string
	GetJobStatusCalls []string
	CancelJobCalls    []string
	GetExitCodesCalls []string
	GetJobLogCalls    []LogCall
	ListSitesCalls    int
}

// LogCall records the arguments of one GetJobLog call
type LogCall struct {
	ID        string
	Container int
	Stream    types.LogStream
}

// Ensure MockClient implements Client interface
var _ client.Client = (*MockClient)(nil)

// ListJobs mocks the ListJobs method
func (m *MockClient) ListJobs(ctx context.Context, filters types.JobFilters) ([]types.Job, error) {
	m.mu.Lock()
	m.ListJobsCalls = append(m.ListJobsCalls, filters)
	fn := m.ListJobsFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, filters)
	}
	return []types.Job{}, nil
}

// GetJob mocks the GetJob method
func (m *MockClient) GetJob(ctx context.Context, id string) (types.Job, error) {
	m.mu.Lock()
	m.GetJobCalls = append(m.GetJobCalls, id)
	fn := m.GetJobFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id)
	}
	return types.Job{ID: id, State: types.JobStateComplete}, nil
}

// GetJobStatus mocks the GetJobStatus method
func (m *MockClient) GetJobStatus(ctx context.Context, id string) (types.JobStatus, error) {
	m.mu.Lock()
	m.GetJobStatusCalls = append(m.GetJobStatusCalls, id)
	fn := m.GetJobStatusFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id)
	}
	return types.JobStatus{ID: id, State: types.JobStateComplete}, nil
}

// CancelJob mocks the CancelJob method
func (m *MockClient) CancelJob(ctx context.Context, id string) (types.Job, error) {
	m.mu.Lock()
	m.CancelJobCalls = append(m.CancelJobCalls, id)
	fn := m.CancelJobFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id)
	}
	return types.Job{ID: id, State: types.JobStateCanceling}, nil
}

// GetExitCodes mocks the GetExitCodes method
func (m *MockClient) GetExitCodes(ctx context.Context, id string) ([]types.ExitCode, error) {
	m.mu.Lock()
	m.GetExitCodesCalls = append(m.GetExitCodesCalls, id)
	fn := m.GetExitCodesFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id)
	}
	return []types.ExitCode{}, nil
}

// GetJobLog mocks the GetJobLog method
func (m *MockClient) GetJobLog(ctx context.Context, id string, container int, stream types.LogStream) (string, error) {
	m.mu.Lock()
	m.GetJobLogCalls = append(m.GetJobLogCalls, LogCall{ID: id, Container: container, Stream: stream})
	fn := m.GetJobLogFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id, container, stream)
	}
	return "", nil
}

// ListSites mocks the ListSites method
func (m *MockClient) ListSites(ctx context.Context) ([]types.Site, error) {
	m.mu.Lock()
	m.ListSitesCalls++
	fn := m.ListSitesFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return []types.Site{}, nil
}

// Calls returns the number of recorded calls per method name
func (m *MockClient) Calls() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]int{
		"ListJobs":     len(m.ListJobsCalls),
		"GetJob":       len(m.GetJobCalls),
		"GetJobStatus": len(m.GetJobStatusCalls),
		"CancelJob":    len(m.CancelJobCalls),
		"GetExitCodes": len(m.GetExitCodesCalls),
		"GetJobLog":    len(m.GetJobLogCalls),
		"ListSites":    m.ListSitesCalls,
	}
}

// CallCount returns the number of recorded calls for one method
func (m *MockClient) CallCount(method string) int {
	return m.Calls()[method]
}

// JobsCalls returns a copy of the recorded ListJobs filters
func (m *MockClient) JobsCalls() []types.JobFilters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.JobFilters(nil), m.ListJobsCalls...)
}

// LogCalls returns a copy of the recorded GetJobLog calls
func (m *MockClient) LogCalls() []LogCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LogCall(nil), m.GetJobLogCalls...)
}
