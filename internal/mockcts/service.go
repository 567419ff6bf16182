package mockcts

import (
	"context"
	"net/http"
	"time"

	"github.com/kbase/cts-browser/pkg/api/v1/client"
	"github.com/kbase/cts-browser/pkg/api/v1/routes"
	"github.com/kbase/cts-browser/pkg/types"
)

var _ client.Client = &Service{}

// Service answers client calls from fixtures. It never mutates them, so a
// Service is safe for concurrent use.
type Service struct {
	fixtures     *Fixtures
	defaultLimit int
}

// NewService creates a mock service over the given fixtures. A nil
// fixture set uses NewFixtures(time.Now()).
func NewService(fixtures *Fixtures, defaultLimit int) *Service {
	if fixtures == nil {
		fixtures = NewFixtures(time.Now())
	}
	if defaultLimit <= 0 {
		defaultLimit = routes.DefaultJobLimit
	}
	return &Service{fixtures: fixtures, defaultLimit: defaultLimit}
}

// Fixtures returns the data set the service answers from
func (s *Service) Fixtures() *Fixtures {
	return s.fixtures
}

func (s *Service) find(id string) (types.Job, bool) {
	for _, job := range s.fixtures.Jobs {
		if job.ID == id {
			return job, true
		}
	}
	return types.Job{}, false
}

// ListJobs filters fixtures by state and cluster, keeping fixture order,
// and truncates to the limit
func (s *Service) ListJobs(ctx context.Context, filters types.JobFilters) ([]types.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}

	jobs := make([]types.Job, 0, len(s.fixtures.Jobs))
	for _, job := range s.fixtures.Jobs {
		if len(jobs) == limit {
			break
		}
		if filters.State != "" && job.State != filters.State {
			continue
		}
		if filters.Cluster != "" && job.Cluster() != filters.Cluster {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// GetJob returns the fixture job with the given id
func (s *Service) GetJob(ctx context.Context, id string) (types.Job, error) {
	if err := ctx.Err(); err != nil {
		return types.Job{}, err
	}
	job, ok := s.find(id)
	if !ok {
		return types.Job{}, client.NewNotFoundError(http.MethodGet, routes.GetJobURL(id))
	}
	return job, nil
}

// GetJobStatus returns the id and state of a fixture job
func (s *Service) GetJobStatus(ctx context.Context, id string) (types.JobStatus, error) {
	if err := ctx.Err(); err != nil {
		return types.JobStatus{}, err
	}
	job, ok := s.find(id)
	if !ok {
		return types.JobStatus{}, client.NewNotFoundError(http.MethodGet, routes.GetJobStatusURL(id))
	}
	return types.JobStatus{ID: job.ID, State: job.State}, nil
}

// CancelJob returns a copy of the job in the canceling state. The fixture
// itself is left untouched, so repeated calls never progress to canceled.
func (s *Service) CancelJob(ctx context.Context, id string) (types.Job, error) {
	if err := ctx.Err(); err != nil {
		return types.Job{}, err
	}
	job, ok := s.find(id)
	if !ok {
		return types.Job{}, client.NewNotFoundError(http.MethodPut, routes.CancelJobURL(id))
	}
	job.State = types.JobStateCanceling
	return job, nil
}

// GetExitCodes returns the recorded exit codes, or none for unknown jobs
func (s *Service) GetExitCodes(ctx context.Context, id string) ([]types.ExitCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.exitCodesResponse(id).ToExitCodes(), nil
}

func (s *Service) exitCodesResponse(id string) types.ExitCodesResponse {
	codes := s.fixtures.ExitCodes[id]
	if codes == nil {
		codes = []*int{}
	}
	return types.ExitCodesResponse{ExitCodes: codes}
}

// GetJobLog returns recorded log text, or an empty string when a known job
// has none
func (s *Service) GetJobLog(ctx context.Context, id string, container int, stream types.LogStream) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := types.ParseLogStream(string(stream)); err != nil {
		return "", err
	}
	if _, ok := s.find(id); !ok {
		return "", client.NewNotFoundError(http.MethodGet, routes.GetJobLogURL(id, container, stream))
	}
	return s.fixtures.Logs[id][container][stream], nil
}

// ListSites returns the fixture sites
func (s *Service) ListSites(ctx context.Context) ([]types.Site, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sites := make([]types.Site, len(s.fixtures.Sites))
	copy(sites, s.fixtures.Sites)
	return sites, nil
}
