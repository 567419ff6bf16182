package test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/kbase/cts-browser/internal/events"
	"github.com/kbase/cts-browser/internal/jobsync"
	"github.com/kbase/cts-browser/pkg/api/v1/client"
	"github.com/kbase/cts-browser/pkg/types"
)

const (
	runningJob   = "job-a1b2c3d4-running-analysis"
	completedJob = "job-e5f6g7h8-completed-successfully"
	failedJob    = "job-i9j0k1l2-failed-with-error"
)

func TestNewSuite(t *testing.T) {
	s := NewSuite(t)
	defer s.Cleanup()

	assert.Same(t, t, s.T())
	assert.NotNil(t, s.Service)
	assert.NotNil(t, s.App)
	assert.NotNil(t, s.Server)
	assert.NotNil(t, s.APIClient)
	assert.NotNil(t, s.Sync)
	assert.NotNil(t, s.Bus)
	assert.NoError(t, s.Context().Err())

	s.Cleanup()
	assert.Error(t, s.Context().Err())
}

type SyncSuite struct {
	suite.Suite
	env *Suite
}

func TestSyncSuite(t *testing.T) {
	suite.Run(t, new(SyncSuite))
}

func (s *SyncSuite) SetupTest() {
	s.env = NewSuite(s.T(), WithSyncOptions(func(o *jobsync.Options) {
		o.Policies = jobsync.DefaultPolicies(20*time.Millisecond, 20*time.Millisecond)
	}))
}

func (s *SyncSuite) TearDownTest() {
	s.env.Cleanup()
}

func (s *SyncSuite) TestListJobsThroughHTTP() {
	ctx := s.env.Context()

	all := s.env.Sync.Jobs(ctx, types.JobFilters{})
	s.Require().NoError(all.Err)
	s.Len(all.Data, 10)

	errored := s.env.Sync.Jobs(ctx, types.JobFilters{State: types.JobStateError})
	s.Require().NoError(errored.Err)
	s.Require().Len(errored.Data, 1)
	s.Equal(failedJob, errored.Data[0].ID)

	limited := s.env.Sync.Jobs(ctx, types.JobFilters{Cluster: "perlmutter", Limit: 2})
	s.Require().NoError(limited.Err)
	s.Len(limited.Data, 2)
	for _, job := range limited.Data {
		s.Equal("perlmutter", job.Cluster())
	}

	s.Equal(3, s.env.Requests(http.MethodGet, "/jobs/"))
}

func (s *SyncSuite) TestCachedStatusHitsServerOnce() {
	ctx := s.env.Context()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := s.env.Sync.JobStatus(ctx, completedJob)
			s.NoError(res.Err)
			s.Equal(types.JobStateComplete, res.Data.State)
		}()
	}
	wg.Wait()

	s.Equal(1, s.env.Requests(http.MethodGet, "/jobs/"+completedJob+"/status"))
}

func (s *SyncSuite) TestCancelInvalidatesAndRefetches() {
	ctx := s.env.Context()
	received := make(chan events.Event, 1)
	s.env.Bus.Subscribe(events.EventJobCanceled, func(_ context.Context, e events.Event) error {
		received <- e
		return nil
	})

	s.Require().NoError(s.env.Sync.Job(ctx, runningJob).Err)
	s.Require().NoError(s.env.Sync.Jobs(ctx, types.JobFilters{}).Err)

	job, err := s.env.Sync.CancelJob(ctx, runningJob)
	s.Require().NoError(err)
	s.Equal(types.JobStateCanceling, job.State)

	again := s.env.Sync.Job(ctx, runningJob)
	s.Require().NoError(again.Err)
	s.False(again.FromCache)
	// The mock records nothing, the job keeps its fixture state
	s.Equal(types.JobStateJobSubmitted, again.Data.State)

	s.Require().NoError(s.env.Sync.Jobs(ctx, types.JobFilters{}).Err)

	s.Equal(1, s.env.Requests(http.MethodPut, "/jobs/"+runningJob+"/cancel"))
	s.Equal(2, s.env.Requests(http.MethodGet, "/jobs/"+runningJob))
	s.Equal(2, s.env.Requests(http.MethodGet, "/jobs/"))

	select {
	case e := <-received:
		s.Equal(runningJob, e.JobID)
	case <-time.After(time.Second):
		s.Fail("no cancel event")
	}
}

func (s *SyncSuite) TestErrorsAndEmptyResults() {
	ctx := s.env.Context()

	_, err := s.env.Sync.CancelJob(ctx, "nonexistent-id")
	s.Require().Error(err)
	s.True(client.IsNotFound(err))

	job := s.env.Sync.Job(ctx, "nonexistent-id")
	s.True(client.IsNotFound(job.Err))
	s.False(job.HasData)

	codes := s.env.Sync.ExitCodes(ctx, "nonexistent-id")
	s.Require().NoError(codes.Err)
	s.Empty(codes.Data)

	log := s.env.Sync.JobLog(ctx, completedJob, 3, types.LogStreamStdout)
	s.Require().NoError(log.Err)
	s.Empty(log.Data)
}

func (s *SyncSuite) TestExitCodesAndLogs() {
	ctx := s.env.Context()

	codes := s.env.Sync.ExitCodes(ctx, failedJob)
	s.Require().NoError(codes.Err)
	s.Require().Len(codes.Data, 1)
	s.Require().NotNil(codes.Data[0].ExitCode)
	s.Equal(137, *codes.Data[0].ExitCode)

	log := s.env.Sync.JobLog(ctx, failedJob, 0, types.LogStreamStderr)
	s.Require().NoError(log.Err)
	s.Contains(log.Data, "OutOfMemoryError")

	sites := s.env.Sync.Sites(ctx)
	s.Require().NoError(sites.Err)
	s.Len(sites.Data, 3)
}

func (s *SyncSuite) TestStatusPollingFollowsState() {
	in := jobsync.Inputs{HasToken: true, JobID: runningJob}
	active := s.env.Sync.ObserveJobStatus(s.env.Context(), func() jobsync.Inputs { return in }, nil)
	defer active.Stop()

	done := jobsync.Inputs{HasToken: true, JobID: completedJob}
	terminal := s.env.Sync.ObserveJobStatus(s.env.Context(), func() jobsync.Inputs { return done }, nil)
	defer terminal.Stop()

	s.Eventually(func() bool {
		return s.env.Requests(http.MethodGet, "/jobs/"+runningJob+"/status") >= 3
	}, 2*time.Second, 10*time.Millisecond)

	s.Equal(1, s.env.Requests(http.MethodGet, "/jobs/"+completedJob+"/status"))
}

func TestUnauthenticatedObserversStayIdle(t *testing.T) {
	s := NewSuite(t, WithToken(""))
	defer s.Cleanup()

	o := s.Sync.ObserveJobs(s.Context(), func() jobsync.Inputs { return jobsync.Inputs{} }, nil)
	defer o.Stop()

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, s.Requests(http.MethodGet, "/jobs/"))
}
