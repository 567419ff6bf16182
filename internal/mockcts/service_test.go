package mockcts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/cts-browser/pkg/api/v1/client"
	"github.com/kbase/cts-browser/pkg/types"
)

var fixedNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestService() *Service {
	return NewService(NewFixtures(fixedNow), 0)
}

func jobIDs(jobs []types.Job) []string {
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	return ids
}

func TestFixtures(t *testing.T) {
	f := NewFixtures(fixedNow)
	require.Len(t, f.Jobs, 10)

	seen := make(map[string]bool)
	for _, job := range f.Jobs {
		assert.False(t, seen[job.ID], "duplicate fixture id %s", job.ID)
		seen[job.ID] = true
		assert.True(t, job.State.IsValid(), job.ID)
		require.NotEmpty(t, job.TransitionTimes, job.ID)

		last, _ := job.LastTransition()
		assert.Equal(t, job.State, last.State, "last transition of %s matches its state", job.ID)
		assert.NotEmpty(t, job.Cluster(), job.ID)
	}
}

func TestService_ListJobs(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	t.Run("all jobs in fixture order", func(t *testing.T) {
		jobs, err := svc.ListJobs(ctx, types.JobFilters{})
		require.NoError(t, err)
		assert.Equal(t, jobIDs(svc.Fixtures().Jobs), jobIDs(jobs))
	})

	t.Run("state filter", func(t *testing.T) {
		jobs, err := svc.ListJobs(ctx, types.JobFilters{State: types.JobStateComplete})
		require.NoError(t, err)
		assert.Equal(t, []string{"job-e5f6g7h8-completed-successfully", "job-y5z6a7b8-old-complete"}, jobIDs(jobs))
		for _, job := range jobs {
			assert.Equal(t, types.JobStateComplete, job.State)
		}
	})

	t.Run("cluster filter uses job input", func(t *testing.T) {
		jobs, err := svc.ListJobs(ctx, types.JobFilters{Cluster: "kbase"})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"job-m3n4o5p6-uploading-results",
			"job-y5z6a7b8-old-complete",
			"job-h5i6j7k8-canceled",
		}, jobIDs(jobs))
	})

	t.Run("limit", func(t *testing.T) {
		jobs, err := svc.ListJobs(ctx, types.JobFilters{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, jobs, 2)
		assert.Equal(t, "job-a1b2c3d4-running-analysis", jobs[0].ID)
	})

	t.Run("default limit", func(t *testing.T) {
		small := NewService(NewFixtures(fixedNow), 3)
		jobs, err := small.ListJobs(ctx, types.JobFilters{})
		require.NoError(t, err)
		assert.Len(t, jobs, 3)
	})

	t.Run("no match is empty, not nil", func(t *testing.T) {
		jobs, err := svc.ListJobs(ctx, types.JobFilters{State: types.JobStateError, Cluster: "kbase"})
		require.NoError(t, err)
		assert.NotNil(t, jobs)
		assert.Empty(t, jobs)
	})
}

func TestService_GetJob(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	job, err := svc.GetJob(ctx, "job-i9j0k1l2-failed-with-error")
	require.NoError(t, err)
	assert.Equal(t, types.JobStateError, job.State)
	assert.Contains(t, job.Error, "OutOfMemoryError")

	_, err = svc.GetJob(ctx, "nonexistent-id")
	assert.True(t, client.IsNotFound(err))

	_, err = svc.GetJobStatus(ctx, "nonexistent-id")
	assert.True(t, client.IsNotFound(err))

	status, err := svc.GetJobStatus(ctx, "job-a1b2c3d4-running-analysis")
	require.NoError(t, err)
	assert.Equal(t, types.JobStateJobSubmitted, status.State)
}

func TestService_CancelJob(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	id := "job-a1b2c3d4-running-analysis"

	for i := 0; i < 3; i++ {
		job, err := svc.CancelJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, types.JobStateCanceling, job.State, "repeated cancels stay canceling")
	}

	job, err := svc.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.JobStateJobSubmitted, job.State, "fixture is not mutated")

	_, err = svc.CancelJob(ctx, "nonexistent-id")
	require.Error(t, err)
	assert.True(t, client.IsNotFound(err))
	assert.Equal(t, 404, client.StatusCode(err))
}

func TestService_ExitCodesAndLogs(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	codes, err := svc.GetExitCodes(ctx, "job-i9j0k1l2-failed-with-error")
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, 137, *codes[0].ExitCode)

	codes, err = svc.GetExitCodes(ctx, "job-q7r8s9t0-just-created")
	require.NoError(t, err)
	assert.NotNil(t, codes)
	assert.Empty(t, codes)

	log, err := svc.GetJobLog(ctx, "job-e5f6g7h8-completed-successfully", 0, types.LogStreamStderr)
	require.NoError(t, err)
	assert.Contains(t, log, "Low memory detected")

	log, err = svc.GetJobLog(ctx, "job-q7r8s9t0-just-created", 0, types.LogStreamStdout)
	require.NoError(t, err)
	assert.Equal(t, "", log)

	log, err = svc.GetJobLog(ctx, "job-e5f6g7h8-completed-successfully", 5, types.LogStreamStdout)
	require.NoError(t, err)
	assert.Equal(t, "", log)

	_, err = svc.GetJobLog(ctx, "nonexistent-id", 0, types.LogStreamStdout)
	require.Error(t, err)
	assert.True(t, client.IsNotFound(err))
}

func TestService_CanceledContext(t *testing.T) {
	svc := newTestService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ListJobs(ctx, types.JobFilters{})
	assert.ErrorIs(t, err, context.Canceled)
}
