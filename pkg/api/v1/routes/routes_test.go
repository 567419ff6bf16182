package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kbase/cts-browser/pkg/types"
)

func TestJobURLs(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"sites", ListSitesURL(), "/sites/"},
		{"job", GetJobURL("job-1"), "/jobs/job-1"},
		{"status", GetJobStatusURL("job-1"), "/jobs/job-1/status"},
		{"exit codes", GetExitCodesURL("job-1"), "/jobs/job-1/exit_codes"},
		{"log", GetJobLogURL("job-1", 2, types.LogStreamStderr), "/jobs/job-1/log/2/stderr"},
		{"cancel", CancelJobURL("job-1"), "/jobs/job-1/cancel"},
		{"escaped id", GetJobURL("a b"), "/jobs/a%20b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestJobsQuery(t *testing.T) {
	tests := []struct {
		name    string
		filters types.JobFilters
		want    string
	}{
		{
			name:    "default limit only",
			filters: types.JobFilters{},
			want:    "limit=100",
		},
		{
			name:    "state and cluster keep fixed order",
			filters: types.JobFilters{State: types.JobStateError, Cluster: "kbase"},
			want:    "state=error&cluster=kbase&limit=100",
		},
		{
			name: "all filters",
			filters: types.JobFilters{
				State:   types.JobStateComplete,
				After:   "2024-01-01T00:00:00Z",
				Before:  "2024-02-01T00:00:00Z",
				Cluster: "perlmutter",
				Limit:   5,
			},
			want: "state=complete&after=2024-01-01T00%3A00%3A00Z&before=2024-02-01T00%3A00%3A00Z&cluster=perlmutter&limit=5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JobsQuery(tt.filters, DefaultJobLimit))
		})
	}
}

func TestJobsQueryDefaultLimit(t *testing.T) {
	assert.Equal(t, "limit=25", JobsQuery(types.JobFilters{}, 25))
	assert.Equal(t, "limit=100", JobsQuery(types.JobFilters{}, 0))
}

func TestListJobsURL(t *testing.T) {
	assert.Equal(t, "/jobs/?state=error&cluster=kbase&limit=100",
		ListJobsURL(types.JobFilters{State: types.JobStateError, Cluster: "kbase"}, DefaultJobLimit))
}

func TestBuildURLUnknownRoute(t *testing.T) {
	assert.Equal(t, "", BuildURL("Nope", nil, ""))
}
