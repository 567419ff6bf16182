package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCodesResponse_ToExitCodes(t *testing.T) {
	var resp ExitCodesResponse
	require.NoError(t, json.Unmarshal([]byte(`{"exit_codes": [0, null, 137]}`), &resp))

	codes := resp.ToExitCodes()
	require.Len(t, codes, 3)
	assert.Equal(t, 0, codes[0].ContainerNum)
	require.NotNil(t, codes[0].ExitCode)
	assert.Equal(t, 0, *codes[0].ExitCode)
	assert.Nil(t, codes[1].ExitCode)
	assert.Equal(t, 2, codes[2].ContainerNum)
	assert.Equal(t, 137, *codes[2].ExitCode)

	assert.Empty(t, ExitCodesResponse{}.ToExitCodes())
	assert.NotNil(t, ExitCodesResponse{}.ToExitCodes())
}

func TestJobDecodingPreservesTransitionOrder(t *testing.T) {
	payload := `{
		"id": "job-1",
		"state": "complete",
		"user": "alice",
		"transition_times": [
			{"state": "created", "time": "2024-01-15T10:00:00Z"},
			{"state": "job_submitted", "time": "2024-01-15T10:05:00Z"},
			{"state": "complete", "time": "2024-01-15T11:00:00Z"}
		],
		"job_input": {"cluster": "kbase", "image": "kbase/tool:v1"},
		"image": {"name": "kbase/tool", "tag": "v1", "entrypoint": ["/app/run.sh"]}
	}`

	var job Job
	require.NoError(t, json.Unmarshal([]byte(payload), &job))

	assert.Equal(t, JobStateComplete, job.State)
	require.Len(t, job.TransitionTimes, 3)
	assert.Equal(t, JobStateCreated, job.TransitionTimes[0].State)
	assert.Equal(t, JobStateComplete, job.TransitionTimes[2].State)
	assert.Equal(t, "kbase", job.Cluster())
	assert.Equal(t, "kbase/tool:v1", job.ImageRef())
	assert.Equal(t, 1, job.NumContainers())

	last, ok := job.LastTransition()
	require.True(t, ok)
	assert.Equal(t, JobStateComplete, last.State)
}

func TestJobImage_Ref(t *testing.T) {
	assert.Equal(t, "img:v2", JobImage{Name: "img", Tag: "v2", Digest: "sha256:x"}.Ref())
	assert.Equal(t, "img@sha256:x", JobImage{Name: "img", Digest: "sha256:x"}.Ref())
	assert.Equal(t, "img", JobImage{Name: "img"}.Ref())
}

func TestParseLogStream(t *testing.T) {
	stream, err := ParseLogStream("stderr")
	require.NoError(t, err)
	assert.Equal(t, LogStreamStderr, stream)

	_, err = ParseLogStream("stdin")
	assert.Error(t, err)
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		then time.Time
		want string
	}{
		{"seconds", now.Add(-30 * time.Second), "just now"},
		{"minutes", now.Add(-5 * time.Minute), "5m ago"},
		{"hours", now.Add(-2 * time.Hour), "2h ago"},
		{"days", now.Add(-3 * 24 * time.Hour), "3d ago"},
		{"future", now.Add(time.Hour), "just now"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RelativeTime(tt.then, now))
		})
	}
}

func TestJob_LastUpdate(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	job := Job{TransitionTimes: []TransitionTime{
		{State: JobStateCreated, Time: now.Add(-3 * time.Hour).Format(time.RFC3339)},
		{State: JobStateJobSubmitted, Time: now.Add(-10 * time.Minute).Format(time.RFC3339)},
	}}
	assert.Equal(t, "10m ago", job.LastUpdate(now))

	assert.Equal(t, "", Job{}.LastUpdate(now))
	assert.Equal(t, "", Job{TransitionTimes: []TransitionTime{{Time: "yesterday"}}}.LastUpdate(now))
}
