package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatePredicates(t *testing.T) {
	tests := []struct {
		state      JobState
		terminal   bool
		isError    bool
		cancelable bool
	}{
		{JobStateCreated, false, false, true},
		{JobStateDownloadSubmitted, false, false, true},
		{JobStateJobSubmitting, false, false, true},
		{JobStateJobSubmitted, false, false, true},
		{JobStateUploadSubmitting, false, false, true},
		{JobStateUploadSubmitted, false, false, true},
		{JobStateComplete, true, false, false},
		{JobStateErrorProcessingSubmitting, false, true, true},
		{JobStateErrorProcessingSubmitted, false, true, true},
		{JobStateError, true, true, false},
		{JobStateCanceling, false, false, false},
		{JobStateCanceled, true, false, false},
	}

	require.Len(t, tests, len(JobStates()), "every state must be covered")

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.terminal, IsTerminalState(tt.state))
			assert.Equal(t, tt.isError, IsErrorState(tt.state))
			assert.Equal(t, tt.cancelable, IsCancelableState(tt.state))
		})
	}
}

func TestJobStateInvariants(t *testing.T) {
	terminal := map[JobState]bool{
		JobStateComplete: true,
		JobStateError:    true,
		JobStateCanceled: true,
	}

	for _, state := range JobStates() {
		assert.Equal(t, terminal[state], state.IsTerminal(), state)
		assert.Equal(t, !state.IsTerminal() && state != JobStateCanceling, state.IsCancelable(), state)
		if state.IsCancelable() {
			assert.False(t, state.IsTerminal(), "cancelable implies non-terminal for %s", state)
		}
	}
}

func TestJobStatesOrder(t *testing.T) {
	states := JobStates()
	require.Len(t, states, 12)
	assert.Equal(t, JobStateCreated, states[0])
	assert.Equal(t, JobStateCanceled, states[len(states)-1])
}

func TestParseJobState(t *testing.T) {
	for _, state := range JobStates() {
		parsed, err := ParseJobState(string(state))
		require.NoError(t, err)
		assert.Equal(t, state, parsed)
		assert.True(t, parsed.IsValid())
	}

	_, err := ParseJobState("running")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job state")
	assert.False(t, JobState("").IsValid())
}
