package types

import (
	"fmt"
	"strings"
)

// JobState is the lifecycle state of a CTS job. The CTS owns every
// transition; clients only classify the state they observe.
type JobState string

// Job state constants, in lifecycle order
const (
	// JobStateCreated indicates the service accepted the submission
	JobStateCreated JobState = "created"
	// JobStateDownloadSubmitted indicates input staging was submitted
	JobStateDownloadSubmitted JobState = "download_submitted"
	// JobStateJobSubmitting indicates the job is being handed to the cluster
	JobStateJobSubmitting JobState = "job_submitting"
	// JobStateJobSubmitted indicates the job is queued or running on the cluster
	JobStateJobSubmitted JobState = "job_submitted"
	// JobStateUploadSubmitting indicates result upload is being submitted
	JobStateUploadSubmitting JobState = "upload_submitting"
	// JobStateUploadSubmitted indicates result upload was submitted
	JobStateUploadSubmitted JobState = "upload_submitted"
	// JobStateComplete indicates the job finished successfully
	JobStateComplete JobState = "complete"
	// JobStateErrorProcessingSubmitting indicates error processing is being submitted
	JobStateErrorProcessingSubmitting JobState = "error_processing_submitting"
	// JobStateErrorProcessingSubmitted indicates error processing was submitted
	JobStateErrorProcessingSubmitted JobState = "error_processing_submitted"
	// JobStateError indicates the job failed
	JobStateError JobState = "error"
	// JobStateCanceling indicates a cancel request is in progress
	JobStateCanceling JobState = "canceling"
	// JobStateCanceled indicates the job was canceled
	JobStateCanceled JobState = "canceled"
)

// errorStatePrefix marks the error-processing lineage of states.
const errorStatePrefix = "error_"

// JobStates returns every valid job state in canonical order.
func JobStates() []JobState {
	return []JobState{
		JobStateCreated,
		JobStateDownloadSubmitted,
		JobStateJobSubmitting,
		JobStateJobSubmitted,
		JobStateUploadSubmitting,
		JobStateUploadSubmitted,
		JobStateComplete,
		JobStateErrorProcessingSubmitting,
		JobStateErrorProcessingSubmitted,
		JobStateError,
		JobStateCanceling,
		JobStateCanceled,
	}
}

// ParseJobState converts a string to a JobState, rejecting unknown values.
func ParseJobState(str string) (JobState, error) {
	for _, state := range JobStates() {
		if string(state) == str {
			return state, nil
		}
	}
	return "", fmt.Errorf("invalid job state: %s", str)
}

// String returns the wire representation of the state
func (s JobState) String() string {
	return string(s)
}

// IsValid reports whether s is one of the enumerated states.
func (s JobState) IsValid() bool {
	_, err := ParseJobState(string(s))
	return err == nil
}

// IsTerminal reports whether no further transition is expected.
// The error-processing states are still in flight toward error.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateComplete, JobStateError, JobStateCanceled:
		return true
	}
	return false
}

// IsError reports whether s is error or part of the error-processing lineage.
// An error state is not necessarily terminal.
func (s JobState) IsError() bool {
	return s == JobStateError || strings.HasPrefix(string(s), errorStatePrefix)
}

// IsCancelable reports whether a cancel request is meaningful for s.
func (s JobState) IsCancelable() bool {
	return !s.IsTerminal() && s != JobStateCanceling
}

// IsTerminalState reports whether state is terminal.
func IsTerminalState(state JobState) bool { return state.IsTerminal() }

// IsErrorState reports whether state is error-flavored.
func IsErrorState(state JobState) bool { return state.IsError() }

// IsCancelableState reports whether state can be canceled.
func IsCancelableState(state JobState) bool { return state.IsCancelable() }
