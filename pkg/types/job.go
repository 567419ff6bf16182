// Package types contains the CTS domain entities shared by the client,
// the synchronization layer and the mock substrate.
//
// Field names follow the CTS OpenAPI document.
package types

import (
	"fmt"
	"time"
)

// TransitionTime records one observed state change
type TransitionTime struct {
	State JobState `json:"state"`
	Time  string   `json:"time"` // RFC 3339
}

// Parsed returns the transition timestamp.
func (t TransitionTime) Parsed() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, t.Time)
}

// JobOutput is a file produced by a job
type JobOutput struct {
	File      string `json:"file"`
	Crc64Nvme string `json:"crc64nvme,omitempty"`
}

// JobImage describes the registered container image a job runs
type JobImage struct {
	Name                     string   `json:"name"`
	Digest                   string   `json:"digest,omitempty"`
	Entrypoint               []string `json:"entrypoint,omitempty"`
	RegisteredBy             string   `json:"registered_by,omitempty"`
	RegisteredOn             string   `json:"registered_on,omitempty"`
	Tag                      string   `json:"tag,omitempty"`
	RefdataID                string   `json:"refdata_id,omitempty"`
	DefaultRefdataMountPoint string   `json:"default_refdata_mount_point,omitempty"`
}

// Ref returns the image reference, preferring tag over digest.
func (i JobImage) Ref() string {
	switch {
	case i.Tag != "":
		return fmt.Sprintf("%s:%s", i.Name, i.Tag)
	case i.Digest != "":
		return fmt.Sprintf("%s@%s", i.Name, i.Digest)
	default:
		return i.Name
	}
}

// JobInput holds the submission parameters of a job
type JobInput struct {
	Cluster       string         `json:"cluster"`
	Image         string         `json:"image"`
	Params        map[string]any `json:"params,omitempty"`
	NumContainers int            `json:"num_containers,omitempty"`
	CPUs          int            `json:"cpus,omitempty"`
	Memory        string         `json:"memory,omitempty"`
	Runtime       int            `json:"runtime,omitempty"`
	InputRoots    []string       `json:"input_roots,omitempty"`
	OutputDir     string         `json:"output_dir,omitempty"`
	InputFiles    []string       `json:"input_files,omitempty"`
}

// Job is a read-only snapshot of a CTS job
type Job struct {
	ID              string           `json:"id"`
	State           JobState         `json:"state"`
	TransitionTimes []TransitionTime `json:"transition_times"`
	User            string           `json:"user"`
	InputFileCount  int              `json:"input_file_count,omitempty"`
	OutputFileCount int              `json:"output_file_count,omitempty"`
	CPUHours        *float64         `json:"cpu_hours,omitempty"`
	Error           string           `json:"error,omitempty"`
	Outputs         []JobOutput      `json:"outputs,omitempty"`
	Image           *JobImage        `json:"image,omitempty"`
	JobInput        *JobInput        `json:"job_input,omitempty"`
	CPUFactor       *float64         `json:"cpu_factor,omitempty"`
	MaxMemory       string           `json:"max_memory,omitempty"`
	Logpath         string           `json:"logpath,omitempty"`
}

// Cluster returns the cluster the job was submitted to, if known.
func (j Job) Cluster() string {
	if j.JobInput == nil {
		return ""
	}
	return j.JobInput.Cluster
}

// ImageRef returns the image reference of the job, if known.
func (j Job) ImageRef() string {
	if j.Image != nil {
		return j.Image.Ref()
	}
	if j.JobInput != nil {
		return j.JobInput.Image
	}
	return ""
}

// LastTransition returns the most recent transition, if any.
func (j Job) LastTransition() (TransitionTime, bool) {
	if len(j.TransitionTimes) == 0 {
		return TransitionTime{}, false
	}
	return j.TransitionTimes[len(j.TransitionTimes)-1], true
}

// NumContainers returns the number of containers the job runs, at least one.
func (j Job) NumContainers() int {
	if j.JobInput == nil || j.JobInput.NumContainers < 1 {
		return 1
	}
	return j.JobInput.NumContainers
}

// JobStatus is the lightweight status payload used for polling
type JobStatus struct {
	ID    string   `json:"id"`
	State JobState `json:"state"`
}

// ExitCode is the exit code of one container. ExitCode is nil while the
// container has not exited.
type ExitCode struct {
	ContainerNum int  `json:"container_num"`
	ExitCode     *int `json:"exit_code"`
}

// ExitCodesResponse is the wire shape of the exit codes endpoint
type ExitCodesResponse struct {
	ExitCodes []*int `json:"exit_codes"`
}

// ToExitCodes converts the wire shape to per-container exit codes.
func (r ExitCodesResponse) ToExitCodes() []ExitCode {
	codes := make([]ExitCode, 0, len(r.ExitCodes))
	for i, code := range r.ExitCodes {
		codes = append(codes, ExitCode{ContainerNum: i, ExitCode: code})
	}
	return codes
}

// ListJobsResponse is the wrapped wire shape of the jobs endpoint
type ListJobsResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobFilters narrows a job listing. Zero values mean "not set".
type JobFilters struct {
	State   JobState `json:"state,omitempty"`
	Cluster string   `json:"cluster,omitempty"`
	After   string   `json:"after,omitempty"`
	Before  string   `json:"before,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// LogStream selects one of the two container output streams
type LogStream string

const (
	// LogStreamStdout is the container standard output
	LogStreamStdout LogStream = "stdout"
	// LogStreamStderr is the container standard error
	LogStreamStderr LogStream = "stderr"
)

// ParseLogStream converts a string to a LogStream.
func ParseLogStream(str string) (LogStream, error) {
	switch LogStream(str) {
	case LogStreamStdout, LogStreamStderr:
		return LogStream(str), nil
	}
	return "", fmt.Errorf("invalid log stream: %s (expected stdout or stderr)", str)
}
