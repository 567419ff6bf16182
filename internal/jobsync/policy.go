package jobsync

import (
	"fmt"
	"time"

	"github.com/kbase/cts-browser/pkg/api/v1/routes"
	"github.com/kbase/cts-browser/pkg/types"
)

// Kind identifies the entity a cache entry holds
type Kind string

// Entity kinds, matching the cache key prefixes
const (
	KindJobs      Kind = "jobs"
	KindJob       Kind = "job"
	KindJobStatus Kind = "job-status"
	KindExitCodes Kind = "job-exit-codes"
	KindJobLog    Kind = "job-log"
	KindSites     Kind = "sites"
)

// Key identifies one cache entry. Every parameter that changes the
// response is part of the key.
type Key struct {
	Kind   Kind
	JobID  string
	Params string
}

func (k Key) String() string {
	s := string(k.Kind)
	if k.JobID != "" {
		s += "/" + k.JobID
	}
	if k.Params != "" {
		s += "?" + k.Params
	}
	return s
}

// JobsKey is the key of a job listing
func JobsKey(filters types.JobFilters, defaultLimit int) Key {
	return Key{Kind: KindJobs, Params: routes.JobsQuery(filters, defaultLimit)}
}

// JobKey is the key of a job detail
func JobKey(id string) Key { return Key{Kind: KindJob, JobID: id} }

// JobStatusKey is the key of a job status
func JobStatusKey(id string) Key { return Key{Kind: KindJobStatus, JobID: id} }

// ExitCodesKey is the key of a job's exit codes
func ExitCodesKey(id string) Key { return Key{Kind: KindExitCodes, JobID: id} }

// JobLogKey is the key of one container log stream
func JobLogKey(id string, container int, stream types.LogStream) Key {
	return Key{Kind: KindJobLog, JobID: id, Params: fmt.Sprintf("%d/%s", container, stream)}
}

// SitesKey is the key of the site listing
func SitesKey() Key { return Key{Kind: KindSites} }

// Forever marks a stale time after which data never goes stale
const Forever time.Duration = -1

// Policy is the freshness and polling policy of one entity kind
type Policy struct {
	// StaleTime is how long fetched data is served without refetching
	StaleTime time.Duration

	// RefetchInterval is the polling cadence while polling applies, zero
	// for on-demand only
	RefetchInterval time.Duration
}

// Policies maps each kind to its policy
type Policies map[Kind]Policy

// DefaultPolicies returns the policy table for the given active (status)
// and list polling intervals
func DefaultPolicies(active, list time.Duration) Policies {
	return Policies{
		KindJobs:      {StaleTime: 10 * time.Second, RefetchInterval: list},
		KindJob:       {StaleTime: 5 * time.Second},
		KindJobStatus: {StaleTime: 2 * time.Second, RefetchInterval: active},
		KindExitCodes: {StaleTime: Forever},
		KindJobLog:    {StaleTime: 30 * time.Second},
		KindSites:     {StaleTime: 5 * time.Minute},
	}
}

// StaleTime returns the stale time of kind
func (p Policies) StaleTime(kind Kind) time.Duration {
	return p[kind].StaleTime
}

// RefetchInterval returns the polling interval for kind under the given
// inputs, or zero when the query must not poll
func (p Policies) RefetchInterval(kind Kind, in Inputs) time.Duration {
	if !ShouldPoll(kind, in) {
		return 0
	}
	return p[kind].RefetchInterval
}

// Inputs are the external conditions queries are gated on. They are
// re-read on every scheduling cycle.
type Inputs struct {
	HasToken bool
	MockMode bool

	// JobID is the selected job, empty when none is selected
	JobID string

	// LastState is the last known state of the selected job, empty when
	// unknown
	LastState types.JobState

	// Filters narrow the job listing
	Filters types.JobFilters

	// Container and Stream select the log being viewed
	Container int
	Stream    types.LogStream

	// LogRequested is set once the log view is expanded
	LogRequested bool
}

func (in Inputs) credentialed() bool {
	return in.HasToken || in.MockMode
}

// Enabled reports whether a query of kind may run at all
func Enabled(kind Kind, in Inputs) bool {
	if !in.credentialed() {
		return false
	}

	switch kind {
	case KindJobs, KindSites:
		return true
	case KindJob, KindJobStatus:
		return in.JobID != ""
	case KindExitCodes:
		return in.JobID != "" && in.LastState.IsTerminal()
	case KindJobLog:
		return in.JobID != "" && in.LogRequested
	default:
		return false
	}
}

// ShouldPoll reports whether a query of kind is refetched periodically.
// Status polling continues while the state is unknown or non-terminal.
func ShouldPoll(kind Kind, in Inputs) bool {
	if !Enabled(kind, in) {
		return false
	}

	switch kind {
	case KindJobs:
		return true
	case KindJobStatus:
		return !in.LastState.IsTerminal()
	default:
		return false
	}
}
