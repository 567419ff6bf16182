// Package jobsync decides when to call the CTS and when to serve cached
// data. It owns the process-wide query cache: entries are keyed by entity
// kind and parameters, concurrent reads of one key share a single request,
// and mutations invalidate the entries they affect.
package jobsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kbase/cts-browser/internal/events"
	"github.com/kbase/cts-browser/internal/logger"
	"github.com/kbase/cts-browser/pkg/api/v1/client"
	"github.com/kbase/cts-browser/pkg/api/v1/routes"
	"github.com/kbase/cts-browser/pkg/types"
)

// Options configures a Synchronizer
type Options struct {
	Policies Policies

	// Retries is the number of automatic retries of a failed query.
	// Only network errors and 5xx responses are retried.
	Retries    int
	RetryDelay time.Duration

	// PollJitter is the standard deviation applied to every poll tick
	PollJitter time.Duration

	// DefaultLimit is the job listing page size used in cache keys
	DefaultLimit int

	// Token returns the current credential. Entries are credential scoped:
	// a change clears the cache.
	Token func() string

	// Bus receives state change, cancel and invalidation events. Optional.
	Bus *events.Bus

	Now func() time.Time
}

// DefaultOptions returns options with the standard policy table and a
// single retry
func DefaultOptions() Options {
	return Options{
		Policies:     DefaultPolicies(5*time.Second, 30*time.Second),
		Retries:      1,
		RetryDelay:   time.Second,
		DefaultLimit: routes.DefaultJobLimit,
		Now:          time.Now,
	}
}

// Result is the outcome of a query. On failure Data holds the last good
// value, if any, so callers can keep showing it next to the error.
type Result[T any] struct {
	Data      T
	HasData   bool
	Err       error
	UpdatedAt time.Time
	FromCache bool
}

// EntryInfo describes the state of one cache entry
type EntryInfo struct {
	HasData   bool
	Invalid   bool
	UpdatedAt time.Time
	Err       error
}

type entry struct {
	value     any
	hasData   bool
	updatedAt time.Time
	err       error
	invalid   bool
	terminal  bool
}

// Synchronizer is the single owner of the query cache
type Synchronizer struct {
	client client.Client
	opts   Options

	mu        sync.Mutex
	entries   map[Key]*entry
	gens      map[Key]uint64
	epoch     uint64
	lastToken string
	observers map[*observerCore]struct{}

	group singleflight.Group

	ctx       context.Context
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Synchronizer over c
func New(c client.Client, opts Options) *Synchronizer {
	defaults := DefaultOptions()
	if opts.Policies == nil {
		opts.Policies = defaults.Policies
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = defaults.DefaultLimit
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		client:    c,
		opts:      opts,
		entries:   make(map[Key]*entry),
		gens:      make(map[Key]uint64),
		observers: make(map[*observerCore]struct{}),
		ctx:       ctx,
		cancel:    cancel,
		closed:    make(chan struct{}),
	}
	if opts.Token != nil {
		s.lastToken = opts.Token()
	}
	return s
}

// Close stops every observer and aborts in-flight requests
func (s *Synchronizer) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.closed)
		s.mu.Unlock()

		s.cancel()
		s.wg.Wait()
	})
}

// Policies returns the policy table in use
func (s *Synchronizer) Policies() Policies {
	return s.opts.Policies
}

// DefaultLimit returns the job listing page size used in cache keys
func (s *Synchronizer) DefaultLimit() int {
	return s.opts.DefaultLimit
}

// Entry reports the state of the cache entry for key
func (s *Synchronizer) Entry(key Key) (EntryInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return EntryInfo{}, false
	}
	return EntryInfo{HasData: e.hasData, Invalid: e.invalid, UpdatedAt: e.updatedAt, Err: e.err}, true
}

func (s *Synchronizer) publish(event events.Event) {
	if s.opts.Bus != nil {
		s.opts.Bus.Publish(event)
	}
}

// checkToken clears the cache when the credential changed since the last
// query
func (s *Synchronizer) checkToken() {
	if s.opts.Token == nil {
		return
	}
	token := s.opts.Token()

	s.mu.Lock()
	if token == s.lastToken {
		s.mu.Unlock()
		return
	}
	s.lastToken = token
	cleared := len(s.entries)
	s.entries = make(map[Key]*entry)
	s.epoch++
	s.mu.Unlock()

	if cleared > 0 {
		logger.Debugf("Credential changed, cleared %d cache entries", cleared)
		s.publish(events.Event{Type: events.EventCacheInvalidated})
	}
}

// staleLocked reports whether e must be refetched. The caller holds s.mu.
func (s *Synchronizer) staleLocked(key Key, e *entry) bool {
	if e.invalid {
		return true
	}
	if e.terminal {
		return false
	}

	staleTime := s.opts.Policies.StaleTime(key.Kind)
	if staleTime == Forever {
		return false
	}
	return s.opts.Now().Sub(e.updatedAt) >= staleTime
}

func resultFrom[T any](e *entry) Result[T] {
	r := Result[T]{HasData: e.hasData, UpdatedAt: e.updatedAt, Err: e.err}
	if v, ok := e.value.(T); ok {
		r.Data = v
	}
	return r
}

// query serves key from the cache while fresh and otherwise fetches it.
// Concurrent queries of one key share a single fetch. A fetch that was
// superseded by an invalidation or a credential change is not stored.
func query[T any](ctx context.Context, s *Synchronizer, key Key, force bool, fetch func(context.Context) (T, error)) Result[T] {
	s.checkToken()

	s.mu.Lock()
	if e, ok := s.entries[key]; ok && e.hasData && !force && !s.staleLocked(key, e) {
		res := resultFrom[T](e)
		res.Err = nil
		res.FromCache = true
		s.mu.Unlock()
		return res
	}
	if _, ok := s.gens[key]; !ok {
		s.gens[key] = 0
	}
	epoch, gen := s.epoch, s.gens[key]
	s.mu.Unlock()

	flightKey := fmt.Sprintf("%s#%d.%d", key, epoch, gen)
	ch := s.group.DoChan(flightKey, func() (interface{}, error) {
		value, err := fetchWithRetry(s.ctx, s, key, fetch)
		s.store(key, epoch, gen, value, err)
		return value, err
	})

	var (
		value interface{}
		err   error
	)
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case r := <-ch:
		value, err = r.Val, r.Err
	}

	if err == nil {
		data, _ := value.(T)
		return Result[T]{Data: data, HasData: true, UpdatedAt: s.opts.Now()}
	}

	// Keep the last good value next to the error
	var res Result[T]
	s.mu.Lock()
	if e, ok := s.entries[key]; ok && e.hasData {
		res = resultFrom[T](e)
	}
	s.mu.Unlock()
	res.Err = err
	return res
}

func fetchWithRetry[T any](ctx context.Context, s *Synchronizer, key Key, fetch func(context.Context) (T, error)) (T, error) {
	value, err := fetch(ctx)
	for attempt := 1; err != nil && attempt <= s.opts.Retries && client.IsRetryable(err); attempt++ {
		logger.WarnWithFields("Query failed, retrying", map[string]interface{}{
			"key":     key.String(),
			"attempt": attempt,
			"error":   err.Error(),
		})

		select {
		case <-ctx.Done():
			return value, err
		case <-time.After(s.opts.RetryDelay):
		}
		value, err = fetch(ctx)
	}

	if err != nil {
		logger.DebugWithFields("Query failed", map[string]interface{}{
			"key":   key.String(),
			"error": err.Error(),
		})
	}
	return value, err
}

// store records a fetch outcome unless it has been superseded
func (s *Synchronizer) store(key Key, epoch, gen uint64, value interface{}, err error) {
	var changed *events.Event

	s.mu.Lock()
	if s.epoch != epoch || s.gens[key] != gen {
		s.mu.Unlock()
		logger.Debugf("Discarding superseded response for %s", key)
		return
	}

	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}

	if err != nil {
		e.err = err
	} else {
		if status, ok := value.(types.JobStatus); ok {
			if prev, ok := e.value.(types.JobStatus); ok && e.hasData && prev.State != status.State {
				changed = &events.Event{
					Type:  events.EventJobStateChanged,
					JobID: status.ID,
					From:  prev.State,
					To:    status.State,
				}
			}
			e.terminal = status.State.IsTerminal()
		}
		e.value = value
		e.hasData = true
		e.updatedAt = s.opts.Now()
		e.err = nil
		e.invalid = false
	}
	s.mu.Unlock()

	if changed != nil {
		logger.InfoWithFields("Job state changed", map[string]interface{}{
			"job_id": changed.JobID,
			"from":   changed.From,
			"to":     changed.To,
		})
		s.publish(*changed)
	}
}

// Invalidate marks the given entries stale. In-flight fetches for them are
// discarded on arrival and observers of them refetch.
func (s *Synchronizer) Invalidate(keys ...Key) {
	set := make(map[Key]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	s.invalidate(func(k Key) bool { return set[k] })
}

// InvalidateKind marks every entry of kind stale
func (s *Synchronizer) InvalidateKind(kind Kind) {
	s.invalidate(func(k Key) bool { return k.Kind == kind })
}

func (s *Synchronizer) invalidate(match func(Key) bool) {
	var (
		hit    []string
		nudged []*observerCore
	)

	s.mu.Lock()
	for k := range s.gens {
		if !match(k) {
			continue
		}
		s.gens[k]++
		hit = append(hit, k.String())
		if e, ok := s.entries[k]; ok {
			e.invalid = true
		}
	}
	for o := range s.observers {
		if k, ok := o.currentKey(); ok && match(k) {
			nudged = append(nudged, o)
		}
	}
	s.mu.Unlock()

	for _, o := range nudged {
		o.nudge()
	}
	if len(hit) > 0 {
		s.publish(events.Event{Type: events.EventCacheInvalidated, Keys: hit})
	}
}

// RefreshObservers wakes every observer so it re-reads its inputs. Call it
// after changing an input such as the credential or the mock flag.
func (s *Synchronizer) RefreshObservers() {
	s.mu.Lock()
	observers := make([]*observerCore, 0, len(s.observers))
	for o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	for _, o := range observers {
		o.nudge()
	}
}

// Queries

// Jobs returns the job listing for filters
func (s *Synchronizer) Jobs(ctx context.Context, filters types.JobFilters) Result[[]types.Job] {
	return s.jobs(ctx, filters, false)
}

func (s *Synchronizer) jobs(ctx context.Context, filters types.JobFilters, force bool) Result[[]types.Job] {
	return query(ctx, s, JobsKey(filters, s.opts.DefaultLimit), force, func(ctx context.Context) ([]types.Job, error) {
		return s.client.ListJobs(ctx, filters)
	})
}

// Job returns the detail of a job
func (s *Synchronizer) Job(ctx context.Context, id string) Result[types.Job] {
	return s.job(ctx, id, false)
}

func (s *Synchronizer) job(ctx context.Context, id string, force bool) Result[types.Job] {
	return query(ctx, s, JobKey(id), force, func(ctx context.Context) (types.Job, error) {
		return s.client.GetJob(ctx, id)
	})
}

// JobStatus returns the status of a job. Once a terminal status has been
// fetched it is served from the cache until invalidated.
func (s *Synchronizer) JobStatus(ctx context.Context, id string) Result[types.JobStatus] {
	return s.jobStatus(ctx, id, false)
}

func (s *Synchronizer) jobStatus(ctx context.Context, id string, force bool) Result[types.JobStatus] {
	return query(ctx, s, JobStatusKey(id), force, func(ctx context.Context) (types.JobStatus, error) {
		return s.client.GetJobStatus(ctx, id)
	})
}

// ExitCodes returns the exit codes of a job
func (s *Synchronizer) ExitCodes(ctx context.Context, id string) Result[[]types.ExitCode] {
	return s.exitCodes(ctx, id, false)
}

func (s *Synchronizer) exitCodes(ctx context.Context, id string, force bool) Result[[]types.ExitCode] {
	return query(ctx, s, ExitCodesKey(id), force, func(ctx context.Context) ([]types.ExitCode, error) {
		return s.client.GetExitCodes(ctx, id)
	})
}

// JobLog returns one container log stream
func (s *Synchronizer) JobLog(ctx context.Context, id string, container int, stream types.LogStream) Result[string] {
	return s.jobLog(ctx, id, container, stream, false)
}

func (s *Synchronizer) jobLog(ctx context.Context, id string, container int, stream types.LogStream, force bool) Result[string] {
	return query(ctx, s, JobLogKey(id, container, stream), force, func(ctx context.Context) (string, error) {
		return s.client.GetJobLog(ctx, id, container, stream)
	})
}

// Sites returns the site listing
func (s *Synchronizer) Sites(ctx context.Context) Result[[]types.Site] {
	return s.sites(ctx, false)
}

func (s *Synchronizer) sites(ctx context.Context, force bool) Result[[]types.Site] {
	return query(ctx, s, SitesKey(), force, func(ctx context.Context) ([]types.Site, error) {
		return s.client.ListSites(ctx)
	})
}

// Mutations

// CancelJob requests cancellation of a job. On success the job's detail
// and status entries and every job listing are invalidated. A failed
// cancel leaves the cache untouched.
func (s *Synchronizer) CancelJob(ctx context.Context, id string) (types.Job, error) {
	job, err := s.client.CancelJob(ctx, id)
	if err != nil {
		logger.WarnWithFields("Cancel failed", map[string]interface{}{
			"job_id": id,
			"error":  err.Error(),
		})
		return types.Job{}, fmt.Errorf("failed to cancel job %s: %w", id, err)
	}

	s.invalidate(func(k Key) bool {
		if k.Kind == KindJobs {
			return true
		}
		return k.JobID == id && (k.Kind == KindJob || k.Kind == KindJobStatus)
	})

	logger.InfoWithFields("Job cancel requested", map[string]interface{}{
		"job_id": id,
		"state":  job.State,
	})
	s.publish(events.Event{Type: events.EventJobCanceled, JobID: id, To: job.State})

	return job, nil
}
