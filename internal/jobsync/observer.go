package jobsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lthibault/jitterbug/v2"

	"github.com/kbase/cts-browser/internal/logger"
	"github.com/kbase/cts-browser/pkg/types"
)

// observerCore is the part of an observer the Synchronizer sees: the key it
// currently watches and a way to wake it.
type observerCore struct {
	mu      sync.Mutex
	key     Key
	active  bool
	refresh chan struct{}
}

func newObserverCore() *observerCore {
	return &observerCore{refresh: make(chan struct{}, 1)}
}

func (o *observerCore) setKey(key Key, active bool) {
	o.mu.Lock()
	o.key, o.active = key, active
	o.mu.Unlock()
}

func (o *observerCore) currentKey() (Key, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.key, o.active
}

func (o *observerCore) nudge() {
	select {
	case o.refresh <- struct{}{}:
	default:
	}
}

func (s *Synchronizer) register(o *observerCore) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closed:
		return false
	default:
	}
	s.observers[o] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Synchronizer) unregister(o *observerCore) {
	s.mu.Lock()
	delete(s.observers, o)
	s.mu.Unlock()
	s.wg.Done()
}

// jitter returns the tick jitter for interval, bounded so ticks stay
// positive in practice
func (s *Synchronizer) jitter(interval time.Duration) jitterbug.Jitter {
	stdev := s.opts.PollJitter
	if stdev > interval/4 {
		stdev = interval / 4
	}
	return &jitterbug.Norm{Stdev: stdev, Mean: 0}
}

// Observer keeps one query up to date. Each cycle it re-reads its inputs,
// fetches when the query is enabled, delivers the result unless the inputs
// moved on to another key meanwhile, and then waits: on a jittered ticker
// while the query polls, otherwise only for a refresh. Disabled and
// non-polling observers hold no timer.
type Observer[T any] struct {
	core     *observerCore
	s        *Synchronizer
	kind     Kind
	inputs   func() Inputs
	keyFn    func(Inputs) Key
	fetch    func(ctx context.Context, in Inputs, force bool) Result[T]
	onResult func(Key, Result[T])

	forceNext atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func observe[T any](
	ctx context.Context,
	s *Synchronizer,
	kind Kind,
	inputs func() Inputs,
	keyFn func(Inputs) Key,
	fetch func(ctx context.Context, in Inputs, force bool) Result[T],
	onResult func(Key, Result[T]),
) *Observer[T] {
	ctx, cancel := context.WithCancel(ctx)
	o := &Observer[T]{
		core:     newObserverCore(),
		s:        s,
		kind:     kind,
		inputs:   inputs,
		keyFn:    keyFn,
		fetch:    fetch,
		onResult: onResult,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	if !s.register(o.core) {
		cancel()
		close(o.done)
		return o
	}

	// Closing the synchronizer also aborts a fetch the observer waits on
	stopAfter := context.AfterFunc(s.ctx, cancel)
	go func() {
		defer stopAfter()
		o.run(ctx)
	}()
	return o
}

// Refresh makes the observer refetch now, regardless of staleness
func (o *Observer[T]) Refresh() {
	o.forceNext.Store(true)
	o.core.nudge()
}

// Stop stops the observer and waits for it to exit
func (o *Observer[T]) Stop() {
	o.cancel()
	<-o.done
}

// Done is closed once the observer has exited
func (o *Observer[T]) Done() <-chan struct{} {
	return o.done
}

func (o *Observer[T]) run(ctx context.Context) {
	defer func() {
		o.s.unregister(o.core)
		close(o.done)
	}()

	force := false
	for {
		in := o.inputs()
		if !Enabled(o.kind, in) {
			o.core.setKey(Key{}, false)
			if _, ok := o.wait(ctx, nil); !ok {
				return
			}
			force = false
			continue
		}

		key := o.keyFn(in)
		o.core.setKey(key, true)

		res := o.fetch(ctx, in, force || o.forceNext.Swap(false))
		if ctx.Err() != nil {
			return
		}

		if cur := o.inputs(); Enabled(o.kind, cur) && o.keyFn(cur) == key {
			if o.onResult != nil {
				o.onResult(key, res)
			}
		} else {
			logger.Debugf("Discarding superseded result for %s", key)
		}

		var tick <-chan time.Time
		var ticker *jitterbug.Ticker
		if interval := o.s.opts.Policies.RefetchInterval(o.kind, o.inputs()); interval > 0 {
			ticker = jitterbug.New(interval, o.s.jitter(interval))
			tick = ticker.C
		}

		ticked, ok := o.wait(ctx, tick)
		if ticker != nil {
			ticker.Stop()
		}
		if !ok {
			return
		}
		force = ticked
	}
}

// wait blocks until the next cycle. It reports whether the tick fired and
// whether the observer should continue.
func (o *Observer[T]) wait(ctx context.Context, tick <-chan time.Time) (ticked bool, ok bool) {
	select {
	case <-ctx.Done():
		return false, false
	case <-o.s.closed:
		return false, false
	case <-o.core.refresh:
		return false, true
	case <-tick:
		return true, true
	}
}

// Typed observers

// ObserveJobs keeps the job listing selected by Inputs.Filters up to date
func (s *Synchronizer) ObserveJobs(ctx context.Context, inputs func() Inputs, onResult func(Result[[]types.Job])) *Observer[[]types.Job] {
	return observe(ctx, s, KindJobs, inputs,
		func(in Inputs) Key { return JobsKey(in.Filters, s.opts.DefaultLimit) },
		func(ctx context.Context, in Inputs, force bool) Result[[]types.Job] {
			return s.jobs(ctx, in.Filters, force)
		},
		deliver(onResult))
}

// ObserveJob keeps the detail of the selected job up to date
func (s *Synchronizer) ObserveJob(ctx context.Context, inputs func() Inputs, onResult func(Result[types.Job])) *Observer[types.Job] {
	return observe(ctx, s, KindJob, inputs,
		func(in Inputs) Key { return JobKey(in.JobID) },
		func(ctx context.Context, in Inputs, force bool) Result[types.Job] {
			return s.job(ctx, in.JobID, force)
		},
		deliver(onResult))
}

// ObserveJobStatus polls the status of the selected job while it is not
// terminal. The last observed state feeds back into the polling decision,
// taking precedence over Inputs.LastState.
func (s *Synchronizer) ObserveJobStatus(ctx context.Context, inputs func() Inputs, onResult func(Result[types.JobStatus])) *Observer[types.JobStatus] {
	var (
		mu   sync.Mutex
		last = make(map[string]types.JobState)
	)

	withLastState := func() Inputs {
		in := inputs()
		mu.Lock()
		if state, ok := last[in.JobID]; ok {
			in.LastState = state
		}
		mu.Unlock()
		return in
	}

	return observe(ctx, s, KindJobStatus, withLastState,
		func(in Inputs) Key { return JobStatusKey(in.JobID) },
		func(ctx context.Context, in Inputs, force bool) Result[types.JobStatus] {
			return s.jobStatus(ctx, in.JobID, force)
		},
		func(key Key, res Result[types.JobStatus]) {
			if res.HasData {
				mu.Lock()
				last[key.JobID] = res.Data.State
				mu.Unlock()
			}
			if onResult != nil {
				onResult(res)
			}
		})
}

// ObserveExitCodes fetches the exit codes of the selected job once it is
// terminal
func (s *Synchronizer) ObserveExitCodes(ctx context.Context, inputs func() Inputs, onResult func(Result[[]types.ExitCode])) *Observer[[]types.ExitCode] {
	return observe(ctx, s, KindExitCodes, inputs,
		func(in Inputs) Key { return ExitCodesKey(in.JobID) },
		func(ctx context.Context, in Inputs, force bool) Result[[]types.ExitCode] {
			return s.exitCodes(ctx, in.JobID, force)
		},
		deliver(onResult))
}

// ObserveJobLog fetches the selected log stream once it is requested
func (s *Synchronizer) ObserveJobLog(ctx context.Context, inputs func() Inputs, onResult func(Result[string])) *Observer[string] {
	return observe(ctx, s, KindJobLog, inputs,
		func(in Inputs) Key { return JobLogKey(in.JobID, in.Container, in.Stream) },
		func(ctx context.Context, in Inputs, force bool) Result[string] {
			return s.jobLog(ctx, in.JobID, in.Container, in.Stream, force)
		},
		deliver(onResult))
}

// ObserveSites fetches the site listing
func (s *Synchronizer) ObserveSites(ctx context.Context, inputs func() Inputs, onResult func(Result[[]types.Site])) *Observer[[]types.Site] {
	return observe(ctx, s, KindSites, inputs,
		func(Inputs) Key { return SitesKey() },
		func(ctx context.Context, _ Inputs, force bool) Result[[]types.Site] {
			return s.sites(ctx, force)
		},
		deliver(onResult))
}

func deliver[T any](onResult func(Result[T])) func(Key, Result[T]) {
	return func(_ Key, res Result[T]) {
		if onResult != nil {
			onResult(res)
		}
	}
}
