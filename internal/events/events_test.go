package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/cts-browser/pkg/types"
)

func waitFor(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Test timed out waiting for event handler")
	}
}

func TestEventSystem(t *testing.T) {
	t.Run("Subscribe and Publish", func(t *testing.T) {
		bus := NewBus()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		bus.Start(ctx)

		var wg sync.WaitGroup
		wg.Add(1)

		var received Event
		bus.Subscribe(EventJobStateChanged, func(_ context.Context, event Event) error {
			received = event
			wg.Done()
			return nil
		})

		bus.Publish(Event{
			Type:  EventJobStateChanged,
			JobID: "job-1",
			From:  types.JobStateJobSubmitted,
			To:    types.JobStateComplete,
		})
		waitFor(t, &wg)

		assert.Equal(t, EventJobStateChanged, received.Type)
		assert.Equal(t, "job-1", received.JobID)
		assert.Equal(t, types.JobStateJobSubmitted, received.From)
		assert.Equal(t, types.JobStateComplete, received.To)
		assert.False(t, received.Timestamp.IsZero())
	})

	t.Run("Multiple Handlers and ordering", func(t *testing.T) {
		bus := NewBus()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		bus.Start(ctx)
		bus.Start(ctx)

		var (
			mu    sync.Mutex
			order []string
			wg    sync.WaitGroup
		)
		wg.Add(4)
		record := func(prefix string) Handler {
			return func(_ context.Context, event Event) error {
				mu.Lock()
				order = append(order, prefix+event.JobID)
				mu.Unlock()
				wg.Done()
				return nil
			}
		}
		bus.Subscribe(EventJobCanceled, record("a:"))
		bus.Subscribe(EventJobCanceled, record("b:"))

		bus.Publish(Event{Type: EventJobCanceled, JobID: "1"})
		bus.Publish(Event{Type: EventJobCanceled, JobID: "2"})
		waitFor(t, &wg)

		assert.Equal(t, []string{"a:1", "b:1", "a:2", "b:2"}, order)
	})

	t.Run("Handler errors do not stop processing", func(t *testing.T) {
		bus := NewBus()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		bus.Start(ctx)

		var wg sync.WaitGroup
		wg.Add(2)
		bus.Subscribe(EventCacheInvalidated, func(context.Context, Event) error {
			wg.Done()
			return errors.New("boom")
		})

		bus.Publish(Event{Type: EventCacheInvalidated})
		bus.Publish(Event{Type: EventCacheInvalidated})
		waitFor(t, &wg)
	})

	t.Run("Publish does not block without a consumer", func(t *testing.T) {
		bus := NewBus()
		for i := 0; i < EventChannelSize+10; i++ {
			bus.Publish(Event{Type: EventJobCanceled})
		}
		assert.Len(t, bus.eventChan, EventChannelSize)
	})

	t.Run("Stops on context cancel", func(t *testing.T) {
		bus := NewBus()
		ctx, cancel := context.WithCancel(context.Background())
		bus.Start(ctx)
		cancel()

		select {
		case <-bus.Done():
		case <-time.After(2 * time.Second):
			require.Fail(t, "event loop did not stop")
		}
	})
}
