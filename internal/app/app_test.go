package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/cts-browser/config"
	"github.com/kbase/cts-browser/internal/jobsync"
	"github.com/kbase/cts-browser/pkg/types"
)

func testConfig(base string) *config.Config {
	return &config.Config{
		APIBase:               base,
		DefaultJobLimit:       100,
		PollingIntervalActive: 20 * time.Millisecond,
		PollingIntervalList:   20 * time.Millisecond,
		Timeout:               time.Second,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()

	a, err := New(cfg)
	require.NoError(t, err)
	a.Start(context.Background())
	t.Cleanup(a.Close)
	return a
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(testConfig("not a url"))
	assert.Error(t, err)

	cfg := testConfig("http://localhost:9")
	cfg.Token = "abc"
	cfg.MockMode = true
	a := newTestApp(t, cfg)

	assert.Equal(t, "abc", a.Token())
	assert.True(t, a.MockMode())
	assert.Equal(t, jobsync.Inputs{HasToken: true, MockMode: true}, a.Inputs())
	assert.Equal(t, 100, a.Sync.DefaultLimit())
}

func TestMockModeServesFixtures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MockMode = true
	a := newTestApp(t, cfg)
	ctx := context.Background()

	res := a.Sync.Jobs(ctx, types.JobFilters{State: types.JobStateError})
	require.NoError(t, res.Err)
	require.NotEmpty(t, res.Data)
	for _, job := range res.Data {
		assert.Equal(t, types.JobStateError, job.State)
	}
	assert.Zero(t, hits.Load())
}

func TestSwitchingModeChangesSource(t *testing.T) {
	var auth atomic.Value
	auth.Store("")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jobs": []}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MockMode = true
	a := newTestApp(t, cfg)
	ctx := context.Background()

	mockJobs := a.Sync.Jobs(ctx, types.JobFilters{})
	require.NoError(t, mockJobs.Err)
	assert.NotEmpty(t, mockJobs.Data)

	a.SetToken("secret")
	a.SetMockMode(false)

	liveJobs := a.Sync.Jobs(ctx, types.JobFilters{})
	require.NoError(t, liveJobs.Err)
	assert.False(t, liveJobs.FromCache, "switching modes must not serve mock data")
	assert.Empty(t, liveJobs.Data)
	assert.Equal(t, "Bearer secret", auth.Load())
}

func TestSetTokenEnablesObservers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sites": []}`))
	}))
	defer srv.Close()

	a := newTestApp(t, testConfig(srv.URL))

	var delivered atomic.Int32
	o := a.Sync.ObserveSites(context.Background(), a.Inputs, func(jobsync.Result[[]types.Site]) {
		delivered.Add(1)
	})
	defer o.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, delivered.Load())

	a.SetToken("abc")
	assert.Eventually(t, func() bool {
		return delivered.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseIsIdempotent(t *testing.T) {
	a, err := New(testConfig("http://localhost:9"))
	require.NoError(t, err)

	a.Start(context.Background())
	a.Close()
	a.Close()

	select {
	case <-a.Bus.Done():
	case <-time.After(time.Second):
		t.Fatal("event bus did not stop")
	}
}
