package test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/require"

	"github.com/kbase/cts-browser/internal/events"
	"github.com/kbase/cts-browser/internal/jobsync"
	"github.com/kbase/cts-browser/internal/mockcts"
	"github.com/kbase/cts-browser/pkg/api/v1/client"
)

// DefaultTestTimeout is the default timeout for test suites.
const DefaultTestTimeout = 30 * time.Second

// testClientTimeout is the timeout for test API client requests
const testClientTimeout = 5 * time.Second

// Suite encapsulates all components needed for integration testing:
//   - the mock CTS served over HTTP
//   - a real API client pointed at it
//   - a synchronizer and event bus over that client
type Suite struct {
	t *testing.T

	// Server components
	Service *mockcts.Service
	App     *fiber.App
	Server  *httptest.Server

	// Client components
	APIClient *client.APIClient
	Sync      *jobsync.Synchronizer
	Bus       *events.Bus

	syncOpts jobsync.Options
	token    string

	mu       sync.Mutex
	requests map[string]int

	ctx        context.Context
	cancelFunc context.CancelFunc
	cleanup    func()
}

// Option configures a Suite
type Option func(*Suite)

// WithTimeout sets the suite context timeout
func WithTimeout(timeout time.Duration) Option {
	return func(s *Suite) {
		if s.cancelFunc != nil {
			s.cancelFunc()
		}
		s.ctx, s.cancelFunc = context.WithTimeout(context.Background(), timeout)
	}
}

// WithSyncOptions adjusts the synchronizer options before it is created
func WithSyncOptions(fn func(*jobsync.Options)) Option {
	return func(s *Suite) {
		fn(&s.syncOpts)
	}
}

// WithToken sets the credential the client sends
func WithToken(token string) Option {
	return func(s *Suite) {
		s.token = token
	}
}

// NewSuite creates a suite. Call Cleanup when done.
func NewSuite(t *testing.T, opts ...Option) *Suite {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	s := &Suite{
		t:          t,
		ctx:        ctx,
		cancelFunc: cancel,
		requests:   make(map[string]int),
		token:      "test-token",
	}

	s.syncOpts = jobsync.DefaultOptions()
	s.syncOpts.Retries = 0
	s.syncOpts.RetryDelay = 0
	s.syncOpts.PollJitter = 0

	for _, opt := range opts {
		opt(s)
	}

	s.cleanup = func() {
		if s.Sync != nil {
			s.Sync.Close()
		}
		if s.Server != nil {
			s.Server.Close()
		}
		if s.cancelFunc != nil {
			s.cancelFunc()
		}
	}

	SetupServer(s)
	SetupClient(s)

	return s
}

// SetupServer starts the mock CTS behind an httptest server. Every request
// is counted by method and path.
func SetupServer(s *Suite) {
	s.Service = mockcts.NewService(mockcts.NewFixtures(time.Now()), s.syncOpts.DefaultLimit)
	s.App = mockcts.NewServer(s.Service)

	handler := adaptor.FiberApp(s.App)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		handler.ServeHTTP(w, r)
	}))
}

// SetupClient creates the API client, bus and synchronizer
func SetupClient(s *Suite) {
	apiClient, err := client.NewClient(&client.Options{
		BaseURL: s.Server.URL,
		Timeout: testClientTimeout,
		Token:   func() string { return s.token },
	})
	require.NoError(s.t, err, "Failed to create API client")
	s.APIClient = apiClient

	s.Bus = events.NewBus()
	s.Bus.Start(s.ctx)

	opts := s.syncOpts
	opts.Bus = s.Bus
	s.Sync = jobsync.New(apiClient, opts)
}

// T returns the testing.T instance for this suite
func (s *Suite) T() *testing.T {
	return s.t
}

// Context returns the suite's context, which is canceled on Cleanup
func (s *Suite) Context() context.Context {
	return s.ctx
}

// Require returns a require.Assertions instance for this suite
func (s *Suite) Require() *require.Assertions {
	return require.New(s.t)
}

// Cleanup tears down the suite
func (s *Suite) Cleanup() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

// Requests returns how often the server received method and path
func (s *Suite) Requests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+path]
}
