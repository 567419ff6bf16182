// Package app wires the configuration, the clients, the event bus and the
// synchronization layer into one application context.
package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbase/cts-browser/config"
	"github.com/kbase/cts-browser/internal/events"
	"github.com/kbase/cts-browser/internal/jobsync"
	"github.com/kbase/cts-browser/internal/logger"
	"github.com/kbase/cts-browser/internal/mockcts"
	"github.com/kbase/cts-browser/pkg/api/v1/client"
)

// App is the application context shared by the CLI commands
type App struct {
	Config *config.Config
	Bus    *events.Bus
	Client *client.SwitchClient
	Live   *client.APIClient
	Mock   *mockcts.Service
	Sync   *jobsync.Synchronizer

	mockMode atomic.Bool
	token    atomic.Value // string

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
}

// New builds the application context from cfg. Mock mode and the token
// start from the configuration and may be changed at runtime.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	a := &App{
		Config: cfg,
		Bus:    events.NewBus(),
		Mock:   mockcts.NewService(mockcts.NewFixtures(time.Now()), cfg.DefaultJobLimit),
		cancel: func() {},
	}
	a.token.Store(cfg.Token)
	a.mockMode.Store(cfg.MockMode)

	live, err := client.NewClient(&client.Options{
		BaseURL:      cfg.APIBase,
		Timeout:      cfg.Timeout,
		Token:        a.Token,
		DefaultLimit: cfg.DefaultJobLimit,
		RateLimit:    cfg.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create CTS client: %w", err)
	}
	a.Live = live
	a.Client = client.NewSwitchingClient(live, a.Mock, a.MockMode)

	opts := jobsync.DefaultOptions()
	opts.Policies = jobsync.DefaultPolicies(cfg.PollingIntervalActive, cfg.PollingIntervalList)
	opts.RetryDelay = cfg.RetryDelay
	opts.PollJitter = cfg.PollJitter
	opts.DefaultLimit = cfg.DefaultJobLimit
	opts.Token = a.credential
	opts.Bus = a.Bus
	a.Sync = jobsync.New(a.Client, opts)

	return a, nil
}

// Start starts the event bus. It is safe to call more than once.
func (a *App) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		ctx, a.cancel = context.WithCancel(ctx)
		a.Bus.Start(ctx)
	})
}

// Close stops every observer and the event bus
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.Sync.Close()
		a.cancel()
	})
}

// Token returns the current credential
func (a *App) Token() string {
	token, _ := a.token.Load().(string)
	return token
}

// SetToken replaces the credential. Cached entries fetched with the old
// credential are dropped on the next query and observers re-evaluate their
// gating.
func (a *App) SetToken(token string) {
	a.token.Store(token)
	a.Sync.RefreshObservers()
}

// MockMode reports whether calls are served by the mock substrate
func (a *App) MockMode() bool {
	return a.mockMode.Load()
}

// SetMockMode switches between the live CTS and the mock substrate. The
// next call of every query uses the new mode.
func (a *App) SetMockMode(enabled bool) {
	if a.mockMode.Swap(enabled) == enabled {
		return
	}
	logger.Infof("Mock mode set to %t", enabled)
	a.Sync.RefreshObservers()
}

// credential scopes the cache. Mock and live data never share entries.
func (a *App) credential() string {
	if a.MockMode() {
		return "mock"
	}
	return "token:" + a.Token()
}

// Inputs returns the credential part of the query gating inputs. Callers
// fill in the selection.
func (a *App) Inputs() jobsync.Inputs {
	return jobsync.Inputs{
		HasToken: a.Token() != "",
		MockMode: a.MockMode(),
	}
}
