// Package client provides the API client for interacting with the CTS
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kbase/cts-browser/pkg/api/v1/routes"
	"github.com/kbase/cts-browser/pkg/types"
)

// DefaultTimeout is the default timeout for API requests
const DefaultTimeout = 30 * time.Second

// RequestIDHeader carries a unique id for every outgoing request
const RequestIDHeader = "X-Request-ID"

// Client is the interface for the CTS API client
type Client interface {
	// Job Endpoints
	ListJobs(ctx context.Context, filters types.JobFilters) ([]types.Job, error)
	GetJob(ctx context.Context, id string) (types.Job, error)
	GetJobStatus(ctx context.Context, id string) (types.JobStatus, error)
	CancelJob(ctx context.Context, id string) (types.Job, error)
	GetExitCodes(ctx context.Context, id string) ([]types.ExitCode, error)
	GetJobLog(ctx context.Context, id string, container int, stream types.LogStream) (string, error)

	// Site Endpoints
	ListSites(ctx context.Context) ([]types.Site, error)
}

var _ Client = &APIClient{}

// TokenFunc returns the credential to attach to a request. An empty string
// sends the request unauthenticated.
type TokenFunc func() string

// Options contains configuration options for the API client
type Options struct {
	// BaseURL is the base URL of the CTS
	BaseURL string

	// Timeout is the request timeout
	Timeout time.Duration

	// Token is consulted on every request
	Token TokenFunc

	// DefaultLimit is the page size used when a listing sets no limit
	DefaultLimit int

	// RateLimit bounds requests per second. Zero disables the limit.
	RateLimit float64
}

// DefaultOptions returns the default client options
func DefaultOptions() *Options {
	return &Options{
		BaseURL:      routes.DefaultBaseURL,
		Timeout:      DefaultTimeout,
		DefaultLimit: routes.DefaultJobLimit,
	}
}

// APIClient implements the Client interface
type APIClient struct {
	baseURL      string
	timeout      time.Duration
	token        TokenFunc
	defaultLimit int
	limiter      *rate.Limiter
}

// NewClient creates a new API client with the given options
func NewClient(opts *Options) (*APIClient, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	// Validate the base URL
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", opts.BaseURL)
	}

	c := &APIClient{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		timeout:      opts.Timeout,
		token:        opts.Token,
		defaultLimit: opts.DefaultLimit,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.defaultLimit <= 0 {
		c.defaultLimit = routes.DefaultJobLimit
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return c, nil
}

// BaseURL returns the base URL requests are sent to
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// BearerToken normalizes a credential into an Authorization header value.
// A value that already carries the Bearer prefix is kept as is.
func BearerToken(token string) string {
	if strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}

// createAgent creates a new Fiber Agent for the given method and endpoint
func (c *APIClient) createAgent(ctx context.Context, method, endpoint string, body interface{}) (*fiber.Agent, error) {
	// Resolve the endpoint URL
	fullURL := c.baseURL + endpoint

	var agent *fiber.Agent
	switch method {
	case http.MethodGet:
		agent = fiber.Get(fullURL)
	case http.MethodPut:
		agent = fiber.Put(fullURL)
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	// Set timeout from context or client default
	if deadline, ok := ctx.Deadline(); ok {
		agent.Timeout(time.Until(deadline))
	} else {
		agent.Timeout(c.timeout)
	}

	agent.Set("Accept", "application/json")
	agent.Set(RequestIDHeader, uuid.NewString())

	if c.token != nil {
		if token := c.token(); token != "" {
			agent.Set("Authorization", BearerToken(token))
		}
	}

	if method == http.MethodPut {
		agent.Set("Content-Type", "application/json")
	}
	if body != nil {
		agent.JSON(body)
	}

	return agent, nil
}

// doRequest sends the HTTP request and returns the raw response body
func (c *APIClient) doRequest(agent *fiber.Agent, method, endpoint string) ([]byte, error) {
	statusCode, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, &NetworkError{Method: method, Endpoint: endpoint, Err: errs[0]}
	}

	if statusCode < 200 || statusCode >= 300 {
		return nil, &RequestError{
			StatusCode: statusCode,
			StatusText: http.StatusText(statusCode),
			Method:     method,
			Endpoint:   endpoint,
			Body:       string(body),
		}
	}

	return body, nil
}

// send waits for the context and the request budget, then performs the
// request. Setup lets callers adjust the agent before dispatch.
func (c *APIClient) send(ctx context.Context, method, endpoint string, setup func(*fiber.Agent)) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	agent, err := c.createAgent(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if setup != nil {
		setup(agent)
	}

	return c.doRequest(agent, method, endpoint)
}

// executeRequest performs the request and decodes a JSON response
func (c *APIClient) executeRequest(ctx context.Context, method, endpoint string, response interface{}) error {
	body, err := c.send(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}

	if response != nil && len(body) > 0 {
		if err := json.Unmarshal(body, response); err != nil {
			return fmt.Errorf("error decoding response: %w", err)
		}
	}

	return nil
}

// jobList decodes the listing endpoint, which answers with either a bare
// array or an object wrapping a jobs array.
type jobList []types.Job

func (l *jobList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var jobs []types.Job
		if err := json.Unmarshal(data, &jobs); err != nil {
			return err
		}
		*l = jobs
		return nil
	}

	var wrapped types.ListJobsResponse
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*l = wrapped.Jobs
	return nil
}

// Job methods

// ListJobs lists jobs matching the filters
func (c *APIClient) ListJobs(ctx context.Context, filters types.JobFilters) ([]types.Job, error) {
	var jobs jobList
	endpoint := routes.ListJobsURL(filters, c.defaultLimit)
	if err := c.executeRequest(ctx, http.MethodGet, endpoint, &jobs); err != nil {
		return nil, err
	}
	if jobs == nil {
		return []types.Job{}, nil
	}
	return jobs, nil
}

// GetJob retrieves a job by ID
func (c *APIClient) GetJob(ctx context.Context, id string) (types.Job, error) {
	var job types.Job
	endpoint := routes.GetJobURL(id)
	err := c.executeRequest(ctx, http.MethodGet, endpoint, &job)
	return job, err
}

// GetJobStatus retrieves the lightweight status of a job
func (c *APIClient) GetJobStatus(ctx context.Context, id string) (types.JobStatus, error) {
	var status types.JobStatus
	endpoint := routes.GetJobStatusURL(id)
	err := c.executeRequest(ctx, http.MethodGet, endpoint, &status)
	return status, err
}

// CancelJob requests cancellation of a job and returns the resulting job
func (c *APIClient) CancelJob(ctx context.Context, id string) (types.Job, error) {
	var job types.Job
	endpoint := routes.CancelJobURL(id)
	err := c.executeRequest(ctx, http.MethodPut, endpoint, &job)
	return job, err
}

// GetExitCodes retrieves the per-container exit codes of a job
func (c *APIClient) GetExitCodes(ctx context.Context, id string) ([]types.ExitCode, error) {
	var resp types.ExitCodesResponse
	endpoint := routes.GetExitCodesURL(id)
	if err := c.executeRequest(ctx, http.MethodGet, endpoint, &resp); err != nil {
		return nil, err
	}
	return resp.ToExitCodes(), nil
}

// GetJobLog retrieves one log stream of one container as raw text. A job
// without log content yields an empty string. The log route answers 404
// both for missing content and for unknown jobs, so a 404 is checked
// against the job status and only an unknown job fails with ErrNotFound.
func (c *APIClient) GetJobLog(ctx context.Context, id string, container int, stream types.LogStream) (string, error) {
	if _, err := types.ParseLogStream(string(stream)); err != nil {
		return "", err
	}

	endpoint := routes.GetJobLogURL(id, container, stream)
	body, err := c.send(ctx, http.MethodGet, endpoint, func(agent *fiber.Agent) {
		agent.Set("Accept", "text/plain")
	})
	if err != nil {
		if !IsNotFound(err) {
			return "", err
		}
		if _, statusErr := c.GetJobStatus(ctx, id); statusErr != nil {
			if IsNotFound(statusErr) {
				return "", err
			}
			return "", statusErr
		}
		return "", nil
	}
	return string(body), nil
}

// Site methods

// ListSites lists the clusters jobs can run on
func (c *APIClient) ListSites(ctx context.Context) ([]types.Site, error) {
	var resp types.SitesResponse
	if err := c.executeRequest(ctx, http.MethodGet, routes.ListSitesURL(), &resp); err != nil {
		return nil, err
	}
	if resp.Sites == nil {
		return []types.Site{}, nil
	}
	return resp.Sites, nil
}
