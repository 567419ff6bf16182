// Package routes defines the CTS API routes and URL structure
package routes

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/kbase/cts-browser/pkg/types"
)

/*

To keep this file organized, routes should be organized in the following way:

1. Smallest scope first (i.e. site routes before job routes)
2. Order routes in GET, PUT order.
	a. Param urls (ie /:id) go after the collection url.
3. For clarity, naming should match the action (i.e. GetJob, CancelJob)

The paths mirror the CTS service exactly, including the trailing slash on
collection endpoints.

*/

// DefaultBaseURL is the default CTS service base URL
const DefaultBaseURL = "https://ci.kbase.us/services/cts"

// DefaultJobLimit is the page size applied when a listing sets no limit
const DefaultJobLimit = 100

// Route names for lookup
const (
	// Site routes
	ListSites = "ListSites"

	// Job routes
	ListJobs     = "ListJobs"
	GetJob       = "GetJob"
	GetJobStatus = "GetJobStatus"
	GetExitCodes = "GetExitCodes"
	GetJobLog    = "GetJobLog"
	CancelJob    = "CancelJob"
)

// Handler serves the CTS routes. The mock server implements it.
type Handler interface {
	ListSites(c *fiber.Ctx) error
	ListJobs(c *fiber.Ctx) error
	GetJob(c *fiber.Ctx) error
	GetJobStatus(c *fiber.Ctx) error
	GetExitCodes(c *fiber.Ctx) error
	GetJobLog(c *fiber.Ctx) error
	CancelJob(c *fiber.Ctx) error
}

// routeCache stores extracted routes for use prior to compilation
var (
	routeCache     map[string]string
	routeCacheMu   sync.RWMutex
	routeCacheInit sync.Once
)

// RegisterRoutes configures all the CTS routes on app
func RegisterRoutes(app fiber.Router, h Handler) {
	sites := app.Group("/sites")
	sites.Get("/", h.ListSites).Name(ListSites)

	jobs := app.Group("/jobs")
	jobs.Get("/", h.ListJobs).Name(ListJobs)
	jobs.Get("/:id", h.GetJob).Name(GetJob)
	jobs.Get("/:id/status", h.GetJobStatus).Name(GetJobStatus)
	jobs.Get("/:id/exit_codes", h.GetExitCodes).Name(GetExitCodes)
	jobs.Get("/:id/log/:container/:stream", h.GetJobLog).Name(GetJobLog)
	jobs.Put("/:id/cancel", h.CancelJob).Name(CancelJob)
}

// nopHandler lets the route table be extracted without a backing service
type nopHandler struct{}

func (nopHandler) ListSites(*fiber.Ctx) error    { return nil }
func (nopHandler) ListJobs(*fiber.Ctx) error     { return nil }
func (nopHandler) GetJob(*fiber.Ctx) error       { return nil }
func (nopHandler) GetJobStatus(*fiber.Ctx) error { return nil }
func (nopHandler) GetExitCodes(*fiber.Ctx) error { return nil }
func (nopHandler) GetJobLog(*fiber.Ctx) error    { return nil }
func (nopHandler) CancelJob(*fiber.Ctx) error    { return nil }

// initRouteCache initializes the route cache by registering the routes on a
// throwaway app and extracting their paths
func initRouteCache() {
	routeCacheInit.Do(func() {
		app := fiber.New()
		RegisterRoutes(app, nopHandler{})

		cache := make(map[string]string)
		for _, route := range app.GetRoutes() {
			if route.Name != "" {
				cache[route.Name] = route.Path
			}
		}

		routeCacheMu.Lock()
		routeCache = cache
		routeCacheMu.Unlock()
	})
}

// GetRoute returns the route pattern for the given route name
func GetRoute(name string) string {
	initRouteCache()

	routeCacheMu.RLock()
	defer routeCacheMu.RUnlock()
	return routeCache[name]
}

// BuildURL builds a path for the given route name. Path parameters are
// escaped; rawQuery is appended verbatim when non-empty.
func BuildURL(routeName string, params map[string]string, rawQuery string) string {
	route := GetRoute(routeName)
	if route == "" {
		return ""
	}

	for param, value := range params {
		route = strings.ReplaceAll(route, ":"+param, url.PathEscape(value))
	}

	if rawQuery != "" {
		route = fmt.Sprintf("%s?%s", route, rawQuery)
	}

	return route
}

// orderedQuery builds a query string preserving insertion order, which
// url.Values.Encode does not.
type orderedQuery []string

func (q *orderedQuery) set(key, value string) {
	*q = append(*q, url.QueryEscape(key)+"="+url.QueryEscape(value))
}

func (q orderedQuery) encode() string {
	return strings.Join(q, "&")
}

// JobsQuery builds the job listing query string in the order the CTS
// documents: state, after, before, cluster, limit. The limit is always
// present; defaultLimit applies when filters carry none.
func JobsQuery(filters types.JobFilters, defaultLimit int) string {
	if defaultLimit <= 0 {
		defaultLimit = DefaultJobLimit
	}

	var q orderedQuery
	if filters.State != "" {
		q.set("state", string(filters.State))
	}
	if filters.After != "" {
		q.set("after", filters.After)
	}
	if filters.Before != "" {
		q.set("before", filters.Before)
	}
	if filters.Cluster != "" {
		q.set("cluster", filters.Cluster)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	q.set("limit", strconv.Itoa(limit))

	return q.encode()
}

// Site route helpers

// ListSitesURL returns the URL for listing sites
func ListSitesURL() string {
	return BuildURL(ListSites, nil, "")
}

// Job route helpers

// ListJobsURL returns the URL for listing jobs with the given filters
func ListJobsURL(filters types.JobFilters, defaultLimit int) string {
	return BuildURL(ListJobs, nil, JobsQuery(filters, defaultLimit))
}

// GetJobURL returns the URL for getting a job by ID
func GetJobURL(id string) string {
	return BuildURL(GetJob, map[string]string{"id": id}, "")
}

// GetJobStatusURL returns the URL for getting a job's status
func GetJobStatusURL(id string) string {
	return BuildURL(GetJobStatus, map[string]string{"id": id}, "")
}

// GetExitCodesURL returns the URL for getting a job's exit codes
func GetExitCodesURL(id string) string {
	return BuildURL(GetExitCodes, map[string]string{"id": id}, "")
}

// GetJobLogURL returns the URL for one container log stream
func GetJobLogURL(id string, container int, stream types.LogStream) string {
	return BuildURL(GetJobLog, map[string]string{
		"id":        id,
		"container": strconv.Itoa(container),
		"stream":    string(stream),
	}, "")
}

// CancelJobURL returns the URL for canceling a job
func CancelJobURL(id string) string {
	return BuildURL(CancelJob, map[string]string{"id": id}, "")
}
