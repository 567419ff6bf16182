package mockcts

import (
	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/kbase/cts-browser/internal/api/v1/middleware"
	"github.com/kbase/cts-browser/pkg/api/v1/routes"
	"github.com/kbase/cts-browser/pkg/types"
)

var _ routes.Handler = &Handler{}

// Handler serves the CTS routes from a Service
type Handler struct {
	svc *Service
}

// NewHandler creates a route handler backed by svc
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// NewServer returns a fiber app answering the CTS routes from svc
func NewServer(svc *Service) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler,
		DisableStartupMessage: true,
		UnescapePath:          true,
	})

	app.Use(middleware.Logger())
	app.Use(cors.New())

	routes.RegisterRoutes(app, NewHandler(svc))

	return app
}

// ErrorHandler renders errors as {"error": message}
func ErrorHandler(c *fiber.Ctx, err error) error {
	return c.Status(middleware.ErrorStatus(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// ListSites handles GET /sites/
func (h *Handler) ListSites(c *fiber.Ctx) error {
	sites, err := h.svc.ListSites(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(types.SitesResponse{Sites: sites})
}

// ListJobs handles GET /jobs/
func (h *Handler) ListJobs(c *fiber.Ctx) error {
	filters := types.JobFilters{
		State:   types.JobState(c.Query("state")),
		Cluster: c.Query("cluster"),
		After:   c.Query("after"),
		Before:  c.Query("before"),
		Limit:   c.QueryInt("limit", h.svc.defaultLimit),
	}

	jobs, err := h.svc.ListJobs(c.UserContext(), filters)
	if err != nil {
		return err
	}
	return c.JSON(types.ListJobsResponse{Jobs: jobs})
}

// GetJob handles GET /jobs/:id
func (h *Handler) GetJob(c *fiber.Ctx) error {
	job, err := h.svc.GetJob(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(job)
}

// GetJobStatus handles GET /jobs/:id/status
func (h *Handler) GetJobStatus(c *fiber.Ctx) error {
	status, err := h.svc.GetJobStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(status)
}

// GetExitCodes handles GET /jobs/:id/exit_codes
func (h *Handler) GetExitCodes(c *fiber.Ctx) error {
	return c.JSON(h.svc.exitCodesResponse(c.Params("id")))
}

// GetJobLog handles GET /jobs/:id/log/:container/:stream
func (h *Handler) GetJobLog(c *fiber.Ctx) error {
	container, err := c.ParamsInt("container")
	if err != nil || container < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "container must be a non-negative integer")
	}
	stream, err := types.ParseLogStream(c.Params("stream"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	content, err := h.svc.GetJobLog(c.UserContext(), c.Params("id"), container, stream)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(content)
}

// CancelJob handles PUT /jobs/:id/cancel
func (h *Handler) CancelJob(c *fiber.Ctx) error {
	job, err := h.svc.CancelJob(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(job)
}
