// Package proxy implements the local development proxy that forwards
// requests to the CTS and answers CORS for browser clients.
package proxy

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/proxy"

	"github.com/kbase/cts-browser/internal/api/v1/middleware"
	"github.com/kbase/cts-browser/internal/logger"
)

// DefaultTimeout bounds one upstream request
const DefaultTimeout = 30 * time.Second

// forwardedHeaders are the only request headers passed upstream
var forwardedHeaders = []string{fiber.HeaderAuthorization, fiber.HeaderContentType}

// Options configures the proxy
type Options struct {
	// Target is the CTS base URL requests are forwarded to
	Target string

	// Timeout bounds one upstream request
	Timeout time.Duration
}

type server struct {
	target  string
	timeout time.Duration
}

// NewServer returns a fiber app forwarding every path to opts.Target
func NewServer(opts Options) (*fiber.App, error) {
	u, err := url.Parse(opts.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy target: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid proxy target %q: scheme must be http or https", opts.Target)
	}

	s := &server{
		target:  strings.TrimRight(opts.Target, "/"),
		timeout: opts.Timeout,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(middleware.Logger())
	app.Use(cors.New())

	app.Get("/", s.health).Name("health")
	app.All("/*", s.forward).Name("forward")

	return app, nil
}

func (s *server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "ok",
		"proxying_to": s.target,
	})
}

func (s *server) forward(c *fiber.Ctx) error {
	addr := s.target + "/" + c.Params("*")
	if qs := c.Request().URI().QueryString(); len(qs) > 0 {
		addr += "?" + string(qs)
	}

	keep := make(map[string]string, len(forwardedHeaders))
	for _, h := range forwardedHeaders {
		if v := strings.Clone(c.Get(h)); v != "" {
			keep[h] = v
		}
	}
	var drop []string
	c.Request().Header.VisitAll(func(key, _ []byte) {
		drop = append(drop, string(key))
	})
	for _, key := range drop {
		c.Request().Header.Del(key)
	}
	for h, v := range keep {
		c.Request().Header.Set(h, v)
	}

	if err := proxy.DoTimeout(c, addr, s.timeout); err != nil {
		logger.WarnWithFields("Upstream request failed", map[string]interface{}{
			"method": c.Method(),
			"target": addr,
			"error":  err.Error(),
		})
		c.Response().Reset()
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Proxy error: " + err.Error(),
		})
	}

	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	return nil
}
