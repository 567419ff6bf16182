// Package middleware holds fiber middleware shared by the mock server and the dev proxy
package middleware

import (
	"errors"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	log "github.com/kbase/cts-browser/internal/logger"
	"github.com/kbase/cts-browser/pkg/api/v1/client"
)

// Logger returns a middleware that logs HTTP requests. Requests without an
// X-Request-ID get one, and the id is echoed on the response.
func Logger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		requestID := c.Get(client.RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		// Continue chain
		err := c.Next()

		// Set after the chain, handlers may replace the response wholesale
		c.Set(client.RequestIDHeader, requestID)

		fields := map[string]interface{}{
			"request_id": requestID,
			"status":     c.Response().StatusCode(),
			"latency":    time.Since(start).String(),
			"ip":         c.IP(),
			"method":     c.Method(),
			"path":       c.Path(),
			"handler":    c.Route().Name,
		}
		if err != nil {
			// The error handler runs after the chain, the response still says 200
			fields["status"] = ErrorStatus(err)
			fields["error"] = err.Error()
			log.WarnWithFields("Request failed", fields)
			return err
		}

		log.DebugWithFields("Request", fields)
		return nil
	}
}

// ErrorStatus maps a handler error to the HTTP status it is answered with
func ErrorStatus(err error) int {
	var fiberErr *fiber.Error
	var reqErr *client.RequestError
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	default:
		return fiber.StatusInternalServerError
	}
}
