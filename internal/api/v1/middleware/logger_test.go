package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"testing"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	log "github.com/kbase/cts-browser/internal/logger"
	"github.com/kbase/cts-browser/pkg/api/v1/client"
)

func newTestApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(ErrorStatus(err)).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Use(Logger())
	app.Get("/ok", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/missing", func(*fiber.Ctx) error {
		return client.NewNotFoundError(fiber.MethodGet, "/missing")
	})
	app.Get("/bad", func(*fiber.Ctx) error {
		return fiber.NewError(fiber.StatusBadRequest, "bad container")
	})
	app.Get("/boom", func(*fiber.Ctx) error {
		return errors.New("boom")
	})
	return app
}

// captureLogs routes the logger into a buffer for the test and returns the
// decoded lines
func captureLogs(t *testing.T) func() []map[string]interface{} {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, log.Configure("debug", log.FormatJSON, &buf))
	t.Cleanup(func() {
		require.NoError(t, log.Configure("info", log.FormatText, os.Stderr))
	})

	return func() []map[string]interface{} {
		var lines []map[string]interface{}
		scanner := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
		for scanner.Scan() {
			var line map[string]interface{}
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
			lines = append(lines, line)
		}
		return lines
	}
}

func TestLoggerRecordsResponseStatus(t *testing.T) {
	tests := []struct {
		path   string
		status int
		msg    string
	}{
		{path: "/ok", status: fiber.StatusOK, msg: "Request"},
		{path: "/missing", status: fiber.StatusNotFound, msg: "Request failed"},
		{path: "/bad", status: fiber.StatusBadRequest, msg: "Request failed"},
		{path: "/boom", status: fiber.StatusInternalServerError, msg: "Request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			lines := captureLogs(t)
			app := newTestApp()

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get(client.RequestIDHeader))

			logged := lines()
			require.NotEmpty(t, logged)
			last := logged[len(logged)-1]
			assert.Equal(t, tt.msg, last["msg"])
			assert.EqualValues(t, tt.status, last["status"])
			assert.Equal(t, resp.Header.Get(client.RequestIDHeader), last["request_id"])
		})
	}
}

func TestLoggerKeepsIncomingRequestID(t *testing.T) {
	app := newTestApp()

	req := httptest.NewRequest(fiber.MethodGet, "/ok", nil)
	req.Header.Set(client.RequestIDHeader, "req-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "req-42", resp.Header.Get(client.RequestIDHeader))
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, fiber.StatusNotFound, ErrorStatus(fiber.ErrNotFound))
	assert.Equal(t, fiber.StatusUnauthorized, ErrorStatus(&client.RequestError{StatusCode: fiber.StatusUnauthorized}))
	assert.Equal(t, fiber.StatusInternalServerError, ErrorStatus(errors.New("boom")))
}
