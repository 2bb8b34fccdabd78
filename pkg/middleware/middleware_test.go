package middleware_test

import (
	"net/http/httptest"
	"testing"

	"github.com/eventwish/fraudguard/pkg/infra/fingerprint"
	"github.com/eventwish/fraudguard/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerPrintMiddleware_StoresRequestInfo(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.NewFingerPrintMiddleware(logrus.New(), fingerprint.NewFingerPrintTracker()).Middleware())

	var (
		info fingerprint.Request
		ok   bool
	)
	app.Get("/", func(c *fiber.Ctx) error {
		info, ok = middleware.RequestInfo(c)
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.4")
	req.Header.Set("X-Request-ID", "trace-1")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.True(t, ok)
	assert.Equal(t, "203.0.113.4", info.IP)
	assert.Equal(t, "trace-1", resp.Header.Get("X-Request-ID"))
}

func TestPanicRecoverMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.NewPanicRecoverMiddleware(logrus.New()).Middleware())
	app.Get("/", func(c *fiber.Ctx) error {
		panic("boom")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
