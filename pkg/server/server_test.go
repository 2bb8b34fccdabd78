package server_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/eventwish/fraudguard/pkg/config"
	"github.com/eventwish/fraudguard/pkg/server"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingRouter struct{}

func (pingRouter) BuildRoutes(r *fiber.App) error {
	r.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
	return nil
}

func testConfig(metrics bool) *config.Config {
	cfg := &config.Config{}
	cfg.Server.BodyLimit = 1024 * 1024
	cfg.Metrics.Enabled = metrics
	return cfg
}

func TestBaseServer_HealthAndRouters(t *testing.T) {
	s := server.NewBaseServer(testConfig(false), logrus.New()).WithRouters(pingRouter{})

	resp, err := s.Router.Test(httptest.NewRequest("GET", server.HealthPath, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = s.Router.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "pong", string(body))

	resp, err = s.Router.Test(httptest.NewRequest("GET", server.MetricsPath, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestBaseServer_MetricsEndpoint(t *testing.T) {
	s := server.NewBaseServer(testConfig(true), logrus.New())

	resp, err := s.Router.Test(httptest.NewRequest("GET", server.MetricsPath, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
