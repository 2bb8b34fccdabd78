package http

import (
	"github.com/eventwish/fraudguard/pkg/infra/cache"
	"github.com/gofiber/fiber/v2"
)

type getCacheStatsHandler struct {
	cache cache.Client
}

func NewGetCacheStatsHandler(cache cache.Client) Handler {
	return &getCacheStatsHandler{cache: cache}
}

func (h *getCacheStatsHandler) Handle(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.cache.Stats())
}
