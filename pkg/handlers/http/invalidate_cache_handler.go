package http

import (
	"github.com/eventwish/fraudguard/pkg/infra/cache"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var flushable = map[string]bool{
	cache.ReputationNamespace:  true,
	cache.DashboardNamespace:   true,
	cache.IPIntelNamespace:     true,
	cache.IdempotencyNamespace: true,
}

type invalidateCacheHandler struct {
	logger *logrus.Logger
	cache  cache.Client
}

func NewInvalidateCacheHandler(
	logger *logrus.Logger,
	cache cache.Client,
) Handler {
	return &invalidateCacheHandler{
		logger: logger,
		cache:  cache,
	}
}

func (h *invalidateCacheHandler) Handle(c *fiber.Ctx) error {
	name := c.Params("namespace")
	if !flushable[name] {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown cache namespace"})
	}

	h.logger.WithField("namespace", name).Info("invalidating cache")
	removed, err := h.cache.Namespace(name).Flush(c.UserContext())
	if err != nil {
		h.logger.WithError(err).Error("failed to invalidate cache")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to invalidate cache",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":   "cache invalidated successfully",
		"namespace": name,
		"removed":   removed,
	})
}
