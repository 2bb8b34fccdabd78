package http

import (
	"github.com/eventwish/fraudguard/pkg/app/activity"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type getDashboardHandler struct {
	logger     *logrus.Logger
	aggregator activity.Aggregator
}

func NewGetDashboardHandler(logger *logrus.Logger, aggregator activity.Aggregator) Handler {
	return &getDashboardHandler{
		logger:     logger,
		aggregator: aggregator,
	}
}

func (h *getDashboardHandler) Handle(c *fiber.Ctx) error {
	snap, err := h.aggregator.Snapshot(c.UserContext())
	if err != nil {
		h.logger.WithError(err).Error("failed to build dashboard")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to build dashboard"})
	}
	return c.Status(fiber.StatusOK).JSON(snap)
}
