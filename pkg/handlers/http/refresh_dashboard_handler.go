package http

import (
	"github.com/eventwish/fraudguard/pkg/app/activity"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type refreshDashboardHandler struct {
	logger     *logrus.Logger
	aggregator activity.Aggregator
}

func NewRefreshDashboardHandler(logger *logrus.Logger, aggregator activity.Aggregator) Handler {
	return &refreshDashboardHandler{
		logger:     logger,
		aggregator: aggregator,
	}
}

func (h *refreshDashboardHandler) Handle(c *fiber.Ctx) error {
	snap, err := h.aggregator.Refresh(c.UserContext())
	if err != nil {
		h.logger.WithError(err).Error("failed to refresh dashboard")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to refresh dashboard"})
	}
	return c.Status(fiber.StatusOK).JSON(snap)
}
