package http

import (
	"errors"

	"github.com/eventwish/fraudguard/pkg/app/activity"
	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
	"github.com/eventwish/fraudguard/pkg/domain/reputation"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type analyzeTrafficHandler struct {
	logger     *logrus.Logger
	aggregator activity.Aggregator
}

func NewAnalyzeTrafficHandler(logger *logrus.Logger, aggregator activity.Aggregator) Handler {
	return &analyzeTrafficHandler{
		logger:     logger,
		aggregator: aggregator,
	}
}

func (h *analyzeTrafficHandler) Handle(c *fiber.Ctx) error {
	entityType, err := reputation.EntityTypeFromString(c.Params("entity_type"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	res, err := h.aggregator.AnalyzeTraffic(c.UserContext(), entityType, c.Params("entity_id"))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidEntityType) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		h.logger.WithError(err).Error("failed to analyze traffic")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to analyze traffic"})
	}
	return c.Status(fiber.StatusOK).JSON(res)
}
