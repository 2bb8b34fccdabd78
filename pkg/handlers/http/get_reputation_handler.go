package http

import (
	appReputation "github.com/eventwish/fraudguard/pkg/app/reputation"
	"github.com/eventwish/fraudguard/pkg/domain/reputation"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type getReputationHandler struct {
	logger    *logrus.Logger
	store     appReputation.Store
	threshold float64
}

type reputationResponse struct {
	reputation.Entity
	IsSuspicious bool    `json:"isSuspicious"`
	Threshold    float64 `json:"threshold"`
}

// NewGetReputationHandler reports an entity as suspicious when its score is
// below threshold, unless the request overrides it with ?threshold=.
func NewGetReputationHandler(logger *logrus.Logger, store appReputation.Store, threshold float64) Handler {
	return &getReputationHandler{
		logger:    logger,
		store:     store,
		threshold: threshold,
	}
}

// Handle returns the decayed reputation; unseen entities come back neutral.
func (h *getReputationHandler) Handle(c *fiber.Ctx) error {
	entityType, err := reputation.EntityTypeFromString(c.Params("entity_type"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	entityID := c.Params("entity_id")
	if entityID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "entity id is required"})
	}
	threshold := c.QueryFloat("threshold", h.threshold)
	if threshold < 0 || threshold > 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "threshold must be within 0-100"})
	}

	key := reputation.Key{Type: entityType, ID: entityID}
	entity, err := h.store.Get(c.UserContext(), key)
	if err != nil {
		h.logger.WithError(err).Error("failed to get reputation")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get reputation"})
	}
	suspicious, err := h.store.IsSuspicious(c.UserContext(), key, threshold)
	if err != nil {
		h.logger.WithError(err).Error("failed to check reputation")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get reputation"})
	}
	return c.Status(fiber.StatusOK).JSON(reputationResponse{Entity: entity, IsSuspicious: suspicious, Threshold: threshold})
}
