package http

import (
	"errors"

	"github.com/eventwish/fraudguard/pkg/app/ingest"
	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
	"github.com/eventwish/fraudguard/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type ingestEventHandler struct {
	logger  *logrus.Logger
	service ingest.Service
}

func NewIngestEventHandler(logger *logrus.Logger, service ingest.Service) Handler {
	return &ingestEventHandler{
		logger:  logger,
		service: service,
	}
}

// Handle scores one ad interaction and answers with the gating decision.
func (h *ingestEventHandler) Handle(c *fiber.Ctx) error {
	var req ingest.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if info, ok := middleware.RequestInfo(c); ok {
		if req.IP == "" {
			req.IP = info.IP
		}
		if req.UserAgent == "" {
			req.UserAgent = info.UserAgent
		}
		if req.UserID == "" {
			req.UserID = info.UserID
		}
		if req.DeviceID == "" {
			req.DeviceID = info.DeviceID
		}
	}
	if req.IP == "" {
		req.IP = c.IP()
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Get(fiber.HeaderUserAgent)
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.Get(IdempotencyKeyHeader)
	}

	decision, err := h.service.Ingest(c.UserContext(), req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidEventKind) || errors.Is(err, domain.ErrInvalidEvent) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		h.logger.WithError(err).Error("failed to ingest event")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to ingest event"})
	}
	return c.Status(fiber.StatusOK).JSON(decision)
}
