package http

import (
	"errors"
	"fmt"
	"time"

	appActivity "github.com/eventwish/fraudguard/pkg/app/activity"
	"github.com/eventwish/fraudguard/pkg/domain/activity"
	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
	"github.com/eventwish/fraudguard/pkg/domain/reputation"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type listActivitiesHandler struct {
	logger     *logrus.Logger
	aggregator appActivity.Aggregator
}

func NewListActivitiesHandler(logger *logrus.Logger, aggregator appActivity.Aggregator) Handler {
	return &listActivitiesHandler{
		logger:     logger,
		aggregator: aggregator,
	}
}

// Handle lists classified activities, newest first unless order=asc.
// from and to are RFC 3339 timestamps.
func (h *listActivitiesHandler) Handle(c *fiber.Ctx) error {
	q, err := parseActivityQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	page, err := h.aggregator.Activities(c.UserContext(), q)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidActivityFilter) || errors.Is(err, domain.ErrInvalidEntityType) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		h.logger.WithError(err).Error("failed to list activities")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list activities"})
	}
	return c.Status(fiber.StatusOK).JSON(page)
}

func parseActivityQuery(c *fiber.Ctx) (appActivity.ActivityQuery, error) {
	q := appActivity.ActivityQuery{
		EntityID: c.Query("entityId"),
		Limit:    c.QueryInt("limit"),
		Offset:   c.QueryInt("offset"),
	}
	var err error
	if v := c.Query("entityType"); v != "" {
		if q.EntityType, err = reputation.EntityTypeFromString(v); err != nil {
			return q, err
		}
	}
	if v := c.Query("type"); v != "" {
		if q.Type, err = activity.TypeFromString(v); err != nil {
			return q, err
		}
	}
	if v := c.Query("severity"); v != "" {
		if q.Severity, err = activity.SeverityFromString(v); err != nil {
			return q, err
		}
	}
	if q.Start, err = queryTime(c, "from"); err != nil {
		return q, err
	}
	if q.End, err = queryTime(c, "to"); err != nil {
		return q, err
	}
	switch c.Query("order", "desc") {
	case "asc":
		q.Ascending = true
	case "desc":
	default:
		return q, errors.New("order must be asc or desc")
	}
	return q, nil
}

func queryTime(c *fiber.Ctx, name string) (time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC 3339 timestamp", name)
	}
	return t, nil
}
