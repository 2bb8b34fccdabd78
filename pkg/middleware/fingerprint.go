package middleware

import (
	"github.com/eventwish/fraudguard/pkg/infra/fingerprint"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type fingerPrintMiddleware struct {
	logger  *logrus.Logger
	tracker fingerprint.Tracker
}

// NewFingerPrintMiddleware resolves the caller's address and identity headers
// once per request and stores them in the request locals.
func NewFingerPrintMiddleware(
	logger *logrus.Logger,
	tracker fingerprint.Tracker,
) Middleware {
	return &fingerPrintMiddleware{
		logger:  logger,
		tracker: tracker,
	}
}

func (m *fingerPrintMiddleware) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		info := m.tracker.FromRequest(ctx)
		ctx.Locals(RequestInfoKey, info)

		id := ctx.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		ctx.Locals(TraceIDKey, id)
		ctx.Set("X-Request-ID", id)
		return ctx.Next()
	}
}

// RequestInfo returns what the fingerprint middleware resolved, if it ran.
func RequestInfo(ctx *fiber.Ctx) (fingerprint.Request, bool) {
	info, ok := ctx.Locals(RequestInfoKey).(fingerprint.Request)
	return info, ok
}
