package http

import "github.com/gofiber/fiber/v2"

type Handler interface {
	Handle(ctx *fiber.Ctx) error
}

type HandlerTransport struct {
	// Events
	IngestEventHandler Handler

	// Dashboard
	GetDashboardHandler     Handler
	RefreshDashboardHandler Handler
	AnalyzeTrafficHandler   Handler
	ListActivitiesHandler   Handler

	// Reputation
	GetReputationHandler Handler

	// Cache
	InvalidateCacheHandler Handler
	GetCacheStatsHandler   Handler

	// Version
	GetVersionHandler Handler
}
