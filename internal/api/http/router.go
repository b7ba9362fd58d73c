package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/office-hours/internal/api/http/handlers"
	"github.com/spec-kit/office-hours/internal/auth"
	"github.com/spec-kit/office-hours/internal/ratelimit"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	SimilarLimiter *ratelimit.Limiter
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	officeHours := app.Group("/api/office-hours", cfg.AuthMiddleware.Handle)

	officeHours.Post("/ticket", cfg.Tickets.CreateTicket)
	officeHours.Get("/ticket/:id", cfg.Tickets.GetTicket)
	officeHours.Put("/ticket/:id/call", cfg.Tickets.CallTicket)
	officeHours.Put("/ticket/:id/cancel", cfg.Tickets.CancelTicket)
	officeHours.Put("/ticket/:id/close", cfg.Tickets.CloseTicket)
	officeHours.Post("/ticket/:id/similar", cfg.SimilarLimiter.Middleware(), cfg.Tickets.FindSimilar)

	officeHours.Get("/:sessionId/queue", cfg.Tickets.ListQueue)
}
