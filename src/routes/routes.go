package routes

import (
	"github.com/gofiber/fiber/v2"

	"clob-engine/src/config"
	"clob-engine/src/handlers"
	"clob-engine/src/middleware"
)

func SetupRoutes(app *fiber.App, cfg config.Config, h *handlers.Handler) {
	availability := middleware.NewServiceAvailability(int64(cfg.MaxInFlight), cfg.MaintenanceMode)
	app.Use(middleware.RequestLogger(cfg.RequestLoggingEnabled))
	app.Use(availability.Middleware())

	api := app.Group("/api/v1")

	if cfg.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow, handlers.OwnerHeader)
		api.Use(rateLimiter.Middleware())
	}

	api.Post("/markets", h.CreateMarket)
	api.Get("/markets", h.ListMarkets)
	api.Get("/markets/:market", h.GetMarket)
	api.Get("/markets/:market/orderbook", h.GetOrderBook)
	api.Get("/markets/:market/events", h.GetEvents)
	api.Post("/markets/:market/sweep-fees", h.SweepFees)

	api.Post("/markets/:market/accounts", h.CreateAccount)
	api.Get("/markets/:market/accounts/me", h.GetAccount)
	api.Delete("/markets/:market/accounts/me", h.CloseAccount)
	api.Post("/markets/:market/accounts/me/deposit", h.Deposit)
	api.Post("/markets/:market/accounts/me/settle", h.SettleFunds)
	api.Post("/markets/:market/accounts/me/reconcile", h.Reconcile)

	api.Post("/markets/:market/orders", h.PlaceOrder)
	api.Post("/markets/:market/take", h.PlaceTakeOrder)
	api.Delete("/markets/:market/orders", h.CancelAllOrders)
	api.Delete("/markets/:market/orders/:id", h.CancelOrder)
	api.Delete("/markets/:market/orders/client/:client_id", h.CancelOrderByClientOrderID)

	api.Post("/markets/:market/events/consume", h.ConsumeEvents)
	api.Post("/markets/:market/events/consume-given", h.ConsumeGivenEvents)

	api.Get("/balances/:owner/:mint", h.GetBalance)

	// edge case: oracle and faucet only exist in dev mode
	if cfg.DevMode {
		api.Put("/markets/:market/oracle", h.StubOracleSet)
		api.Post("/faucet", h.Faucet)
	}

	app.Get("/health", h.HealthCheck)
	if h.Metrics != nil {
		app.Get("/metrics", h.Metrics.Handler())
	}
}

// Endpoints lists the registered routes for the startup log.
func Endpoints(cfg config.Config) []string {
	endpoints := []string{
		"POST   /api/v1/markets",
		"GET    /api/v1/markets/:market",
		"GET    /api/v1/markets/:market/orderbook",
		"POST   /api/v1/markets/:market/accounts",
		"POST   /api/v1/markets/:market/orders",
		"POST   /api/v1/markets/:market/take",
		"DELETE /api/v1/markets/:market/orders/:id",
		"POST   /api/v1/markets/:market/events/consume",
		"POST   /api/v1/markets/:market/accounts/me/settle",
		"POST   /api/v1/markets/:market/sweep-fees",
		"GET    /health",
		"GET    /metrics",
	}
	if cfg.DevMode {
		endpoints = append(endpoints,
			"PUT    /api/v1/markets/:market/oracle",
			"POST   /api/v1/faucet",
		)
	}
	return endpoints
}
