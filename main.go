package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"clob-engine/src/config"
	"clob-engine/src/engine"
	"clob-engine/src/handlers"
	"clob-engine/src/ledger"
	"clob-engine/src/logger"
	"clob-engine/src/metrics"
	"clob-engine/src/routes"
)

func main() {
	cfg := config.Load(os.Getenv("ENV_FILE"))
	logger.InitLogger(cfg)
	log := logger.GetLogger()

	log.Info().Msg("Initializing CLOB engine")

	var tokens ledger.Ledger
	if cfg.LedgerDSN != "" {
		sqliteLedger, err := ledger.NewSQLite(cfg.LedgerDSN)
		if err != nil {
			log.Fatal().Err(err).Str("dsn", cfg.LedgerDSN).Msg("Failed to open ledger")
		}
		tokens = sqliteLedger
		log.Info().Str("dsn", cfg.LedgerDSN).Msg("Using SQLite ledger")
	} else {
		tokens = ledger.NewMemory()
		log.Info().Msg("Using in-memory ledger")
	}

	eng := engine.New(tokens, engine.WithLogger(log.With().Str("component", "engine").Logger()))
	h := handlers.NewHandler(eng, tokens, metrics.New())
	h.BookCapacity = cfg.BookCapacity
	h.EventQueueCapacity = cfg.EventQueueCapacity

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}

			log.Error().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Str("error", err.Error()).
				Msg("Request error")

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	routes.SetupRoutes(app, cfg, h)

	port := ":" + cfg.Port

	serverError := make(chan error, 1)

	go func() {
		if err := app.Listen(port); err != nil {
			// edge case: ignore shutdown errors, only report real errors
			if err.Error() != "server is shutting down" {
				serverError <- err
			}
		}
	}()

	select {
	case err := <-serverError:
		log.Fatal().
			Err(err).
			Str("port", port).
			Str("hint", "Port may be already in use. Try: PORT=3000 go run main.go").
			Msg("Server failed to start")
	default:
		log.Info().
			Str("port", port).
			Bool("dev_mode", cfg.DevMode).
			Msg("CLOB engine started")

		log.Info().
			Strs("endpoints", routes.Endpoints(cfg)).
			Msg("API endpoints registered")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	log.Info().Msg("Received shutdown signal, shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		// edge case: timeout during shutdown is acceptable
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().
				Dur("timeout", cfg.ShutdownTimeout).
				Msg("Timeout exceeded, shutting down...")
		} else {
			log.Error().
				Err(err).
				Msg("Error during shutdown")
		}
	} else {
		log.Info().Msg("Shutdown complete")
	}

	if err := tokens.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing ledger")
	}
	logger.CloseLogger()
}
