package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/legalrag/backend/internal/api/handlers"
	"github.com/legalrag/backend/internal/bootstrap"
	"github.com/legalrag/backend/internal/metrics"
	"github.com/legalrag/backend/internal/middleware/security"
	"github.com/legalrag/backend/internal/middleware/validation"
	"github.com/legalrag/backend/pkg/config"
	appLogger "github.com/legalrag/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting legal research API server")
	metrics.Init()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	components, err := bootstrap.Build(ctx, cfg)
	cancel()
	if err != nil {
		appLogger.Fatal("Failed to build components", zap.Error(err))
	}
	defer components.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	origins := security.ParseOrigins(cfg.Server.AllowedOrigins)

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: origins,
		IsDevelopment:  cfg.Server.Development,
	}))

	queryHandler := handlers.NewQueryHandler(components.Engine, components.Index, components.SQLite)
	documentHandler := handlers.NewDocumentHandler(components.Processor, components.SQLite, components.Files)
	if components.Graph != nil {
		documentHandler.WithGraph(components.Graph)
	}
	wsHandler := handlers.NewWebSocketHandler(components.Engine)

	app.Get("/metrics", metrics.MetricsHandler())
	handlers.RegisterWebSocket(app, "/ws", wsHandler)

	api := app.Group("/api/v1", validation.Middleware(validation.Config{
		MaxPromptLength: cfg.Query.MaxPromptLength,
		Logger:          appLogger.GetLogger(),
	}))
	handlers.Register(api, queryHandler, documentHandler)

	api.Get("/ready", func(c *fiber.Ctx) error {
		if _, err := components.Index.ListCollections(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  "vector index unreachable",
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
