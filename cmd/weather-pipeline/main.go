package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sashabaranov/go-openai"

	"github.com/i474232898/weather-pipeline/internal/agent"
	httpapi "github.com/i474232898/weather-pipeline/internal/api/http"
	"github.com/i474232898/weather-pipeline/internal/config"
	"github.com/i474232898/weather-pipeline/internal/scheduler"
	"github.com/i474232898/weather-pipeline/internal/service"
	"github.com/i474232898/weather-pipeline/internal/store"
	"github.com/i474232898/weather-pipeline/internal/tools"
	"github.com/i474232898/weather-pipeline/internal/weather"
	"github.com/i474232898/weather-pipeline/internal/weather/providers"
)

const serviceName = "weather-pipeline"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	source, err := providers.NewProvider(cfg.SourceProvider, httpClient, cfg.SourceAPIKey())
	if err != nil {
		slog.Error("failed to create weather provider", "err", err)
		os.Exit(1)
	}
	client := providers.NewClient(source, cfg.SourceRateLimitRPS, cfg.SourceRateLimitBurst, cfg.FetchConcurrency)

	// Postgres warehouse when configured, in-memory otherwise.
	var (
		repo      weather.Repository
		storeKind = "memory"
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		pg := store.NewPostgresRepository(pool, cfg.WarehouseDataset, cfg.WarehouseTable)
		if err := pg.Health(ctx); err != nil {
			slog.Error("postgres unavailable", "err", err)
			os.Exit(1)
		}
		repo, storeKind = pg, "postgres"
	} else {
		slog.Warn("DATABASE_URL not set; observations are kept in memory only")
		repo = store.NewMemoryStore()
	}

	cities := weather.NewCities(cfg.Cities)

	sched := scheduler.New(client, repo, cities.Names(), scheduler.Config{
		BackfillWindow:   cfg.BackfillWindow,
		BackfillDelay:    cfg.BackfillDelay,
		BatchSize:        cfg.BackfillBatchSize,
		UpdateInterval:   cfg.UpdateInterval,
		FirstUpdateDelay: cfg.FirstUpdateDelay,
		ShutdownTimeout:  cfg.ShutdownTimeout,
	})

	llmConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		llmConfig.BaseURL = cfg.OpenAIBaseURL
	}
	if cfg.OpenAIAPIKey == "" {
		slog.Warn("OPENAI_API_KEY not set; agent queries will fail")
	}
	weatherAgent := agent.New(openai.NewClientWithConfig(llmConfig), tools.New(repo, client), agent.Config{
		Model: cfg.OpenAIModel,
	})

	svc := service.New(repo, cities, weatherAgent, sched)
	if err := svc.Start(ctx); err != nil {
		slog.Error("failed to start scheduler", "err", err)
		os.Exit(1)
	}

	app := httpapi.NewApp(serviceName)

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
			"storage": storeKind,
			"cities":  cities.Len(),
		})
	})

	httpapi.RegisterRoutes(app, svc)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("fiber server stopped", "err", err)
		}
	}()
	slog.Info("server listening", "port", cfg.Port, "provider", source.Name(), "storage", storeKind)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("error during http shutdown", "err", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during scheduler shutdown", "err", err)
	}
}
