package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/lohnlab/tarifbot/internal/anthropic"
	"github.com/lohnlab/tarifbot/internal/api"
	"github.com/lohnlab/tarifbot/internal/calc"
	"github.com/lohnlab/tarifbot/internal/config"
	"github.com/lohnlab/tarifbot/internal/events"
	"github.com/lohnlab/tarifbot/internal/extract"
	"github.com/lohnlab/tarifbot/internal/intent"
	"github.com/lohnlab/tarifbot/internal/interview"
	"github.com/lohnlab/tarifbot/internal/retrieval"
	"github.com/lohnlab/tarifbot/internal/store"
	"github.com/lohnlab/tarifbot/internal/validate"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("tarifbot starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Anthropic client
	if cfg.AnthropicAPIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}
	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	slog.Info("anthropic client ready", "model", cfg.AnthropicModel)

	tenantID := uuid.Nil
	if cfg.TenantID != "" {
		parsed, err := uuid.Parse(cfg.TenantID)
		if err != nil {
			slog.Error("invalid TARIFBOT_TENANT", "error", err)
			os.Exit(1)
		}
		tenantID = parsed
	}

	// Database (optional — without it there is no retrieval and no audit trail)
	var db *store.Store
	var retriever retrieval.Gateway
	if cfg.DatabaseURL != "" {
		var err error
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("database connected")

		embedder := retrieval.NewOllamaEmbedder(cfg.EmbedderURL, cfg.EmbedderModel)
		retriever = retrieval.NewPgGateway(db.Pool(), embedder, slog.Default())
		slog.Info("retrieval gateway ready", "embedder_model", cfg.EmbedderModel)
	} else {
		slog.Warn("DATABASE_URL not set — running without retrieval and persistence")
	}

	// NATS (optional)
	var publisher *events.Client
	if cfg.NatsURL != "" {
		var err error
		publisher, err = events.NewClient(cfg.NatsURL, cfg.NatsToken, cfg.TenantID, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS_URL not set — running without event publishing")
	}

	deps := interview.Deps{
		Classifier:      intent.New(llm, slog.Default()),
		Extractor:       extract.New(llm, slog.Default()),
		Validator:       validate.New(slog.Default()),
		Calculator:      calc.NewTaxEngine(calc.NewStaticTariffTable()),
		Oracle:          llm,
		Retriever:       retriever,
		TenantID:        tenantID,
		SimilarityFloor: cfg.SimilarityFloor,
		RetrievalTopK:   cfg.RetrievalTopK,
		Logger:          slog.Default(),
	}
	if db != nil {
		deps.Store = db
	}
	if publisher != nil {
		deps.Events = publisher
	}
	engine := interview.New(deps)

	var drafts api.DraftStore
	if db != nil {
		drafts = db
	}
	srv := api.NewServer(cfg.Port, cfg.APIToken, engine, drafts, tenantID, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("tarifbot ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("tarifbot stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
