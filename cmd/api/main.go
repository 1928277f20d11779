package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"llmchat-api/internal/config"
	"llmchat-api/internal/http"
	"llmchat-api/internal/llm"
	"llmchat-api/internal/observability"
	"llmchat-api/internal/service"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Create LLM client (external service layer)
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName, cfg.LLMTemperature)

	// A pipeline that fails to build leaves the server up but not ready.
	var chatService service.ChatService
	pipeline, err := service.NewChatPipeline(service.PipelineConfig{
		APIKey:        cfg.LLMAPIKey,
		Model:         cfg.LLMModelName,
		Temperature:   cfg.LLMTemperature,
		HistoryWindow: cfg.HistoryWindow,
		Timeout:       cfg.LLMTimeout,
	}, llmClient)
	if err != nil {
		slog.Error("Chat pipeline initialization failed, serving as not ready", "error", err)
	} else {
		chatService = pipeline
		slog.Info("Chat pipeline initialized", "model", cfg.LLMModelName, "history_window", cfg.HistoryWindow)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := http.NewRouter(&http.Deps{
		ChatService:     chatService,
		ModelName:       cfg.LLMModelName,
		MaxMessageBytes: cfg.MaxMessageBytes,
		Metrics:         observability.NewStreamingMetrics(registry),
		Registry:        registry,
	})

	// No WriteTimeout: event streams stay open for the whole generation.
	addr := ":" + cfg.APIPort
	srv := &nethttp.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", "addr", addr)
		slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName, "temperature", cfg.LLMTemperature)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down API server")
	case err := <-errCh:
		if err != nil {
			log.Fatalf("API server failed to start: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}
