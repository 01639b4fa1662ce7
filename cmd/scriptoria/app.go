package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"scriptoria/internal/adapter/llm"
	"scriptoria/internal/adapter/store"
	"scriptoria/internal/domain"
	"scriptoria/internal/infra/config"
	"scriptoria/internal/infra/logger"
	"scriptoria/internal/infra/tracer"
	"scriptoria/internal/usecase"
)

// app is the wired object graph shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.SQLiteStore
	creds    *usecase.CredentialService
	style    *usecase.StyleService
	history  *usecase.HistoryService
	homework *usecase.HomeworkService
	closers  []func(context.Context) error
}

// newApp loads configuration and wires logger, tracer, store, credentials,
// the Gemini streamer and the use cases.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, logger: log}
	a.closers = append(a.closers, func(context.Context) error { return closeLog() })

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.closers = append(a.closers, shutdownTracer)

	kv, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = kv
	a.closers = append(a.closers, func(context.Context) error { return kv.Close() })

	a.creds = usecase.NewCredentialService(kv, cfg.Store.Passphrase, cfg.LLM.APIKey, log)

	gemini := llm.NewGeminiStreamer(cfg.LLM, a.creds, log, llm.WithRateStore(kv))
	var streamer domain.Streamer = gemini
	if cfg.LLM.CircuitBreaker.Enabled {
		streamer, err = newBreaker(gemini, cfg.LLM.CircuitBreaker, kv, log)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.style = usecase.NewStyleService(streamer, kv, cfg.LLM.Structured.Params(), log)
	a.history = usecase.NewHistoryService(kv, log)
	a.homework = usecase.NewHomeworkService(streamer, a.style, a.history, cfg.LLM.Freeform.Params(), log)

	log.Debug("scriptoria ready",
		"store", cfg.Store.Path,
		"structured_model", cfg.LLM.StructuredModel,
		"freeform_model", cfg.LLM.FreeformModel,
		"circuit_breaker", cfg.LLM.CircuitBreaker.Enabled,
	)
	return a, nil
}

// newBreaker wraps gemini in a circuit breaker whose state lives in the
// store. When another run holds the state lock the breaker only counts
// failures of this process.
func newBreaker(gemini *llm.GeminiStreamer, cfg config.CircuitBreakerConfig, kv *store.SQLiteStore, log *slog.Logger) (*llm.CircuitBreakerStreamer, error) {
	cb, err := llm.NewSharedCircuitBreakerStreamer(gemini, gemini.Name(), cfg, store.NewBreakerStore(kv), log)
	if errors.Is(err, domain.ErrLockHeld) {
		log.Warn("circuit breaker state busy, using a local breaker", "error", err)
		return llm.NewCircuitBreakerStreamer(gemini, gemini.Name(), cfg, log), nil
	}
	if err != nil {
		return nil, fmt.Errorf("init circuit breaker: %w", err)
	}
	return cb, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	ctx := context.Background()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && a.logger != nil {
			a.logger.Warn("shutdown", "error", err)
		}
	}
}

func discardLogger() *slog.Logger { return logger.Discard() }
