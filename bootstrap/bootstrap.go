// Package bootstrap wires the application together: configuration,
// logging, stores, services, and the HTTP server.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentgate/agentgate/adapters/clock"
	"github.com/agentgate/agentgate/adapters/history"
	"github.com/agentgate/agentgate/adapters/httpapi"
	"github.com/agentgate/agentgate/adapters/idgen"
	"github.com/agentgate/agentgate/adapters/llm"
	"github.com/agentgate/agentgate/adapters/memory"
	"github.com/agentgate/agentgate/adapters/metrics"
	"github.com/agentgate/agentgate/adapters/sqlite"
	"github.com/agentgate/agentgate/app"
	"github.com/agentgate/agentgate/config"
	"github.com/agentgate/agentgate/domain/agent"
	"github.com/agentgate/agentgate/domain/key"
	"github.com/agentgate/agentgate/ports"
)

// App holds the assembled application.
type App struct {
	Logger     zerolog.Logger
	Holder     *config.Holder
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	tasks   *app.TaskManager
	limiter *app.RateLimitService
	history ports.HistoryStore

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New loads configuration from path and assembles the application.
func New(cfgPath string) (*App, error) {
	holder, err := config.NewHolder(cfgPath, zerolog.New(os.Stdout).With().Timestamp().Logger())
	if err != nil {
		return nil, err
	}
	return NewWithHolder(holder)
}

// NewFromConfig assembles the application around a static configuration,
// e.g. one built entirely from environment variables. Hot reload is
// unavailable in this mode.
func NewFromConfig(cfg *config.Config) (*App, error) {
	holder := config.NewStaticHolder(cfg, zerolog.New(os.Stdout).With().Timestamp().Logger())
	return NewWithHolder(holder)
}

// NewWithHolder assembles the application from an existing config holder.
func NewWithHolder(holder *config.Holder) (*App, error) {
	cfg := holder.Get()

	logger := setupLogger(cfg.Logging)

	a := &App{
		Logger:    logger,
		Holder:    holder,
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	clk := clock.Real{}
	idGen := idgen.UUID{}

	// Metrics
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	}

	// API keys
	keys := buildKeyStore(cfg.Auth, clk.Now())
	if cfg.Auth.Enabled {
		logger.Info().Int("keys", keys.Len()).Msg("api key authentication enabled")
	} else {
		logger.Warn().Msg("api key authentication disabled, all requests run as the dev key")
	}

	// History store
	hist, err := buildHistoryStore(cfg.History, logger)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}
	a.history = hist

	// Rate limiter
	var rlMetrics app.RateLimitMetrics
	if a.Metrics != nil {
		rlMetrics = a.Metrics
	}
	a.limiter = app.NewRateLimitService(app.RateLimitConfig{
		Enabled:         cfg.RateLimits.Enabled,
		Default:         cfg.RateLimits.Default,
		Agents:          cfg.RateLimits.Agents,
		CleanupInterval: cfg.RateLimits.CleanupInterval,
	}, clk, rlMetrics, logger)

	// LLM providers
	clients, costPer1K := buildProviders(cfg.Providers, logger)
	providers := app.NewProviderManager(clients, agent.Provider(cfg.Providers.Default), logger)

	chat := app.NewChatService(providers, clk, logger)
	research := app.NewResearchService(providers, clk, logger)
	recorder := app.NewUsageRecorder(a.limiter, hist, costPer1K, clk, logger)

	// Task manager
	var taskMetrics app.TaskMetrics
	if a.Metrics != nil {
		taskMetrics = a.Metrics
	}
	executor := app.NewTaskExecutor(chat, research, recorder)
	a.tasks = app.NewTaskManager(app.TaskManagerConfig{
		MaxWorkers:      cfg.Tasks.MaxWorkers,
		TaskTTL:         cfg.Tasks.TTL,
		CleanupInterval: cfg.Tasks.CleanupInterval,
	}, executor, clk, idGen, taskMetrics, logger)

	// HTTP server
	handler := httpapi.New(httpapi.Deps{
		AuthEnabled: cfg.Auth.Enabled,
		KeyPrefix:   cfg.Auth.KeyPrefix,
		Keys:        keys,
		Limiter:     a.limiter,
		Tasks:       a.tasks,
		Chat:        chat,
		Research:    research,
		Providers:   providers,
		Recorder:    recorder,
		History:     hist,
		Clock:       clk,
		IDGen:       idGen,
		Metrics:     a.Metrics,
		Logger:      logger,
	})

	a.HTTPServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Hot reload: only rate limit policies apply without a restart.
	holder.OnChange(func(newCfg *config.Config) {
		a.limiter.UpdatePolicies(app.RateLimitConfig{
			Enabled:         newCfg.RateLimits.Enabled,
			Default:         newCfg.RateLimits.Default,
			Agents:          newCfg.RateLimits.Agents,
			CleanupInterval: newCfg.RateLimits.CleanupInterval,
		})
		if a.Metrics != nil {
			a.Metrics.ConfigReloads.Inc()
			a.Metrics.ConfigLastReload.SetToCurrentTime()
		}
	})

	logger.Info().
		Str("addr", a.HTTPServer.Addr).
		Str("history_backend", cfg.History.Backend).
		Bool("rate_limits", cfg.RateLimits.Enabled).
		Msg("application assembled")

	return a, nil
}

// Run starts the task workers, the history sweeper, and the HTTP server,
// then blocks until SIGINT/SIGTERM or a server error.
func (a *App) Run() error {
	a.tasks.Start()
	go a.sweepLoop()

	if err := a.Holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch unavailable")
	}
	a.Holder.WatchSignals()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application: drains the HTTP server,
// cancels in-flight tasks, and closes the history store.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.Holder.Stop()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	a.tasks.Shutdown()

	close(a.sweepStop)
	select {
	case <-a.sweepDone:
	case <-ctx.Done():
	}

	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("history store close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// sweepLoop periodically deletes history entries older than the
// configured retention.
func (a *App) sweepLoop() {
	defer close(a.sweepDone)

	cfg := a.Holder.Get().History
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.sweepStop:
			return
		case <-ticker.C:
		}

		cutoff := time.Now().UTC().AddDate(0, 0, -cfg.RetentionDays)
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := a.history.Sweep(ctx, cutoff); err != nil {
			a.Logger.Error().Err(err).Msg("history sweep failed")
		}
		cancel()
	}
}

// buildKeyStore maps configured API keys into the in-memory store.
func buildKeyStore(cfg config.AuthConfig, now time.Time) *memory.KeyStore {
	entries := make([]memory.KeyConfig, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		entries = append(entries, memory.KeyConfig{
			KeyID:  k.KeyID,
			Name:   k.Name,
			Key:    k.Key,
			Hash:   k.KeyHash,
			Status: key.Status(k.Status),
		})
	}
	return memory.NewKeyStore(entries, now)
}

// buildHistoryStore opens the configured history backend.
func buildHistoryStore(cfg config.HistoryConfig, logger zerolog.Logger) (ports.HistoryStore, error) {
	switch cfg.Backend {
	case "sqlite":
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info().Str("dsn", cfg.DSN).Msg("sqlite history store opened")
		return sqlite.NewHistoryStore(db), nil
	default:
		store, err := history.NewJSONLStore(cfg.StorageDir)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("dir", cfg.StorageDir).Msg("jsonl history store opened")
		return store, nil
	}
}

// buildProviders constructs one LLM client per enabled provider that has
// an API key, plus the per-provider cost table for usage estimation.
func buildProviders(cfg config.ProvidersConfig, logger zerolog.Logger) (map[agent.Provider]ports.LLMClient, map[agent.Provider]float64) {
	clients := make(map[agent.Provider]ports.LLMClient)
	costPer1K := make(map[agent.Provider]float64)

	build := func(p agent.Provider, pc config.ProviderConfig, mk func(llm.Config) (ports.LLMClient, error)) {
		if !pc.Enabled {
			return
		}
		if pc.APIKey == "" {
			logger.Warn().Str("provider", string(p)).Msg("provider enabled but no api key, skipping")
			return
		}
		client, err := mk(llm.Config{
			APIKey:     pc.APIKey,
			BaseURL:    pc.BaseURL,
			Model:      pc.Model,
			MaxTokens:  pc.MaxTokens,
			Timeout:    pc.Timeout,
			MaxRetries: pc.MaxRetries,
		})
		if err != nil {
			logger.Error().Str("provider", string(p)).Err(err).Msg("provider setup failed, skipping")
			return
		}
		clients[p] = client
		costPer1K[p] = pc.CostPer1K
		logger.Info().Str("provider", string(p)).Str("model", pc.Model).Msg("provider configured")
	}

	build(agent.ProviderOpenAI, cfg.OpenAI, func(c llm.Config) (ports.LLMClient, error) {
		return llm.NewOpenAIClient(c)
	})
	build(agent.ProviderXAI, cfg.XAI, func(c llm.Config) (ports.LLMClient, error) {
		if c.BaseURL == "" {
			c.BaseURL = llm.XAIBaseURL
		}
		return llm.NewOpenAIClient(c)
	})
	build(agent.ProviderAnthropic, cfg.Anthropic, func(c llm.Config) (ports.LLMClient, error) {
		return llm.NewAnthropicClient(c)
	})

	return clients, costPer1K
}

// setupLogger builds the root logger from config.
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
