package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haukened/surfguard/internal/guard/common/clock"
	"github.com/haukened/surfguard/internal/guard/common/log"
	"github.com/haukened/surfguard/internal/guard/common/tasks"
	"github.com/haukened/surfguard/internal/guard/config"
	"github.com/haukened/surfguard/internal/guard/gateways/hookhttp"
	"github.com/haukened/surfguard/internal/guard/gateways/intercept"
	"github.com/haukened/surfguard/internal/guard/gateways/reputation"
	"github.com/haukened/surfguard/internal/guard/repos/settings"
	"github.com/haukened/surfguard/internal/guard/repos/store"
	"github.com/haukened/surfguard/internal/guard/services/engine"
	"github.com/haukened/surfguard/internal/guard/services/recorder"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "surfguardd"
)

// Application holds all the components of the guard daemon.
type Application struct {
	config      *config.AppConfig
	store       *store.Store
	settings    *settings.BoltStore
	tasks       *tasks.Queue
	engine      *engine.Engine
	interceptor *intercept.Interceptor
	server      *hookhttp.Server
	cancels     []func()
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":   version,
		"env":       cfg.Env,
		"log_level": cfg.LogLevel,
		"listen":    cfg.Listen,
		"db_path":   cfg.DBPath,
	}, "Starting surfguard daemon")

	// Build application with all dependencies
	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Daemon failed")
	}

	log.Info(nil, "surfguard stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := clock.RealClock{}
	logger := log.GetLogger()

	app := &Application{config: cfg}

	// Repository layer
	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	app.store = st

	prefs, err := settings.OpenBolt(cfg.SettingsPath, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open settings: %w", err)
	}
	app.settings = prefs

	// Reputation gateway; the API key is a live setting so a key change
	// takes effect without a restart.
	checker, err := reputation.New(reputation.Options{
		Endpoint:  cfg.ReputationURL,
		Timeout:   time.Duration(cfg.ReputationTimeoutSeconds) * time.Second,
		CacheSize: cfg.VerdictCacheSize,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reputation client: %w", err)
	}
	cancelKey := prefs.Observe(settings.KeyReputationKey, "", checker.SetKey)
	app.cancels = append(app.cancels, cancelKey)

	// Tab state comes from the host over the hook endpoint.
	tabs := hookhttp.NewTabRegistry()

	// Service layer
	rec, err := recorder.New(recorder.Options{
		Storage:    st,
		Reputation: checker,
		TabInfo:    tabs,
		Clock:      clk,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder: %w", err)
	}

	queue := tasks.New(cfg.TaskQueueSize, logger)
	app.tasks = queue

	eng := engine.New(engine.Options{
		Settings:        prefs,
		Recorder:        rec,
		NewSites:        rec.NewSites(),
		NewResources:    rec.NewResources(),
		UI:              engine.NopUI{},
		Tasks:           queue,
		Logger:          logger,
		OwnOrigin:       cfg.OwnOrigin,
		AllowUnverified: cfg.AllowUnverified,
		BloomFPRate:     cfg.BloomFPRate,
	})
	if err := eng.Hydrate(st); err != nil {
		return nil, fmt.Errorf("failed to hydrate engine: %w", err)
	}
	app.engine = eng

	// Gateway layer
	dispatcher := intercept.NewDispatcher()
	interceptor := intercept.New(intercept.Options{
		Hook:         dispatcher,
		Decider:      eng,
		Settings:     prefs,
		Logger:       logger,
		BlockPageURL: cfg.BlockPageURL,
		FramePageURL: cfg.FramePageURL,
	})
	app.interceptor = interceptor

	// The transport serves through the dispatcher so the interceptor's
	// listener registrations actually gate traffic: with no listeners the
	// host default (allow) answers every request.
	app.server = hookhttp.New(hookhttp.Options{
		Addr:     cfg.Listen,
		Verdicts: dispatcher,
		Status:   eng,
		Tabs:     tabs,
		TabClosed: func(tabID int) {
			eng.DropTab(tabID)
		},
		Logger: logger,
	})

	log.Info(map[string]any{
		"mode":       eng.Mode().String(),
		"intercepts": interceptor.Enabled(),
	}, "Guard components wired")

	return app, nil
}

// Run starts the hook endpoint and blocks until the context is cancelled.
func (app *Application) Run(ctx context.Context) error {
	defer app.shutdown()
	return app.server.Start(ctx)
}

func (app *Application) shutdown() {
	for _, cancel := range app.cancels {
		cancel()
	}
	app.interceptor.Close()
	app.engine.Close()
	app.tasks.Close()
	if err := app.settings.Close(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error closing settings store")
	}
	if err := app.store.Close(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error closing store")
	}
}
