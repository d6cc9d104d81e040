// Package main runs the trading engine: market scanning, position sizing,
// swap execution and exit monitoring behind an operator HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"solana-alpha-engine/internal/api"
	"solana-alpha-engine/internal/config"
	"solana-alpha-engine/internal/engine"
	"solana-alpha-engine/internal/observability"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	configDir := flag.String("config", getEnv("ENGINE_CONFIG_DIR", "."), "directory holding config.yaml")
	httpAddr := flag.String("http", "", "HTTP listen address (overrides api.addr)")
	paper := flag.Bool("paper", false, "force paper trading")
	flag.Parse()

	if *paper {
		_ = os.Setenv(config.EnvPrefix+"_PAPER_ENABLED", "true")
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	if *httpAddr != "" {
		cfg.API.Addr = *httpAddr
	}

	logger := newLogger(cfg.Log)
	log := logger.WithField("component", "main")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		log.WithError(err).Warn("tracing disabled")
	}
	defer shutdownTracer()

	app, err := build(ctx, cfg, logger)
	if err != nil {
		log.WithError(err).Fatal("build engine")
	}
	defer app.close()

	log.WithFields(logrus.Fields{
		"paper":  cfg.Paper.Enabled,
		"ledger": cfg.Storage.Ledger,
		"addr":   cfg.API.Addr,
	}).Info("engine configured")

	// Writers and alerts outlive the engine loops so late outcomes are not lost.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	var wg sync.WaitGroup
	app.runBackground(bgCtx, &wg)

	if app.telegram != nil {
		events, unsubscribe := app.engine.Subscribe(engine.DefaultSubscriberBuffer)
		defer unsubscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.telegram.Run(bgCtx, events)
		}()
	}

	if cfg.Engine.AutoStart {
		if err := app.engine.Start(ctx); err != nil {
			log.WithError(err).Fatal("start engine")
		}
	}

	srv := api.New(api.Options{
		Engine:     app.engine,
		Trades:     app.trades,
		Samples:    app.samples,
		RunContext: ctx,
		Logger:     logger,
	})
	if err := srv.ListenAndServe(ctx, cfg.API.Addr); err != nil {
		log.WithError(err).Error("http server")
		cancel()
	}

	log.Info("shutting down")
	if err := app.engine.Stop(); err != nil && !errors.Is(err, engine.ErrNotRunning) {
		log.WithError(err).Warn("stop engine")
	}
	app.engine.Wait()

	bgCancel()
	wg.Wait()
	log.Info("shutdown complete")
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithField("level", cfg.Level).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
