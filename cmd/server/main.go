package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/sdrshn-nmbr/tierledger/internal/config"
	"github.com/sdrshn-nmbr/tierledger/internal/db"
	"github.com/sdrshn-nmbr/tierledger/internal/logging"
	"github.com/sdrshn-nmbr/tierledger/internal/metrics"
	"github.com/sdrshn-nmbr/tierledger/internal/notify"
	"github.com/sdrshn-nmbr/tierledger/internal/server"
	"github.com/sdrshn-nmbr/tierledger/pkg/client"
)

func main() {
	configPath := flag.String("config", "", "config file (defaults to ./tierledger.yaml when present)")
	seed := flag.Bool("seed", false, "load sample customers on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(logger)

	if err := run(cfg, logger, *seed); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, seed bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	provider, err := buildProvider(cfg.Notify, logger)
	if err != nil {
		return err
	}
	dispatchOpts := notify.DefaultDispatcherOptions()
	dispatchOpts.Workers = cfg.Notify.Workers
	dispatchOpts.QueueSize = cfg.Notify.QueueSize
	dispatchOpts.Logger = logger
	dispatchOpts.Registerer = registry
	dispatcher, err := notify.NewDispatcher(provider, dispatchOpts)
	if err != nil {
		return err
	}
	defer dispatcher.Close()

	backend, err := client.OpenLocal(ctx, client.LocalOptions{
		StorageType: client.StorageType(cfg.Storage.Type),
		DataPath:    cfg.Storage.DataPath,
		WALPath:     cfg.Storage.WALPath,
		PostgresURL: cfg.Storage.PostgresURL,
		Compaction:  db.CompactionOptions{Interval: cfg.Storage.CompactionInterval},
		CacheSize:   cfg.Cache.Size,
		Sink:        dispatcher,
		Observer:    recorder,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("storage close failed", "error", err)
		}
	}()

	if seed {
		n, err := backend.Seed(ctx)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		logger.Info("sample customers loaded", "count", n)
	}

	handler := server.NewHandler(server.Options{
		Service:        backend.Service(),
		Logger:         logger,
		Metrics:        recorder,
		Gatherer:       registry,
		RateLimit:      server.RateLimit{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst},
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Ready: func(r *http.Request) error {
			return backend.Ping(r.Context())
		},
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("listening", "addr", cfg.HTTP.Addr, "storage", cfg.Storage.Type)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func buildProvider(cfg config.NotifyConfig, logger *slog.Logger) (notify.Provider, error) {
	if cfg.SMS.URL == "" {
		return notify.LogProvider{Logger: logger}, nil
	}
	return notify.NewSMSGateway(notify.SMSGatewayOptions{
		BaseURL:    cfg.SMS.URL,
		AccountSID: cfg.SMS.Account,
		AuthToken:  cfg.SMS.Token,
		From:       cfg.SMS.From,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	})
}
