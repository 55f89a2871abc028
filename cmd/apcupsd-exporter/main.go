package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/apcupsd-exporter/internal/config"
	"codeberg.org/mutker/apcupsd-exporter/internal/errors"
	"codeberg.org/mutker/apcupsd-exporter/internal/logger"
	"codeberg.org/mutker/apcupsd-exporter/internal/metrics"
	"codeberg.org/mutker/apcupsd-exporter/internal/nis"
	"codeberg.org/mutker/apcupsd-exporter/internal/poller"
	"codeberg.org/mutker/apcupsd-exporter/internal/server"
	"codeberg.org/mutker/apcupsd-exporter/internal/snapshot"
	"codeberg.org/mutker/apcupsd-exporter/internal/status"
	"codeberg.org/mutker/apcupsd-exporter/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.LogLevel.String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set log level: %v\n", err)
		os.Exit(1)
	}
	logger.Init(level, logger.IsService())
	logger.Debug().Str("config_file", cfg.ConfigFile).Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx, cfg); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Msg("Exporter stopped with error")
		} else {
			logger.Error().Err(err).Msg("Exporter stopped with error")
		}
		cancel()
		os.Exit(1)
	}
	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context, cfg *config.Config) error {
	errFactory := errors.New()

	client, err := nis.NewClient(nis.Target{
		Host:           cfg.Host,
		Port:           cfg.Port,
		ConnectTimeout: cfg.PollTimeout(),
		ReadTimeout:    cfg.PollTimeout(),
	}, nis.WithMaxFrameSize(cfg.MaxFrameSize))
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	store := snapshot.NewStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	recorder := telemetry.NewRecorder(metrics.DefaultNamespace)
	if err := recorder.Register(reg); err != nil {
		return errFactory.Wrap(errors.ErrInitMetrics, err)
	}

	collector, err := metrics.NewCollector(metrics.Config{
		Namespace:    metrics.DefaultNamespace,
		IdentityKeys: status.IdentityKeys(),
	}, store)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitMetrics, err)
	}
	if err := collector.Register(reg); err != nil {
		return errFactory.Wrap(errors.ErrInitMetrics, err)
	}

	p, err := poller.New(poller.Config{Interval: cfg.PollInterval()}, client, store, poller.WithObserver(recorder))
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
		Registry:      reg,
	})
	srv, err := server.New(server.Config{
		Addr:              cfg.ListenAddr(),
		MetricsPath:       cfg.MetricsPath,
		RateLimit:         cfg.ScrapeRateLimit,
		TrustForwardedFor: cfg.TrustForwardedFor,
	}, handler, readiness(store), reg)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	logger.Info().
		Str("daemon", client.Target().Address()).
		Dur("interval", cfg.PollInterval()).
		Dur("timeout", cfg.PollTimeout()).
		Msg("Starting apcupsd exporter")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.Run(gctx)
		return nil
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return errFactory.Wrap(errors.ErrMainLoop, err)
	}

	return nil
}

func readiness(store *snapshot.Store) server.ReadinessChecker {
	return func(context.Context) error {
		if _, ok := store.Current(); !ok {
			return errors.New().New(server.ErrNotReady)
		}
		return nil
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
