package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gtfs-punctuality/internal/config"
	"gtfs-punctuality/internal/db"
	"gtfs-punctuality/internal/feed"
	"gtfs-punctuality/internal/guard"
	"gtfs-punctuality/internal/ingest"
	"gtfs-punctuality/internal/metrics"
	"gtfs-punctuality/internal/publisher"
	"gtfs-punctuality/internal/weather"
)

// Exit codes: 0 for success and clean no-ops (another instance holds the
// lock, feed temporarily unavailable), 3 for a run that hit the wall-clock
// deadline, 1 for everything else.
const exitTimeout = 3

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config error", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("db open error", "err", err)
		os.Exit(1)
	}
	defer sqlDB.Close()
	if err := db.Ping(ctx, sqlDB); err != nil {
		logger.Error("db ping error", "err", err)
		os.Exit(1)
	}
	if err := db.EnsureSchema(ctx, sqlDB); err != nil {
		logger.Error("schema error", "err", err)
		os.Exit(1)
	}

	mcol := metrics.NewCollector()
	if cfg.MetricsAddr != "" {
		srv := mcol.Serve(cfg.MetricsAddr)
		go func() {
			<-ctx.Done()
			shutdownCtx, scancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer scancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var pub *publisher.NATSPublisher
	if cfg.NATSURL != "" {
		pub, err = publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSStreamName, wrapPublisherMetrics(mcol), logger)
		if err != nil {
			logger.Error("nats error", "err", err)
			os.Exit(1)
		}
		defer pub.Close()
	}

	var cache *weather.Cache
	if cfg.WeatherAPIKey != "" {
		client := weather.NewClient(cfg.WeatherAPIKey, cfg.WeatherLat, cfg.WeatherLon)
		cache = weather.NewCache(client, cfg.WeatherStatePath, cfg.WeatherCooldown, logger)
	} else {
		logger.Info("WEATHER_API_KEY not set, weather enrichment disabled")
	}

	feedClient := feed.NewClient(cfg.FeedURL)
	var statPub ingest.StatPublisher
	if pub != nil {
		statPub = pub
	}
	runner := ingest.NewRunner(sqlDB, feedClient, cache, statPub, mcol, cfg.Location, logger)

	runOnce := func() int {
		err := guard.Run(ctx, cfg.LockPath, cfg.RunTimeout, runner.Run)
		switch {
		case err == nil:
			mcol.RunsTotal.WithLabelValues("ok").Inc()
			return 0
		case errors.Is(err, guard.ErrLocked):
			logger.Info("another instance holds the lock, skipping run")
			mcol.RunsTotal.WithLabelValues("locked").Inc()
			return 0
		case errors.Is(err, feed.ErrUnavailable):
			logger.Warn("feed unavailable, skipping run", "err", err)
			mcol.RunsTotal.WithLabelValues("unavailable").Inc()
			return 0
		case errors.Is(err, guard.ErrTimeout):
			logger.Error("run exceeded deadline", "timeout", cfg.RunTimeout, "err", err)
			mcol.RunsTotal.WithLabelValues("timeout").Inc()
			return exitTimeout
		default:
			logger.Error("run failed", "err", err)
			mcol.RunsTotal.WithLabelValues("error").Inc()
			return 1
		}
	}

	if cfg.RunInterval == 0 {
		os.Exit(runOnce())
	}

	// Daemon mode: poll on a fixed interval until signalled. A failed
	// iteration is logged and counted but does not stop the loop.
	logger.Info("starting ingest loop", "interval", cfg.RunInterval)
	code := runOnce()
	ticker := time.NewTicker(cfg.RunInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown complete")
			os.Exit(code)
		case <-ticker.C:
			code = runOnce()
		}
	}
}

// wrapPublisherMetrics adapts the Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
