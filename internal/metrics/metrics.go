package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	RunsTotal *prometheus.CounterVec // result label: ok|locked|unavailable|timeout|error

	FeedUpdates prometheus.Gauge
	DiffRows    prometheus.Gauge
	RouteStats  prometheus.Gauge

	Upserts *prometheus.CounterVec // outcome label: inserted|updated|skipped

	WeatherRefreshes prometheus.Counter

	StageDuration *prometheus.HistogramVec // stage label: fetch|upsert|reconcile|stats
	RunDuration   prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "punctuality_runs_total",
			Help: "Ingestion runs by result.",
		}, []string{"result"}),
		FeedUpdates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "punctuality_feed_stop_time_updates",
			Help: "Stop time updates decoded from the last feed snapshot.",
		}),
		DiffRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "punctuality_diff_rows",
			Help: "Rows in the reconciled diff set after the last pass.",
		}),
		RouteStats: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "punctuality_route_stats",
			Help: "Routes in the stats snapshot after the last pass.",
		}),
		Upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "punctuality_upserts_total",
			Help: "Observation upserts by outcome.",
		}, []string{"outcome"}),
		WeatherRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "punctuality_weather_refreshes_total",
			Help: "Successful weather enrichment lookups.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "punctuality_stage_duration_seconds",
			Help:    "Duration of each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}, []string{"stage"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "punctuality_run_duration_seconds",
			Help:    "Duration of a full ingestion run.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 15),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "punctuality_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "punctuality_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "punctuality_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "punctuality_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
	}

	reg.MustRegister(
		c.RunsTotal,
		c.FeedUpdates, c.DiffRows, c.RouteStats,
		c.Upserts, c.WeatherRefreshes,
		c.StageDuration, c.RunDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
	)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// ObserveStage times one pipeline stage from its start instant.
func (c *Collector) ObserveStage(stage string, start time.Time) {
	c.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	slog.Info("metrics listening", "addr", addr)
	return srv
}
