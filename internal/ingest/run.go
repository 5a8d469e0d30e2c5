// Package ingest orchestrates one guarded ingestion run: feed fetch,
// decode, weather enrichment, upsert, reconciliation and stats.
package ingest

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"gtfs-punctuality/internal/db"
	"gtfs-punctuality/internal/feed"
	"gtfs-punctuality/internal/gtfs"
	"gtfs-punctuality/internal/metrics"
	"gtfs-punctuality/internal/reconcile"
	"gtfs-punctuality/internal/stats"
	"gtfs-punctuality/internal/weather"
)

// StatPublisher receives the fresh route-stat snapshot after a run.
type StatPublisher interface {
	PublishRouteStat(s gtfs.RouteStat, computedAt time.Time) error
}

type Runner struct {
	DB       *sql.DB
	Feed     *feed.Client
	Weather  *weather.Cache // nil disables enrichment
	Pub      StatPublisher  // nil disables publishing
	Metrics  *metrics.Collector
	Location *time.Location
	Logger   *slog.Logger

	now func() time.Time
}

func NewRunner(sqlDB *sql.DB, feedClient *feed.Client, w *weather.Cache, pub StatPublisher, m *metrics.Collector, loc *time.Location, logger *slog.Logger) *Runner {
	return &Runner{
		DB:       sqlDB,
		Feed:     feedClient,
		Weather:  w,
		Pub:      pub,
		Metrics:  m,
		Location: loc,
		Logger:   logger.With("component", "ingest"),
		now:      time.Now,
	}
}

// Run executes one full pipeline pass. Any error aborts before later
// stages write; the upsert itself is transactional, so a failed run
// leaves no half-applied batch behind.
func (r *Runner) Run(ctx context.Context) error {
	runStart := r.now()

	fetchStart := r.now()
	raw, err := r.Feed.Fetch(ctx)
	if err != nil {
		return err
	}
	updates, err := feed.Decode(raw)
	if err != nil {
		return err
	}
	r.Metrics.ObserveStage("fetch", fetchStart)
	r.Metrics.FeedUpdates.Set(float64(len(updates)))
	r.Logger.Info("feed decoded", "stop_time_updates", len(updates))

	var snap *weather.Snapshot
	if r.Weather != nil {
		snap = r.Weather.MaybeRefresh(ctx)
		if snap != nil {
			r.Metrics.WeatherRefreshes.Inc()
		}
	}

	now := r.now()
	batch := buildBatch(updates, snap, now)

	upsertStart := r.now()
	res, err := db.UpsertObservations(ctx, r.DB, batch)
	if err != nil {
		return err
	}
	r.Metrics.ObserveStage("upsert", upsertStart)
	r.Metrics.Upserts.WithLabelValues("inserted").Add(float64(res.Inserted))
	r.Metrics.Upserts.WithLabelValues("updated").Add(float64(res.Updated))
	r.Metrics.Upserts.WithLabelValues("skipped").Add(float64(res.Skipped))
	r.Logger.Info("observations upserted",
		"batch", len(batch), "inserted", res.Inserted, "updated", res.Updated, "skipped", res.Skipped)

	reconcileStart := r.now()
	diffCount, err := reconcile.Rebuild(ctx, r.DB, r.Location, r.Logger)
	if err != nil {
		return err
	}
	r.Metrics.ObserveStage("reconcile", reconcileStart)
	r.Metrics.DiffRows.Set(float64(diffCount))

	statsStart := r.now()
	routeStats, err := stats.Rebuild(ctx, r.DB, r.Logger)
	if err != nil {
		return err
	}
	r.Metrics.ObserveStage("stats", statsStart)
	r.Metrics.RouteStats.Set(float64(len(routeStats)))

	if r.Pub != nil {
		computedAt := r.now()
		for _, s := range routeStats {
			if err := r.Pub.PublishRouteStat(s, computedAt); err != nil {
				r.Logger.Warn("route stat publish failed", "route", s.RouteLongName, "error", err)
			}
		}
	}

	r.Metrics.RunDuration.Observe(r.now().Sub(runStart).Seconds())
	return nil
}

// buildBatch turns decoded updates into observation rows, stamping each
// with the shared weather snapshot and the run's now(). Updates whose
// legs are all in the future are predictions, not actuals, and are
// dropped; only instants at or before now are stored.
func buildBatch(updates []feed.StopTimeUpdate, snap *weather.Snapshot, now time.Time) []gtfs.Observation {
	out := make([]gtfs.Observation, 0, len(updates))
	for _, u := range updates {
		if !hasPastLeg(u, now) {
			continue
		}
		obs := gtfs.Observation{
			Key: gtfs.Key{
				TripID:       u.TripID,
				StartDate:    u.StartDate,
				StopSequence: u.StopSequence,
				StopID:       u.StopID,
			},
			ArrivalTime:   u.Arrival,
			DepartureTime: u.Departure,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if snap != nil {
			group := snap.Group
			temp := snap.TemperatureC
			obs.Weather = &group
			obs.WeatherDescription = snap.Description
			obs.TemperatureC = &temp
		}
		out = append(out, obs)
	}
	return out
}

func hasPastLeg(u feed.StopTimeUpdate, now time.Time) bool {
	return (u.Arrival != nil && !u.Arrival.After(now)) ||
		(u.Departure != nil && !u.Departure.After(now))
}
