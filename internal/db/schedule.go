package db

import (
	"context"
	"database/sql"
	"fmt"

	"gtfs-punctuality/internal/gtfs"
)

// ReplaceSchedule swaps the reference schedule wholesale: one transaction
// deleting every existing row and inserting the new import. Events are
// deduplicated on the natural key before insert; feeds occasionally carry
// the same (trip, date, sequence, stop) twice via overlapping services.
func ReplaceSchedule(ctx context.Context, db *sql.DB, events []gtfs.ScheduledStopEvent) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schedule tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM gtfs_schedule`); err != nil {
		return fmt.Errorf("clear schedule: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO gtfs_schedule
	(trip_id, start_date, stop_sequence, stop_id,
	 route_id, stop_name, route_long_name,
	 arrival_time, departure_time, lat, lon)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (trip_id, start_date, stop_sequence, stop_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare schedule insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx,
			e.TripID, e.StartDate, e.StopSequence, e.StopID,
			e.RouteID, e.StopName, e.RouteLongName,
			e.ArrivalTime, e.DepartureTime, e.Lat, e.Lon,
		); err != nil {
			return fmt.Errorf("insert schedule event %v: %w", e.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schedule tx: %w", err)
	}
	return nil
}

// InsertObservationsIgnoreConflicts bulk-loads mirrored observation rows,
// silently skipping natural-key collisions. Used by the mirror, which may
// re-deliver rows already present locally.
func InsertObservationsIgnoreConflicts(ctx context.Context, db *sql.DB, batch []gtfs.Observation) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin mirror tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, obs := range batch {
		res, err := tx.ExecContext(ctx, `
INSERT INTO trip_updates
	(trip_id, start_date, stop_sequence, stop_id,
	 arrival_time, departure_time, weather, weather_description, temperature_c,
	 created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (trip_id, start_date, stop_sequence, stop_id) DO NOTHING`,
			obs.TripID, obs.StartDate, obs.StopSequence, obs.StopID,
			nullTime(obs.ArrivalTime), nullTime(obs.DepartureTime),
			nullGroup(obs.Weather), obs.WeatherDescription, nullFloat(obs.TemperatureC),
			obs.CreatedAt, obs.UpdatedAt,
		)
		if err != nil {
			return inserted, fmt.Errorf("mirror insert %v: %w", obs.Key, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("commit mirror tx: %w", err)
	}
	return inserted, nil
}
