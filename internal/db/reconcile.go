package db

import (
	"context"
	"database/sql"
	"fmt"

	"gtfs-punctuality/internal/gtfs"
)

// JoinedRow pairs one observation with its matching schedule row.
type JoinedRow struct {
	Obs   gtfs.Observation
	Sched gtfs.ScheduledStopEvent
}

// FetchJoinedRows returns every observation that has a schedule
// counterpart under the natural key, ordered deterministically so
// repeated reconciliation passes over unchanged input produce identical
// output.
func FetchJoinedRows(ctx context.Context, db *sql.DB) ([]JoinedRow, error) {
	rows, err := db.QueryContext(ctx, `
SELECT
	u.trip_id, u.start_date, u.stop_sequence, u.stop_id,
	u.arrival_time, u.departure_time,
	u.weather, u.weather_description, u.temperature_c,
	u.created_at, u.updated_at,
	s.route_id, s.stop_name, s.route_long_name,
	s.arrival_time, s.departure_time, s.lat, s.lon
FROM trip_updates u
JOIN gtfs_schedule s
	ON u.trip_id = s.trip_id
	AND u.start_date = s.start_date
	AND u.stop_sequence = s.stop_sequence
	AND u.stop_id = s.stop_id
ORDER BY u.trip_id, u.start_date, u.stop_sequence, u.stop_id`)
	if err != nil {
		return nil, fmt.Errorf("query joined rows: %w", err)
	}
	defer rows.Close()

	var out []JoinedRow
	for rows.Next() {
		var r JoinedRow
		var arr, dep sql.NullTime
		var weather sql.NullString
		var temp sql.NullFloat64
		if err := rows.Scan(
			&r.Obs.TripID, &r.Obs.StartDate, &r.Obs.StopSequence, &r.Obs.StopID,
			&arr, &dep,
			&weather, &r.Obs.WeatherDescription, &temp,
			&r.Obs.CreatedAt, &r.Obs.UpdatedAt,
			&r.Sched.RouteID, &r.Sched.StopName, &r.Sched.RouteLongName,
			&r.Sched.ArrivalTime, &r.Sched.DepartureTime, &r.Sched.Lat, &r.Sched.Lon,
		); err != nil {
			return nil, err
		}
		r.Obs.ArrivalTime = fromNullTime(arr)
		r.Obs.DepartureTime = fromNullTime(dep)
		r.Obs.Weather = fromNullGroup(weather)
		r.Obs.TemperatureC = fromNullFloat(temp)
		r.Sched.Key = r.Obs.Key
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceDiffs deletes and rewrites the full derived diff set in one
// transaction. The table is a materialized view of its inputs, never
// patched incrementally.
func ReplaceDiffs(ctx context.Context, db *sql.DB, diffs []gtfs.ReconciledDiff) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin diff tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trip_updates_with_diffs`); err != nil {
		return fmt.Errorf("clear diffs: %w", err)
	}
	for _, d := range diffs {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO trip_updates_with_diffs
	(trip_id, start_date, stop_sequence, stop_id,
	 route_id, route_long_name, stop_name,
	 scheduled_arrival_time, scheduled_departure_time,
	 actual_arrival_time, actual_departure_time,
	 arrival_delay_min, departure_delay_min, combined_delay_min,
	 day_type, time_of_day,
	 weather, weather_description, temperature_c, lat, lon)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
			d.TripID, d.StartDate, d.StopSequence, d.StopID,
			d.RouteID, d.RouteLongName, d.StopName,
			d.ScheduledArrival, d.ScheduledDeparture,
			d.ActualArrival, d.ActualDeparture,
			d.ArrivalDelayMin, d.DepartureDelayMin, d.CombinedDelayMin,
			d.DayType, d.TimeOfDay,
			nullGroup(d.Weather), d.WeatherDescription, nullFloat(d.TemperatureC), d.Lat, d.Lon,
		); err != nil {
			return fmt.Errorf("insert diff %v: %w", d.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit diff tx: %w", err)
	}
	return nil
}
