package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gtfs-punctuality/internal/gtfs"
)

// UpsertResult reports what a batch upsert did per row.
type UpsertResult struct {
	Inserted int
	Updated  int
	Skipped  int
}

// UpsertObservations merges a decoded batch into trip_updates under the
// natural-key merge policy: insert when absent, rewrite when the incoming
// arrival or departure instant differs from the stored one, no-op
// otherwise. No-ops leave updated_at untouched. The whole batch runs in
// one transaction, so retried delivery of the same batch is replay-safe.
//
// The guard in cmd/ingest guarantees a single writer, so the
// read-then-write per key does not race; the insert itself still goes
// through ON CONFLICT DO NOTHING so replays cannot violate the key
// constraint.
func UpsertObservations(ctx context.Context, db *sql.DB, batch []gtfs.Observation) (UpsertResult, error) {
	var res UpsertResult
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, obs := range batch {
		var storedArr, storedDep sql.NullTime
		err := tx.QueryRowContext(ctx, `
SELECT arrival_time, departure_time
FROM trip_updates
WHERE trip_id = $1 AND start_date = $2 AND stop_sequence = $3 AND stop_id = $4`,
			obs.TripID, obs.StartDate, obs.StopSequence, obs.StopID,
		).Scan(&storedArr, &storedDep)

		switch {
		case err == sql.ErrNoRows:
			if _, err := tx.ExecContext(ctx, `
INSERT INTO trip_updates
	(trip_id, start_date, stop_sequence, stop_id,
	 arrival_time, departure_time, weather, weather_description, temperature_c,
	 created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
ON CONFLICT (trip_id, start_date, stop_sequence, stop_id) DO NOTHING`,
				obs.TripID, obs.StartDate, obs.StopSequence, obs.StopID,
				nullTime(obs.ArrivalTime), nullTime(obs.DepartureTime),
				nullGroup(obs.Weather), obs.WeatherDescription, nullFloat(obs.TemperatureC),
				obs.UpdatedAt,
			); err != nil {
				return res, fmt.Errorf("insert observation %v: %w", obs.Key, err)
			}
			res.Inserted++
		case err != nil:
			return res, fmt.Errorf("read observation %v: %w", obs.Key, err)
		case timesChanged(fromNullTime(storedArr), fromNullTime(storedDep), obs.ArrivalTime, obs.DepartureTime):
			if _, err := tx.ExecContext(ctx, `
UPDATE trip_updates
SET arrival_time = $5, departure_time = $6,
	weather = $7, weather_description = $8, temperature_c = $9,
	updated_at = $10
WHERE trip_id = $1 AND start_date = $2 AND stop_sequence = $3 AND stop_id = $4`,
				obs.TripID, obs.StartDate, obs.StopSequence, obs.StopID,
				nullTime(obs.ArrivalTime), nullTime(obs.DepartureTime),
				nullGroup(obs.Weather), obs.WeatherDescription, nullFloat(obs.TemperatureC),
				obs.UpdatedAt,
			); err != nil {
				return res, fmt.Errorf("update observation %v: %w", obs.Key, err)
			}
			res.Updated++
		default:
			res.Skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit upsert tx: %w", err)
	}
	return res, nil
}

// timesChanged reports whether the incoming arrival or departure instant
// differs from the stored one. Presence counts: nil vs set is a change.
// Weather fields alone never trigger a write.
func timesChanged(storedArr, storedDep, inArr, inDep *time.Time) bool {
	return !instantEqual(storedArr, inArr) || !instantEqual(storedDep, inDep)
}

func instantEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullGroup(g *gtfs.WeatherGroup) sql.NullString {
	if g == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*g), Valid: true}
}

func fromNullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func fromNullGroup(s sql.NullString) *gtfs.WeatherGroup {
	if !s.Valid {
		return nil
	}
	g := gtfs.WeatherGroup(s.String)
	return &g
}
