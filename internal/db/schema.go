package db

import (
	"context"
	"database/sql"
	"fmt"
)

// The four logical tables of the pipeline. Schedule and trip_updates are
// keyed by the natural key; the two derived tables are rebuilt wholesale
// by their owning pass.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS gtfs_schedule (
		trip_id         TEXT             NOT NULL,
		start_date      TEXT             NOT NULL,
		stop_sequence   INTEGER          NOT NULL,
		stop_id         TEXT             NOT NULL,
		route_id        TEXT             NOT NULL,
		stop_name       TEXT             NOT NULL,
		route_long_name TEXT             NOT NULL,
		arrival_time    TIMESTAMPTZ      NOT NULL,
		departure_time  TIMESTAMPTZ      NOT NULL,
		lat             DOUBLE PRECISION NOT NULL,
		lon             DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (trip_id, start_date, stop_sequence, stop_id)
	)`,
	`CREATE TABLE IF NOT EXISTS trip_updates (
		trip_id             TEXT    NOT NULL,
		start_date          TEXT    NOT NULL,
		stop_sequence       INTEGER NOT NULL,
		stop_id             TEXT    NOT NULL,
		arrival_time        TIMESTAMPTZ,
		departure_time      TIMESTAMPTZ,
		weather             TEXT,
		weather_description TEXT    NOT NULL DEFAULT '',
		temperature_c       DOUBLE PRECISION,
		created_at          TIMESTAMPTZ NOT NULL,
		updated_at          TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (trip_id, start_date, stop_sequence, stop_id)
	)`,
	`CREATE TABLE IF NOT EXISTS trip_updates_with_diffs (
		trip_id                 TEXT             NOT NULL,
		start_date              TEXT             NOT NULL,
		stop_sequence           INTEGER          NOT NULL,
		stop_id                 TEXT             NOT NULL,
		route_id                TEXT             NOT NULL,
		route_long_name         TEXT             NOT NULL,
		stop_name               TEXT             NOT NULL,
		scheduled_arrival_time  TIMESTAMPTZ      NOT NULL,
		scheduled_departure_time TIMESTAMPTZ     NOT NULL,
		actual_arrival_time     TIMESTAMPTZ      NOT NULL,
		actual_departure_time   TIMESTAMPTZ      NOT NULL,
		arrival_delay_min       DOUBLE PRECISION NOT NULL,
		departure_delay_min     DOUBLE PRECISION NOT NULL,
		combined_delay_min      DOUBLE PRECISION NOT NULL,
		day_type                TEXT             NOT NULL,
		time_of_day             TEXT             NOT NULL,
		weather                 TEXT,
		weather_description     TEXT             NOT NULL DEFAULT '',
		temperature_c           DOUBLE PRECISION,
		lat                     DOUBLE PRECISION NOT NULL,
		lon                     DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (trip_id, start_date, stop_sequence, stop_id)
	)`,
	`CREATE TABLE IF NOT EXISTS route_stats (
		route_long_name    TEXT             PRIMARY KEY,
		average_delay      DOUBLE PRECISION NOT NULL,
		standard_deviation DOUBLE PRECISION NOT NULL,
		most_delayed       DOUBLE PRECISION NOT NULL,
		most_early         DOUBLE PRECISION NOT NULL
	)`,
}

// EnsureSchema creates the pipeline tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
