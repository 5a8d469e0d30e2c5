package db

import (
	"context"
	"database/sql"
	"fmt"

	"gtfs-punctuality/internal/gtfs"
)

// FetchCombinedDelays returns each route's combined delays (minutes) from
// the current diff set, keyed by route long name.
func FetchCombinedDelays(ctx context.Context, db *sql.DB) (map[string][]float64, error) {
	rows, err := db.QueryContext(ctx, `
SELECT route_long_name, combined_delay_min
FROM trip_updates_with_diffs
ORDER BY route_long_name, trip_id, start_date, stop_sequence, stop_id`)
	if err != nil {
		return nil, fmt.Errorf("query combined delays: %w", err)
	}
	defer rows.Close()

	delays := make(map[string][]float64)
	for rows.Next() {
		var route string
		var d float64
		if err := rows.Scan(&route, &d); err != nil {
			return nil, err
		}
		delays[route] = append(delays[route], d)
	}
	return delays, rows.Err()
}

// ReplaceRouteStats deletes and rewrites the full route_stats snapshot in
// one transaction.
func ReplaceRouteStats(ctx context.Context, db *sql.DB, stats []gtfs.RouteStat) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stats tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM route_stats`); err != nil {
		return fmt.Errorf("clear route stats: %w", err)
	}
	for _, s := range stats {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO route_stats (route_long_name, average_delay, standard_deviation, most_delayed, most_early)
VALUES ($1, $2, $3, $4, $5)`,
			s.RouteLongName, s.AverageDelay, s.StandardDeviation, s.MostDelayed, s.MostEarly,
		); err != nil {
			return fmt.Errorf("insert route stat %q: %w", s.RouteLongName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stats tx: %w", err)
	}
	return nil
}
