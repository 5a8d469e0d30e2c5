// Package stats summarizes reconciled delays per route.
package stats

import (
	"context"
	"database/sql"
	"log/slog"
	"math"
	"sort"

	"gtfs-punctuality/internal/db"
	"gtfs-punctuality/internal/gtfs"
)

// Summarize computes mean, population standard deviation, max and min of
// the given delays. ok is false for an empty input; such routes never
// produce a stat row.
func Summarize(route string, delays []float64) (gtfs.RouteStat, bool) {
	n := len(delays)
	if n == 0 {
		return gtfs.RouteStat{}, false
	}

	sum := 0.0
	max, min := delays[0], delays[0]
	for _, d := range delays {
		sum += d
		if d > max {
			max = d
		}
		if d < min {
			min = d
		}
	}
	mean := sum / float64(n)

	variance := 0.0
	for _, d := range delays {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(n)

	return gtfs.RouteStat{
		RouteLongName:     route,
		AverageDelay:      mean,
		StandardDeviation: math.Sqrt(variance),
		MostDelayed:       max,
		MostEarly:         min,
	}, true
}

// Rebuild replaces the full route_stats snapshot from the current diff
// set and returns the new stats. Routes are emitted in name order so
// reruns are byte-identical.
func Rebuild(ctx context.Context, sqlDB *sql.DB, logger *slog.Logger) ([]gtfs.RouteStat, error) {
	delays, err := db.FetchCombinedDelays(ctx, sqlDB)
	if err != nil {
		return nil, err
	}

	routes := make([]string, 0, len(delays))
	for route := range delays {
		routes = append(routes, route)
	}
	sort.Strings(routes)

	out := make([]gtfs.RouteStat, 0, len(routes))
	for _, route := range routes {
		if s, ok := Summarize(route, delays[route]); ok {
			out = append(out, s)
		}
	}

	if err := db.ReplaceRouteStats(ctx, sqlDB, out); err != nil {
		return nil, err
	}
	logger.Info("route stats rebuilt", "routes", len(out))
	return out, nil
}
