// Package reconcile joins real-time observations against the reference
// schedule and derives per-stop delay rows.
package reconcile

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"gtfs-punctuality/internal/db"
	"gtfs-punctuality/internal/gtfs"
)

// Observed instants this far from their scheduled counterpart are feed
// noise (the source emits epoch-adjacent garbage for stops it has no data
// for) and resolve to the scheduled instant instead.
const outOfRange = 1_000_000_000 * time.Second

// Time-of-day band boundaries, local hours.
var bands = []struct {
	from, to int
	label    string
}{
	{6, 9, "Morning rush hour (6AM to 9AM)"},
	{9, 11, "Mid morning (9AM to 11AM)"},
	{11, 13, "Midday (11AM to 01PM)"},
	{13, 16, "Afternoon (01PM to 04PM)"},
	{16, 19, "Afternoon rush hour (04PM to 07PM)"},
	{19, 22, "Evening (07PM to 10PM)"},
}

const nightBand = "Night (10PM to 6AM)"

// resolveLeg applies the sentinel policy to one leg: an absent or
// out-of-range observation resolves to the scheduled instant with zero
// delay and does not count as real.
func resolveLeg(observed *time.Time, scheduled time.Time) (actual time.Time, delayMin float64, real bool) {
	if observed == nil {
		return scheduled, 0, false
	}
	diff := observed.Sub(scheduled)
	if diff > outOfRange || diff < -outOfRange {
		return scheduled, 0, false
	}
	return *observed, diff.Minutes(), true
}

// BuildDiff derives one reconciled row from an observation and its
// schedule counterpart. ok is false when neither leg carries a real
// observation; such rows are excluded from the diff set. Bucketing always
// follows the scheduled arrival in the transit time zone, so a row's
// day-type and band never move with how late the vehicle ran.
func BuildDiff(row db.JoinedRow, loc *time.Location) (gtfs.ReconciledDiff, bool) {
	obs, sched := row.Obs, row.Sched

	actualArr, arrDelay, arrReal := resolveLeg(obs.ArrivalTime, sched.ArrivalTime)
	actualDep, depDelay, depReal := resolveLeg(obs.DepartureTime, sched.DepartureTime)
	if !arrReal && !depReal {
		return gtfs.ReconciledDiff{}, false
	}

	var combined float64
	switch {
	case arrReal && depReal:
		combined = (arrDelay + depDelay) / 2
	case arrReal:
		combined = arrDelay
	default:
		combined = depDelay
	}

	schedArrLocal := sched.ArrivalTime.In(loc)
	return gtfs.ReconciledDiff{
		Key:                obs.Key,
		RouteID:            sched.RouteID,
		RouteLongName:      sched.RouteLongName,
		StopName:           sched.StopName,
		ScheduledArrival:   sched.ArrivalTime,
		ScheduledDeparture: sched.DepartureTime,
		ActualArrival:      actualArr,
		ActualDeparture:    actualDep,
		ArrivalDelayMin:    arrDelay,
		DepartureDelayMin:  depDelay,
		CombinedDelayMin:   combined,
		DayType:            schedArrLocal.Weekday().String(),
		TimeOfDay:          timeOfDay(schedArrLocal.Hour()),
		Weather:            obs.Weather,
		WeatherDescription: obs.WeatherDescription,
		TemperatureC:       obs.TemperatureC,
		Lat:                sched.Lat,
		Lon:                sched.Lon,
	}, true
}

func timeOfDay(hour int) string {
	for _, b := range bands {
		if hour >= b.from && hour < b.to {
			return b.label
		}
	}
	return nightBand
}

// Rebuild recomputes the full diff set from the current observation and
// schedule tables. Delete-and-rewrite, never an incremental patch:
// rerunning over unchanged inputs yields identical rows.
func Rebuild(ctx context.Context, sqlDB *sql.DB, loc *time.Location, logger *slog.Logger) (int, error) {
	rows, err := db.FetchJoinedRows(ctx, sqlDB)
	if err != nil {
		return 0, err
	}

	diffs := make([]gtfs.ReconciledDiff, 0, len(rows))
	for _, row := range rows {
		if d, ok := BuildDiff(row, loc); ok {
			diffs = append(diffs, d)
		}
	}

	if err := db.ReplaceDiffs(ctx, sqlDB, diffs); err != nil {
		return 0, err
	}
	logger.Info("reconciliation complete", "joined", len(rows), "diffs", len(diffs))
	return len(diffs), nil
}
