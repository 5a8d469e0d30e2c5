// Package sched imports the static reference schedule: the GTFS zip is
// parsed, each trip's service expanded to concrete dates, and the
// schedule table replaced wholesale.
package sched

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	gogtfs "github.com/OneBusAway/go-gtfs"

	"gtfs-punctuality/internal/db"
	"gtfs-punctuality/internal/gtfs"
)

type Importer struct {
	source string // URL or local file path
	loc    *time.Location
	logger *slog.Logger
}

func NewImporter(source string, loc *time.Location, logger *slog.Logger) *Importer {
	return &Importer{
		source: source,
		loc:    loc,
		logger: logger.With("component", "sched_import"),
	}
}

// Import downloads and parses the GTFS archive, materializes scheduled
// stop events for every service date, and swaps them into the store.
func (i *Importer) Import(ctx context.Context, sqlDB *sql.DB) (int, error) {
	raw, err := i.fetch(ctx)
	if err != nil {
		return 0, err
	}
	i.logger.Info("schedule archive fetched", "bytes", len(raw))

	static, err := gogtfs.ParseStatic(raw, gogtfs.ParseStaticOptions{})
	if err != nil {
		return 0, fmt.Errorf("parse static GTFS: %w", err)
	}

	events := BuildEvents(static, i.loc)
	i.logger.Info("schedule expanded",
		"trips", len(static.Trips), "routes", len(static.Routes), "events", len(events))

	if err := db.ReplaceSchedule(ctx, sqlDB, events); err != nil {
		return 0, err
	}
	return len(events), nil
}

func (i *Importer) fetch(ctx context.Context) ([]byte, error) {
	if !strings.HasPrefix(i.source, "http://") && !strings.HasPrefix(i.source, "https://") {
		b, err := os.ReadFile(i.source)
		if err != nil {
			return nil, fmt.Errorf("read schedule archive: %w", err)
		}
		return b, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.source, nil)
	if err != nil {
		return nil, fmt.Errorf("build schedule request: %w", err)
	}
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download schedule archive: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download schedule archive: HTTP %d", resp.StatusCode)
	}

	const maxArchiveSize = 200 * 1024 * 1024
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("read schedule archive: %w", err)
	}
	if int64(len(b)) > maxArchiveSize {
		return nil, fmt.Errorf("schedule archive exceeds size limit of %d bytes", maxArchiveSize)
	}
	return b, nil
}

// BuildEvents flattens parsed GTFS into one ScheduledStopEvent per
// (trip, service date, stop time), with absolute instants in the transit
// time zone. Schedule times past 24:00:00 roll into the next civil day.
func BuildEvents(static *gogtfs.Static, loc *time.Location) []gtfs.ScheduledStopEvent {
	var out []gtfs.ScheduledStopEvent
	for _, trip := range static.Trips {
		if trip.Route == nil || trip.Service == nil {
			continue
		}
		routeName := trip.Route.LongName
		if routeName == "" {
			routeName = trip.Route.ShortName
		}
		for _, date := range ServiceDates(trip.Service) {
			midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
			for _, st := range trip.StopTimes {
				if st.Stop == nil || st.Stop.Latitude == nil || st.Stop.Longitude == nil {
					continue
				}
				out = append(out, gtfs.ScheduledStopEvent{
					Key: gtfs.Key{
						TripID:       trip.ID,
						StartDate:    date.Format("20060102"),
						StopSequence: st.StopSequence,
						StopID:       st.Stop.Id,
					},
					RouteID:       trip.Route.Id,
					StopName:      st.Stop.Name,
					RouteLongName: routeName,
					ArrivalTime:   midnight.Add(st.ArrivalTime),
					DepartureTime: midnight.Add(st.DepartureTime),
					Lat:           *st.Stop.Latitude,
					Lon:           *st.Stop.Longitude,
				})
			}
		}
	}
	return out
}

// ServiceDates expands one service to its concrete dates: the weekday
// pattern over [StartDate, EndDate], plus calendar_dates additions, minus
// removals.
func ServiceDates(svc *gogtfs.Service) []time.Time {
	removed := make(map[string]struct{}, len(svc.RemovedDates))
	for _, d := range svc.RemovedDates {
		removed[d.Format("20060102")] = struct{}{}
	}

	seen := make(map[string]struct{})
	var out []time.Time
	add := func(d time.Time) {
		key := d.Format("20060102")
		if _, drop := removed[key]; drop {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}

	if !svc.StartDate.IsZero() && !svc.EndDate.IsZero() {
		for d := svc.StartDate; !d.After(svc.EndDate); d = d.AddDate(0, 0, 1) {
			if weekdayActive(svc, d.Weekday()) {
				add(d)
			}
		}
	}
	for _, d := range svc.AddedDates {
		add(d)
	}
	return out
}

func weekdayActive(svc *gogtfs.Service, day time.Weekday) bool {
	switch day {
	case time.Monday:
		return svc.Monday
	case time.Tuesday:
		return svc.Tuesday
	case time.Wednesday:
		return svc.Wednesday
	case time.Thursday:
		return svc.Thursday
	case time.Friday:
		return svc.Friday
	case time.Saturday:
		return svc.Saturday
	default:
		return svc.Sunday
	}
}
