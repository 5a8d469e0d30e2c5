package feed

import (
	"fmt"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// StopTimeUpdate is one decoded (entity, stop_time_update) pair. A nil
// Arrival or Departure means the field was unset in the feed, which is
// not the same thing as an update carrying some concrete instant.
type StopTimeUpdate struct {
	TripID       string
	StartDate    string // YYYYMMDD, may be empty
	StopSequence int
	StopID       string
	Arrival      *time.Time
	Departure    *time.Time
}

// Decode parses a GTFS-realtime FeedMessage and flattens its trip updates
// into one record per stop time update. Missing optional sub-fields never
// fail the decode; only malformed bytes do.
func Decode(data []byte) ([]StopTimeUpdate, error) {
	var fm gtfsrt.FeedMessage
	if err := proto.Unmarshal(data, &fm); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	var out []StopTimeUpdate
	for _, entity := range fm.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}
		tripID := tu.GetTrip().GetTripId()
		startDate := tu.GetTrip().GetStartDate()
		for _, stu := range tu.GetStopTimeUpdate() {
			out = append(out, StopTimeUpdate{
				TripID:       tripID,
				StartDate:    startDate,
				StopSequence: int(stu.GetStopSequence()),
				StopID:       stu.GetStopId(),
				Arrival:      eventTime(stu.GetArrival()),
				Departure:    eventTime(stu.GetDeparture()),
			})
		}
	}
	return out, nil
}

// eventTime converts a StopTimeEvent to an absolute instant, or nil when
// the event or its time field is absent.
func eventTime(ev *gtfsrt.TripUpdate_StopTimeEvent) *time.Time {
	if ev == nil || ev.Time == nil {
		return nil
	}
	t := time.Unix(ev.GetTime(), 0).UTC()
	return &t
}
