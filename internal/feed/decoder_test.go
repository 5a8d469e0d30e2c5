package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func buildFeed(t *testing.T, entities ...*gtfsrt.FeedEntity) []byte {
	t.Helper()
	fm := &gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
		},
		Entity: entities,
	}
	b, err := proto.Marshal(fm)
	require.NoError(t, err)
	return b
}

func tripEntity(id, tripID, startDate string, updates ...*gtfsrt.TripUpdate_StopTimeUpdate) *gtfsrt.FeedEntity {
	return &gtfsrt.FeedEntity{
		Id: proto.String(id),
		TripUpdate: &gtfsrt.TripUpdate{
			Trip: &gtfsrt.TripDescriptor{
				TripId:    proto.String(tripID),
				StartDate: proto.String(startDate),
			},
			StopTimeUpdate: updates,
		},
	}
}

func TestDecodePreservesAbsence(t *testing.T) {
	arrival := int64(1704096420) // 2024-01-01 08:07:00 UTC

	data := buildFeed(t, tripEntity("1", "T1", "20240101",
		&gtfsrt.TripUpdate_StopTimeUpdate{
			StopSequence: proto.Uint32(3),
			StopId:       proto.String("S1"),
			Arrival:      &gtfsrt.TripUpdate_StopTimeEvent{Time: proto.Int64(arrival)},
			// departure deliberately unset
		},
		&gtfsrt.TripUpdate_StopTimeUpdate{
			StopSequence: proto.Uint32(4),
			StopId:       proto.String("S2"),
			// arrival present but without a time field
			Arrival: &gtfsrt.TripUpdate_StopTimeEvent{Delay: proto.Int32(60)},
		},
	))

	updates, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, updates, 2)

	first := updates[0]
	assert.Equal(t, "T1", first.TripID)
	assert.Equal(t, "20240101", first.StartDate)
	assert.Equal(t, 3, first.StopSequence)
	assert.Equal(t, "S1", first.StopID)
	require.NotNil(t, first.Arrival)
	assert.True(t, first.Arrival.Equal(time.Unix(arrival, 0)))
	assert.Nil(t, first.Departure)

	// a StopTimeEvent without a time field decodes as absent
	assert.Nil(t, updates[1].Arrival)
	assert.Nil(t, updates[1].Departure)
}

func TestDecodeSkipsEntitiesWithoutTripUpdate(t *testing.T) {
	data := buildFeed(t,
		&gtfsrt.FeedEntity{Id: proto.String("vehicle-only")},
		tripEntity("2", "T2", "20240101", &gtfsrt.TripUpdate_StopTimeUpdate{
			StopSequence: proto.Uint32(1),
			StopId:       proto.String("S9"),
		}),
	)

	updates, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "T2", updates[0].TripID)
}

func TestDecodeEmptyFeed(t *testing.T) {
	updates, err := Decode(buildFeed(t))
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestDecodeMalformedBytes(t *testing.T) {
	_, err := Decode([]byte{0xff, 0xff, 0xff, 0x01, 0x02})
	assert.Error(t, err)
}

func TestClientUnavailableOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClientErrorOnOtherStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Fetch(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestClientReturnsBody(t *testing.T) {
	payload := buildFeed(t, tripEntity("1", "T1", "20240101"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	b, err := NewClient(srv.URL).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payload, b)
}
