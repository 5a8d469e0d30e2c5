package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfs-punctuality/internal/feed"
	"gtfs-punctuality/internal/gtfs"
	"gtfs-punctuality/internal/weather"
)

func tp(t time.Time) *time.Time { return &t }

func TestBuildBatchDropsFutureOnlyUpdates(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-5 * time.Minute)
	future := now.Add(10 * time.Minute)

	updates := []feed.StopTimeUpdate{
		{TripID: "T1", StartDate: "20240101", StopSequence: 1, StopID: "A", Arrival: tp(past)},
		{TripID: "T1", StartDate: "20240101", StopSequence: 2, StopID: "B", Arrival: tp(future), Departure: tp(future)},
		{TripID: "T1", StartDate: "20240101", StopSequence: 3, StopID: "C", Arrival: tp(future), Departure: tp(past)},
		{TripID: "T1", StartDate: "20240101", StopSequence: 4, StopID: "D"}, // no legs at all
	}

	batch := buildBatch(updates, nil, now)
	require.Len(t, batch, 2)
	assert.Equal(t, "A", batch[0].StopID)
	assert.Equal(t, "C", batch[1].StopID)
}

func TestBuildBatchKeepsLegExactlyAtNow(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	batch := buildBatch([]feed.StopTimeUpdate{
		{TripID: "T1", StopSequence: 1, StopID: "A", Departure: tp(now)},
	}, nil, now)
	assert.Len(t, batch, 1)
}

func TestBuildBatchAppliesSharedWeather(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	snap := &weather.Snapshot{Group: gtfs.WeatherRain, Description: "light rain", TemperatureC: 4.2}

	batch := buildBatch([]feed.StopTimeUpdate{
		{TripID: "T1", StopSequence: 1, StopID: "A", Arrival: tp(past)},
		{TripID: "T2", StopSequence: 1, StopID: "B", Departure: tp(past)},
	}, snap, now)

	require.Len(t, batch, 2)
	for _, obs := range batch {
		require.NotNil(t, obs.Weather)
		assert.Equal(t, gtfs.WeatherRain, *obs.Weather)
		assert.Equal(t, "light rain", obs.WeatherDescription)
		require.NotNil(t, obs.TemperatureC)
		assert.InDelta(t, 4.2, *obs.TemperatureC, 1e-9)
		assert.True(t, obs.CreatedAt.Equal(now))
		assert.True(t, obs.UpdatedAt.Equal(now))
	}
}

func TestBuildBatchPreservesAbsence(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)

	batch := buildBatch([]feed.StopTimeUpdate{
		{TripID: "T1", StartDate: "20240101", StopSequence: 1, StopID: "A", Arrival: tp(past)},
	}, nil, now)

	require.Len(t, batch, 1)
	require.NotNil(t, batch[0].ArrivalTime)
	assert.Nil(t, batch[0].DepartureTime)
	assert.Nil(t, batch[0].Weather)
	assert.Nil(t, batch[0].TemperatureC)
}
