package weather

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfs-punctuality/internal/gtfs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(t *testing.T, handler http.HandlerFunc, cooldown time.Duration) (*Cache, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient("test-key", 46.49, -80.99)
	client.baseURL = srv.URL

	statePath := filepath.Join(t.TempDir(), "weather.state")
	return NewCache(client, statePath, cooldown, testLogger()), srv
}

func conditionsJSON(code int, desc string, kelvin float64) string {
	return fmt.Sprintf(`{"weather":[{"id":%d,"description":%q}],"main":{"temp":%g}}`, code, desc, kelvin)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		code int
		want gtfs.WeatherGroup
	}{
		{200, gtfs.WeatherThunderstorm},
		{299, gtfs.WeatherThunderstorm},
		{301, gtfs.WeatherDrizzle},
		{500, gtfs.WeatherRain},
		{615, gtfs.WeatherSnow},
		{741, gtfs.WeatherAtmosphere},
		{800, gtfs.WeatherClear},
		{801, gtfs.WeatherClouds},
		{899, gtfs.WeatherClouds},
		{100, gtfs.WeatherUnknown},
		{400, gtfs.WeatherUnknown},
		{900, gtfs.WeatherUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.code), "code %d", tt.code)
	}
}

func TestMaybeRefreshReturnsClassifiedSnapshot(t *testing.T) {
	cache, _ := newTestCache(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, conditionsJSON(601, "snow", 263.15))
	}, 2*time.Minute)

	snap := cache.MaybeRefresh(context.Background())
	require.NotNil(t, snap)
	assert.Equal(t, gtfs.WeatherSnow, snap.Group)
	assert.Equal(t, "snow", snap.Description)
	assert.InDelta(t, -10.0, snap.TemperatureC, 1e-9)
}

func TestMaybeRefreshCooldownSingleCall(t *testing.T) {
	calls := 0
	cache, _ := newTestCache(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		fmt.Fprint(w, conditionsJSON(800, "clear sky", 293.15))
	}, 2*time.Minute)

	require.NotNil(t, cache.MaybeRefresh(context.Background()))
	assert.Nil(t, cache.MaybeRefresh(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestCooldownSurvivesRestart(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		fmt.Fprint(w, conditionsJSON(800, "clear sky", 293.15))
	}))
	defer srv.Close()

	client := NewClient("test-key", 46.49, -80.99)
	client.baseURL = srv.URL
	statePath := filepath.Join(t.TempDir(), "weather.state")

	first := NewCache(client, statePath, 2*time.Minute, testLogger())
	require.NotNil(t, first.MaybeRefresh(context.Background()))

	// A new Cache over the same state file sees the previous attempt.
	second := NewCache(client, statePath, 2*time.Minute, testLogger())
	assert.Nil(t, second.MaybeRefresh(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestMaybeRefreshAfterCooldownElapsed(t *testing.T) {
	calls := 0
	cache, _ := newTestCache(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		fmt.Fprint(w, conditionsJSON(800, "clear sky", 293.15))
	}, 2*time.Minute)

	base := time.Now()
	cache.now = func() time.Time { return base }
	require.NotNil(t, cache.MaybeRefresh(context.Background()))

	cache.now = func() time.Time { return base.Add(3 * time.Minute) }
	require.NotNil(t, cache.MaybeRefresh(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestFailuresDegradeToNil(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"garbage body", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "not json")
		}},
		{"missing conditions", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"weather":[],"main":{"temp":280}}`)
		}},
		{"missing temperature", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"weather":[{"id":800,"description":"clear"}],"main":{}}`)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, _ := newTestCache(t, tt.handler, 0)
			assert.Nil(t, cache.MaybeRefresh(context.Background()))
		})
	}
}

func TestFailedAttemptStillStartsCooldown(t *testing.T) {
	calls := 0
	cache, _ := newTestCache(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}, 2*time.Minute)

	assert.Nil(t, cache.MaybeRefresh(context.Background()))
	assert.Nil(t, cache.MaybeRefresh(context.Background()))
	assert.Equal(t, 1, calls)
}
