package mirror

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfs-punctuality/internal/gtfs"
)

func TestParseRows(t *testing.T) {
	csvData := strings.Join([]string{
		`T1,20240601,3,S1,2024-06-01 12:30:00+00,2024-06-01 12:31:00+00,Rain,light rain,12.5,2024-06-01 12:32:00+00,2024-06-01 12:32:00+00`,
		`T2,20240601,1,S2,,2024-06-01 13:00:00+00,,,,2024-06-01 13:01:00+00,2024-06-01 13:02:00+00`,
	}, "\n")

	rows, err := ParseRows(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, gtfs.Key{TripID: "T1", StartDate: "20240601", StopSequence: 3, StopID: "S1"}, first.Key)
	require.NotNil(t, first.ArrivalTime)
	assert.True(t, first.ArrivalTime.Equal(time.Date(2024, time.June, 1, 12, 30, 0, 0, time.UTC)))
	require.NotNil(t, first.Weather)
	assert.Equal(t, gtfs.WeatherRain, *first.Weather)
	assert.Equal(t, "light rain", first.WeatherDescription)
	require.NotNil(t, first.TemperatureC)
	assert.Equal(t, 12.5, *first.TemperatureC)

	second := rows[1]
	assert.Nil(t, second.ArrivalTime)
	require.NotNil(t, second.DepartureTime)
	assert.Nil(t, second.Weather)
	assert.Nil(t, second.TemperatureC)
	assert.True(t, second.UpdatedAt.Equal(time.Date(2024, time.June, 1, 13, 2, 0, 0, time.UTC)))
}

func TestParseRowsEmptyInput(t *testing.T) {
	rows, err := ParseRows(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseRowsRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"wrong column count": `T1,20240601,3`,
		"bad stop_sequence":  `T1,20240601,x,S1,,,,,,2024-06-01 13:01:00+00,2024-06-01 13:02:00+00`,
		"bad timestamp":      `T1,20240601,3,S1,notatime,,,,,2024-06-01 13:01:00+00,2024-06-01 13:02:00+00`,
		"missing created_at": `T1,20240601,3,S1,,,,,,,2024-06-01 13:02:00+00`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRows(strings.NewReader(data))
			assert.Error(t, err)
		})
	}
}

func TestExportCommandQuotesPassword(t *testing.T) {
	m := New(Config{
		DBPassword: "p'ss",
		DBUser:     "app",
		DBName:     "transit",
		Table:      "trip_updates",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	cmd := m.exportCommand()
	assert.Contains(t, cmd, `PGPASSWORD='p'\''ss'`)
	assert.Contains(t, cmd, `FROM trip_updates`)
	assert.Contains(t, cmd, `TO STDOUT WITH CSV`)
}
