package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gtfs-punctuality/internal/gtfs"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Snapshot is one point-in-time weather classification.
type Snapshot struct {
	Group        gtfs.WeatherGroup
	Description  string
	TemperatureC float64
}

// Client looks up current conditions for a fixed location.
type Client struct {
	baseURL    string
	apiKey     string
	lat, lon   float64
	httpClient *http.Client
}

func NewClient(apiKey string, lat, lon float64) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		lat:        lat,
		lon:        lon,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type conditionsResponse struct {
	Weather []struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp *float64 `json:"temp"` // Kelvin
	} `json:"main"`
}

// Current performs one external lookup and classifies the result.
func (c *Client) Current(ctx context.Context) (*Snapshot, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(c.lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(c.lon, 'f', -1, 64))
	q.Set("appid", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build weather request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch weather: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch weather: HTTP %d", resp.StatusCode)
	}

	var body conditionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}
	if len(body.Weather) == 0 {
		return nil, fmt.Errorf("weather response has no condition entries")
	}
	if body.Main.Temp == nil {
		return nil, fmt.Errorf("weather response has no temperature")
	}

	return &Snapshot{
		Group:        Classify(body.Weather[0].ID),
		Description:  body.Weather[0].Description,
		TemperatureC: kelvinToCelsius(*body.Main.Temp),
	}, nil
}

// Classify maps an OpenWeatherMap condition code to its named group.
func Classify(code int) gtfs.WeatherGroup {
	switch {
	case code >= 200 && code <= 299:
		return gtfs.WeatherThunderstorm
	case code >= 300 && code <= 399:
		return gtfs.WeatherDrizzle
	case code >= 500 && code <= 599:
		return gtfs.WeatherRain
	case code >= 600 && code <= 699:
		return gtfs.WeatherSnow
	case code >= 700 && code <= 799:
		return gtfs.WeatherAtmosphere
	case code == 800:
		return gtfs.WeatherClear
	case code > 800 && code <= 899:
		return gtfs.WeatherClouds
	default:
		return gtfs.WeatherUnknown
	}
}

func kelvinToCelsius(k float64) float64 {
	return k - 273.15
}
