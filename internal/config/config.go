package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string

	FeedURL     string
	ScheduleURL string
	Location    *time.Location

	LockPath    string
	RunTimeout  time.Duration
	RunInterval time.Duration // 0 = single run

	WeatherAPIKey    string
	WeatherLat       float64
	WeatherLon       float64
	WeatherStatePath string
	WeatherCooldown  time.Duration

	MetricsAddr    string
	NATSURL        string
	NATSStreamName string

	// Remote mirror settings (cmd/mirror only).
	SSHAddr          string
	SSHUser          string
	SSHKeyPath       string
	RemoteDBName     string
	RemoteDBUser     string
	RemoteDBPassword string
	RealtimeTable    string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		if db == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	cfg.FeedURL = getenvDefault("FEED_URL", "https://sudbury.tmix.se/gtfs-realtime/tripupdates.pb")
	cfg.ScheduleURL = getenvDefault("SCHEDULE_URL", "https://sudbury.tmix.se/gtfs/gtfs.zip")

	cfg.LockPath = getenvDefault("LOCK_PATH", "/tmp/gtfs-punctuality.lock")

	// Run deadline (minutes)
	if v := os.Getenv("RUN_TIMEOUT_MIN"); v != "" {
		min, err := strconv.Atoi(v)
		if err != nil || min <= 0 {
			return nil, fmt.Errorf("invalid RUN_TIMEOUT_MIN: %q", v)
		}
		cfg.RunTimeout = time.Duration(min) * time.Minute
	} else {
		cfg.RunTimeout = 30 * time.Minute
	}

	// Poll interval (seconds); 0 or unset runs once and exits, for use
	// under an external scheduler.
	if v := os.Getenv("RUN_INTERVAL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec < 0 {
			return nil, fmt.Errorf("invalid RUN_INTERVAL_SEC: %q", v)
		}
		cfg.RunInterval = time.Duration(sec) * time.Second
	}

	cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	if v := os.Getenv("WEATHER_LAT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid WEATHER_LAT: %q", v)
		}
		cfg.WeatherLat = f
	} else {
		cfg.WeatherLat = 46.49 // Sudbury, ON
	}
	if v := os.Getenv("WEATHER_LON"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid WEATHER_LON: %q", v)
		}
		cfg.WeatherLon = f
	} else {
		cfg.WeatherLon = -80.99
	}
	cfg.WeatherStatePath = getenvDefault("WEATHER_STATE_PATH", "/tmp/gtfs-punctuality-weather.state")

	// Weather cooldown (seconds)
	if v := os.Getenv("WEATHER_COOLDOWN_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec < 0 {
			return nil, fmt.Errorf("invalid WEATHER_COOLDOWN_SEC: %q", v)
		}
		cfg.WeatherCooldown = time.Duration(sec) * time.Second
	} else {
		cfg.WeatherCooldown = 2 * time.Minute
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// NATS publishing is optional; empty URL disables it.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSStreamName = getenvDefault("NATS_STREAM_NAME", "PUNCTUALITY")

	// Time zone of the transit system's civil time
	tzName := getenvDefault("TZ", "America/Toronto")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TZ: %v", err)
	}
	cfg.Location = loc

	cfg.SSHAddr = os.Getenv("VPS_ADDR")
	cfg.SSHUser = os.Getenv("VPS_USERNAME")
	cfg.SSHKeyPath = os.Getenv("PRIVATE_KEY_PATH")
	cfg.RemoteDBName = os.Getenv("REMOTE_DB_NAME")
	cfg.RemoteDBUser = os.Getenv("REMOTE_DB_USERNAME")
	cfg.RemoteDBPassword = os.Getenv("REMOTE_DB_PASSWORD")
	cfg.RealtimeTable = getenvDefault("REALTIME_TABLE", "trip_updates")

	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
