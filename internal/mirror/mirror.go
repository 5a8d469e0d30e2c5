// Package mirror pulls realtime observations collected on a remote host
// into the local store. The remote side runs psql over SSH: rows are
// exported with \COPY as CSV, inserted locally with conflicts ignored,
// and the remote table is truncated only after the local insert commits.
package mirror

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"gtfs-punctuality/internal/db"
	"gtfs-punctuality/internal/gtfs"
)

type Config struct {
	Addr       string // host:port
	User       string
	KeyPath    string
	DBName     string
	DBUser     string
	DBPassword string
	Table      string
}

type Mirror struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Mirror {
	return &Mirror{cfg: cfg, logger: logger.With("component", "mirror")}
}

// Pull copies the remote observation table into the local one and
// truncates the remote side. Any failure before the local insert commits
// leaves the remote table untouched.
func (m *Mirror) Pull(ctx context.Context, sqlDB *sql.DB) (int, error) {
	client, err := m.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = client.Close() }()

	raw, err := m.runRemote(client, m.exportCommand())
	if err != nil {
		return 0, fmt.Errorf("export remote rows: %w", err)
	}

	rows, err := ParseRows(bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		m.logger.Info("remote table empty, nothing to mirror")
		return 0, nil
	}

	inserted, err := db.InsertObservationsIgnoreConflicts(ctx, sqlDB, rows)
	if err != nil {
		return 0, err
	}
	m.logger.Info("rows mirrored", "exported", len(rows), "inserted", inserted)

	if _, err := m.runRemote(client, m.truncateCommand()); err != nil {
		return inserted, fmt.Errorf("truncate remote table: %w", err)
	}
	return inserted, nil
}

func (m *Mirror) dial(ctx context.Context) (*ssh.Client, error) {
	keyBytes, err := os.ReadFile(m.cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            m.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", m.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", m.cfg.Addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, m.cfg.Addr, sshCfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", m.cfg.Addr, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (m *Mirror) runRemote(client *ssh.Client, cmd string) ([]byte, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open ssh session: %w", err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if err := session.Run(cmd); err != nil {
		return nil, fmt.Errorf("remote command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (m *Mirror) exportCommand() string {
	return fmt.Sprintf(
		`PGPASSWORD=%s psql -U %s -d %s -c "\COPY (SELECT trip_id, start_date, stop_sequence, stop_id, arrival_time, departure_time, weather, weather_description, temperature_c, created_at, updated_at FROM %s) TO STDOUT WITH CSV"`,
		shellQuote(m.cfg.DBPassword), m.cfg.DBUser, m.cfg.DBName, m.cfg.Table)
}

func (m *Mirror) truncateCommand() string {
	return fmt.Sprintf(
		`PGPASSWORD=%s psql -U %s -d %s -c "TRUNCATE TABLE %s"`,
		shellQuote(m.cfg.DBPassword), m.cfg.DBUser, m.cfg.DBName, m.cfg.Table)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ParseRows decodes psql CSV output into observations. Empty fields map
// to absent values, matching how \COPY renders NULL columns.
func ParseRows(r io.Reader) ([]gtfs.Observation, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 11

	var out []gtfs.Observation
	for line := 1; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse exported CSV: %w", err)
		}

		seq, err := strconv.Atoi(rec[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: stop_sequence %q: %w", line, rec[2], err)
		}
		arrival, err := parseInstant(rec[4])
		if err != nil {
			return nil, fmt.Errorf("line %d: arrival_time: %w", line, err)
		}
		departure, err := parseInstant(rec[5])
		if err != nil {
			return nil, fmt.Errorf("line %d: departure_time: %w", line, err)
		}
		temp, err := parseFloat(rec[8])
		if err != nil {
			return nil, fmt.Errorf("line %d: temperature_c: %w", line, err)
		}
		createdAt, err := parseInstant(rec[9])
		if err != nil {
			return nil, fmt.Errorf("line %d: created_at: %w", line, err)
		}
		updatedAt, err := parseInstant(rec[10])
		if err != nil {
			return nil, fmt.Errorf("line %d: updated_at: %w", line, err)
		}
		if createdAt == nil || updatedAt == nil {
			return nil, fmt.Errorf("line %d: missing created_at or updated_at", line)
		}

		obs := gtfs.Observation{
			Key: gtfs.Key{
				TripID:       rec[0],
				StartDate:    rec[1],
				StopSequence: seq,
				StopID:       rec[3],
			},
			ArrivalTime:        arrival,
			DepartureTime:      departure,
			WeatherDescription: rec[7],
			TemperatureC:       temp,
			CreatedAt:          *createdAt,
			UpdatedAt:          *updatedAt,
		}
		if rec[6] != "" {
			g := gtfs.WeatherGroup(rec[6])
			obs.Weather = &g
		}
		out = append(out, obs)
	}
	return out, nil
}

// psql renders TIMESTAMPTZ with a space separator and a short zone
// offset, e.g. "2024-06-01 08:30:00+00".
var instantLayouts = []string{
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999-07:00",
	time.RFC3339Nano,
}

func parseInstant(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
