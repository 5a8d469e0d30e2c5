package weather

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Cache rate-limits external weather lookups. The last-attempt instant is
// persisted to a small state file so the cooldown survives process
// restarts; the instant is written before the outbound call so a crashed
// or overlapping attempt cannot trigger an immediate retry.
type Cache struct {
	client    *Client
	statePath string
	cooldown  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewCache(client *Client, statePath string, cooldown time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		client:    client,
		statePath: statePath,
		cooldown:  cooldown,
		logger:    logger.With("component", "weather"),
		now:       time.Now,
	}
}

// MaybeRefresh returns a fresh snapshot, or nil when the cooldown has not
// elapsed or the lookup failed. Enrichment is best-effort: no error ever
// reaches the caller.
func (c *Cache) MaybeRefresh(ctx context.Context) *Snapshot {
	now := c.now()
	if last, ok := c.readLastAttempt(); ok && now.Sub(last) < c.cooldown {
		c.logger.Debug("weather cooldown active", "since_last", now.Sub(last))
		return nil
	}

	// Mark the attempt before calling out.
	if err := c.writeLastAttempt(now); err != nil {
		c.logger.Warn("failed to persist weather call instant", "error", err)
		return nil
	}

	snap, err := c.client.Current(ctx)
	if err != nil {
		c.logger.Warn("weather lookup failed, skipping enrichment", "error", err)
		return nil
	}
	c.logger.Info("weather refreshed", "group", snap.Group, "temperature_c", snap.TemperatureC)
	return snap
}

func (c *Cache) readLastAttempt() (time.Time, bool) {
	data, err := os.ReadFile(c.statePath)
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
	if err != nil {
		c.logger.Warn("unreadable weather state file, ignoring", "path", c.statePath, "error", err)
		return time.Time{}, false
	}
	return t, true
}

func (c *Cache) writeLastAttempt(t time.Time) error {
	return os.WriteFile(c.statePath, []byte(t.Format(time.RFC3339)+"\n"), 0o644)
}
