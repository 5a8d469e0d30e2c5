package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"gtfs-punctuality/internal/gtfs"
)

// NATSPublisher broadcasts the route-stat snapshot after each successful
// stats pass. Publishing is optional and best-effort; ingestion never
// depends on it.
type NATSPublisher struct {
	nc      *nats.Conn
	stream  string
	metrics PublisherMetrics
	logger  *slog.Logger
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, stream string, m PublisherMetrics, logger *slog.Logger) (*NATSPublisher, error) {
	logger = logger.With("component", "publisher")
	nc, err := nats.Connect(url,
		nats.Name("gtfs-punctuality"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, stream: stream, metrics: m, logger: logger}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

type RouteStatMessage struct {
	RouteLongName     string    `json:"routeLongName"`
	AverageDelay      float64   `json:"averageDelayMin"`
	StandardDeviation float64   `json:"standardDeviationMin"`
	MostDelayed       float64   `json:"mostDelayedMin"`
	MostEarly         float64   `json:"mostEarlyMin"`
	ComputedAt        time.Time `json:"computedAt"`
}

// PublishRouteStat publishes one route's stats on <stream>.stats.<route>.
func (p *NATSPublisher) PublishRouteStat(s gtfs.RouteStat, computedAt time.Time) error {
	subject := fmt.Sprintf("%s.stats.%s", p.stream, subjectToken(s.RouteLongName))
	b, err := json.Marshal(RouteStatMessage{
		RouteLongName:     s.RouteLongName,
		AverageDelay:      s.AverageDelay,
		StandardDeviation: s.StandardDeviation,
		MostDelayed:       s.MostDelayed,
		MostEarly:         s.MostEarly,
		ComputedAt:        computedAt,
	})
	if err != nil {
		return err
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
