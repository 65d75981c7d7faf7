package publish

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"frycast/internal/models"
)

// DefaultSubject is where analytics points are published
const DefaultSubject = "frycast.analytics"

type conn interface {
	Publish(subj string, data []byte) error
	Drain() error
	Close()
}

// Message is the NATS payload for one stored sampling tick
type Message struct {
	Point           models.MetricPoint          `json:"point"`
	Recommendations []models.ItemRecommendation `json:"recommendations"`
}

// NATSPublisher fans stored analytics points out to a NATS subject. A publisher created
// without a URL is a no-op.
type NATSPublisher struct {
	conn    conn
	subject string
	logger  zerolog.Logger
}

// NewNATSPublisher connects to url. An empty url returns a disabled publisher.
func NewNATSPublisher(url, subject string, logger zerolog.Logger) (*NATSPublisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	p := &NATSPublisher{
		subject: subject,
		logger:  logger.With().Str("component", "nats").Logger(),
	}
	if url == "" {
		return p, nil
	}

	nc, err := nats.Connect(url,
		nats.Name("frycast"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				p.logger.Warn().Err(err).Msg("disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			p.logger.Info().Str("url", c.ConnectedUrl()).Msg("reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	p.conn = nc
	p.logger.Info().Str("subject", subject).Msg("publishing analytics to NATS")
	return p, nil
}

// Enabled reports whether the publisher is connected
func (p *NATSPublisher) Enabled() bool {
	return p.conn != nil
}

// Subject returns the subject points are published on
func (p *NATSPublisher) Subject() string {
	return p.subject
}

// Publish sends point and the per-item recommendations to the subject
func (p *NATSPublisher) Publish(point models.MetricPoint, _ models.Snapshot, rec models.Recommendation) error {
	if p.conn == nil {
		return nil
	}
	data, err := Encode(point, rec)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish point %d: %w", point.ID, err)
	}
	return nil
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}

// Encode builds the JSON payload for point
func Encode(point models.MetricPoint, rec models.Recommendation) ([]byte, error) {
	items := rec.Recommendations
	if items == nil {
		items = []models.ItemRecommendation{}
	}
	data, err := json.Marshal(Message{Point: point, Recommendations: items})
	if err != nil {
		return nil, fmt.Errorf("failed to encode point %d: %w", point.ID, err)
	}
	return data, nil
}
