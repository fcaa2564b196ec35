package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// natsConn is the subset of *nats.Conn the publisher needs
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events on core NATS subjects
type NATSPublisher struct {
	conn   natsConn
	prefix string
	logger *logrus.Logger
}

// NewNATSPublisher connects to NATS and creates a publisher
func NewNATSPublisher(url, prefix string, logger *logrus.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("grabarr"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("Disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("Reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSPublisher(conn, prefix, logger), nil
}

func newNATSPublisher(conn natsConn, prefix string, logger *logrus.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the subject an event is published on
func (p *NATSPublisher) Subject(event Event) string {
	if p.prefix == "" {
		return string(event.Type)
	}
	return p.prefix + "." + string(event.Type)
}

// Publish sends the JSON encoded event
func (p *NATSPublisher) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := p.Subject(event)
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"event_id": event.ID,
			"subject":  subject,
		}).Error("Failed to publish event")
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"subject":    subject,
	}).Debug("Event published to NATS")
	return nil
}

// Close drains the connection
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
