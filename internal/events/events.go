// Package events publishes pipeline lifecycle events to the configured backend.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/models"
)

// Event is a lifecycle notification fired by the pipeline
type Event struct {
	ID          string           `json:"id"`
	Type        models.EventType `json:"event_type"`
	MediaType   models.MediaType `json:"media_type,omitempty"`
	EntityID    uint             `json:"entity_id,omitempty"`
	DownloadID  uint             `json:"download_id,omitempty"`
	SourceTitle string           `json:"source_title,omitempty"`
	Quality     string           `json:"quality,omitempty"`
	Message     string           `json:"message,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// NewEvent creates an event with a fresh id and timestamp
func NewEvent(eventType models.EventType) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
	}
}

// History converts the event to its persisted form
func (e Event) History() *models.History {
	return &models.History{
		EventID:     e.ID,
		EventType:   e.Type,
		MediaType:   e.MediaType,
		EntityID:    e.EntityID,
		DownloadID:  e.DownloadID,
		SourceTitle: e.SourceTitle,
		Quality:     e.Quality,
		Message:     e.Message,
		CreatedAt:   e.OccurredAt,
	}
}

// Publisher delivers events to a backend
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NewPublisher creates the publisher selected by the events configuration
func NewPublisher(cfg config.EventsConfig, logger *logrus.Logger) (Publisher, error) {
	switch cfg.Backend {
	case "", config.EventsLog:
		return NewLogPublisher(logger), nil
	case config.EventsNATS:
		return NewNATSPublisher(cfg.NATSURL, cfg.SubjectPrefix, logger)
	case config.EventsKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	default:
		return nil, fmt.Errorf("unsupported events backend %q", cfg.Backend)
	}
}
