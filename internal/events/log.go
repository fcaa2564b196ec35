package events

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogPublisher writes events to the application log
type LogPublisher struct {
	logger *logrus.Logger
}

// NewLogPublisher creates a new log publisher
func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event
func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.WithFields(logrus.Fields{
		"event_id":    event.ID,
		"event_type":  event.Type,
		"media_type":  event.MediaType,
		"entity_id":   event.EntityID,
		"download_id": event.DownloadID,
		"title":       event.SourceTitle,
		"quality":     event.Quality,
	}).Info("Event: " + event.Message)
	return nil
}

// Close is a no-op
func (p *LogPublisher) Close() error { return nil }
