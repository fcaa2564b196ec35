package controllers

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/events"
	"github.com/amaumene/grabarr/internal/models"
)

// HistoryController persists lifecycle events and forwards them to the publisher
type HistoryController struct {
	db        *models.Database
	publisher events.Publisher
	logger    *logrus.Logger
}

// NewHistoryController creates a new history controller
func NewHistoryController(db *models.Database, publisher events.Publisher, logger *logrus.Logger) *HistoryController {
	return &HistoryController{
		db:        db,
		publisher: publisher,
		logger:    logger,
	}
}

// Record stores the event and publishes it. Publishing failures are logged
// only; the history row is the source of truth.
func (c *HistoryController) Record(ctx context.Context, event events.Event) error {
	if err := c.db.CreateHistory(event.History()); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}

	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
		}).Warn("Failed to publish event")
	}
	return nil
}

// record builds and records an event for a download, logging failures
func (c *HistoryController) record(ctx context.Context, eventType models.EventType, d *models.Download, message string) {
	event := events.NewEvent(eventType)
	event.MediaType = d.MediaType
	event.EntityID = d.EntityID
	event.DownloadID = d.ID
	event.SourceTitle = d.Title
	event.Quality = d.Quality
	event.Message = message

	if err := c.Record(ctx, event); err != nil {
		c.logger.WithError(err).WithField("download_id", d.ID).Error("Failed to record history")
	}
}

// recordEntity records an event about a library entity outside any download
func (c *HistoryController) recordEntity(ctx context.Context, eventType models.EventType, mt models.MediaType, entityID uint, title, message string) {
	event := events.NewEvent(eventType)
	event.MediaType = mt
	event.EntityID = entityID
	event.SourceTitle = title
	event.Message = message

	if err := c.Record(ctx, event); err != nil {
		c.logger.WithError(err).WithField("entity_id", entityID).Error("Failed to record history")
	}
}

// Recent returns the latest history records
func (c *HistoryController) Recent(limit int) ([]*models.History, error) {
	records, err := c.db.GetHistory(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return records, nil
}
