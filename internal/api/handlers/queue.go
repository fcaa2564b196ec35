package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/models"
)

// QueueLister returns the unfinished downloads
type QueueLister interface {
	Queue() ([]*models.Download, error)
}

// QueueHandler handles queue requests
type QueueHandler struct {
	queue  QueueLister
	logger *logrus.Logger
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(queue QueueLister, logger *logrus.Logger) *QueueHandler {
	return &QueueHandler{
		queue:  queue,
		logger: logger,
	}
}

// QueueItem is one download in the queue response
type QueueItem struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	Indexer   string    `json:"indexer"`
	Quality   string    `json:"quality"`
	MediaType string    `json:"media_type"`
	EntityID  uint      `json:"entity_id"`
	Upgrade   bool      `json:"upgrade"`
	Client    string    `json:"client"`
	Status    string    `json:"status"`
	Progress  float64   `json:"progress"`
	Size      int64     `json:"size"`
	Error     string    `json:"error,omitempty"`
	AddedAt   time.Time `json:"added_at"`
}

// Handle handles the queue endpoint
func (h *QueueHandler) Handle(c *fiber.Ctx) error {
	downloads, err := h.queue.Queue()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get queue")
		return fiber.NewError(fiber.StatusInternalServerError, "Internal server error")
	}

	items := make([]QueueItem, 0, len(downloads))
	for _, d := range downloads {
		items = append(items, QueueItem{
			ID:        d.ID,
			Title:     d.Title,
			Indexer:   d.Indexer,
			Quality:   d.Quality,
			MediaType: string(d.MediaType),
			EntityID:  d.EntityID,
			Upgrade:   d.IsUpgrade,
			Client:    d.Client,
			Status:    string(d.Status),
			Progress:  d.Progress,
			Size:      d.Size,
			Error:     d.Error,
			AddedAt:   d.CreatedAt,
		})
	}
	return c.JSON(items)
}
