package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/models"
)

// StatusHandler handles status requests
type StatusHandler struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:     db,
		logger: logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	TotalDownloads int64            `json:"total_downloads"`
	Queued         int64            `json:"queued"`
	Downloading    int64            `json:"downloading"`
	Paused         int64            `json:"paused"`
	Completed      int64            `json:"completed"`
	Importing      int64            `json:"importing"`
	Failed         int64            `json:"failed"`
	ByStatus       map[string]int64 `json:"by_status"`
}

// Handle handles the status endpoint
func (h *StatusHandler) Handle(c *fiber.Ctx) error {
	counts, err := h.db.CountDownloadsByStatus()
	if err != nil {
		h.logger.WithError(err).Error("Failed to count downloads")
		return fiber.NewError(fiber.StatusInternalServerError, "Internal server error")
	}

	response := StatusResponse{ByStatus: make(map[string]int64, len(counts))}
	for status, n := range counts {
		response.TotalDownloads += n
		response.ByStatus[string(status)] = n

		switch status {
		case models.DownloadStatusQueued:
			response.Queued = n
		case models.DownloadStatusDownloading:
			response.Downloading = n
		case models.DownloadStatusPaused:
			response.Paused = n
		case models.DownloadStatusCompleted:
			response.Completed = n
		case models.DownloadStatusImporting:
			response.Importing = n
		case models.DownloadStatusFailed:
			response.Failed = n
		}
	}

	return c.JSON(response)
}
