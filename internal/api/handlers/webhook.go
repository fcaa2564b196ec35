package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/scheduler"
	"github.com/amaumene/grabarr/internal/services/torbox"
)

// WebhookHandler handles TorBox webhook callbacks
type WebhookHandler struct {
	tasks  TaskRunner
	logger *logrus.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(tasks TaskRunner, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		tasks:  tasks,
		logger: logger,
	}
}

// Handle handles the webhook endpoint. A notification about a finished
// download refreshes the queue, which picks up the new state from the client.
func (h *WebhookHandler) Handle(c *fiber.Ctx) error {
	var payload torbox.WebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		h.logger.WithError(err).Error("Failed to decode webhook payload")
		return fiber.NewError(fiber.StatusBadRequest, "Invalid payload")
	}

	fields := logrus.Fields{
		"type":  payload.Type,
		"title": payload.Data.Title,
	}
	if name, err := payload.ExtractDownloadName(); err == nil {
		fields["download_name"] = name
	} else if hash, err := payload.ExtractHash(); err == nil {
		fields["hash"] = hash
	}

	status, finished := payload.Status()
	if !finished {
		h.logger.WithFields(fields).Debug("Ignoring TorBox notification")
		return c.JSON(fiber.Map{"status": "ignored"})
	}
	fields["status"] = status
	h.logger.WithFields(fields).Info("Received TorBox webhook")

	if err := h.tasks.TriggerTask(scheduler.TaskRefreshQueue); err != nil && !errors.Is(err, scheduler.ErrAlreadyRunning) {
		h.logger.WithError(err).Error("Failed to trigger queue refresh")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to process webhook")
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
