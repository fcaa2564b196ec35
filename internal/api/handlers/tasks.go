package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/scheduler"
)

// TaskRunner lists and triggers scheduled tasks
type TaskRunner interface {
	Tasks() []scheduler.TaskState
	TriggerTask(name string) error
}

// TasksHandler exposes the scheduler
type TasksHandler struct {
	tasks  TaskRunner
	logger *logrus.Logger
}

// NewTasksHandler creates a new tasks handler
func NewTasksHandler(tasks TaskRunner, logger *logrus.Logger) *TasksHandler {
	return &TasksHandler{
		tasks:  tasks,
		logger: logger,
	}
}

// List returns the state of every task
func (h *TasksHandler) List(c *fiber.Ctx) error {
	return c.JSON(h.tasks.Tasks())
}

// Run starts a task in the background
func (h *TasksHandler) Run(c *fiber.Ctx) error {
	name := c.Params("name")

	err := h.tasks.TriggerTask(name)
	switch {
	case err == nil:
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"task": name, "status": "started"})
	case errors.Is(err, scheduler.ErrUnknownTask):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		h.logger.WithError(err).WithField("task", name).Error("Failed to trigger task")
		return fiber.NewError(fiber.StatusInternalServerError, "Internal server error")
	}
}
