package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-tracker/internal/observability"
)

// StatusHandler serves the service banner and counter snapshots.
type StatusHandler struct {
	serviceName string
	metrics     *observability.Metrics
}

// NewStatusHandler returns a new handler instance.
func NewStatusHandler(serviceName string, metrics *observability.Metrics) *StatusHandler {
	return &StatusHandler{serviceName: serviceName, metrics: metrics}
}

// Root reports that the tracker is running.
func (h *StatusHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": h.serviceName + " is running",
	})
}

// Metrics dumps the in-memory counters.
func (h *StatusHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(h.metrics.Snapshot())
}
