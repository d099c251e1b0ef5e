package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/askql/backend/internal/errorlog"
)

type ErrorsHandler struct {
	log *errorlog.Log
}

func NewErrorsHandler(log *errorlog.Log) *ErrorsHandler {
	return &ErrorsHandler{log: log}
}

func (h *ErrorsHandler) GetRecentErrors(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	entries := h.log.Recent(limit)
	return c.JSON(fiber.Map{
		"errors": entries,
		"count":  len(entries),
	})
}

func (h *ErrorsHandler) GetErrorSummary(c *fiber.Ctx) error {
	return c.JSON(h.log.Summary())
}
