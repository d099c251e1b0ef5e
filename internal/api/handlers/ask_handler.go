package handlers

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/askql/backend/internal/models"
	"github.com/askql/backend/internal/resolver"
	"github.com/askql/backend/internal/storage/sqlite"
	"github.com/askql/backend/pkg/logger"
)

type AskHandler struct {
	resolver *resolver.Resolver
	history  *sqlite.Client
}

func NewAskHandler(r *resolver.Resolver, history *sqlite.Client) *AskHandler {
	return &AskHandler{
		resolver: r,
		history:  history,
	}
}

func (h *AskHandler) HandleAsk(c *fiber.Ctx) error {
	var req struct {
		Question string `json:"question"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is required",
		})
	}
	if len(req.Question) > 2000 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is too long",
		})
	}

	result := h.resolver.Resolve(c.Context(), req.Question)
	if result.Failure != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(result)
	}
	return c.JSON(result)
}

func (h *AskHandler) GetHistory(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	records, err := h.history.GetHistory(c.Context(), limit)
	if err != nil {
		logger.Error("Failed to read history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read history",
		})
	}

	if records == nil {
		records = []models.QueryRecord{}
	}
	return c.JSON(fiber.Map{
		"history": records,
		"count":   len(records),
	})
}

func (h *AskHandler) ExportHistory(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "500"))

	records, err := h.history.GetHistory(c.Context(), limit)
	if err != nil {
		logger.Error("Failed to export history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to export history",
		})
	}

	var b strings.Builder
	w := csv.NewWriter(&b)
	w.Write([]string{"id", "question", "sql", "source", "category", "corrected", "succeeded", "row_count", "latency_ms", "created_at"})
	for _, record := range records {
		w.Write([]string{
			record.ID,
			record.Question,
			record.SQL,
			string(record.Source),
			string(record.Category),
			strconv.FormatBool(record.Corrected),
			strconv.FormatBool(record.Succeeded),
			strconv.Itoa(record.RowCount),
			strconv.Itoa(record.LatencyMS),
			record.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build CSV",
		})
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "query_history.csv"))
	return c.SendString(b.String())
}
