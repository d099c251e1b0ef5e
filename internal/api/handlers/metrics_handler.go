package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/askql/backend/internal/resolver"
)

type LearningHandler struct {
	resolver *resolver.Resolver
}

func NewLearningHandler(r *resolver.Resolver) *LearningHandler {
	return &LearningHandler{resolver: r}
}

// GetLearningMetrics serves the running accuracy counters: cache hit
// rate, AI success rate, heuristic hit rate and correction counts.
func (h *LearningHandler) GetLearningMetrics(c *fiber.Ctx) error {
	return c.JSON(h.resolver.Learning())
}
