package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/askql/backend/internal/models"
)

func TestLearningSummaryEmpty(t *testing.T) {
	s := NewLearningStore()

	summary := s.Summary()
	assert.Zero(t, summary.TotalResolved)
	assert.Empty(t, summary.BySource)
	assert.Empty(t, summary.ByCategory)
}

func TestLearningSourceTotalsSumToResolved(t *testing.T) {
	s := NewLearningStore()

	s.Record(models.CategoryRevenue, models.SourceAI, true)
	s.Record(models.CategoryRevenue, models.SourceAI, false)
	s.Record(models.CategoryCustomer, models.SourceHeuristic, true)
	s.Record(models.CategoryRevenue, models.SourceCache, true)

	summary := s.Summary()
	assert.Equal(t, 4, summary.TotalResolved)

	sum := 0
	for _, stats := range summary.BySource {
		sum += stats.Total
	}
	assert.Equal(t, summary.TotalResolved, sum)
}

func TestLearningAccuracy(t *testing.T) {
	s := NewLearningStore()

	s.Record(models.CategoryProduct, models.SourceAI, true)
	s.Record(models.CategoryProduct, models.SourceAI, false)

	summary := s.Summary()
	assert.Equal(t, 0.5, summary.BySource[models.SourceAI].Accuracy)
	assert.Equal(t, 0.5, summary.ByCategory[models.CategoryProduct].Accuracy)

	// Unseen sources report zero, not a division error.
	assert.Zero(t, summary.BySource[models.SourceHeuristic].Accuracy)
}
