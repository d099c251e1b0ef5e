package resolver

import (
	"sync"

	"github.com/askql/backend/internal/models"
)

// LearningStore accumulates per-source and per-category accuracy counters
// for the lifetime of the process. Each resolved request is recorded
// exactly once, with its winning source, after the outcome is final; the
// source totals therefore sum to the number of resolved requests.
type LearningStore struct {
	mu sync.Mutex

	sourceTotals      map[models.Source]int
	successBySource   map[models.Source]int
	categoryTotals    map[models.Category]int
	successByCategory map[models.Category]int
	corrections       int
}

func NewLearningStore() *LearningStore {
	return &LearningStore{
		sourceTotals:      make(map[models.Source]int),
		successBySource:   make(map[models.Source]int),
		categoryTotals:    make(map[models.Category]int),
		successByCategory: make(map[models.Category]int),
	}
}

// Record counts one finished resolution. Succeeded means the final outcome
// carried a non-empty row set and no failure.
func (s *LearningStore) Record(category models.Category, source models.Source, succeeded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sourceTotals[source]++
	s.categoryTotals[category]++
	if succeeded {
		s.successBySource[source]++
		s.successByCategory[category]++
	}
}

func (s *LearningStore) RecordCorrection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrections++
}

// AccuracyStats is one counter pair with its derived fraction. Accuracy is
// 0 when Total is 0.
type AccuracyStats struct {
	Total      int     `json:"total"`
	Successful int     `json:"successful"`
	Accuracy   float64 `json:"accuracy"`
}

type LearningSummary struct {
	TotalResolved int                               `json:"total_resolved"`
	BySource      map[models.Source]AccuracyStats   `json:"by_source"`
	ByCategory    map[models.Category]AccuracyStats `json:"by_category"`
	Corrections   int                               `json:"corrections"`
}

func (s *LearningStore) Summary() LearningSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := LearningSummary{
		BySource:    make(map[models.Source]AccuracyStats, len(s.sourceTotals)),
		ByCategory:  make(map[models.Category]AccuracyStats, len(s.categoryTotals)),
		Corrections: s.corrections,
	}

	for source, total := range s.sourceTotals {
		summary.TotalResolved += total
		summary.BySource[source] = stats(total, s.successBySource[source])
	}
	for category, total := range s.categoryTotals {
		summary.ByCategory[category] = stats(total, s.successByCategory[category])
	}
	return summary
}

func stats(total, successful int) AccuracyStats {
	s := AccuracyStats{Total: total, Successful: successful}
	if total > 0 {
		s.Accuracy = float64(successful) / float64(total)
	}
	return s
}
