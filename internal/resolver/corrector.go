package resolver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/askql/backend/internal/corrections"
	"github.com/askql/backend/internal/models"
	"github.com/askql/backend/pkg/logger"
)

// correctionState tracks where a candidate is in its execute/repair cycle.
type correctionState int

const (
	statePending correctionState = iota
	stateExecuting
	stateCorrected
	stateExhausted
)

func (s correctionState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateExecuting:
		return "executing"
	case stateCorrected:
		return "corrected"
	case stateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Corrector runs a candidate against the executor and, on classified
// failures, applies textual repairs and retries, at most maxAttempts
// times. Failure kinds with no registered repair exhaust immediately.
type Corrector struct {
	maxAttempts int
	errlog      ErrorSink
	onCorrected func()
}

func NewCorrector(maxAttempts int, errlog ErrorSink, onCorrected func()) *Corrector {
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	return &Corrector{maxAttempts: maxAttempts, errlog: errlog, onCorrected: onCorrected}
}

// Run returns the rows and the candidate that produced them on success, or
// the last failure once the candidate is exhausted. Every failed execution
// is recorded in the error log before any repair is attempted.
func (c *Corrector) Run(ctx context.Context, question string, candidate models.Candidate, exec Executor) ([]models.Row, models.Candidate, *models.Failure) {
	state := statePending
	var lastFailure *models.Failure

	for state != stateExhausted {
		state = stateExecuting

		rows, failure := exec.Execute(ctx, candidate.SQL)
		if failure == nil {
			return rows, candidate, nil
		}

		lastFailure = failure
		c.record(question, candidate, failure)

		if candidate.Attempt >= c.maxAttempts {
			state = stateExhausted
			break
		}

		repaired, fixes, changed := corrections.Repair(candidate.SQL, failure)
		if !changed {
			state = stateExhausted
			break
		}

		logger.Info("Applying SQL correction",
			zap.String("question", question),
			zap.String("kind", string(failure.Kind)),
			zap.Strings("fixes", fixes),
			zap.Int("attempt", candidate.Attempt+1),
		)

		candidate = candidate.WithSQL(repaired)
		state = stateCorrected
		if c.onCorrected != nil {
			c.onCorrected()
		}
	}

	logger.Warn("Candidate exhausted",
		zap.String("question", question),
		zap.String("source", string(candidate.Source)),
		zap.Int("attempts", candidate.Attempt),
		zap.String("kind", string(lastFailure.Kind)),
	)

	return nil, candidate, lastFailure
}

func (c *Corrector) record(question string, candidate models.Candidate, failure *models.Failure) {
	if c.errlog == nil {
		return
	}
	c.errlog.Append(models.ErrorLogEntry{
		Timestamp: time.Now().UTC(),
		Kind:      failure.Kind,
		Question:  question,
		SQL:       candidate.SQL,
		Message:   failure.Message,
		Source:    candidate.Source,
		Attempt:   candidate.Attempt,
	})
}
