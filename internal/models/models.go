package models

import (
	"strings"
	"time"
)

// Source identifies the pipeline stage that produced the winning candidate.
type Source string

const (
	SourceAI        Source = "ai"
	SourceHeuristic Source = "heuristic"
	SourceCache     Source = "cache"
)

// Category is a coarse classification of question intent, derived purely
// from the question text.
type Category string

const (
	CategoryAnalytics   Category = "analytics"
	CategoryReporting   Category = "reporting"
	CategoryExploration Category = "exploration"
	CategoryRevenue     Category = "revenue"
	CategoryCustomer    Category = "customer"
	CategoryProduct     Category = "product"
	CategoryTimeSeries  Category = "time_series"
	CategoryOther       Category = "other"
)

// Categories lists every category in stable priority order. Ties during
// scoring resolve to the earliest entry.
var Categories = []Category{
	CategoryAnalytics,
	CategoryReporting,
	CategoryExploration,
	CategoryRevenue,
	CategoryCustomer,
	CategoryProduct,
	CategoryTimeSeries,
}

type ChartKind string

const (
	ChartBar  ChartKind = "bar"
	ChartLine ChartKind = "line"
)

// FailureKind classifies why a candidate could not be resolved. The
// corrector branches on it, so the set is closed.
type FailureKind string

const (
	FailureGeneration          FailureKind = "ai_generation_error"
	FailureSyntax              FailureKind = "sql_syntax_error"
	FailureUnknownIdentifier   FailureKind = "sql_unknown_identifier"
	FailureDisallowedStatement FailureKind = "sql_disallowed_statement"
	FailureExecution           FailureKind = "sql_execution_error"
	FailureTimeout             FailureKind = "sql_timeout"
	FailureHeuristicExhausted  FailureKind = "heuristic_exhausted"
)

// Failure is a structured execution or generation failure. It implements
// error so it can travel through normal error returns.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	SQL     string      `json:"sql,omitempty"`
}

func (f *Failure) Error() string {
	return string(f.Kind) + ": " + f.Message
}

// Candidate is a generated SQL statement plus metadata about how it was
// produced. Candidates are never mutated; a correction produces a new one
// with Attempt incremented.
type Candidate struct {
	SQL       string
	Source    Source
	Attempt   int
	Corrected bool
}

// WithSQL returns a new candidate carrying repaired SQL, preserving the
// source and bumping the attempt counter.
func (c Candidate) WithSQL(sql string) Candidate {
	return Candidate{
		SQL:       sql,
		Source:    c.Source,
		Attempt:   c.Attempt + 1,
		Corrected: true,
	}
}

// Row is one result row keyed by column name.
type Row map[string]interface{}

// ChartSpec describes how to visualize a row set.
type ChartSpec struct {
	Kind  ChartKind `json:"kind"`
	XAxis string    `json:"x_axis"`
	YAxis string    `json:"y_axis"`
}

// SchemaContext is the retrieval context handed to the AI generator. A
// zero-value context is valid and means the similarity index was
// unavailable.
type SchemaContext struct {
	SchemaFragments []SchemaFragment
	SimilarExamples []QueryExample
}

func (c *SchemaContext) Empty() bool {
	return c == nil || (len(c.SchemaFragments) == 0 && len(c.SimilarExamples) == 0)
}

type SchemaFragment struct {
	Table       string
	Description string
	Columns     []string
	Score       float32
}

type QueryExample struct {
	Question string
	SQL      string
	Score    float32
}

// Result is the resolved answer surfaced to the orchestrating layer.
type Result struct {
	ID                 string     `json:"id"`
	Question           string     `json:"question"`
	SQL                string     `json:"sql"`
	Source             Source     `json:"source"`
	Corrected          bool       `json:"corrected"`
	Rows               []Row      `json:"rows"`
	Category           Category   `json:"category"`
	CategoryConfidence float64    `json:"category_confidence"`
	Chart              *ChartSpec `json:"chart,omitempty"`
	Succeeded          bool       `json:"succeeded"`
	Failure            *Failure   `json:"error,omitempty"`
	Suggestions        []string   `json:"suggestions,omitempty"`
	RelatedQuestions   []string   `json:"related_questions,omitempty"`
	LatencyMS          int        `json:"latency_ms"`
}

// ErrorLogEntry is one append-only record of a generation or execution
// failure.
type ErrorLogEntry struct {
	Timestamp time.Time   `json:"timestamp"`
	Kind      FailureKind `json:"kind"`
	Question  string      `json:"question"`
	SQL       string      `json:"sql"`
	Message   string      `json:"message"`
	Source    Source      `json:"source"`
	Attempt   int         `json:"attempt"`
}

// QueryRecord is the durable history row for one resolved request.
type QueryRecord struct {
	ID        string
	Question  string
	SQL       string
	Source    Source
	Category  Category
	Corrected bool
	Succeeded bool
	RowCount  int
	LatencyMS int
	CreatedAt time.Time
}

// NormalizeQuestion derives the cache/metrics key for a question.
func NormalizeQuestion(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}
