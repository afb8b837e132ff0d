package domain

import (
	"time"

	"github.com/google/uuid"
)

// Method identifies the computation behind an Insight.
type Method string

const (
	MethodLinearTrend        Method = "linear_trend"
	MethodPearsonCorrelation Method = "pearson_correlation"
	MethodSummary            Method = "summary_statistics"
	MethodCorrelationMatrix  Method = "correlation_matrix"
)

// Insight is a reproducible analytics result. Everything except ID and
// ComputedAt is a pure function of the input observations: identical inputs
// yield identical descriptions, assumptions, limitations, and results.
type Insight struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Method      Method    `json:"method"`
	Inputs      []string  `json:"inputs"`      // indicator codes consumed
	Assumptions []string  `json:"assumptions"` // machine-readable, e.g. alignment sets
	Limitations []string  `json:"limitations"` // e.g. capital-city proxy notes
	Result      any       `json:"result"`
	ComputedAt  time.Time `json:"computed_at"`
}
