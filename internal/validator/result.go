// Package validator runs the fixed battery of SEO checks against collected
// page data and performance metrics. Every check produces a ValidationResult
// with a normalized 0-100 score; malformed upstream values are coerced to 0
// instead of propagating.
package validator

import (
	"math"
	"strconv"
	"strings"
)

// Check statuses.
const (
	StatusPassed  = "passed"
	StatusWarning = "warning"
	StatusFailed  = "failed"
)

// ValidationResult is the outcome of one check.
type ValidationResult struct {
	ValidationType  string         `json:"validation_type"`
	Status          string         `json:"status"`
	Score           float64        `json:"score"`
	Message         string         `json:"message"`
	Details         map[string]any `json:"details,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

// NewValidationResult builds a result, coercing score defensively. This is
// the only place a raw upstream value becomes a number.
func NewValidationResult(validationType, status string, score any, message string) *ValidationResult {
	return &ValidationResult{
		ValidationType: validationType,
		Status:         status,
		Score:          coerceScore(score),
		Message:        message,
	}
}

// coerceScore narrows an arbitrary upstream value to a float in [0,100].
// Numbers are clamped; numeric strings are parsed; everything else (nil,
// maps, slices, NaN) becomes 0. Upstream APIs have shipped all of these
// shapes for score fields.
func coerceScore(v any) float64 {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f < 0 {
		return 0
	}
	if f > 100 {
		return 100
	}
	return f
}

// AggregateScore returns the mean score across results, or 0 when empty.
func AggregateScore(results []*ValidationResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Score
	}
	return sum / float64(len(results))
}
