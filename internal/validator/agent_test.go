package validator

import (
	"math"
	"strings"
	"testing"

	"github.com/auditlab/auditoria/internal/collector"
	"github.com/auditlab/auditoria/internal/testutil"
)

// ─── Score coercion ───

func TestCoerceScore_DefensiveShapes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   any
		want float64
	}{
		{"float", 87.5, 87.5},
		{"int", 42, 42},
		{"numeric string", "73", 73},
		{"padded numeric string", "  60.5 ", 60.5},
		{"nil", nil, 0},
		{"nested object", map[string]any{"score": 80}, 0},
		{"slice", []any{1, 2}, 0},
		{"non-numeric string", "alto", 0},
		{"nan", math.NaN(), 0},
		{"inf", math.Inf(1), 0},
		{"negative clamps", -12.0, 0},
		{"above range clamps", 180.0, 100},
		{"bool", true, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := coerceScore(tc.in); got != tc.want {
				t.Errorf("coerceScore(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestNewValidationResult_ScoreAlwaysInRange(t *testing.T) {
	t.Parallel()
	shapes := []any{nil, map[string]any{"a": 1}, "not a number", math.NaN(), -5, 250.0, 88.0}
	for _, s := range shapes {
		r := NewValidationResult("performance_mobile", StatusPassed, s, "msg")
		if r.Score < 0 || r.Score > 100 {
			t.Errorf("score out of range for input %v: %v", s, r.Score)
		}
	}
}

// ─── Check battery ───

func healthyDoc() *collector.PageDocument {
	return &collector.PageDocument{
		URL:             "https://example.com",
		FinalURL:        "https://example.com",
		StatusCode:      200,
		HTTPS:           true,
		Title:           "Loja Exemplo — Tênis de corrida e casual",
		MetaDescription: strings.Repeat("Tênis de corrida com frete grátis. ", 3),
		Canonical:       "https://example.com/",
		RobotsMeta:      "index, follow",
		H1s:             []string{"Tênis em promoção"},
		H2s:             []string{"Corrida", "Casual"},
		InternalLinks:   12,
		ExternalLinks:   3,
		Images:          4,
		ImagesNoAlt:     0,
		WordCount:       450,
	}
}

func resultFor(t *testing.T, results []*ValidationResult, validationType string) *ValidationResult {
	t.Helper()
	for _, r := range results {
		if r.ValidationType == validationType {
			return r
		}
	}
	t.Fatalf("no result of type %q", validationType)
	return nil
}

func TestAgent_HealthyPagePasses(t *testing.T) {
	t.Parallel()
	agent := NewAgent(&testutil.DummyLogger{})
	metrics := &collector.PageMetrics{PerformanceMobile: 95.0, PerformanceDesktop: 98.0}

	results := agent.Validate(healthyDoc(), metrics)
	if len(results) != 10 {
		t.Fatalf("expected 10 checks, got %d", len(results))
	}
	for _, r := range results {
		if r.Status != StatusPassed {
			t.Errorf("%s: expected passed, got %s (%s)", r.ValidationType, r.Status, r.Message)
		}
		if r.Score < 0 || r.Score > 100 {
			t.Errorf("%s: score out of range: %v", r.ValidationType, r.Score)
		}
	}
	// Mean of 95, 98 and eight 100s.
	want := (95.0 + 98.0 + 8*100.0) / 10.0
	if agg := AggregateScore(results); agg != want {
		t.Errorf("aggregate: got %v, want %v", agg, want)
	}
}

func TestAggregateScore_IsMeanOfScores(t *testing.T) {
	t.Parallel()
	results := []*ValidationResult{
		{Score: 100},
		{Score: 50},
		{Score: 0},
	}
	if got := AggregateScore(results); got != 50 {
		t.Errorf("aggregate: got %v, want 50", got)
	}
}

func TestAgent_MissingTitleFails(t *testing.T) {
	t.Parallel()
	doc := healthyDoc()
	doc.Title = ""

	results := NewAgent(&testutil.DummyLogger{}).Validate(doc, nil)
	r := resultFor(t, results, "title")
	if r.Status != StatusFailed || r.Score != 0 {
		t.Errorf("missing title: status=%s score=%v", r.Status, r.Score)
	}
	if len(r.Recommendations) == 0 {
		t.Error("failed check should carry a recommendation")
	}
}

func TestAgent_MultipleH1Warns(t *testing.T) {
	t.Parallel()
	doc := healthyDoc()
	doc.H1s = []string{"um", "dois"}

	r := resultFor(t, NewAgent(&testutil.DummyLogger{}).Validate(doc, nil), "headings")
	if r.Status != StatusWarning {
		t.Errorf("expected warning for duplicate h1, got %s", r.Status)
	}
}

func TestAgent_ImageAltRatio(t *testing.T) {
	t.Parallel()
	doc := healthyDoc()
	doc.Images = 4
	doc.ImagesNoAlt = 1

	r := resultFor(t, NewAgent(&testutil.DummyLogger{}).Validate(doc, nil), "image_alt")
	if r.Status != StatusWarning {
		t.Errorf("expected warning, got %s", r.Status)
	}
	if r.Score != 75 {
		t.Errorf("expected proportional score 75, got %v", r.Score)
	}

	doc.ImagesNoAlt = 3
	r = resultFor(t, NewAgent(&testutil.DummyLogger{}).Validate(doc, nil), "image_alt")
	if r.Status != StatusFailed {
		t.Errorf("majority missing alt should fail, got %s", r.Status)
	}
}

func TestAgent_HTTPSRequired(t *testing.T) {
	t.Parallel()
	doc := healthyDoc()
	doc.HTTPS = false

	r := resultFor(t, NewAgent(&testutil.DummyLogger{}).Validate(doc, nil), "https")
	if r.Status != StatusFailed || r.Score != 0 {
		t.Errorf("plain http should fail: status=%s score=%v", r.Status, r.Score)
	}
}

func TestAgent_NoindexFailsIndexability(t *testing.T) {
	t.Parallel()
	doc := healthyDoc()
	doc.RobotsMeta = "NOINDEX, nofollow"

	r := resultFor(t, NewAgent(&testutil.DummyLogger{}).Validate(doc, nil), "indexability")
	if r.Status != StatusFailed {
		t.Errorf("noindex should fail regardless of case, got %s", r.Status)
	}
}

func TestAgent_PerformanceThresholds(t *testing.T) {
	t.Parallel()
	agent := NewAgent(&testutil.DummyLogger{})

	cases := []struct {
		score  any
		status string
	}{
		{95.0, StatusPassed},
		{75.0, StatusWarning},
		{30.0, StatusFailed},
		{nil, StatusFailed},
		{map[string]any{"score": 99}, StatusFailed},
	}
	for _, tc := range cases {
		metrics := &collector.PageMetrics{PerformanceMobile: tc.score, PerformanceDesktop: 100.0}
		r := resultFor(t, agent.Validate(nil, metrics), "performance_mobile")
		if r.Status != tc.status {
			t.Errorf("score %v: expected %s, got %s", tc.score, tc.status, r.Status)
		}
	}
}

func TestAgent_NilInputsProduceNoResults(t *testing.T) {
	t.Parallel()
	results := NewAgent(&testutil.DummyLogger{}).Validate(nil, nil)
	if len(results) != 0 {
		t.Errorf("expected empty battery for nil inputs, got %d", len(results))
	}
	if AggregateScore(results) != 0 {
		t.Error("aggregate of empty battery should be 0")
	}
}
