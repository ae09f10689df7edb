// Package collector holds the collection adapters that gather raw, untrusted
// data for a target URL: the page crawler and the external performance
// metrics API. Adapters never raise: every outcome is a CollectionResult
// with an explicit success/error discriminant the orchestrator can log and
// continue past. Results are cached in the shared tiered cache so repeated
// audits of the same target within the TTL window skip the expensive calls.
package collector

import (
	"context"
	"time"
)

// Result kinds.
const (
	KindCrawl   = "crawl"
	KindMetrics = "metrics"
)

// PageDocument is the crawler's extraction of one page. All string fields are
// untrusted and must pass through the security manager before reaching any
// prompt.
type PageDocument struct {
	URL             string        `json:"url"`
	FinalURL        string        `json:"final_url"`
	StatusCode      int           `json:"status_code"`
	HTTPS           bool          `json:"https"`
	Title           string        `json:"title"`
	MetaDescription string        `json:"meta_description"`
	Canonical       string        `json:"canonical"`
	RobotsMeta      string        `json:"robots_meta"`
	H1s             []string      `json:"h1s"`
	H2s             []string      `json:"h2s"`
	InternalLinks   int           `json:"internal_links"`
	ExternalLinks   int           `json:"external_links"`
	Images          int           `json:"images"`
	ImagesNoAlt     int           `json:"images_no_alt"`
	TextContent     string        `json:"text_content"`
	WordCount       int           `json:"word_count"`
	LoadTime        time.Duration `json:"load_time"`
}

// PageMetrics carries the raw performance payload from the external API.
// Score fields are deliberately untyped: upstream sometimes delivers a
// number, sometimes null, sometimes a nested object. The validator owns the
// single coercion point.
type PageMetrics struct {
	PerformanceMobile   any `json:"performance_mobile"`
	PerformanceDesktop  any `json:"performance_desktop"`
	FirstContentfulMS   any `json:"first_contentful_ms"`
	LargestContentfulMS any `json:"largest_contentful_ms"`
}

// CollectionResult is the uniform adapter outcome.
type CollectionResult struct {
	Kind     string        `json:"kind"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Cached   bool          `json:"cached"`
	Document *PageDocument `json:"document,omitempty"`
	Metrics  *PageMetrics  `json:"metrics,omitempty"`
}

// Collector is implemented by every collection adapter.
type Collector interface {
	// Collect gathers data for targetURL. It never returns a Go error;
	// failures are reported through the result's discriminant.
	Collect(ctx context.Context, targetURL string) *CollectionResult
}

// Config holds the retry policy shared by the adapters.
type Config struct {
	Retries int
	Backoff time.Duration
}

// DefaultConfig returns development defaults.
func DefaultConfig() Config {
	return Config{
		Retries: 2,
		Backoff: 500 * time.Millisecond,
	}
}

func failure(kind, msg string) *CollectionResult {
	return &CollectionResult{Kind: kind, Success: false, Error: msg}
}

// sleepBackoff waits attempt*backoff, honoring cancellation.
func sleepBackoff(ctx context.Context, attempt int, backoff time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(time.Duration(attempt) * backoff):
		return true
	}
}
