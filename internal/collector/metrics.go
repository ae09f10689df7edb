package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/auditlab/auditoria/internal/cache"
	"github.com/auditlab/auditoria/internal/logging"
	"github.com/auditlab/auditoria/internal/webclient"
)

// APIManager queries the external performance-metrics API for a target URL.
// The upstream payload is loosely typed, so the decoded fields stay as `any`
// and are coerced later by the validator.
type APIManager struct {
	cfg     Config
	baseURL string
	wc      webclient.WebClient
	cache   *cache.TieredCache
	logger  logging.Logger
}

// NewAPIManager creates a metrics adapter against baseURL. cache may be nil.
func NewAPIManager(cfg Config, baseURL string, wc webclient.WebClient, c *cache.TieredCache, logger logging.Logger) *APIManager {
	return &APIManager{
		cfg:     cfg,
		baseURL: baseURL,
		wc:      wc,
		cache:   c,
		logger:  logger.With(logging.Field{Key: "component", Value: "metrics"}),
	}
}

func metricsCacheKey(targetURL string) string {
	return "metrics:" + targetURL
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Collect fetches performance metrics for targetURL with bounded retries.
func (am *APIManager) Collect(ctx context.Context, targetURL string) *CollectionResult {
	if am.cache != nil {
		if v, ok := am.cache.Get(metricsCacheKey(targetURL)); ok {
			if m, ok := v.(*PageMetrics); ok {
				return &CollectionResult{Kind: KindMetrics, Success: true, Cached: true, Metrics: m}
			}
		}
	}

	var lastErr error
	for attempt := 0; attempt <= am.cfg.Retries; attempt++ {
		if attempt > 0 {
			am.logger.Warn("retrying metrics fetch",
				logging.Field{Key: "url", Value: targetURL},
				logging.Field{Key: "attempt", Value: attempt},
				logging.Field{Key: "error", Value: lastErr.Error()})
			if !sleepBackoff(ctx, attempt, am.cfg.Backoff) {
				return failure(KindMetrics, ctx.Err().Error())
			}
		}

		metrics, err := am.fetchOnce(ctx, targetURL)
		if err == nil {
			if am.cache != nil {
				am.cache.Set(metricsCacheKey(targetURL), metrics)
			}
			return &CollectionResult{Kind: KindMetrics, Success: true, Metrics: metrics}
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			break
		}
	}

	return failure(KindMetrics, fmt.Sprintf("metrics %s: %v", targetURL, lastErr))
}

func (am *APIManager) fetchOnce(ctx context.Context, targetURL string) (*PageMetrics, error) {
	reqURL := fmt.Sprintf("%s?url=%s", am.baseURL, url.QueryEscape(targetURL))
	resp, err := am.wc.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: reqURL})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// Client errors will not heal on retry.
		return nil, &permanentError{fmt.Errorf("metrics API returned %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics API returned %d", resp.StatusCode)
	}

	var metrics PageMetrics
	if err := json.Unmarshal(resp.Body, &metrics); err != nil {
		return nil, fmt.Errorf("decode metrics payload: %w", err)
	}

	return &metrics, nil
}
