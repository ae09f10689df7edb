package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/auditlab/auditoria/internal/cache"
	"github.com/auditlab/auditoria/internal/testutil"
	"github.com/auditlab/auditoria/internal/webclient"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>  Loja Exemplo — Tênis  </title>
  <meta name="description" content="A melhor loja de tênis do Brasil.">
  <meta name="robots" content="index, follow">
  <link rel="canonical" href="https://example.com/tenis">
</head>
<body>
  <h1>Tênis em promoção</h1>
  <h2>Corrida</h2>
  <h2>Casual</h2>
  <img src="/a.jpg" alt="Tênis azul">
  <img src="/b.jpg">
  <img src="/c.jpg" alt="   ">
  <a href="/categoria/corrida">corrida</a>
  <a href="/categoria/casual">casual</a>
  <a href="https://other.example.org/review">review externo</a>
  <a href="#top">topo</a>
  <a href="mailto:contato@example.com">contato</a>
  <p>Frete grátis para todo o país em compras acima de cem reais.</p>
</body>
</html>`

func newTestCrawler(t *testing.T, wc webclient.WebClient, c *cache.TieredCache) *CrawlerManager {
	t.Helper()
	cfg := Config{Retries: 2, Backoff: time.Millisecond}
	return NewCrawlerManager(cfg, wc, c, &testutil.DummyLogger{})
}

// ─── Crawler extraction ───

func TestCrawler_ExtractsSEOElements(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(samplePage))
	}))
	t.Cleanup(srv.Close)

	cm := newTestCrawler(t, webclient.NewNetHTTPClient(&testutil.DummyLogger{}, nil), nil)
	res := cm.Collect(context.Background(), srv.URL)
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	doc := res.Document
	if doc == nil {
		t.Fatal("expected document")
	}

	if doc.Title != "Loja Exemplo — Tênis" {
		t.Errorf("title: got %q", doc.Title)
	}
	if doc.MetaDescription != "A melhor loja de tênis do Brasil." {
		t.Errorf("meta description: got %q", doc.MetaDescription)
	}
	if doc.Canonical != "https://example.com/tenis" {
		t.Errorf("canonical: got %q", doc.Canonical)
	}
	if doc.RobotsMeta != "index, follow" {
		t.Errorf("robots: got %q", doc.RobotsMeta)
	}
	if len(doc.H1s) != 1 || doc.H1s[0] != "Tênis em promoção" {
		t.Errorf("h1s: got %v", doc.H1s)
	}
	if len(doc.H2s) != 2 {
		t.Errorf("h2s: got %v", doc.H2s)
	}
	if doc.Images != 3 {
		t.Errorf("images: got %d", doc.Images)
	}
	if doc.ImagesNoAlt != 2 {
		t.Errorf("images without alt: got %d", doc.ImagesNoAlt)
	}
	if doc.InternalLinks != 2 {
		t.Errorf("internal links: got %d", doc.InternalLinks)
	}
	if doc.ExternalLinks != 1 {
		t.Errorf("external links: got %d", doc.ExternalLinks)
	}
	if doc.WordCount == 0 {
		t.Error("expected non-zero word count")
	}
	if !strings.Contains(doc.TextContent, "Frete grátis") {
		t.Errorf("text content missing body text: %q", doc.TextContent)
	}
	if doc.HTTPS {
		t.Error("httptest server is plain http, HTTPS should be false")
	}
	if doc.StatusCode != http.StatusOK {
		t.Errorf("status: got %d", doc.StatusCode)
	}
}

func TestCrawler_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(samplePage))
	}))
	t.Cleanup(srv.Close)

	logger := &testutil.RecordingLogger{}
	cfg := Config{Retries: 2, Backoff: time.Millisecond}
	cm := NewCrawlerManager(cfg, webclient.NewNetHTTPClient(&testutil.DummyLogger{}, nil), nil, logger)
	res := cm.Collect(context.Background(), srv.URL)
	if !res.Success {
		t.Fatalf("expected success after retries, got %q", res.Error)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}

	var retries int
	for _, msg := range logger.Messages() {
		if msg == "retrying crawl" {
			retries++
		}
	}
	if retries != 2 {
		t.Errorf("expected 2 retry warnings logged, got %d", retries)
	}
}

func TestCrawler_FailureIsTypedNotPanic(t *testing.T) {
	t.Parallel()
	wc := &testutil.DummyWebClient{Err: errors.New("connection refused")}
	cm := newTestCrawler(t, wc, nil)

	res := cm.Collect(context.Background(), "https://unreachable.example")
	if res.Success {
		t.Fatal("expected failure result")
	}
	if res.Kind != KindCrawl {
		t.Errorf("kind: got %q", res.Kind)
	}
	if !strings.Contains(res.Error, "connection refused") {
		t.Errorf("error should carry cause, got %q", res.Error)
	}
	// Retries=2 means three attempts in total.
	if wc.CallCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", wc.CallCount())
	}
}

func TestCrawler_CachesDocument(t *testing.T) {
	t.Parallel()
	wc := &testutil.DummyWebClient{Body: []byte(samplePage)}
	c := cache.New(cache.DefaultConfig())
	cm := newTestCrawler(t, wc, c)

	first := cm.Collect(context.Background(), "https://example.com/page")
	if !first.Success || first.Cached {
		t.Fatalf("first collect: success=%v cached=%v", first.Success, first.Cached)
	}

	second := cm.Collect(context.Background(), "https://example.com/page")
	if !second.Success || !second.Cached {
		t.Fatalf("second collect: success=%v cached=%v", second.Success, second.Cached)
	}
	if wc.CallCount() != 1 {
		t.Errorf("cached collect must not hit the network, got %d calls", wc.CallCount())
	}
	if second.Document.Title != first.Document.Title {
		t.Error("cached document differs from original")
	}
}

func TestCrawler_ContextCancellationDuringBackoff(t *testing.T) {
	t.Parallel()
	wc := &testutil.DummyWebClient{Err: errors.New("down")}
	cfg := Config{Retries: 5, Backoff: time.Second}
	cm := NewCrawlerManager(cfg, wc, nil, &testutil.DummyLogger{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := cm.Collect(ctx, "https://example.com")
	if res.Success {
		t.Fatal("expected failure")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("collect did not honor context cancellation during backoff")
	}
}

// ─── Metrics adapter ───

func TestAPIManager_FetchesMetrics(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("url"); got != "https://example.com" {
			t.Errorf("expected target url param, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"performance_mobile": 87.5, "performance_desktop": 93, "first_contentful_ms": 1200, "largest_contentful_ms": null}`))
	}))
	t.Cleanup(srv.Close)

	am := NewAPIManager(Config{Retries: 1, Backoff: time.Millisecond}, srv.URL,
		webclient.NewNetHTTPClient(&testutil.DummyLogger{}, nil), nil, &testutil.DummyLogger{})

	res := am.Collect(context.Background(), "https://example.com")
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if res.Metrics == nil {
		t.Fatal("expected metrics")
	}
	if v, ok := res.Metrics.PerformanceMobile.(float64); !ok || v != 87.5 {
		t.Errorf("performance_mobile: got %v", res.Metrics.PerformanceMobile)
	}
	if res.Metrics.LargestContentfulMS != nil {
		t.Errorf("null field should decode to nil, got %v", res.Metrics.LargestContentfulMS)
	}
}

func TestAPIManager_ToleratesLooselyTypedPayload(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"performance_mobile": "92", "performance_desktop": {"score": 80}}`))
	}))
	t.Cleanup(srv.Close)

	am := NewAPIManager(Config{Retries: 0, Backoff: time.Millisecond}, srv.URL,
		webclient.NewNetHTTPClient(&testutil.DummyLogger{}, nil), nil, &testutil.DummyLogger{})

	res := am.Collect(context.Background(), "https://example.com")
	if !res.Success {
		t.Fatalf("loosely typed payload must not fail collection: %q", res.Error)
	}
	if _, ok := res.Metrics.PerformanceMobile.(string); !ok {
		t.Errorf("string score should survive decoding, got %T", res.Metrics.PerformanceMobile)
	}
	if _, ok := res.Metrics.PerformanceDesktop.(map[string]any); !ok {
		t.Errorf("object score should survive decoding, got %T", res.Metrics.PerformanceDesktop)
	}
}

func TestAPIManager_FailureAfterRetries(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	am := NewAPIManager(Config{Retries: 2, Backoff: time.Millisecond}, srv.URL,
		webclient.NewNetHTTPClient(&testutil.DummyLogger{}, nil), nil, &testutil.DummyLogger{})

	res := am.Collect(context.Background(), "https://example.com")
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Kind != KindMetrics {
		t.Errorf("kind: got %q", res.Kind)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestAPIManager_ClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	am := NewAPIManager(Config{Retries: 2, Backoff: time.Millisecond}, srv.URL,
		webclient.NewNetHTTPClient(&testutil.DummyLogger{}, nil), nil, &testutil.DummyLogger{})

	res := am.Collect(context.Background(), "https://example.com")
	if res.Success {
		t.Fatal("expected failure")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("a 4xx response must not be retried, got %d attempts", got)
	}
}

func TestAPIManager_CachesMetrics(t *testing.T) {
	t.Parallel()
	wc := &testutil.DummyWebClient{Body: []byte(`{"performance_mobile": 50}`)}
	c := cache.New(cache.DefaultConfig())
	am := NewAPIManager(Config{Retries: 0, Backoff: time.Millisecond}, "https://metrics.example/api", wc, c, &testutil.DummyLogger{})

	if res := am.Collect(context.Background(), "https://example.com"); !res.Success {
		t.Fatalf("first collect failed: %q", res.Error)
	}
	second := am.Collect(context.Background(), "https://example.com")
	if !second.Success || !second.Cached {
		t.Fatalf("second collect: success=%v cached=%v", second.Success, second.Cached)
	}
	if wc.CallCount() != 1 {
		t.Errorf("cached collect must not hit the API, got %d calls", wc.CallCount())
	}
}
