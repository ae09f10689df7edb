// Package webclient abstracts page retrieval behind a small interface so the
// crawler can switch between a plain net/http backend and a headless-browser
// backend for JavaScript-heavy pages.
package webclient

import (
	"context"
	"net/http"
	"time"
)

// Backend names accepted by New.
const (
	BackendNetHTTP  = "nethttp"
	BackendChromeDP = "chromedp"
)

type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	FinalURL   string
	FetchedAt  time.Time
}

// WebClient executes page requests. Implementations must be safe for
// concurrent use.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	Close() error
}
