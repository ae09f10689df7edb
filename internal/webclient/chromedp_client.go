package webclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/auditlab/auditoria/internal/logging"
)

// ChromeDPClient renders pages in a headless browser and returns the final
// DOM. Needed for sites that assemble their SEO-relevant markup client-side.
type ChromeDPClient struct {
	idleAfter   time.Duration
	allocCtx    context.Context
	allocCancel context.CancelFunc
	logger      logging.Logger
}

// NewChromeDPClient creates a client backed by a shared browser allocator.
// idleAfter is how long the network must stay quiet before the page is
// considered settled.
func NewChromeDPClient(idleAfter time.Duration, logger logging.Logger, opts ...chromedp.ExecAllocatorOption) (*ChromeDPClient, error) {
	if idleAfter <= 0 {
		idleAfter = 2 * time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], opts...)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	return &ChromeDPClient{
		idleAfter:   idleAfter,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		logger:      logger.With(logging.Field{Key: "component", Value: "chromedp"}),
	}, nil
}

// waitNetworkIdle closes the returned channel once no network request has
// been in flight for idleAfter.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) chan struct{} {
	idleChan := make(chan struct{})
	var activeReqs int32
	var timer *time.Timer
	var timerMutex sync.Mutex
	var once sync.Once

	startTimer := func() {
		timerMutex.Lock()
		defer timerMutex.Unlock()

		if timer != nil {
			timer.Stop()
		}

		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&activeReqs) == 0 {
				once.Do(func() { close(idleChan) })
			}
		})
	}
	startTimer()

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&activeReqs, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&activeReqs, -1) <= 0 {
				startTimer()
			}
		}
	})

	return idleChan
}

// Do navigates to req.URL, waits for network idle, and returns the rendered
// outer HTML. Only GET semantics are supported by this backend.
func (cdc *ChromeDPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}

	browserCtx, cancel := chromedp.NewContext(cdc.allocCtx)
	defer cancel()

	// Propagate caller cancellation into the browser context.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-browserCtx.Done():
		}
	}()

	var statusCode int64 = http.StatusOK
	chromedp.ListenTarget(browserCtx, func(ev any) {
		if resp, ok := ev.(*network.EventResponseReceived); ok {
			if resp.Type == network.ResourceTypeDocument {
				atomic.StoreInt64(&statusCode, resp.Response.Status)
			}
		}
	})

	idleChan := waitNetworkIdle(browserCtx, cdc.idleAfter)

	if err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(req.URL),
	); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", req.URL, err)
	}

	select {
	case <-idleChan:
	case <-browserCtx.Done():
		return nil, fmt.Errorf("waiting for network idle: %w", browserCtx.Err())
	}

	var html, finalURL string
	if err := chromedp.Run(browserCtx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html),
	); err != nil {
		return nil, fmt.Errorf("extract dom: %w", err)
	}

	cdc.logger.Debug("rendered page",
		logging.Field{Key: "url", Value: req.URL},
		logging.Field{Key: "bytes", Value: len(html)})

	return &Response{
		Request:    req,
		Body:       []byte(html),
		Headers:    http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		StatusCode: int(atomic.LoadInt64(&statusCode)),
		FinalURL:   finalURL,
		FetchedAt:  time.Now(),
	}, nil
}

func (cdc *ChromeDPClient) Close() error {
	cdc.allocCancel()
	return nil
}
