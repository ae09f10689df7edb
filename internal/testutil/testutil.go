// Package testutil holds minimal doubles shared by the package tests.
package testutil

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/auditlab/auditoria/internal/logging"
	"github.com/auditlab/auditoria/internal/webclient"
)

// DummyLogger discards everything. It records nothing so tests stay quiet.
type DummyLogger struct{}

func (d *DummyLogger) Debug(msg string, fields ...logging.Field) {}
func (d *DummyLogger) Info(msg string, fields ...logging.Field)  {}
func (d *DummyLogger) Warn(msg string, fields ...logging.Field)  {}
func (d *DummyLogger) Error(msg string, fields ...logging.Field) {}
func (d *DummyLogger) With(fields ...logging.Field) logging.Logger {
	return d
}

// RecordingLogger keeps every message so tests can assert on log output.
type RecordingLogger struct {
	mu      sync.Mutex
	Entries []string
}

func (r *RecordingLogger) record(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Entries = append(r.Entries, msg)
}

func (r *RecordingLogger) Debug(msg string, fields ...logging.Field) { r.record(msg) }
func (r *RecordingLogger) Info(msg string, fields ...logging.Field)  { r.record(msg) }
func (r *RecordingLogger) Warn(msg string, fields ...logging.Field)  { r.record(msg) }
func (r *RecordingLogger) Error(msg string, fields ...logging.Field) { r.record(msg) }
func (r *RecordingLogger) With(fields ...logging.Field) logging.Logger {
	return r
}

// Messages returns a copy of the recorded messages.
func (r *RecordingLogger) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Entries))
	copy(out, r.Entries)
	return out
}

// DummyWebClient returns a scripted response, or calls Handler when set.
type DummyWebClient struct {
	Handler func(ctx context.Context, req *webclient.Request) (*webclient.Response, error)

	Status int
	Body   []byte
	Err    error

	mu    sync.Mutex
	Calls int
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	d.mu.Lock()
	d.Calls++
	d.mu.Unlock()

	if d.Handler != nil {
		return d.Handler(ctx, req)
	}
	if d.Err != nil {
		return nil, d.Err
	}
	status := d.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &webclient.Response{
		Request:    req,
		Body:       d.Body,
		StatusCode: status,
		FinalURL:   req.URL,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyWebClient) Close() error { return nil }

// CallCount returns how many times Do was invoked.
func (d *DummyWebClient) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Calls
}

// DummyGateway returns a canned LLM response or error.
type DummyGateway struct {
	Response string
	Err      error

	mu      sync.Mutex
	Prompts []string
}

func (d *DummyGateway) Generate(ctx context.Context, prompt string) (string, error) {
	d.mu.Lock()
	d.Prompts = append(d.Prompts, prompt)
	d.mu.Unlock()

	if d.Err != nil {
		return "", d.Err
	}
	return d.Response, nil
}

// LastPrompt returns the most recent prompt sent to the gateway, or "".
func (d *DummyGateway) LastPrompt() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Prompts) == 0 {
		return ""
	}
	return d.Prompts[len(d.Prompts)-1]
}
