// Package llm contains the thin gateway to the text-generation backend. The
// orchestrator only ever talks to the Gateway interface and never hands it
// raw, unscreened input.
package llm

import (
	"context"
	"errors"
)

// ErrGenerationFailed wraps any backend failure after retries are exhausted.
// Callers treat it as a soft failure and fall back to templated output.
var ErrGenerationFailed = errors.New("llm: generation failed")

// Gateway generates narrative text for a fully screened prompt.
type Gateway interface {
	// Generate produces text for the given prompt. It may time out; any
	// error is a soft failure from the orchestrator's point of view.
	Generate(ctx context.Context, prompt string) (string, error)
}
