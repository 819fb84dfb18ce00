// Package llm defines the completion client abstraction used by the model
// scorer.
package llm

import "context"

// Client issues a single chat completion and returns the assistant text.
// Implementations are expected to request JSON-formatted output.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
