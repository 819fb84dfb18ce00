package llm

import (
	"context"
	"errors"
)

// Disabled is a Client for deployments without a model provider. Every call
// fails, which makes the model scorer fall back to its neutral report.
type Disabled struct{}

// Complete always reports the provider as disabled.
func (Disabled) Complete(context.Context, string, string) (string, error) {
	return "", errors.New("model provider disabled")
}

var _ Client = Disabled{}
