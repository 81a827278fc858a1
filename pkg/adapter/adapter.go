package adapter

import (
	"context"
)

// Adapter defines the interface for upstream generation provider clients.
type Adapter interface {
	// Generate sends a prompt to the model and returns the response.
	// The caller owns the timeout: adapters must honor ctx cancellation.
	Generate(ctx context.Context, model string, prompt string) (*Response, error)

	// Name returns the adapter's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}
