// Package completion defines the external completion service collaborator:
// submit a prompt, receive final text. The engine treats it as opaque.
package completion

import "context"

// Request is a single prompt submission.
type Request struct {
	// System carries role instructions for the model, if any.
	System string

	// Prompt is the user-turn text.
	Prompt string

	// MaxTokens caps the response length.
	MaxTokens int

	// AllowTools grants the model external tool access. Compaction always
	// submits with AllowTools false.
	AllowTools bool
}

// Service turns a prompt into generated text. Implementations may stream
// internally; callers always receive the accumulated final text.
type Service interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Func adapts a plain function to a Service.
type Func func(ctx context.Context, req Request) (string, error)

// Complete implements Service.
func (f Func) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
