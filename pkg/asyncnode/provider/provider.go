// Package provider abstracts the AI backends that completion workers
// call during their background phase. A Provider is a blocking,
// context-aware completion call; everything about scheduling, retries
// across runs, and output persistence lives above it.
package provider

import (
	"context"
	"fmt"
)

// Request is one completion call.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// TotalTokens returns the combined token count.
func (u Usage) TotalTokens() int { return u.PromptTokens + u.CompletionTokens }

// Response is the result of one completion call.
type Response struct {
	Text         string
	Model        string
	FinishReason string
	Usage        Usage
}

// Provider is a completion backend. Complete must honor ctx
// cancellation; a cancelled call returns ctx.Err wrapped in an *Error.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// Error wraps a backend failure with the provider's name.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
