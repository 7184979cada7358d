// Package ai abstracts the text-generation backends. The planning code
// only ever sees the Provider interface; which vendor sits behind it is a
// configuration detail.
package ai

import "context"

type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

type Response struct {
	Text string

	// TokensUsed is the total usage the vendor reported for the call;
	// zero when the vendor sent no usage metadata.
	TokensUsed int
}

// Provider is a single-shot text generator. Implementations must honor
// ctx cancellation and deadlines; retry policy belongs to the caller.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
	Close() error
}
