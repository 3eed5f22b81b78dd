package analyzer

import (
	"context"
	"encoding/json"
	"errors"
)

// Client abstracts LLM providers for per-file code review.
type Client interface {
	AnalyzeFile(ctx context.Context, input FileInput) (json.RawMessage, error)
}

// FileInput captures one changed file to review.
type FileInput struct {
	Filename string
	Language string
	Status   string
	Patch    string
	Content  string
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("analyzer not implemented")

// PlaceholderClient is a stub implementation until provider wiring is added.
type PlaceholderClient struct{}

// AnalyzeFile returns ErrNotImplemented.
func (PlaceholderClient) AnalyzeFile(ctx context.Context, input FileInput) (json.RawMessage, error) {
	_ = ctx
	_ = input
	return nil, ErrNotImplemented
}
