// Package llm defines the boundary to streaming text-generation backends.
package llm

import "context"

// Request describes one generation call.
type Request struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Chunk is one incremental unit of generated text. Done is set on the
// final chunk of a stream.
type Chunk struct {
	Text string
	Done bool
}

// Stream yields generation chunks in backend arrival order.
// Next returns io.EOF when the stream is complete.
type Stream interface {
	Next() (Chunk, error)
	Close() error
}

// Generator opens streaming generation calls. The stream may be abandoned
// at any chunk boundary by cancelling the context and closing the stream.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (Stream, error)
}
