package tools

import (
	"context"
	"errors"
)

// Disabled answers every execution request with an error. It stands in
// when no webhook endpoint is configured.
type Disabled struct{}

func (Disabled) Execute(ctx context.Context, text, intent string) (Result, error) {
	return Result{}, errors.New("no tool endpoint configured")
}
