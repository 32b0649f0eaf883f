// Package stt provides speech-to-text functionality.
package stt

import (
	"context"
	"fmt"
	"io"
)

// Provider is the interface for speech-to-text services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts recorded audio to text.
	Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error)
}

// TranscribeOptions configures transcription. Callers are expected to
// supply audio already resampled to SampleRate/Channels when possible;
// the hints are forwarded to the model as a best effort.
type TranscribeOptions struct {
	Language   string // ISO language code (default: "en")
	Format     string // Audio format hint (wav, webm, etc.)
	SampleRate int    // Audio sample rate in Hz
	Channels   int    // Channel count
}

// Transcript is the result of transcription.
type Transcript struct {
	Text     string  // Full transcribed text
	Language string  // Detected or specified language
	Duration float64 // Audio duration in seconds
}

// TranscribeError is a failed call to the transcription backend.
type TranscribeError struct {
	StatusCode int // 0 when the call never reached the backend
	Message    string
}

func (e *TranscribeError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("stt: status %d: %s", e.StatusCode, e.Message)
	}
	return "stt: " + e.Message
}
