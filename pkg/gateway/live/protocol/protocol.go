// Package protocol defines the typed frames exchanged over a voice
// session's websocket connection.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Client frame types.
const (
	TypeAudioChunk = "audio_chunk"
	TypeInterrupt  = "interrupt"
)

// Server frame types.
const (
	TypeConnected           = "connected"
	TypeStatus              = "status"
	TypeTranscript          = "transcript"
	TypeIntent              = "intent"
	TypeResponseChunk       = "response_chunk"
	TypeResponseComplete    = "response_complete"
	TypeResponseInterrupted = "response_interrupted"
	TypeConfirmationRequest = "confirmation_request"
	TypeError               = "error"
)

// DecodeError is a malformed or unsupported client frame.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// ClientAudioChunk carries one recorded utterance as base64 audio bytes.
// SampleRateHz and Channels are hints for the transcriber; zero values
// mean the server defaults apply.
type ClientAudioChunk struct {
	Type         string `json:"type"`
	DataB64      string `json:"data_b64"`
	SampleRateHz int    `json:"sample_rate_hz,omitempty"`
	Channels     int    `json:"channels,omitempty"`
}

// ClientInterrupt requests that an in-flight generation stream halt.
type ClientInterrupt struct {
	Type string `json:"type"`
}

// DecodeClientMessage parses one inbound frame into its typed form.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case TypeAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_chunk", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("audio_chunk.data_b64 is required", "data_b64")
		}
		if msg.SampleRateHz < 0 {
			return nil, badRequest("audio_chunk.sample_rate_hz must be >= 0", "sample_rate_hz")
		}
		if msg.Channels < 0 {
			return nil, badRequest("audio_chunk.channels must be >= 0", "channels")
		}
		return msg, nil
	case TypeInterrupt:
		var msg ClientInterrupt
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid interrupt", "")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// ServerConnected acknowledges a new session.
type ServerConnected struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// ServerStatus is a progress note for the caller's UI.
type ServerStatus struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ServerTranscript carries the accepted transcription of an utterance.
type ServerTranscript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServerIntent reports the routing label chosen for an utterance.
type ServerIntent struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

// ServerResponseChunk is one incremental unit of generated text, in
// backend delivery order. IsFinal marks the last chunk of a stream.
type ServerResponseChunk struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// ServerResponseComplete carries the full text of a finished response.
type ServerResponseComplete struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServerResponseInterrupted signals that a generation stream halted due
// to an interrupt request. It is distinct from normal completion.
type ServerResponseInterrupted struct {
	Type string `json:"type"`
}

// ServerConfirmationRequest asks the caller to confirm a staged tool action.
type ServerConfirmationRequest struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServerError is a user-visible failure scoped to this session.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
