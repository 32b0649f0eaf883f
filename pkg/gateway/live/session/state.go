package session

import (
	"context"
	"time"
)

// pendingTool is a staged, not-yet-executed tool action awaiting user
// confirmation.
type pendingTool struct {
	originalText string
	requestedAt  time.Time
}

type stateKind int

const (
	stateIdle stateKind = iota
	stateAwaitingConfirmation
	stateStreaming
)

// sessionState is the tagged machine state. pending is non-nil exactly in
// stateAwaitingConfirmation; cancelStream is non-nil exactly in
// stateStreaming. Only the session run loop reads or writes it.
type sessionState struct {
	kind         stateKind
	pending      *pendingTool
	cancelStream context.CancelFunc
}

func idleState() sessionState {
	return sessionState{kind: stateIdle}
}

func awaitingState(p pendingTool) sessionState {
	return sessionState{kind: stateAwaitingConfirmation, pending: &p}
}

func streamingState(cancel context.CancelFunc) sessionState {
	return sessionState{kind: stateStreaming, cancelStream: cancel}
}

func (s sessionState) awaitingConfirmation() bool {
	return s.kind == stateAwaitingConfirmation
}

func (s sessionState) processing() bool {
	return s.kind == stateStreaming
}
