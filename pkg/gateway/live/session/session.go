// Package session implements the per-connection voice session: the
// streaming/interrupt/confirmation state machine that routes transcribed
// utterances to generation, tool staging, or confirmation handling.
package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/voicegate/voicegate/pkg/core/llm"
	"github.com/voicegate/voicegate/pkg/core/tools"
	"github.com/voicegate/voicegate/pkg/core/voice/stt"
	"github.com/voicegate/voicegate/pkg/gateway/live/protocol"
	"github.com/voicegate/voicegate/pkg/gateway/metrics"
)

const (
	statusTranscribing     = "Transcribing..."
	statusThinking         = "Thinking..."
	statusIdentifyingTools = "Identifying required tools..."
	statusExecutingTools   = "Executing confirmed tools..."
	statusBusy             = "A response is already in progress."
	statusAwaitingAnswer   = "Waiting for a yes or no."

	cancelAcknowledgment = "Okay, I've cancelled that action."
	noPendingToolsReply  = "No pending tools to execute."
	toolsExecutedReply   = "Tools executed."

	transcribeFailedMessage = "Could not transcribe audio"
)

// Transcriber converts one recorded utterance to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, opts stt.TranscribeOptions) (*stt.Transcript, error)
}

// Generator opens a cancellable streaming generation call.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (llm.Stream, error)
}

// ToolExecutor submits a confirmed tool request to the external endpoint.
type ToolExecutor interface {
	Execute(ctx context.Context, text, intent string) (tools.Result, error)
}

type Config struct {
	Model              string
	Temperature        float64
	MaxTokens          int
	HistoryWindow      int
	MinTranscriptRunes int

	SampleRateHz int
	Channels     int

	MaxAudioBytes       int
	MaxJSONMessageBytes int64
	OutboundQueueSize   int

	PingInterval       time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
	MaxSessionDuration time.Duration
	TranscribeTimeout  time.Duration
	GenerateTimeout    time.Duration
	ToolTimeout        time.Duration
}

type Dependencies struct {
	Conn        *websocket.Conn
	Logger      *slog.Logger
	Transcriber Transcriber
	Generator   Generator
	Tools       ToolExecutor
	Metrics     *metrics.Metrics
	SessionID   string
	RequestID   string
	Config      Config
	Now         func() time.Time
}

// VoiceSession owns all state for one live connection. The run loop is the
// only goroutine that touches state and history; the generation streamer
// shares just the interrupt flag and the outbound channel.
type VoiceSession struct {
	conn        *websocket.Conn
	logger      *slog.Logger
	transcriber Transcriber
	generator   Generator
	tools       ToolExecutor
	mets        *metrics.Metrics
	sessionID   string
	requestID   string
	cfg         Config
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outbound chan []byte

	// Set by the control path, read by the streamer at chunk boundaries.
	interrupted atomic.Bool

	state   sessionState
	history *historyLog
}

type inboundFrame struct {
	data []byte
	err  error
}

type streamResult struct {
	text        string
	interrupted bool
	err         error
	startedAt   time.Time
}

func New(deps Dependencies) (*VoiceSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if deps.Tools == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if strings.TrimSpace(deps.SessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(deps.Config.Model) == "" {
		return nil, fmt.Errorf("generation model is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.HistoryWindow <= 0 {
		deps.Config.HistoryWindow = 4
	}
	if deps.Config.MinTranscriptRunes <= 0 {
		deps.Config.MinTranscriptRunes = 3
	}
	if deps.Config.SampleRateHz <= 0 {
		deps.Config.SampleRateHz = 16000
	}
	if deps.Config.Channels <= 0 {
		deps.Config.Channels = 1
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 64
	}
	if deps.Config.TranscribeTimeout <= 0 {
		deps.Config.TranscribeTimeout = 30 * time.Second
	}
	if deps.Config.ToolTimeout <= 0 {
		deps.Config.ToolTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &VoiceSession{
		conn:        deps.Conn,
		logger:      deps.Logger,
		transcriber: deps.Transcriber,
		generator:   deps.Generator,
		tools:       deps.Tools,
		mets:        deps.Metrics,
		sessionID:   deps.SessionID,
		requestID:   deps.RequestID,
		cfg:         deps.Config,
		now:         deps.Now,
		ctx:         ctx,
		cancel:      cancel,
		outbound:    make(chan []byte, deps.Config.OutboundQueueSize),
		state:       idleState(),
		history:     newHistoryLog(deps.Now),
	}, nil
}

// SessionID returns the identifier assigned at connect time.
func (s *VoiceSession) SessionID() string {
	return s.sessionID
}

// Cancel stops the session from outside the run loop (registry shutdown,
// handler teardown). Safe to call multiple times.
func (s *VoiceSession) Cancel() {
	s.interrupted.Store(true)
	s.cancel()
}

// Notify pushes an out-of-band error event to the client (drain warning,
// shutdown notice). Safe to call from any goroutine.
func (s *VoiceSession) Notify(code, message string) error {
	return s.sendError(code, message)
}

// Run drives the session until the connection closes or the session is
// cancelled. It must be called exactly once.
func (s *VoiceSession) Run() error {
	defer s.cancel()

	if s.cfg.MaxJSONMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxJSONMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	readCh := make(chan inboundFrame, 16)
	writerErrCh := make(chan error, 1)
	go s.readLoop(readCh)
	go func() {
		w := &outboundWriter{
			ws:           s.conn,
			ctx:          s.ctx,
			frames:       s.outbound,
			pingInterval: s.cfg.PingInterval,
			writeTimeout: s.cfg.WriteTimeout,
		}
		writerErrCh <- w.Run()
		// Unblock any enqueue still waiting on a dead writer.
		s.cancel()
	}()

	if err := s.sendJSON(protocol.ServerConnected{Type: protocol.TypeConnected, SessionID: s.sessionID}); err != nil {
		return err
	}

	var sessionDeadline <-chan time.Time
	if s.cfg.MaxSessionDuration > 0 {
		timer := time.NewTimer(s.cfg.MaxSessionDuration)
		defer timer.Stop()
		sessionDeadline = timer.C
	}

	streamDoneCh := make(chan streamResult, 1)

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case err := <-writerErrCh:
			return err
		case <-sessionDeadline:
			_ = s.sendJSON(protocol.ServerError{Type: protocol.TypeError, Code: "session_expired", Message: "session time limit reached"})
			return nil
		case res := <-streamDoneCh:
			s.finishStream(res)
		case frame, ok := <-readCh:
			if !ok {
				return nil
			}
			if frame.err != nil {
				if websocket.IsCloseError(frame.err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
					return nil
				}
				if errors.Is(frame.err, io.EOF) {
					return nil
				}
				return frame.err
			}
			s.handleFrame(frame.data, streamDoneCh)
		}
	}
}

func (s *VoiceSession) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		if s.cfg.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		if messageType != websocket.TextMessage {
			continue
		}
		select {
		case out <- inboundFrame{data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *VoiceSession) handleFrame(data []byte, streamDoneCh chan<- streamResult) {
	decoded, err := protocol.DecodeClientMessage(data)
	if err != nil {
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			_ = s.sendJSON(protocol.ServerError{Type: protocol.TypeError, Code: de.Code, Message: de.Error()})
			return
		}
		_ = s.sendJSON(protocol.ServerError{Type: protocol.TypeError, Code: "bad_request", Message: "invalid frame"})
		return
	}

	switch msg := decoded.(type) {
	case protocol.ClientAudioChunk:
		s.handleAudio(msg, streamDoneCh)
	case protocol.ClientInterrupt:
		s.handleInterrupt()
	}
}

// handleInterrupt flags the in-flight stream, if any. An interrupt with no
// active stream is a no-op, not an error.
func (s *VoiceSession) handleInterrupt() {
	if !s.state.processing() {
		return
	}
	s.interrupted.Store(true)
	if s.state.cancelStream != nil {
		s.state.cancelStream()
	}
}

func (s *VoiceSession) handleAudio(msg protocol.ClientAudioChunk, streamDoneCh chan<- streamResult) {
	if s.state.processing() {
		// New input while a stream is in flight is rejected, not queued,
		// so a session never runs two overlapping streams.
		_ = s.sendStatus(statusBusy)
		return
	}

	audio, err := base64.StdEncoding.DecodeString(msg.DataB64)
	if err != nil {
		_ = s.sendError("bad_request", "invalid audio payload")
		return
	}
	if s.cfg.MaxAudioBytes > 0 && len(audio) > s.cfg.MaxAudioBytes {
		_ = s.sendError("too_large", "audio payload exceeds limit")
		return
	}

	_ = s.sendStatus(statusTranscribing)

	sampleRate := msg.SampleRateHz
	if sampleRate <= 0 {
		sampleRate = s.cfg.SampleRateHz
	}
	channels := msg.Channels
	if channels <= 0 {
		channels = s.cfg.Channels
	}

	tctx, tcancel := context.WithTimeout(s.ctx, s.cfg.TranscribeTimeout)
	transcript, err := s.transcriber.Transcribe(tctx, bytes.NewReader(audio), stt.TranscribeOptions{
		SampleRate: sampleRate,
		Channels:   channels,
	})
	tcancel()
	if err != nil {
		s.logger.Warn("transcription failed", "session_id", s.sessionID, "request_id", s.requestID, "error", err)
		if s.mets != nil {
			s.mets.TranscriptionFailuresTotal.Inc()
		}
		_ = s.sendError("transcription_failed", transcribeFailedMessage)
		return
	}

	text := strings.TrimSpace(transcript.Text)
	if utf8.RuneCountInString(text) < s.cfg.MinTranscriptRunes {
		if s.mets != nil {
			s.mets.TranscriptionFailuresTotal.Inc()
		}
		_ = s.sendError("transcription_failed", transcribeFailedMessage)
		return
	}

	_ = s.sendJSON(protocol.ServerTranscript{Type: protocol.TypeTranscript, Text: text})

	intent := ClassifyIntent(text, s.state.awaitingConfirmation())
	_ = s.sendJSON(protocol.ServerIntent{Type: protocol.TypeIntent, Label: string(intent)})

	startedAt := s.now()
	switch intent {
	case IntentConfirm:
		s.handleConfirm(text, startedAt)
	case IntentCancel:
		s.handleCancel(text, startedAt)
	case IntentTools, IntentConversation:
		if s.state.awaitingConfirmation() {
			// Ambiguous answer: keep the staged tool, ask again.
			s.remindConfirmation()
			return
		}
		if intent == IntentTools {
			s.stageTool(text, startedAt)
		} else {
			s.startStream(text, startedAt, streamDoneCh)
		}
	}
}

func (s *VoiceSession) handleConfirm(text string, startedAt time.Time) {
	pending := s.state.pending
	s.state = idleState()
	if pending == nil {
		_ = s.sendJSON(protocol.ServerResponseComplete{Type: protocol.TypeResponseComplete, Text: noPendingToolsReply})
		return
	}

	s.history.appendUser(text)
	_ = s.sendStatus(statusExecutingTools)

	tctx, tcancel := context.WithTimeout(s.ctx, s.cfg.ToolTimeout)
	result, err := s.tools.Execute(tctx, pending.originalText, string(IntentTools))
	tcancel()
	if err != nil {
		s.logger.Warn("tool execution failed", "session_id", s.sessionID, "request_id", s.requestID, "error", err)
		if s.mets != nil {
			s.mets.ToolCallsTotal.WithLabelValues("error").Inc()
		}
		_ = s.sendError("tool_failed", fmt.Sprintf("Tool execution failed: %v", err))
		s.observeTurn(IntentConfirm, startedAt)
		return
	}
	if s.mets != nil {
		s.mets.ToolCallsTotal.WithLabelValues("ok").Inc()
	}

	output := result.Output
	if output == "" {
		output = toolsExecutedReply
	}
	_ = s.sendJSON(protocol.ServerResponseComplete{Type: protocol.TypeResponseComplete, Text: output})
	s.history.appendAssistant(output)
	s.observeTurn(IntentConfirm, startedAt)
}

func (s *VoiceSession) handleCancel(text string, startedAt time.Time) {
	pending := s.state.pending
	s.state = idleState()
	if pending == nil {
		return
	}

	s.history.appendUser(text)
	_ = s.sendJSON(protocol.ServerResponseComplete{Type: protocol.TypeResponseComplete, Text: cancelAcknowledgment})
	s.history.appendAssistant(cancelAcknowledgment)
	s.observeTurn(IntentCancel, startedAt)
}

func (s *VoiceSession) stageTool(text string, startedAt time.Time) {
	s.history.appendUser(text)
	_ = s.sendStatus(statusIdentifyingTools)

	prompt := confirmationPrompt(text)
	s.state = awaitingState(pendingTool{originalText: text, requestedAt: s.now()})

	_ = s.sendJSON(protocol.ServerConfirmationRequest{Type: protocol.TypeConfirmationRequest, Text: prompt})
	_ = s.sendJSON(protocol.ServerResponseComplete{Type: protocol.TypeResponseComplete, Text: prompt})
	s.history.appendAssistant(prompt)
	s.observeTurn(IntentTools, startedAt)
}

func (s *VoiceSession) remindConfirmation() {
	pending := s.state.pending
	if pending == nil {
		return
	}
	_ = s.sendStatus(statusAwaitingAnswer)
	_ = s.sendJSON(protocol.ServerConfirmationRequest{Type: protocol.TypeConfirmationRequest, Text: confirmationPrompt(pending.originalText)})
}

func (s *VoiceSession) startStream(text string, startedAt time.Time, streamDoneCh chan<- streamResult) {
	window := s.history.window(s.cfg.HistoryWindow)
	s.history.appendUser(text)
	_ = s.sendStatus(statusThinking)

	s.interrupted.Store(false)

	var gctx context.Context
	var gcancel context.CancelFunc
	if s.cfg.GenerateTimeout > 0 {
		gctx, gcancel = context.WithTimeout(s.ctx, s.cfg.GenerateTimeout)
	} else {
		gctx, gcancel = context.WithCancel(s.ctx)
	}
	s.state = streamingState(gcancel)

	go s.streamGeneration(gctx, buildPrompt(window, text), startedAt, streamDoneCh)
}

// streamGeneration is the generation streamer. It runs off the run loop so
// interrupts on the control channel are observed while the backend call is
// in flight. The interrupt flag is checked at chunk boundaries only; a
// chunk whose forwarding has begun is never preempted.
func (s *VoiceSession) streamGeneration(ctx context.Context, prompt string, startedAt time.Time, streamDoneCh chan<- streamResult) {
	stream, err := s.generator.Generate(ctx, llm.Request{
		Model:       s.cfg.Model,
		Prompt:      prompt,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		if s.interrupted.Load() {
			s.emitInterrupted(startedAt, streamDoneCh)
			return
		}
		streamDoneCh <- streamResult{err: err, startedAt: startedAt}
		return
	}
	defer stream.Close()

	var full strings.Builder
	for {
		if s.interrupted.Load() {
			s.emitInterrupted(startedAt, streamDoneCh)
			return
		}

		chunk, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				streamDoneCh <- streamResult{text: full.String(), startedAt: startedAt}
				return
			}
			// Cancellation racing the flag store surfaces as a transport
			// error; report it as an interrupt when the flag is set.
			if s.interrupted.Load() {
				s.emitInterrupted(startedAt, streamDoneCh)
				return
			}
			streamDoneCh <- streamResult{err: err, startedAt: startedAt}
			return
		}

		if chunk.Text != "" || chunk.Done {
			full.WriteString(chunk.Text)
			if err := s.sendJSON(protocol.ServerResponseChunk{Type: protocol.TypeResponseChunk, Text: chunk.Text, IsFinal: chunk.Done}); err != nil {
				streamDoneCh <- streamResult{err: err, startedAt: startedAt}
				return
			}
		}
		if chunk.Done {
			streamDoneCh <- streamResult{text: full.String(), startedAt: startedAt}
			return
		}
	}
}

func (s *VoiceSession) emitInterrupted(startedAt time.Time, streamDoneCh chan<- streamResult) {
	_ = s.sendJSON(protocol.ServerResponseInterrupted{Type: protocol.TypeResponseInterrupted})
	streamDoneCh <- streamResult{interrupted: true, startedAt: startedAt}
}

// finishStream runs on the run loop once the streamer posts its result,
// completing the Streaming -> Idle transition.
func (s *VoiceSession) finishStream(res streamResult) {
	if s.state.cancelStream != nil {
		s.state.cancelStream()
	}
	s.state = idleState()

	switch {
	case res.interrupted:
		if s.mets != nil {
			s.mets.InterruptsTotal.Inc()
		}
		s.logger.Info("stream interrupted", "session_id", s.sessionID, "request_id", s.requestID)
	case res.err != nil:
		if s.mets != nil {
			s.mets.GenerationFailuresTotal.Inc()
		}
		s.logger.Warn("generation failed", "session_id", s.sessionID, "request_id", s.requestID, "error", res.err)
		_ = s.sendError("generation_failed", fmt.Sprintf("Error: %v", res.err))
	default:
		_ = s.sendJSON(protocol.ServerResponseComplete{Type: protocol.TypeResponseComplete, Text: res.text})
		s.history.appendAssistant(res.text)
	}

	s.observeTurn(IntentConversation, res.startedAt)
}

func (s *VoiceSession) sendStatus(message string) error {
	return s.sendJSON(protocol.ServerStatus{Type: protocol.TypeStatus, Message: message})
}

func (s *VoiceSession) sendError(code, message string) error {
	return s.sendJSON(protocol.ServerError{Type: protocol.TypeError, Code: code, Message: message})
}

func (s *VoiceSession) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case s.outbound <- payload:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *VoiceSession) observeTurn(intent Intent, startedAt time.Time) {
	if s.mets == nil || startedAt.IsZero() {
		return
	}
	s.mets.ObserveTurn(string(intent), s.now().Sub(startedAt))
}
