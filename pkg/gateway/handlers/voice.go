package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voicegate/voicegate/pkg/gateway/config"
	"github.com/voicegate/voicegate/pkg/gateway/live/session"
	"github.com/voicegate/voicegate/pkg/gateway/live/sessions"
	"github.com/voicegate/voicegate/pkg/gateway/metrics"
	"github.com/voicegate/voicegate/pkg/gateway/mw"
)

// VoiceHandler upgrades /v1/voice requests and runs one session per
// connection.
type VoiceHandler struct {
	Config      config.Config
	Logger      *slog.Logger
	Transcriber session.Transcriber
	Generator   session.Generator
	Tools       session.ToolExecutor
	Metrics     *metrics.Metrics
	Sessions    *sessions.Registry

	// Draining reports whether the gateway has begun shutdown. New
	// connections are refused while draining.
	Draining func() bool
}

func (h VoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", reqID)
		return
	}
	if h.Draining != nil && h.Draining() {
		writeJSONError(w, http.StatusServiceUnavailable, "draining", "gateway is draining", reqID)
		return
	}
	if !h.originAllowed(r) {
		writeJSONError(w, http.StatusForbidden, "origin_forbidden", "origin is not allowed", reqID)
		return
	}

	upgrader := websocket.Upgrader{
		// Origin was checked above against the allowlist.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sessionID := "sess_" + uuid.NewString()
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sess, err := session.New(session.Dependencies{
		Conn:        conn,
		Logger:      logger,
		Transcriber: h.Transcriber,
		Generator:   h.Generator,
		Tools:       h.Tools,
		Metrics:     h.Metrics,
		SessionID:   sessionID,
		RequestID:   reqID,
		Config: session.Config{
			Model:               h.Config.Model,
			Temperature:         h.Config.Temperature,
			MaxTokens:           h.Config.MaxTokens,
			HistoryWindow:       h.Config.HistoryWindow,
			MinTranscriptRunes:  h.Config.MinTranscriptRunes,
			SampleRateHz:        h.Config.SampleRateHz,
			Channels:            h.Config.Channels,
			MaxAudioBytes:       h.Config.MaxAudioBytes,
			MaxJSONMessageBytes: h.Config.MaxJSONMessageBytes,
			OutboundQueueSize:   h.Config.OutboundQueueSize,
			PingInterval:        h.Config.WSPingInterval,
			WriteTimeout:        h.Config.WSWriteTimeout,
			ReadTimeout:         h.Config.WSReadTimeout,
			MaxSessionDuration:  h.Config.MaxSessionDuration,
			TranscribeTimeout:   h.Config.TranscribeTimeout,
			GenerateTimeout:     h.Config.GenerateTimeout,
			ToolTimeout:         h.Config.ToolTimeout,
		},
	})
	if err != nil {
		logger.Error("session setup failed", "request_id", reqID, "error", err)
		return
	}

	unregister := h.Sessions.Register(sessionID, sessions.Handle{
		Cancel: sess.Cancel,
		Notify: sess.Notify,
	})
	defer unregister()

	logger.Info("session started", "session_id", sessionID, "request_id", reqID)
	if err := sess.Run(); err != nil {
		logger.Warn("session ended with error", "session_id", sessionID, "request_id", reqID, "error", err)
		return
	}
	logger.Info("session ended", "session_id", sessionID, "request_id", reqID)
}

// originAllowed admits non-browser clients (no Origin header) and browser
// clients whose origin is allowlisted.
func (h VoiceHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSONError(w http.ResponseWriter, status int, code, message, requestID string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error errorBody `json:"error"`
	}{Error: errorBody{Code: code, Message: message, RequestID: requestID}})
}
