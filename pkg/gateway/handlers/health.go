package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/voicegate/voicegate/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config config.Config
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK              bool     `json:"ok"`
		Model           string   `json:"model"`
		ToolHookEnabled bool     `json:"tool_hook_enabled"`
		Issues          []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if strings.TrimSpace(h.Config.WhisperURL) == "" {
		issues = append(issues, "whisper url not configured")
	}
	if strings.TrimSpace(h.Config.GenerationURL) == "" {
		issues = append(issues, "generation url not configured")
	}
	if strings.TrimSpace(h.Config.Model) == "" {
		issues = append(issues, "generation model not configured")
	}
	if h.Config.MaxTokens <= 0 {
		issues = append(issues, "max_tokens must be > 0")
	}
	if h.Config.HistoryWindow <= 0 {
		issues = append(issues, "history_window must be > 0")
	}
	if h.Config.MaxAudioBytes <= 0 || h.Config.MaxJSONMessageBytes <= 0 {
		issues = append(issues, "audio and message limits must be > 0")
	}
	if h.Config.TranscribeTimeout <= 0 || h.Config.ToolTimeout <= 0 {
		issues = append(issues, "upstream timeouts must be > 0")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:              ok,
		Model:           h.Config.Model,
		ToolHookEnabled: strings.TrimSpace(h.Config.ToolHookURL) != "",
		Issues:          issues,
	})
}
