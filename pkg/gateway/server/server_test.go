package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voicegate/voicegate/pkg/gateway/config"
)

func testConfig() config.Config {
	return config.Config{
		Addr:                ":0",
		CORSAllowedOrigins:  map[string]struct{}{},
		WhisperURL:          "http://127.0.0.1:8081",
		GenerationURL:       "http://127.0.0.1:11434",
		Model:               "qwen2.5:3b",
		Temperature:         0.7,
		MaxTokens:           200,
		HistoryWindow:       4,
		MinTranscriptRunes:  3,
		SampleRateHz:        16000,
		Channels:            1,
		MaxAudioBytes:       8 << 20,
		MaxJSONMessageBytes: 12 << 20,
		OutboundQueueSize:   64,
		WSPingInterval:      20 * time.Second,
		WSWriteTimeout:      5 * time.Second,
		TranscribeTimeout:   30 * time.Second,
		ToolTimeout:         30 * time.Second,
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := New(testConfig(), logger)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	return gw, srv
}

func TestServerHealthRoute(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("request id middleware not applied")
	}
}

func TestServerReadyRoute(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestServerMetricsRoute(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "voicegate_sessions_active") {
		t.Fatalf("metrics output missing gateway series:\n%s", body)
	}
}

func TestServerVoiceRouteMethodCheck(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/voice", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestServerDrainRefusesNewSessions(t *testing.T) {
	gw, srv := newTestServer(t)
	gw.BeginDrain()

	resp, err := http.Get(srv.URL + "/v1/voice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
