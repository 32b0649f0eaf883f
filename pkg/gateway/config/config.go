// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Upstream endpoints.
	WhisperURL    string
	GenerationURL string
	ToolHookURL   string // empty => tool intents answered with an error

	// Generation parameters.
	Model       string
	Temperature float64
	MaxTokens   int

	// Conversation shaping.
	HistoryWindow      int
	MinTranscriptRunes int

	// Default audio format hints when the client sends none.
	SampleRateHz int
	Channels     int

	// Live WebSocket limits.
	MaxAudioBytes       int
	MaxJSONMessageBytes int64
	OutboundQueueSize   int
	WSPingInterval      time.Duration
	WSWriteTimeout      time.Duration
	WSReadTimeout       time.Duration
	MaxSessionDuration  time.Duration

	// Upstream call timeouts.
	TranscribeTimeout time.Duration
	GenerateTimeout   time.Duration
	ToolTimeout       time.Duration

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VOICEGATE_ADDR", ":8080"),
		CORSAllowedOrigins:  make(map[string]struct{}),
		WhisperURL:          envOr("VOICEGATE_WHISPER_URL", "http://127.0.0.1:8081"),
		GenerationURL:       envOr("VOICEGATE_GENERATION_URL", "http://127.0.0.1:11434"),
		ToolHookURL:         strings.TrimSpace(os.Getenv("VOICEGATE_TOOL_HOOK_URL")),
		Model:               envOr("VOICEGATE_MODEL", "qwen2.5:3b"),
		Temperature:         envFloat64Or("VOICEGATE_TEMPERATURE", 0.7),
		MaxTokens:           envIntOr("VOICEGATE_MAX_TOKENS", 200),
		HistoryWindow:       envIntOr("VOICEGATE_HISTORY_WINDOW", 4),
		MinTranscriptRunes:  envIntOr("VOICEGATE_MIN_TRANSCRIPT_RUNES", 3),
		SampleRateHz:        envIntOr("VOICEGATE_SAMPLE_RATE_HZ", 16000),
		Channels:            envIntOr("VOICEGATE_CHANNELS", 1),
		MaxAudioBytes:       envIntOr("VOICEGATE_MAX_AUDIO_BYTES", 8<<20), // 8 MiB decoded
		MaxJSONMessageBytes: envInt64Or("VOICEGATE_MAX_JSON_MESSAGE_BYTES", 12<<20),
		OutboundQueueSize:   envIntOr("VOICEGATE_OUTBOUND_QUEUE_SIZE", 64),
		WSPingInterval:      envDurationOr("VOICEGATE_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:      envDurationOr("VOICEGATE_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:       envDurationOr("VOICEGATE_WS_READ_TIMEOUT", 0),
		MaxSessionDuration:  envDurationOr("VOICEGATE_WS_MAX_DURATION", 2*time.Hour),
		TranscribeTimeout:   envDurationOr("VOICEGATE_TRANSCRIBE_TIMEOUT", 30*time.Second),
		GenerateTimeout:     envDurationOr("VOICEGATE_GENERATE_TIMEOUT", 2*time.Minute),
		ToolTimeout:         envDurationOr("VOICEGATE_TOOL_TIMEOUT", 30*time.Second),
		ReadHeaderTimeout:   envDurationOr("VOICEGATE_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("VOICEGATE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("VOICEGATE_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if strings.TrimSpace(cfg.Addr) == "" {
		return Config{}, fmt.Errorf("VOICEGATE_ADDR must not be empty")
	}
	if err := validateURL("VOICEGATE_WHISPER_URL", cfg.WhisperURL); err != nil {
		return Config{}, err
	}
	if err := validateURL("VOICEGATE_GENERATION_URL", cfg.GenerationURL); err != nil {
		return Config{}, err
	}
	if cfg.ToolHookURL != "" {
		if err := validateURL("VOICEGATE_TOOL_HOOK_URL", cfg.ToolHookURL); err != nil {
			return Config{}, err
		}
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return Config{}, fmt.Errorf("VOICEGATE_MODEL must not be empty")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return Config{}, fmt.Errorf("VOICEGATE_TEMPERATURE must be in [0, 2]")
	}
	if cfg.MaxTokens <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_MAX_TOKENS must be > 0")
	}
	if cfg.HistoryWindow <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_HISTORY_WINDOW must be > 0")
	}
	if cfg.MinTranscriptRunes <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_MIN_TRANSCRIPT_RUNES must be > 0")
	}
	if cfg.SampleRateHz <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_SAMPLE_RATE_HZ must be > 0")
	}
	if cfg.Channels <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_CHANNELS must be > 0")
	}
	if cfg.MaxAudioBytes <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_MAX_AUDIO_BYTES must be > 0")
	}
	if cfg.MaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if int64(cfg.MaxAudioBytes) > cfg.MaxJSONMessageBytes {
		return Config{}, fmt.Errorf("VOICEGATE_MAX_AUDIO_BYTES must be <= VOICEGATE_MAX_JSON_MESSAGE_BYTES")
	}
	if cfg.OutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("VOICEGATE_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.MaxSessionDuration < 0 {
		return Config{}, fmt.Errorf("VOICEGATE_WS_MAX_DURATION must be >= 0")
	}
	if cfg.TranscribeTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_TRANSCRIBE_TIMEOUT must be > 0")
	}
	if cfg.GenerateTimeout < 0 {
		return Config{}, fmt.Errorf("VOICEGATE_GENERATE_TIMEOUT must be >= 0")
	}
	if cfg.ToolTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_TOOL_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL", key)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", key)
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
