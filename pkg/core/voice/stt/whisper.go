package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
)

// WhisperProvider implements Provider against a whisper-server style HTTP
// endpoint: POST {base}/inference with a multipart audio file, JSON response
// containing the transcribed text.
type WhisperProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewWhisper creates a whisper-server STT provider.
func NewWhisper(baseURL string) *WhisperProvider {
	return NewWhisperWithClient(baseURL, &http.Client{})
}

// NewWhisperWithClient creates a whisper-server STT provider with a custom
// HTTP client.
func NewWhisperWithClient(baseURL string, client *http.Client) *WhisperProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &WhisperProvider{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: client,
	}
}

// Name returns the provider identifier.
func (w *WhisperProvider) Name() string {
	return "whisper"
}

// Transcribe converts audio to text.
func (w *WhisperProvider) Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error) {
	audioData, err := io.ReadAll(audio)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", "audio."+fileExtension(opts.Format))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(audioData); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}

	if err := mw.WriteField("response_format", "json"); err != nil {
		return nil, fmt.Errorf("write response_format field: %w", err)
	}
	language := opts.Language
	if language == "" {
		language = "en"
	}
	if err := mw.WriteField("language", language); err != nil {
		return nil, fmt.Errorf("write language field: %w", err)
	}
	if opts.SampleRate > 0 {
		if err := mw.WriteField("sample_rate", strconv.Itoa(opts.SampleRate)); err != nil {
			return nil, fmt.Errorf("write sample_rate field: %w", err)
		}
	}
	if opts.Channels > 0 {
		if err := mw.WriteField("channels", strconv.Itoa(opts.Channels)); err != nil {
			return nil, fmt.Errorf("write channels field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/inference", &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, &TranscribeError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		message := strings.TrimSpace(string(raw))
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, &TranscribeError{StatusCode: resp.StatusCode, Message: message}
	}

	var decoded struct {
		Text     string  `json:"text"`
		Language string  `json:"language,omitempty"`
		Duration float64 `json:"duration,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &TranscribeError{StatusCode: resp.StatusCode, Message: "decode response: " + err.Error()}
	}

	detected := decoded.Language
	if detected == "" {
		detected = language
	}
	return &Transcript{
		Text:     strings.TrimSpace(decoded.Text),
		Language: detected,
		Duration: decoded.Duration,
	}, nil
}

func fileExtension(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "":
		return "wav"
	case "pcm_s16le", "pcm":
		return "wav"
	default:
		return format
	}
}
