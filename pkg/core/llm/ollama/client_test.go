package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voicegate/voicegate/pkg/core/llm"
)

func TestGenerateStreamsChunks(t *testing.T) {
	var gotBody generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generate" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		io.WriteString(w, `{"response":"Hello","done":false}`+"\n")
		io.WriteString(w, `{"response":" world","done":false}`+"\n")
		io.WriteString(w, `{"response":"","done":true}`+"\n")
	}))
	defer srv.Close()

	client := New(srv.URL)
	stream, err := client.Generate(context.Background(), llm.Request{
		Model:       "qwen2.5:3b",
		Prompt:      "say hello",
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	defer stream.Close()

	var texts []string
	var sawDone bool
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		texts = append(texts, chunk.Text)
		if chunk.Done {
			sawDone = true
		}
	}

	if got := strings.Join(texts, ""); got != "Hello world" {
		t.Fatalf("streamed text = %q", got)
	}
	if !sawDone {
		t.Fatal("done record not surfaced as a chunk")
	}

	if !gotBody.Stream {
		t.Fatal("request did not ask for streaming")
	}
	if gotBody.Model != "qwen2.5:3b" || gotBody.Prompt != "say hello" {
		t.Fatalf("request body = %+v", gotBody)
	}
	if gotBody.Options.Temperature != 0.7 || gotBody.Options.NumPredict != 200 {
		t.Fatalf("request options = %+v", gotBody.Options)
	}
}

func TestGenerateDoneWithoutTrailingNewline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":"hi","done":false}`+"\n")
		io.WriteString(w, `{"response":"","done":true}`) // no newline
	}))
	defer srv.Close()

	stream, err := New(srv.URL).Generate(context.Background(), llm.Request{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	defer stream.Close()

	if chunk, err := stream.Next(); err != nil || chunk.Text != "hi" {
		t.Fatalf("first chunk = %+v, %v", chunk, err)
	}
	chunk, err := stream.Next()
	if err != nil || !chunk.Done {
		t.Fatalf("final chunk = %+v, %v", chunk, err)
	}
	if _, err := stream.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("after done: err = %v, want io.EOF", err)
	}
}

func TestGenerateTruncatedStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":"partial","done":false}`+"\n")
		// Connection ends without a done record.
	}))
	defer srv.Close()

	stream, err := New(srv.URL).Generate(context.Background(), llm.Request{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	defer stream.Close()

	if _, err := stream.Next(); err != nil {
		t.Fatalf("first chunk: %v", err)
	}
	if _, err := stream.Next(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("truncated stream: err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestGenerateMidStreamErrorRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":"ok so far","done":false}`+"\n")
		io.WriteString(w, `{"error":"model crashed"}`+"\n")
	}))
	defer srv.Close()

	stream, err := New(srv.URL).Generate(context.Background(), llm.Request{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	defer stream.Close()

	if _, err := stream.Next(); err != nil {
		t.Fatalf("first chunk: %v", err)
	}
	_, err = stream.Next()
	if err == nil || !strings.Contains(err.Error(), "model crashed") {
		t.Fatalf("err = %v, want stream error", err)
	}
	// The error is sticky.
	if _, again := stream.Next(); again == nil {
		t.Fatal("error not sticky across Next calls")
	}
}

func TestGenerateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"model \"missing\" not found"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Generate(context.Background(), llm.Request{Model: "missing", Prompt: "p"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Message, "not found") {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestGenerateRequiresModel(t *testing.T) {
	if _, err := New("http://127.0.0.1:1").Generate(context.Background(), llm.Request{Prompt: "p"}); err == nil {
		t.Fatal("Generate accepted empty model")
	}
}

func TestGenerateHonorsContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":"first","done":false}`+"\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := New(srv.URL).Generate(ctx, llm.Request{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	defer stream.Close()

	if _, err := stream.Next(); err != nil {
		t.Fatalf("first chunk: %v", err)
	}

	cancel()
	if _, err := stream.Next(); err == nil {
		t.Fatal("Next succeeded after cancel")
	}
}
