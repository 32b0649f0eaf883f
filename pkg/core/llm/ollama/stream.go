package ollama

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/voicegate/voicegate/pkg/core/llm"
)

// generateLine is one NDJSON record from /api/generate.
type generateLine struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type chunkStream struct {
	reader   *bufio.Reader
	closer   io.Closer
	err      error
	finished bool
}

func newChunkStream(body io.ReadCloser) *chunkStream {
	return &chunkStream{
		reader: bufio.NewReader(body),
		closer: body,
	}
}

// Next returns the next chunk in arrival order, or io.EOF once the backend
// signalled done. Mid-stream error records terminate the stream.
func (s *chunkStream) Next() (llm.Chunk, error) {
	if s.err != nil {
		return llm.Chunk{}, s.err
	}
	if s.finished {
		return llm.Chunk{}, io.EOF
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF && strings.TrimSpace(line) == "" {
				// Stream ended without a done record; treat as truncated.
				s.err = io.ErrUnexpectedEOF
				return llm.Chunk{}, s.err
			}
			if err != io.EOF {
				s.err = err
				return llm.Chunk{}, err
			}
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var record generateLine
		if uerr := json.Unmarshal([]byte(line), &record); uerr != nil {
			s.err = fmt.Errorf("ollama: decode stream record: %w", uerr)
			return llm.Chunk{}, s.err
		}
		if record.Error != "" {
			s.err = fmt.Errorf("ollama: stream error: %s", record.Error)
			return llm.Chunk{}, s.err
		}
		if record.Done {
			s.finished = true
		}
		return llm.Chunk{Text: record.Response, Done: record.Done}, nil
	}
}

func (s *chunkStream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
