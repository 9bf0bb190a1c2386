package chat

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"deepsearch-workers/internal/common/logger"
)

// Chunk is one NDJSON line of a streamed chat response.
type Chunk struct {
	ID              string                 `json:"id,omitempty"`
	Model           string                 `json:"model,omitempty"`
	HistoryMetadata map[string]interface{} `json:"history_metadata,omitempty"`
	Choices         []ChunkChoice          `json:"choices"`
}

type ChunkChoice struct {
	Messages []Message `json:"messages"`
}

// Response is a stream collapsed into a single assistant message.
type Response struct {
	ID              string                 `json:"id"`
	Model           string                 `json:"model"`
	HistoryMetadata map[string]interface{} `json:"history_metadata"`
	Message         Message                `json:"message"`
}

// dateLayout is UTC ISO-8601 with milliseconds, e.g. 2024-05-01T10:00:00.123Z.
const dateLayout = "2006-01-02T15:04:05.000Z"

// Collect reads an NDJSON chunk stream to the end and concatenates the
// content of every message of every choice in arrival order. id, model and
// history_metadata come from the first chunk that carries each of them.
// Lines that are not valid JSON are logged and skipped; a read error fails.
func Collect(r io.Reader, log logger.Logger) (*Response, error) {
	reader := bufio.NewReader(r)
	resp := &Response{}
	var content strings.Builder
	lineNo := 0

	for {
		line, readErr := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			lineNo++
			var chunk Chunk
			if err := json.Unmarshal(trimmed, &chunk); err != nil {
				log.Warn("skipping malformed chat chunk", map[string]interface{}{
					"line":  lineNo,
					"error": err.Error(),
				})
			} else {
				absorb(resp, &chunk, &content)
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("%w: read stream: %v", ErrTransport, readErr)
		}
	}

	resp.Message = Message{
		ID:      resp.ID,
		Role:    RoleAssistant,
		Content: content.String(),
		Date:    time.Now().UTC().Format(dateLayout),
	}
	return resp, nil
}

func absorb(resp *Response, chunk *Chunk, content *strings.Builder) {
	if resp.ID == "" && chunk.ID != "" {
		resp.ID = chunk.ID
	}
	if resp.Model == "" && chunk.Model != "" {
		resp.Model = chunk.Model
	}
	if resp.HistoryMetadata == nil && chunk.HistoryMetadata != nil {
		resp.HistoryMetadata = chunk.HistoryMetadata
	}
	for _, choice := range chunk.Choices {
		for _, msg := range choice.Messages {
			content.WriteString(msg.Content)
		}
	}
}
