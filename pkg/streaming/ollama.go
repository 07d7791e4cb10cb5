package streaming

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quillchat/quill/pkg/chat"
)

// OllamaSource streams chunks from Ollama's NDJSON /api/chat endpoint.
//
// Reasoning models interleave their reasoning with the answer, either in a
// dedicated "thinking" message field or inline between <think> tags; both
// forms are split into thinking chunks with elapsed-time tracking, the
// remainder into text chunks.
type OllamaSource struct {
	baseURL    string
	httpClient *http.Client
}

func NewOllamaSource(baseURL string) *OllamaSource {
	return &OllamaSource{
		baseURL: baseURL,
		// Streaming responses stay open for the whole generation; the
		// request context governs the lifetime, not a client timeout.
		httpClient: &http.Client{},
	}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Message   struct {
		Role     string `json:"role"`
		Content  string `json:"content"`
		Thinking string `json:"thinking,omitempty"`
	} `json:"message"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *OllamaSource) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	body := ollamaChatRequest{
		Model:  req.Model,
		Stream: true,
	}
	if req.SystemPrompt != "" {
		body.Messages = append(body.Messages, ollamaMessage{Role: chat.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", s.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		errorBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
		}
		var errorResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(errorBody, &errorResp) == nil && errorResp.Error != "" {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, errorResp.Error)
		}
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(errorBody))
	}

	chunks := make(chan Chunk, 100)
	go s.readStream(ctx, resp.Body, chunks)
	return chunks, nil
}

func (s *OllamaSource) readStream(ctx context.Context, body io.ReadCloser, out chan<- Chunk) {
	defer close(out)
	defer body.Close()

	emit := func(c Chunk) {
		c.Timestamp = time.Now()
		out <- c
	}
	splitter := newThinkSplitter(emit)
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			emit(Chunk{Kind: ChunkError, Err: ctx.Err(), Cancelled: true})
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp ollamaChatResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			emit(Chunk{Kind: ChunkError, Err: fmt.Errorf("failed to parse stream chunk: %w", err)})
			return
		}
		if resp.Error != "" {
			emit(Chunk{Kind: ChunkError, Err: fmt.Errorf("generation failed: %s", resp.Error)})
			return
		}

		if resp.Message.Thinking != "" {
			splitter.FeedThinking(resp.Message.Thinking)
		}
		if resp.Message.Content != "" {
			splitter.Feed(resp.Message.Content)
		}
		if resp.Done {
			splitter.Finish()
			emit(Chunk{Kind: BlockComplete})
			return
		}
	}

	if err := scanner.Err(); err != nil {
		cancelled := ctx.Err() != nil
		if cancelled {
			err = ctx.Err()
		}
		emit(Chunk{Kind: ChunkError, Err: fmt.Errorf("stream reading error: %w", err), Cancelled: cancelled})
		return
	}
	// The connection closed without a done marker; treat it as a failure
	// so the message never hangs in streaming.
	emit(Chunk{Kind: ChunkError, Err: fmt.Errorf("stream ended without completion")})
}
