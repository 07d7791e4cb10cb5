package streaming

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/quillchat/quill/pkg/chat"
)

// LangChainSource streams chunks through a langchaingo model. The streaming
// callback carries answer text only, so this source never emits thinking
// chunks.
type LangChainSource struct {
	llm   llms.Model
	model string
}

// NewLangChainSource builds a source over langchaingo's Ollama binding.
func NewLangChainSource(baseURL, model string) (*LangChainSource, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return &LangChainSource{llm: llm, model: model}, nil
}

func (s *LangChainSource) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	messages := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for _, m := range req.Messages {
		messageType := llms.ChatMessageTypeHuman
		switch m.Role {
		case chat.RoleAssistant:
			messageType = llms.ChatMessageTypeAI
		case chat.RoleSystem:
			messageType = llms.ChatMessageTypeSystem
		}
		messages = append(messages, llms.TextParts(messageType, m.Content))
	}

	out := make(chan Chunk, 100)
	go func() {
		defer close(out)

		emit := func(c Chunk) {
			c.Timestamp = time.Now()
			out <- c
		}

		var content strings.Builder
		started := false
		streamFunc := func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			if !started {
				started = true
				emit(Chunk{Kind: TextStart})
			}
			content.Write(chunk)
			emit(Chunk{Kind: TextDelta, Text: string(chunk)})
			return ctx.Err()
		}

		resp, err := s.llm.GenerateContent(ctx, messages, llms.WithStreamingFunc(streamFunc))
		if err != nil {
			cancelled := errors.Is(err, context.Canceled) || ctx.Err() != nil
			emit(Chunk{Kind: ChunkError, Err: err, Cancelled: cancelled})
			return
		}

		final := content.String()
		if final == "" && len(resp.Choices) > 0 {
			// Some backends return everything in one shot with no
			// streaming callbacks.
			final = resp.Choices[0].Content
			if final != "" {
				emit(Chunk{Kind: TextStart})
				emit(Chunk{Kind: TextDelta, Text: final})
			}
		}
		if final != "" {
			emit(Chunk{Kind: TextComplete, Text: strings.TrimSpace(final)})
		}
		emit(Chunk{Kind: BlockComplete})
	}()

	return out, nil
}
