package streaming

import (
	"context"
	"time"

	"github.com/quillchat/quill/pkg/chat"
)

// ChunkKind identifies one incremental event in a streaming generation
// response.
type ChunkKind string

const (
	ThinkingStart    ChunkKind = "thinking-start"
	ThinkingDelta    ChunkKind = "thinking-delta"
	ThinkingComplete ChunkKind = "thinking-complete"
	TextStart        ChunkKind = "text-start"
	TextDelta        ChunkKind = "text-delta"
	TextComplete     ChunkKind = "text-complete"
	ChunkError       ChunkKind = "error"
	BlockComplete    ChunkKind = "block-complete"
)

// Chunk is a single event from a generation stream.
//
// For a given kind the source delivers start -> delta* -> complete, never
// interleaved with a second start of the same kind. ChunkError and
// BlockComplete are terminal for the whole stream; nothing follows them.
type Chunk struct {
	Kind      ChunkKind
	Text      string    // delta or final text, depending on Kind
	ElapsedMS int64     // thinking elapsed time, monotonically non-decreasing
	Err       error     // set only for ChunkError
	Cancelled bool      // true when Err is a user-initiated cancellation
	Timestamp time.Time // when the chunk was produced
}

// Terminal reports whether no further chunks follow this one.
func (c Chunk) Terminal() bool {
	return c.Kind == ChunkError || c.Kind == BlockComplete
}

// Request carries everything a Source needs for one generation call: the
// context window (oldest first, in-flight messages already excluded) and the
// assistant configuration.
type Request struct {
	AskID        string
	Model        string
	SystemPrompt string
	Messages     []chat.Message
}

// Source produces the chunk stream for one logical request. One Source
// call serves exactly one ask; cancelling ctx makes the stream terminate
// promptly with a cancellation-flagged error chunk rather than silently
// closing.
type Source interface {
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}
