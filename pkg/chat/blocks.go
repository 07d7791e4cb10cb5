package chat

import (
	"time"

	"github.com/google/uuid"
)

// Block is a typed content unit inside one assistant message. At most one
// block of each kind exists per message; repeated deltas of the same kind
// fold into the same block.
type Block struct {
	ID         string      `json:"id"`
	MessageID  string      `json:"message_id"`
	Kind       BlockKind   `json:"kind"`
	Content    string      `json:"content"`
	Status     BlockStatus `json:"status"`
	ThinkingMS int64       `json:"thinking_ms,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

type BlockKind string

const (
	BlockThinking BlockKind = "thinking"
	BlockText     BlockKind = "text"
)

type BlockStatus string

const (
	BlockStreaming BlockStatus = "streaming"
	BlockSuccess   BlockStatus = "success"
	BlockPaused    BlockStatus = "paused"
	BlockError     BlockStatus = "error"
)

// Terminal reports whether the status can no longer change. Block statuses
// move forward only: streaming settles to exactly one of success, paused or
// error and never re-enters streaming.
func (s BlockStatus) Terminal() bool {
	return s == BlockSuccess || s == BlockPaused || s == BlockError
}

func NewBlock(messageID string, kind BlockKind) Block {
	now := time.Now()
	return Block{
		ID:        uuid.NewString(),
		MessageID: messageID,
		Kind:      kind,
		Status:    BlockStreaming,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTextBlock creates an already-complete text block, used for user
// message content which is never streamed.
func NewTextBlock(messageID, content string) Block {
	b := NewBlock(messageID, BlockText)
	b.Content = content
	b.Status = BlockSuccess
	return b
}

func (b Block) IsThinking() bool {
	return b.Kind == BlockThinking
}

func (b Block) IsText() bool {
	return b.Kind == BlockText
}
