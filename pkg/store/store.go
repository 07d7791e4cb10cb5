package store

import (
	"time"

	"github.com/quillchat/quill/pkg/chat"
)

// MessagePatch is a partial update to a stored message. Nil fields are left
// untouched.
type MessagePatch struct {
	Status   *chat.MessageStatus
	BlockIDs []string
}

// BlockPatch is a partial update to a stored block. Nil fields are left
// untouched.
type BlockPatch struct {
	Content    *string
	Status     *chat.BlockStatus
	ThinkingMS *int64
}

// Store is the persistent conversation store: topics own ordered messages,
// assistant messages own blocks. During an active ask the assembler is the
// sole writer for the block and message attributes it owns.
type Store interface {
	SaveTopic(t chat.Topic) error
	GetTopic(id string) (chat.Topic, error)

	AppendMessage(topicID string, m chat.Message) error
	UpdateMessage(topicID, messageID string, p MessagePatch) error
	ListMessages(topicID string) ([]chat.Message, error)
	ClearTopicMessages(topicID string) error

	UpsertBlock(b chat.Block) error
	UpdateBlock(blockID string, p BlockPatch) error
	GetBlock(blockID string) (chat.Block, error)

	Close() error
}

func applyMessagePatch(m *chat.Message, p MessagePatch) {
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.BlockIDs != nil {
		m.BlockIDs = p.BlockIDs
	}
}

func applyBlockPatch(b *chat.Block, p BlockPatch) {
	if p.Content != nil {
		b.Content = *p.Content
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.ThinkingMS != nil {
		b.ThinkingMS = *p.ThinkingMS
	}
	b.UpdatedAt = time.Now()
}
