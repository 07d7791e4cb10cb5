package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID        string        `json:"id"`
	TopicID   string        `json:"topic_id"`
	Role      string        `json:"role"`
	AskID     string        `json:"ask_id,omitempty"`
	Status    MessageStatus `json:"status"`
	Content   string        `json:"content,omitempty"`
	BlockIDs  []string      `json:"block_ids,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageStreaming MessageStatus = "streaming"
	MessageSuccess   MessageStatus = "success"
	MessagePaused    MessageStatus = "paused"
	MessageError     MessageStatus = "error"
)

// InFlight reports whether the message is still being produced. Both
// "pending" and "streaming" match; settled statuses do not.
func (s MessageStatus) InFlight() bool {
	return strings.Contains(string(s), "ing")
}

// Terminal reports whether the status can no longer change.
func (s MessageStatus) Terminal() bool {
	return s == MessageSuccess || s == MessagePaused || s == MessageError
}

func NewUserMessage(topicID, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		TopicID:   topicID,
		Role:      RoleUser,
		Status:    MessageSuccess,
		Content:   strings.TrimSpace(content),
		CreatedAt: time.Now(),
	}
}

// NewAssistantMessage creates the placeholder an assistant reply streams
// into. askID is the id of the user message that triggered it.
func NewAssistantMessage(topicID, askID string) Message {
	return Message{
		ID:        uuid.NewString(),
		TopicID:   topicID,
		Role:      RoleAssistant,
		AskID:     askID,
		Status:    MessagePending,
		CreatedAt: time.Now(),
	}
}

func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == "" && len(m.BlockIDs) == 0
}

func (m Message) HasBlock(blockID string) bool {
	for _, id := range m.BlockIDs {
		if id == blockID {
			return true
		}
	}
	return false
}
