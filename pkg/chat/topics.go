package chat

import (
	"time"

	"github.com/google/uuid"
)

// Topic is an ordered conversation thread. Messages belonging to a topic
// live in the store, keyed by the topic id.
type Topic struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewTopic(name string) Topic {
	return Topic{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now(),
	}
}
