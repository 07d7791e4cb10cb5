package store

import (
	"fmt"
	"sync"

	"github.com/quillchat/quill/pkg/chat"
)

// MemoryStore keeps everything in process. It is the default when no store
// directory is configured and the backend used throughout the tests.
type MemoryStore struct {
	mu       sync.RWMutex
	topics   map[string]chat.Topic
	messages map[string][]chat.Message // topicID -> ordered messages
	blocks   map[string]chat.Block
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		topics:   make(map[string]chat.Topic),
		messages: make(map[string][]chat.Message),
		blocks:   make(map[string]chat.Block),
	}
}

func (s *MemoryStore) SaveTopic(t chat.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[t.ID] = t
	return nil
}

func (s *MemoryStore) GetTopic(id string) (chat.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topics[id]
	if !ok {
		return chat.Topic{}, fmt.Errorf("topic %s not found", id)
	}
	return t, nil
}

func (s *MemoryStore) AppendMessage(topicID string, m chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topics[topicID]; !ok {
		return fmt.Errorf("topic %s not found", topicID)
	}
	s.messages[topicID] = append(s.messages[topicID], m)
	return nil
}

func (s *MemoryStore) UpdateMessage(topicID, messageID string, p MessagePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[topicID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			applyMessagePatch(&msgs[i], p)
			return nil
		}
	}
	return fmt.Errorf("message %s not found in topic %s", messageID, topicID)
}

func (s *MemoryStore) ListMessages(topicID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[topicID]
	out := make([]chat.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) ClearTopicMessages(topicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[topicID] {
		for _, blockID := range m.BlockIDs {
			delete(s.blocks, blockID)
		}
	}
	delete(s.messages, topicID)
	return nil
}

func (s *MemoryStore) UpsertBlock(b chat.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.ID] = b
	return nil
}

func (s *MemoryStore) UpdateBlock(blockID string, p BlockPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[blockID]
	if !ok {
		return fmt.Errorf("block %s not found", blockID)
	}
	applyBlockPatch(&b, p)
	s.blocks[blockID] = b
	return nil
}

func (s *MemoryStore) GetBlock(blockID string) (chat.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[blockID]
	if !ok {
		return chat.Block{}, fmt.Errorf("block %s not found", blockID)
	}
	return b, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
