package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/quillchat/quill/pkg/chat"
)

// PebbleStore persists topics, messages and blocks in a Pebble database.
//
// Key layout:
//
//	topic:<topicID>                      topic JSON
//	topic:<topicID>:msg:<ts>-<seq>       message JSON, sortable insertion order
//	msgidx:<topicID>:<messageID>         the message's insertion key
//	block:<blockID>                      block JSON
type PebbleStore struct {
	db *pebble.DB

	// mu serializes read-modify-write cycles for partial updates.
	mu sync.Mutex

	// seq breaks ties when two messages share a nanosecond timestamp.
	seq uint64
}

func OpenPebble(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func topicKey(topicID string) []byte {
	return []byte("topic:" + topicID)
}

func messagePrefix(topicID string) []byte {
	return []byte("topic:" + topicID + ":msg:")
}

func messageIndexKey(topicID, messageID string) []byte {
	return []byte("msgidx:" + topicID + ":" + messageID)
}

func blockKey(blockID string) []byte {
	return []byte("block:" + blockID)
}

func (s *PebbleStore) SaveTopic(t chat.Topic) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal topic: %w", err)
	}
	return s.db.Set(topicKey(t.ID), data, pebble.Sync)
}

func (s *PebbleStore) GetTopic(id string) (chat.Topic, error) {
	var t chat.Topic
	if err := s.getJSON(topicKey(id), &t); err != nil {
		return chat.Topic{}, fmt.Errorf("topic %s: %w", id, err)
	}
	return t, nil
}

func (s *PebbleStore) AppendMessage(topicID string, m chat.Message) error {
	ts := time.Now().UTC().UnixNano()
	n := atomic.AddUint64(&s.seq, 1)
	key := fmt.Sprintf("%s%020d-%06d", messagePrefix(topicID), ts, n)

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := s.db.Set([]byte(key), data, pebble.Sync); err != nil {
		return err
	}
	return s.db.Set(messageIndexKey(topicID, m.ID), []byte(key), pebble.Sync)
}

func (s *PebbleStore) UpdateMessage(topicID, messageID string, p MessagePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.get(messageIndexKey(topicID, messageID))
	if err != nil {
		return fmt.Errorf("message %s not found in topic %s: %w", messageID, topicID, err)
	}
	var m chat.Message
	if err := s.getJSON(key, &m); err != nil {
		return fmt.Errorf("message %s: %w", messageID, err)
	}
	applyMessagePatch(&m, p)
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return s.db.Set(key, data, pebble.Sync)
}

func (s *PebbleStore) ListMessages(topicID string) ([]chat.Message, error) {
	prefix := messagePrefix(topicID)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []chat.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m chat.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("corrupt message at %s: %w", iter.Key(), err)
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

func (s *PebbleStore) ClearTopicMessages(topicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := s.ListMessages(topicID)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, m := range msgs {
		for _, blockID := range m.BlockIDs {
			if err := batch.Delete(blockKey(blockID), nil); err != nil {
				return err
			}
		}
		if err := batch.Delete(messageIndexKey(topicID, m.ID), nil); err != nil {
			return err
		}
	}
	prefix := messagePrefix(topicID)
	if err := batch.DeleteRange(prefix, append(prefix, 0xff), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) UpsertBlock(b chat.Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal block: %w", err)
	}
	return s.db.Set(blockKey(b.ID), data, pebble.Sync)
}

func (s *PebbleStore) UpdateBlock(blockID string, p BlockPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b chat.Block
	if err := s.getJSON(blockKey(blockID), &b); err != nil {
		return fmt.Errorf("block %s: %w", blockID, err)
	}
	applyBlockPatch(&b, p)
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal block: %w", err)
	}
	return s.db.Set(blockKey(blockID), data, pebble.Sync)
}

func (s *PebbleStore) GetBlock(blockID string) (chat.Block, error) {
	var b chat.Block
	if err := s.getJSON(blockKey(blockID), &b); err != nil {
		return chat.Block{}, fmt.Errorf("block %s: %w", blockID, err)
	}
	return b, nil
}

func (s *PebbleStore) get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, closer.Close()
}

func (s *PebbleStore) getJSON(key []byte, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
