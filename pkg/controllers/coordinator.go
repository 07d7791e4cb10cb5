package controllers

import (
	"context"
	"fmt"
	"sync"

	"github.com/quillchat/quill/pkg/chat"
	"github.com/quillchat/quill/pkg/logger"
	"github.com/quillchat/quill/pkg/store"
	"github.com/quillchat/quill/pkg/streaming"
)

// State is the coordinator's per-conversation request state.
type State string

const (
	StateIdle      State = "idle"
	StateAwaiting  State = "awaiting-first-output"
	StateStreaming State = "streaming"
	StateSettled   State = "settled"
)

// Coordinator owns the in-flight ask for one conversation. It issues
// requests to the chunk Source, drives chunks through the block Builder and
// the update Throttler, and exposes pause and reset.
//
// All builder state for one ask mutates under mu, so chunk processing is a
// single logical sequence even though chunks arrive on a channel; concurrent
// conversations use separate Coordinators and disjoint store keys.
type Coordinator struct {
	mu        sync.Mutex
	store     store.Store
	source    streaming.Source
	registry  *streaming.Registry
	throttler *streaming.Throttler

	model        string
	systemPrompt string
	onChunk      func(streaming.Chunk)

	topic       chat.Topic
	askID       string
	assistantID string
	builder     *streaming.Builder
	state       State
	isLoading   bool
	isOutputted bool
	lastErr     string
	firstTurn   bool
	done        chan struct{}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSystemPrompt prepends a system message to every request.
func WithSystemPrompt(prompt string) Option {
	return func(c *Coordinator) { c.systemPrompt = prompt }
}

// WithThrottler replaces the default update scheduler.
func WithThrottler(t *streaming.Throttler) Option {
	return func(c *Coordinator) { c.throttler = t }
}

// WithChunkObserver registers a callback invoked for every accepted chunk,
// used by rendering layers to mirror the stream. It runs outside the
// coordinator's lock.
func WithChunkObserver(fn func(streaming.Chunk)) Option {
	return func(c *Coordinator) { c.onChunk = fn }
}

func NewCoordinator(st store.Store, source streaming.Source, model string, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     st,
		source:    source,
		registry:  streaming.NewRegistry(),
		throttler: streaming.NewThrottler(streaming.DefaultThrottleInterval),
		model:     model,
		state:     StateIdle,
		firstTurn: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetChunkObserver registers the rendering callback after construction.
// Call it before the first SendMessage.
func (c *Coordinator) SetChunkObserver(fn func(streaming.Chunk)) {
	c.mu.Lock()
	c.onChunk = fn
	c.mu.Unlock()
}

// BindTopic attaches the coordinator to a conversation thread, persisting
// the topic if the store does not know it yet.
func (c *Coordinator) BindTopic(t chat.Topic) error {
	if err := c.store.SaveTopic(t); err != nil {
		return fmt.Errorf("failed to bind topic: %w", err)
	}
	c.mu.Lock()
	c.topic = t
	c.firstTurn = true
	c.mu.Unlock()
	return nil
}

// Topic returns the currently bound topic.
func (c *Coordinator) Topic() chat.Topic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topic
}

// IsLoading reports whether an ask is outstanding (between request start and
// settle).
func (c *Coordinator) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isLoading
}

// IsOutputted reports whether any content, including an error surface, has
// been produced for the latest ask.
func (c *Coordinator) IsOutputted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOutputted
}

// Err returns the last surfaced generation failure, empty when none (and
// always empty for cancellations).
func (c *Coordinator) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// State returns the coordinator's request state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Wait blocks until the current ask settles. It returns immediately when no
// ask is outstanding.
func (c *Coordinator) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// SendMessage composes the user content, persists the user message and the
// assistant placeholder, and starts streaming the reply. Empty composed
// content or an unbound topic make it a silent no-op.
func (c *Coordinator) SendMessage(text, reference string) {
	c.mu.Lock()
	if c.topic.ID == "" {
		c.mu.Unlock()
		logger.Debug("send ignored: no topic bound")
		return
	}
	if c.askID != "" {
		c.mu.Unlock()
		logger.Warn("send ignored: ask %s still outstanding", c.askID)
		return
	}
	content := chat.ComposeUserContent(text, reference, c.firstTurn)
	if content == "" {
		c.mu.Unlock()
		logger.Debug("send ignored: empty content")
		return
	}
	c.firstTurn = false
	topicID := c.topic.ID

	userMsg := chat.NewUserMessage(topicID, content)
	userBlock := chat.NewTextBlock(userMsg.ID, content)
	userMsg.BlockIDs = []string{userBlock.ID}

	assistant := chat.NewAssistantMessage(topicID, userMsg.ID)

	if err := c.persistTurn(topicID, userMsg, userBlock, assistant); err != nil {
		c.mu.Unlock()
		logger.Error("failed to persist turn: %v", err)
		return
	}

	history, err := c.contextWindow(topicID)
	if err != nil {
		c.mu.Unlock()
		logger.Error("failed to build context window: %v", err)
		return
	}

	builder := streaming.NewBuilder(assistant.ID)
	done := make(chan struct{})
	c.askID = userMsg.ID
	c.assistantID = assistant.ID
	c.builder = builder
	c.state = StateAwaiting
	c.isLoading = true
	c.isOutputted = false
	c.lastErr = ""
	c.done = done

	ctx := c.registry.Register(context.Background(), userMsg.ID)
	req := streaming.Request{
		AskID:        userMsg.ID,
		Model:        c.model,
		SystemPrompt: c.systemPrompt,
		Messages:     history,
	}
	c.mu.Unlock()

	chunks, err := c.source.Stream(ctx, req)
	if err != nil {
		logger.Error("stream start failed for ask %s: %v", userMsg.ID, err)
		c.registry.Remove(userMsg.ID)
		c.mu.Lock()
		c.settleLocked(userMsg.ID, builder, streaming.Chunk{Kind: streaming.ChunkError, Err: err})
		c.mu.Unlock()
		close(done)
		return
	}

	go c.consume(userMsg.ID, topicID, builder, chunks, done)
}

// Pause cancels the outstanding ask, settles its blocks to paused
// synchronously and clears the ask identity. A no-op when nothing is
// outstanding.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	askID := c.askID
	builder := c.builder
	if askID == "" || builder == nil {
		c.mu.Unlock()
		return
	}
	c.settleLocked(askID, builder, streaming.Chunk{
		Kind:      streaming.ChunkError,
		Err:       context.Canceled,
		Cancelled: true,
	})
	c.mu.Unlock()

	c.registry.Cancel(askID)
	logger.Info("ask %s paused", askID)
}

// Reset clears all messages in the bound topic and rebinds to a fresh one.
// An in-flight ask is paused first so orphaned mutations cannot race the
// clear.
func (c *Coordinator) Reset() error {
	c.Pause()

	c.mu.Lock()
	oldTopicID := c.topic.ID
	c.mu.Unlock()

	if oldTopicID != "" {
		if err := c.store.ClearTopicMessages(oldTopicID); err != nil {
			return fmt.Errorf("failed to clear topic: %w", err)
		}
	}

	fresh := chat.NewTopic("")
	if err := c.store.SaveTopic(fresh); err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}

	c.mu.Lock()
	c.topic = fresh
	c.firstTurn = true
	c.state = StateIdle
	c.isOutputted = false
	c.lastErr = ""
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) persistTurn(topicID string, userMsg chat.Message, userBlock chat.Block, assistant chat.Message) error {
	if err := c.store.AppendMessage(topicID, userMsg); err != nil {
		return err
	}
	if err := c.store.UpsertBlock(userBlock); err != nil {
		return err
	}
	return c.store.AppendMessage(topicID, assistant)
}

// contextWindow returns the topic's messages oldest-first, excluding any
// message still in flight, with assistant content resolved from its text
// block.
func (c *Coordinator) contextWindow(topicID string) ([]chat.Message, error) {
	msgs, err := c.store.ListMessages(topicID)
	if err != nil {
		return nil, err
	}
	var out []chat.Message
	for _, m := range msgs {
		if m.Status.InFlight() {
			continue
		}
		if m.IsAssistant() && m.Content == "" {
			m.Content = c.assistantText(m)
		}
		if m.Content == "" {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *Coordinator) assistantText(m chat.Message) string {
	for _, blockID := range m.BlockIDs {
		b, err := c.store.GetBlock(blockID)
		if err != nil {
			logger.Warn("missing block %s for message %s: %v", blockID, m.ID, err)
			continue
		}
		if b.IsText() {
			return b.Content
		}
	}
	return ""
}

// consume drives one ask's chunk stream to completion.
func (c *Coordinator) consume(askID, topicID string, builder *streaming.Builder, chunks <-chan streaming.Chunk, done chan struct{}) {
	defer close(done)
	defer c.cleanup(askID, builder)

	c.mu.Lock()
	onChunk := c.onChunk
	c.mu.Unlock()

	for chunk := range chunks {
		accepted := c.applyChunk(askID, topicID, builder, chunk)
		if accepted && onChunk != nil {
			onChunk(chunk)
		}
		if chunk.Terminal() {
			break
		}
	}

	// A stream that closes without a terminal chunk violates the source
	// contract; downgrade to a generation failure so the conversation
	// never sticks in streaming.
	c.mu.Lock()
	if !builder.Settled() {
		c.settleLocked(askID, builder, streaming.Chunk{
			Kind: streaming.ChunkError,
			Err:  fmt.Errorf("stream ended without completion"),
		})
	}
	c.mu.Unlock()
}

// applyChunk routes one chunk through the builder and applies the resulting
// mutations. It reports whether the chunk was accepted; chunks for an ask
// that is no longer current are dropped as stale.
func (c *Coordinator) applyChunk(askID, topicID string, builder *streaming.Builder, chunk streaming.Chunk) (accepted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	defer func() {
		// A faulty chunk must not kill the process or strand the
		// conversation; downgrade to a generation failure.
		if r := recover(); r != nil {
			logger.Error("panic applying chunk for ask %s: %v", askID, r)
			c.settleLocked(askID, builder, streaming.Chunk{
				Kind: streaming.ChunkError,
				Err:  fmt.Errorf("internal error applying chunk: %v", r),
			})
		}
	}()

	if c.askID != askID {
		logger.Debug("dropping stale %s chunk for ask %s", chunk.Kind, askID)
		return false
	}

	c.applyMutations(topicID, builder.Apply(chunk))

	switch chunk.Kind {
	case streaming.ThinkingDelta, streaming.TextDelta:
		if c.state == StateAwaiting {
			c.state = StateStreaming
		}
	}
	if builder.Outputted() {
		c.isOutputted = true
	}
	if builder.Settled() {
		c.finishLocked(askID, builder)
	}
	return true
}

// settleLocked forces the ask to a terminal outcome with a synthetic chunk.
// Callers hold mu.
func (c *Coordinator) settleLocked(askID string, builder *streaming.Builder, chunk streaming.Chunk) {
	if builder.Settled() {
		return
	}
	c.applyMutations(c.topic.ID, builder.Apply(chunk))
	if builder.Outputted() {
		c.isOutputted = true
	}
	c.finishLocked(askID, builder)
}

// finishLocked records the terminal outcome and clears the ask identity.
// Callers hold mu.
func (c *Coordinator) finishLocked(askID string, builder *streaming.Builder) {
	c.state = StateSettled
	c.isLoading = false
	if err := builder.Err(); err != nil {
		c.lastErr = err.Error()
	}
	if c.askID == askID {
		c.askID = ""
	}
	logger.Debug("ask %s settled: %s", askID, builder.Status())
}

// applyMutations applies builder output to the store, routing coalescable
// delta content through the throttler and everything else synchronously.
func (c *Coordinator) applyMutations(topicID string, muts []streaming.Mutation) {
	for _, m := range muts {
		switch m.Barrier {
		case streaming.BarrierFlush:
			c.throttler.Flush(m.BlockID)
		case streaming.BarrierDrop:
			c.throttler.Cancel(m.BlockID)
		}

		switch {
		case m.Block != nil:
			if err := c.store.UpsertBlock(*m.Block); err != nil {
				logger.Error("upsert block %s failed: %v", m.Block.ID, err)
			}
		case m.BlockPatch != nil:
			blockID, patch := m.BlockID, *m.BlockPatch
			if m.Coalesce {
				c.throttler.Schedule(blockID, func() {
					if err := c.store.UpdateBlock(blockID, patch); err != nil {
						logger.Error("update block %s failed: %v", blockID, err)
					}
				})
			} else if err := c.store.UpdateBlock(blockID, patch); err != nil {
				logger.Error("update block %s failed: %v", blockID, err)
			}
		case m.MessagePatch != nil:
			if err := c.store.UpdateMessage(topicID, m.MessageID, *m.MessagePatch); err != nil {
				logger.Error("update message %s failed: %v", m.MessageID, err)
			}
		}
	}
}

// cleanup releases per-ask resources once the stream is done. It always
// runs, so a faulty stream cannot leave the conversation loading forever.
func (c *Coordinator) cleanup(askID string, builder *streaming.Builder) {
	c.registry.Remove(askID)
	for _, blockID := range builder.BlockIDs() {
		c.throttler.Cancel(blockID)
	}
	c.mu.Lock()
	if c.askID == askID {
		c.askID = ""
	}
	c.isLoading = false
	c.mu.Unlock()
}
