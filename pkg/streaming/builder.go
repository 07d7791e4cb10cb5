package streaming

import (
	"github.com/quillchat/quill/pkg/chat"
	"github.com/quillchat/quill/pkg/store"
)

// Barrier tells the mutation applier what to do with a pending coalesced
// write for the same block before applying this mutation.
type Barrier int

const (
	// BarrierNone applies the mutation without touching pending state.
	BarrierNone Barrier = iota
	// BarrierFlush applies the pending coalesced write first.
	BarrierFlush
	// BarrierDrop discards the pending write; this mutation fully
	// overwrites whatever it would have written.
	BarrierDrop
)

// Mutation is one store-mutation instruction produced by the Builder.
// Exactly one of Block, BlockPatch or MessagePatch is set.
type Mutation struct {
	Block        *chat.Block        // upsert a new block
	BlockID      string             // target of BlockPatch and Barrier
	BlockPatch   *store.BlockPatch  // partial block update
	MessageID    string             // target of MessagePatch
	MessagePatch *store.MessagePatch

	// Coalesce marks high-frequency delta content that the update
	// scheduler may defer. Terminal mutations are never coalesced.
	Coalesce bool
	Barrier  Barrier
}

// Builder folds the chunk stream of one ask into per-block state and
// store-mutation instructions. It never writes anywhere itself.
//
// Block statuses move forward only: once a block settles, later chunks for
// it are ignored. The first error chunk wins; any subsequent one is dropped.
type Builder struct {
	messageID string
	blocks    map[chat.BlockKind]*chat.Block
	order     []string // block ids in creation order

	streaming bool // message status already flipped to streaming
	outputted bool
	settled   bool
	status    chat.MessageStatus
	err       error
}

func NewBuilder(messageID string) *Builder {
	return &Builder{
		messageID: messageID,
		blocks:    make(map[chat.BlockKind]*chat.Block),
		status:    chat.MessagePending,
	}
}

// Apply maps one chunk to zero or more store mutations and advances the
// builder's state.
func (b *Builder) Apply(c Chunk) []Mutation {
	switch c.Kind {
	case ThinkingStart:
		return b.start(chat.BlockThinking)
	case TextStart:
		return b.start(chat.BlockText)
	case ThinkingDelta:
		return b.delta(chat.BlockThinking, c)
	case TextDelta:
		return b.delta(chat.BlockText, c)
	case ThinkingComplete:
		return b.completeThinking(c)
	case TextComplete:
		return b.completeText(c)
	case ChunkError:
		return b.fail(c)
	case BlockComplete:
		return b.finish()
	}
	return nil
}

// Settled reports whether the message has reached a terminal status.
func (b *Builder) Settled() bool { return b.settled }

// Status returns the message status the builder has decided so far.
func (b *Builder) Status() chat.MessageStatus { return b.status }

// Err returns the surfaced generation failure, nil for success and
// cancellation outcomes.
func (b *Builder) Err() error { return b.err }

// Outputted reports whether any content or error surface has been produced.
func (b *Builder) Outputted() bool { return b.outputted }

// Block returns a copy of the accumulated block of the given kind.
func (b *Builder) Block(kind chat.BlockKind) (chat.Block, bool) {
	blk, ok := b.blocks[kind]
	if !ok {
		return chat.Block{}, false
	}
	return *blk, true
}

// BlockIDs returns the builder's block ids in creation order.
func (b *Builder) BlockIDs() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

func (b *Builder) start(kind chat.BlockKind) []Mutation {
	if b.settled {
		return nil
	}
	if blk, ok := b.blocks[kind]; ok {
		if blk.Status.Terminal() {
			return nil
		}
		// A start resuming after a prior yield point: back to streaming.
		blk.Status = chat.BlockStreaming
		status := chat.BlockStreaming
		return []Mutation{{
			BlockID:    blk.ID,
			BlockPatch: &store.BlockPatch{Status: &status},
		}}
	}
	return b.create(kind)
}

func (b *Builder) create(kind chat.BlockKind) []Mutation {
	blk := chat.NewBlock(b.messageID, kind)
	b.blocks[kind] = &blk
	b.order = append(b.order, blk.ID)

	muts := []Mutation{{Block: &blk}}
	patch := store.MessagePatch{BlockIDs: b.BlockIDs()}
	if !b.streaming {
		b.streaming = true
		b.status = chat.MessageStreaming
		status := chat.MessageStreaming
		patch.Status = &status
	}
	muts = append(muts, Mutation{MessageID: b.messageID, MessagePatch: &patch})
	return muts
}

func (b *Builder) delta(kind chat.BlockKind, c Chunk) []Mutation {
	if b.settled {
		return nil
	}
	var muts []Mutation
	blk, ok := b.blocks[kind]
	if !ok {
		// Defensive: a delta whose start was never seen still creates
		// the block, treating the first delta as an implicit start.
		muts = b.create(kind)
		blk = b.blocks[kind]
	}
	if blk.Status.Terminal() {
		return nil
	}
	b.outputted = true
	blk.Content += c.Text
	if c.ElapsedMS > blk.ThinkingMS {
		blk.ThinkingMS = c.ElapsedMS
	}

	patch := store.BlockPatch{Content: strptr(blk.Content)}
	if kind == chat.BlockThinking {
		patch.ThinkingMS = i64ptr(blk.ThinkingMS)
	}
	return append(muts, Mutation{
		BlockID:    blk.ID,
		BlockPatch: &patch,
		Coalesce:   true,
	})
}

func (b *Builder) completeThinking(c Chunk) []Mutation {
	blk, ok := b.blocks[chat.BlockThinking]
	if !ok || blk.Status.Terminal() || b.settled {
		return nil
	}
	if c.ElapsedMS > blk.ThinkingMS {
		blk.ThinkingMS = c.ElapsedMS
	}
	blk.Status = chat.BlockSuccess
	status := chat.BlockSuccess
	return []Mutation{{
		BlockID: blk.ID,
		BlockPatch: &store.BlockPatch{
			Status:     &status,
			ThinkingMS: i64ptr(blk.ThinkingMS),
		},
		Barrier: BarrierFlush,
	}}
}

func (b *Builder) completeText(c Chunk) []Mutation {
	blk, ok := b.blocks[chat.BlockText]
	if !ok || blk.Status.Terminal() || b.settled {
		return nil
	}
	// The final text is an authoritative snapshot; it replaces whatever
	// the deltas accumulated, and any pending throttled write is dropped
	// rather than raced against.
	if c.Text != "" {
		blk.Content = c.Text
	}
	blk.Status = chat.BlockSuccess
	b.outputted = true
	status := chat.BlockSuccess
	return []Mutation{{
		BlockID: blk.ID,
		BlockPatch: &store.BlockPatch{
			Content: strptr(blk.Content),
			Status:  &status,
		},
		Barrier: BarrierDrop,
	}}
}

func (b *Builder) fail(c Chunk) []Mutation {
	if b.settled {
		// Multiple error chunks violate the source contract; only the
		// first is honored.
		return nil
	}
	b.settled = true

	blockStatus := chat.BlockError
	msgStatus := chat.MessageError
	if c.Cancelled {
		blockStatus = chat.BlockPaused
		msgStatus = chat.MessagePaused
	} else {
		// A surfaced failure counts as output; cancellation does not.
		b.outputted = true
		b.err = c.Err
	}
	b.status = msgStatus

	var muts []Mutation
	if blk := b.lastOpenBlock(); blk != nil {
		blk.Status = blockStatus
		status := blockStatus
		muts = append(muts, Mutation{
			BlockID:    blk.ID,
			BlockPatch: &store.BlockPatch{Status: &status},
			Barrier:    BarrierFlush,
		})
	}
	return append(muts, Mutation{
		MessageID:    b.messageID,
		MessagePatch: &store.MessagePatch{Status: &msgStatus},
	})
}

func (b *Builder) finish() []Mutation {
	if b.settled {
		return nil
	}
	b.settled = true
	b.status = chat.MessageSuccess

	var muts []Mutation
	// By contract every block already saw its own complete chunk; settle
	// any still-open one anyway so the stream never ends mid-streaming.
	for _, kind := range []chat.BlockKind{chat.BlockThinking, chat.BlockText} {
		blk, ok := b.blocks[kind]
		if !ok || blk.Status.Terminal() {
			continue
		}
		blk.Status = chat.BlockSuccess
		status := chat.BlockSuccess
		muts = append(muts, Mutation{
			BlockID:    blk.ID,
			BlockPatch: &store.BlockPatch{Status: &status},
			Barrier:    BarrierFlush,
		})
	}
	msgStatus := chat.MessageSuccess
	return append(muts, Mutation{
		MessageID:    b.messageID,
		MessagePatch: &store.MessagePatch{Status: &msgStatus},
	})
}

// lastOpenBlock picks the block an error chunk settles: thinking if still
// open, otherwise text.
func (b *Builder) lastOpenBlock() *chat.Block {
	if blk, ok := b.blocks[chat.BlockThinking]; ok && !blk.Status.Terminal() {
		return blk
	}
	if blk, ok := b.blocks[chat.BlockText]; ok && !blk.Status.Terminal() {
		return blk
	}
	return nil
}

func strptr(s string) *string { return &s }
func i64ptr(n int64) *int64   { return &n }
