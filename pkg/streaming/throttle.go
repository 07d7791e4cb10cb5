package streaming

import (
	"sync"
	"time"
)

// DefaultThrottleInterval bounds how often coalesced delta writes are
// applied per block.
const DefaultThrottleInterval = 50 * time.Millisecond

// Throttler rate-limits high-frequency content mutations per block. Repeated
// Schedule calls for the same block within the interval coalesce into a
// single write carrying the latest values. Terminal mutations never go
// through Schedule; callers flush or drop the pending write and apply them
// synchronously.
//
// Apply functions run with the scheduler's lock held: once Cancel or Flush
// returns, no discarded write can land afterwards, so a synchronous mutation
// issued next can never be overwritten by a stale coalesced one. Apply
// functions must not call back into the Throttler.
type Throttler struct {
	mu       sync.Mutex
	interval time.Duration
	pending  map[string]*pendingWrite
}

// pendingWrite is the per-block scheduling state, created on first delta
// and pruned on flush or cancel.
type pendingWrite struct {
	timer *time.Timer
	apply func() // latest coalesced write, nil once applied
}

func NewThrottler(interval time.Duration) *Throttler {
	if interval <= 0 {
		interval = DefaultThrottleInterval
	}
	return &Throttler{
		interval: interval,
		pending:  make(map[string]*pendingWrite),
	}
}

// Schedule applies the first write for a block immediately, then coalesces
// writes arriving within the interval; each window applies only the most
// recent one.
func (t *Throttler) Schedule(blockID string, apply func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pending[blockID]; ok {
		p.apply = apply
		return
	}
	p := &pendingWrite{}
	p.timer = time.AfterFunc(t.interval, func() { t.fire(blockID) })
	t.pending[blockID] = p
	apply()
}

func (t *Throttler) fire(blockID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// A Cancel or Flush that won the lock first has already pruned the
	// entry; this fire must then apply nothing.
	p, ok := t.pending[blockID]
	if !ok {
		return
	}
	if p.apply == nil {
		// Window passed with nothing coalesced; prune the entry.
		delete(t.pending, blockID)
		return
	}
	apply := p.apply
	p.apply = nil
	p.timer.Reset(t.interval)
	apply()
}

// Flush applies the pending coalesced write for a block immediately, if any,
// and clears its scheduling state. Flushing an already-flushed block is a
// no-op.
func (t *Throttler) Flush(blockID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[blockID]
	if !ok {
		return
	}
	p.timer.Stop()
	delete(t.pending, blockID)
	if p.apply != nil {
		p.apply()
	}
}

// Cancel discards the pending write for a block without applying it. Used
// when a subsequent synchronous mutation fully overwrites the block's state;
// by the time Cancel returns, the discarded write can no longer run.
func (t *Throttler) Cancel(blockID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pending[blockID]; ok {
		p.timer.Stop()
		delete(t.pending, blockID)
	}
}
