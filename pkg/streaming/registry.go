package streaming

import (
	"context"
	"sync"
)

// Registry holds the cancellation token for each outstanding ask, keyed by
// the triggering user message's id. The coordinator hands the token to the
// Source at request start and afterwards keeps only the ask id; cancellation
// is looked up here, never through a retained handle.
type Registry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{
		cancels: make(map[string]context.CancelFunc),
	}
}

// Register derives a cancellable context for one ask and retains its cancel
// function until Cancel or Remove.
func (r *Registry) Register(ctx context.Context, askID string) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancels[askID] = cancel
	r.mu.Unlock()
	return ctx
}

// Cancel triggers cancellation for an ask. Unknown ids are a no-op; the ask
// may already have settled.
func (r *Registry) Cancel(askID string) {
	r.mu.Lock()
	cancel, ok := r.cancels[askID]
	delete(r.cancels, askID)
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// Remove releases the token without cancelling, once the ask has settled.
func (r *Registry) Remove(askID string) {
	r.mu.Lock()
	cancel, ok := r.cancels[askID]
	delete(r.cancels, askID)
	r.mu.Unlock()
	if ok {
		// Release the context's resources; the stream is already done.
		cancel()
	}
}
