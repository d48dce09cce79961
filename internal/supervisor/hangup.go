package supervisor

import (
	"context"
	"sync"
)

// hangupSource mints a cancellation token per conversation and lets any
// caller — the physical hangup button's bus event, or SystemPlugin's
// NotifyConversationStopRequested tool — cancel whichever token is current.
// A fresh token replaces the consumed one on the next link call.
type hangupSource struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

// link derives a child of parent whose cancellation this source now controls.
func (h *hangupSource) link(parent context.Context) context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	ctx, cancel := context.WithCancel(parent)
	h.cancel = cancel
	return ctx
}

// trigger cancels the current token, if one has been linked.
func (h *hangupSource) trigger() {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
