package debugapi

import (
	"sync"
	"time"

	"github.com/corevox/noia/internal/bus"
)

// EventRecord is one bus event flattened for JSON display.
type EventRecord struct {
	Kind      bus.Kind  `json:"kind"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorder keeps a fixed-size ring of the most recently published bus
// events, subscribing to every Kind in the taxonomy since the Bus has no
// wildcard subscription.
type Recorder struct {
	mu     sync.Mutex
	cap    int
	events []EventRecord
}

// NewRecorder builds a Recorder and subscribes it to b for the lifetime of
// the process; there is no corresponding unsubscribe because the debug API
// itself is process-lifetime.
func NewRecorder(b *bus.Bus, capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 100
	}
	r := &Recorder{cap: capacity}
	for _, kind := range bus.AllKinds() {
		b.Subscribe(kind, r.record)
	}
	return r
}

func (r *Recorder) record(ev bus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, EventRecord{Kind: ev.Kind, Sender: ev.Sender, Timestamp: ev.Timestamp})
	if len(r.events) > r.cap {
		r.events = r.events[len(r.events)-r.cap:]
	}
}

// Recent returns a snapshot of the events recorded so far, oldest first.
func (r *Recorder) Recent() []EventRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventRecord, len(r.events))
	copy(out, r.events)
	return out
}
