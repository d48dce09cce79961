package bus

import (
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler receives published events. It must not block for long and must not
// panic; the Bus recovers panics at the call site and logs them, but a
// handler that panics on every publish will still never see events delivered
// twice.
type Handler func(Event)

// Bus is a typed publish/subscribe registry keyed by Kind. Publish snapshots
// the subscriber set under a short lock and invokes handlers outside the
// lock, so a handler that re-subscribes (or unsubscribes a sibling) during
// dispatch can never deadlock against Publish itself.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Kind][]subscription
	log    *logrus.Logger
	nextID uint64
}

type subscription struct {
	id  uint64
	h   Handler
	ptr uintptr
}

// New constructs a Bus. log may be nil in tests; production callers always
// thread the process-wide logger through.
func New(log *logrus.Logger) *Bus {
	if log == nil {
		log = logrus.New()
	}
	return &Bus{subs: make(map[Kind][]subscription), log: log}
}

// Token identifies a subscription for later Unsubscribe.
type Token struct {
	kind Kind
	id   uint64
}

// Subscribe registers h for events of kind. Registering the exact same
// Handler value twice for the same kind is idempotent — the Bus compares
// the code pointer underlying h via reflect and returns the existing Token
// rather than appending a duplicate entry. A method value or a named
// function passed twice dedups correctly; two distinct closures created
// from the same literal share a code pointer too and so also dedup, which
// is why callers that need independent subscriptions should give each one
// a distinguishable handler rather than relying on closure identity.
func (b *Bus) Subscribe(kind Kind, h Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	ptr := reflect.ValueOf(h).Pointer()
	for _, s := range b.subs[kind] {
		if s.ptr == ptr {
			return Token{kind: kind, id: s.id}
		}
	}
	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscription{id: id, h: h, ptr: ptr})
	return Token{kind: kind, id: id}
}

// Unsubscribe removes a previously registered handler. Unsubscribing an
// already-removed or zero Token is a no-op.
func (b *Bus) Unsubscribe(t Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[t.kind]
	for i, s := range list {
		if s.id == t.id {
			b.subs[t.kind] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Publish snapshots the subscriber set for event.Kind and invokes each
// handler outside the lock. Handler panics are recovered and logged; they
// never reach the caller.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	snapshot := make([]subscription, len(b.subs[event.Kind]))
	copy(snapshot, b.subs[event.Kind])
	b.mu.RUnlock()

	if !event.SkipLogging {
		b.log.WithFields(logrus.Fields{
			"component": "bus",
			"event":     string(event.Kind),
			"sender":    event.Sender,
		}).Debug("event published")
	}

	for _, s := range snapshot {
		b.dispatch(s.h, event)
	}
}

func (b *Bus) dispatch(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithFields(logrus.Fields{
				"component": "bus",
				"event":     string(event.Kind),
				"panic":     r,
			}).Error("event handler panicked")
		}
	}()
	h(event)
}

// PublishFrom is a convenience for the common case of an event carrying only
// a sender identity — e.g. SystemOk, Shutdown.
func (b *Bus) PublishFrom(kind Kind, sender string) {
	b.Publish(New(kind, sender, nil))
}
