package agentcore

import (
	"sync"
	"time"

	"github.com/corevox/noia/internal/audioio"
)

// SpeakerChunkSize is the byte threshold at which buffered output audio is
// drained to the speaker.
const SpeakerChunkSize = 4096

// playbackSync is the playback synchronization state, exclusively owned by
// the Realtime Agent Core, all fields moving together under one lock.
type playbackSync struct {
	mu sync.Mutex

	modelIsSpeaking        bool
	waitingForResponse     bool
	responseRequestedAt    time.Time
	bargeInTriggered       bool
	currentStreamingItemID string

	audioBuf []byte
}

// snapshot is a point-in-time, lock-free copy for the capture loop to read.
type playbackSnapshot struct {
	modelIsSpeaking     bool
	waitingForResponse  bool
	bargeInTriggered    bool
	responseRequestedAt time.Time
	currentItemID       string
}

func (p *playbackSync) snapshot() playbackSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return playbackSnapshot{
		modelIsSpeaking:     p.modelIsSpeaking,
		waitingForResponse:  p.waitingForResponse,
		bargeInTriggered:    p.bargeInTriggered,
		responseRequestedAt: p.responseRequestedAt,
		currentItemID:       p.currentStreamingItemID,
	}
}

// onOutputStarted handles OutputStreamingStarted.
func (p *playbackSync) onOutputStarted(itemID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modelIsSpeaking = true
	p.bargeInTriggered = false
	p.waitingForResponse = false
	p.currentStreamingItemID = itemID
	p.audioBuf = p.audioBuf[:0]
}

// appendOutputAudio appends delta bytes and pops off any chunks ready to be
// written to the speaker. Chunks are never popped while bargeInTriggered,
// but bytes still accumulate so invariant #1 (no write while barged-in)
// holds without losing track of buffer state across the transition.
func (p *playbackSync) appendOutputAudio(b []byte) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audioBuf = append(p.audioBuf, b...)

	var chunks [][]byte
	for !p.bargeInTriggered && len(p.audioBuf) >= SpeakerChunkSize {
		chunk := make([]byte, SpeakerChunkSize)
		copy(chunk, p.audioBuf[:SpeakerChunkSize])
		chunks = append(chunks, chunk)
		p.audioBuf = p.audioBuf[SpeakerChunkSize:]
	}
	return chunks
}

// triggerBargeIn test-and-sets bargeInTriggered. Returns the item id that was
// streaming and ok=false if barge-in was already triggered for this item.
func (p *playbackSync) triggerBargeIn() (itemID string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bargeInTriggered {
		return "", false
	}
	p.bargeInTriggered = true
	p.modelIsSpeaking = false
	return p.currentStreamingItemID, true
}

// onResponseFinished clears waitingForResponse and modelIsSpeaking, and
// returns the residual buffered audio to flush (empty if barge-in fired).
func (p *playbackSync) onResponseFinished() (flush bool, residual []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waitingForResponse = false
	flush = !p.bargeInTriggered
	if flush && len(p.audioBuf) > 0 {
		residual = append([]byte{}, p.audioBuf...)
	}
	p.audioBuf = p.audioBuf[:0]
	p.modelIsSpeaking = false
	return flush, residual
}

func (p *playbackSync) setWaitingForResponse(at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waitingForResponse = true
	p.responseRequestedAt = at
}

func (p *playbackSync) clearWaiting() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waitingForResponse = false
}

// speakerHandle lets the capture loop null the speaker reference at run-exit
// while the receive loop tolerates its absence.
type speakerHandle struct {
	mu sync.Mutex
	r  audioio.Renderer
}

func (h *speakerHandle) set(r audioio.Renderer) {
	h.mu.Lock()
	h.r = r
	h.mu.Unlock()
}

func (h *speakerHandle) get() audioio.Renderer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.r
}

func (h *speakerHandle) writeChunks(chunks [][]byte) {
	r := h.get()
	if r == nil {
		return
	}
	for _, c := range chunks {
		r.Write(c)
	}
}

// stateCallback lets Run() install a per-call onStateUpdate hook that the
// (session-lifetime) receive loop can reach without being reconstructed
// every conversation.
type stateCallback struct {
	mu sync.Mutex
	fn func(StateUpdate)
}

func (c *stateCallback) set(fn func(StateUpdate)) {
	c.mu.Lock()
	c.fn = fn
	c.mu.Unlock()
}

func (c *stateCallback) call(s StateUpdate) {
	c.mu.Lock()
	fn := c.fn
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
