package audioio

import (
	"context"
	"math"
	"sync"
	"time"
)

// ringSpeakerSeconds is the default bound on buffered but unplayed audio.
const ringSpeakerSeconds = 60

// meterPeriod is the peak-meter sampling period.
const meterPeriod = 100 * time.Millisecond

// RingSpeaker is the in-repo default Renderer: a bounded ring of float32
// samples at sampleRateHz, drained by a background "player" goroutine at
// wall-clock rate onto a func([]float32) sink. The pacing is a ticker draining a
// frame queue, with raw PCM16 samples as the unit rather than encoded
// frames.
type RingSpeaker struct {
	mu         sync.Mutex
	sampleRate int
	ring       []float32
	ringCap    int
	writeIdx   int
	readIdx    int
	filled     int
	playedMs   int64

	meterCb   func(byte)
	stopMeter chan struct{}

	sink       func([]float32)
	started    bool
	drainDone  chan struct{}
	stopPlayer chan struct{}
}

// NewRingSpeaker builds a Renderer at sampleRateHz. sink receives played
// samples (e.g. forwarded to a real playback device); tests pass a no-op or
// recording sink.
func NewRingSpeaker(sampleRateHz int, sink func([]float32)) *RingSpeaker {
	if sink == nil {
		sink = func([]float32) {}
	}
	return &RingSpeaker{
		sampleRate: sampleRateHz,
		ringCap:    sampleRateHz * ringSpeakerSeconds,
		ring:       make([]float32, sampleRateHz*ringSpeakerSeconds),
		sink:       sink,
	}
}

func (s *RingSpeaker) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.stopPlayer = make(chan struct{})
	s.mu.Unlock()

	go s.playLoop()
	return nil
}

// playLoop drains the ring at approximately real-time rate in small bursts,
// so EstimatedPlayedMilliseconds advances smoothly rather than jumping by
// whole Write() calls.
func (s *RingSpeaker) playLoop() {
	const burst = 480 // 10ms at 48kHz-equivalent; scaled by sample rate below
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-s.stopPlayer:
			return
		case <-tick.C:
			n := s.sampleRate / 100
			if n <= 0 {
				n = burst
			}
			samples := s.drain(n)
			if len(samples) > 0 {
				s.sink(samples)
				s.mu.Lock()
				s.playedMs += int64(len(samples)) * 1000 / int64(s.sampleRate)
				s.mu.Unlock()
			}
		}
	}
}

func (s *RingSpeaker) drain(n int) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > s.filled {
		n = s.filled
	}
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = s.ring[(s.readIdx+i)%s.ringCap]
	}
	s.readIdx = (s.readIdx + n) % s.ringCap
	s.filled -= n
	return out
}

// Write enqueues PCM16 little-endian mono bytes, converted to float32
// [-1,1], dropping the oldest samples if the ring would overflow.
func (s *RingSpeaker) Write(pcm []byte) error {
	floats := PCM16BytesToFloat32(pcm)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range floats {
		if s.filled == s.ringCap {
			// Ring full: drop oldest sample to make room rather than block.
			s.readIdx = (s.readIdx + 1) % s.ringCap
			s.filled--
		}
		s.ring[s.writeIdx] = f
		s.writeIdx = (s.writeIdx + 1) % s.ringCap
		s.filled++
	}
	return nil
}

// Clear drops all buffered-but-unplayed audio. Used on barge-in.
func (s *RingSpeaker) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readIdx = 0
	s.writeIdx = 0
	s.filled = 0
}

// FlushAsync blocks until the ring drains or ctx is done.
func (s *RingSpeaker) FlushAsync(ctx context.Context) error {
	t := time.NewTicker(5 * time.Millisecond)
	defer t.Stop()
	for {
		s.mu.Lock()
		empty := s.filled == 0
		s.mu.Unlock()
		if empty {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *RingSpeaker) EstimatedPlayedMilliseconds() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playedMs
}

func (s *RingSpeaker) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	close(s.stopPlayer)
	s.mu.Unlock()
	s.stopMeterTicker()
	return nil
}

// SetMeterCallback installs a peak-meter callback sampled every 100ms,
// invoked only while the ring is non-empty — silence produces no events.
func (s *RingSpeaker) SetMeterCallback(cb func(byte)) {
	s.mu.Lock()
	s.meterCb = cb
	alreadyRunning := s.stopMeter != nil
	s.mu.Unlock()

	if cb == nil {
		s.stopMeterTicker()
		return
	}
	if !alreadyRunning {
		s.startMeterTicker()
	}
}

func (s *RingSpeaker) startMeterTicker() {
	s.mu.Lock()
	s.stopMeter = make(chan struct{})
	stop := s.stopMeter
	s.mu.Unlock()

	go func() {
		t := time.NewTicker(meterPeriod)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				s.sampleMeter()
			}
		}
	}()
}

func (s *RingSpeaker) stopMeterTicker() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopMeter != nil {
		close(s.stopMeter)
		s.stopMeter = nil
	}
}

func (s *RingSpeaker) sampleMeter() {
	s.mu.Lock()
	if s.filled == 0 || s.meterCb == nil {
		s.mu.Unlock()
		return
	}
	var peak float32
	for i := 0; i < s.filled; i++ {
		v := s.ring[(s.readIdx+i)%s.ringCap]
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	cb := s.meterCb
	s.mu.Unlock()

	cb(peakToByte(peak))
}

// peakToByte converts a linear peak in [0,1] to a dB-mapped byte over
// [-60dB, 0dB].
func peakToByte(peak float32) byte {
	if peak <= 0 {
		return 0
	}
	db := 20 * math.Log10(float64(peak))
	if db < -60 {
		db = -60
	}
	if db > 0 {
		db = 0
	}
	norm := (db + 60) / 60
	return byte(math.Round(norm * 255))
}
