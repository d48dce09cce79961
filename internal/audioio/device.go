package audioio

import (
	"context"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/corevox/noia/internal/coreerr"
)

// MalgoCapturer is the production Capturer: a malgo device callback appends
// raw bytes to a buffer, and here that buffer is sliced into fixed
// CaptureFrameSamples frames rather than handed to callers as an
// arbitrary-length stream.
type MalgoCapturer struct {
	sampleRateHz int

	mu      sync.Mutex
	pending []int16
	frames  chan []int16
	stopped bool

	allocatedCtx *malgo.AllocatedContext
	device       *malgo.Device
}

// NewMalgoCapturer builds a Capturer that will request sampleRateHz mono
// PCM16 capture once Start is called.
func NewMalgoCapturer(sampleRateHz int) *MalgoCapturer {
	return &MalgoCapturer{sampleRateHz: sampleRateHz}
}

// Start opens the microphone device and begins delivering fixed-size frames.
// The device is torn down automatically when ctx is cancelled, in addition
// to an explicit Stop call — either is sufficient, and both are safe to call.
func (m *MalgoCapturer) Start(ctx context.Context) (<-chan []int16, error) {
	allocatedCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, coreerr.DeviceError("audioio.MalgoCapturer.Start", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(m.sampleRateHz)
	deviceConfig.PeriodSizeInFrames = CaptureFrameSamples

	m.frames = make(chan []int16, 32)

	device, err := malgo.InitDevice(allocatedCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) { m.onData(in) },
	})
	if err != nil {
		allocatedCtx.Uninit()
		return nil, coreerr.DeviceError("audioio.MalgoCapturer.Start", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		allocatedCtx.Uninit()
		return nil, coreerr.DeviceError("audioio.MalgoCapturer.Start", err)
	}

	m.allocatedCtx = allocatedCtx
	m.device = device

	go func() {
		<-ctx.Done()
		m.Stop()
	}()

	return m.frames, nil
}

func (m *MalgoCapturer) onData(in []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.pending = append(m.pending, PCM16BytesToInt16(in)...)
	for len(m.pending) >= CaptureFrameSamples {
		frame := make([]int16, CaptureFrameSamples)
		copy(frame, m.pending[:CaptureFrameSamples])
		m.pending = m.pending[CaptureFrameSamples:]
		select {
		case m.frames <- frame:
		default:
			// Consumer fell behind; drop the frame rather than block the
			// audio device's own callback thread.
		}
	}
}

func (m *MalgoCapturer) SampleRateHz() int { return m.sampleRateHz }

// Stop releases the microphone device. Safe to call more than once.
func (m *MalgoCapturer) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	device, allocatedCtx, frames := m.device, m.allocatedCtx, m.frames
	m.mu.Unlock()

	if device != nil {
		device.Stop()
		device.Uninit()
	}
	if allocatedCtx != nil {
		allocatedCtx.Uninit()
	}
	if frames != nil {
		close(frames)
	}
	return nil
}

// OtoRenderer is the production Renderer: audio bytes accumulate in a
// buffer that an oto.Player pulls from via Read, started lazily on the
// first Write.
type OtoRenderer struct {
	sampleRateHz int

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	playing bool
	closed  bool

	bytesRead int64
	meterPeak float32
	meterCB   func(byte)
	meterStop chan struct{}

	otoCtx *oto.Context
	player *oto.Player
}

// NewOtoRenderer builds a Renderer that will open an oto playback context at
// sampleRateHz once Start is called.
func NewOtoRenderer(sampleRateHz int) *OtoRenderer {
	r := &OtoRenderer{sampleRateHz: sampleRateHz}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *OtoRenderer) Start() error {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   r.sampleRateHz,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return coreerr.DeviceError("audioio.OtoRenderer.Start", err)
	}
	<-ready
	r.otoCtx = ctx

	r.meterStop = make(chan struct{})
	go r.meterLoop()
	return nil
}

func (r *OtoRenderer) Write(pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.buf = append(r.buf, pcm...)
	if !r.playing {
		r.playing = true
		r.player = r.otoCtx.NewPlayer(r)
		r.player.Play()
	}
	r.cond.Signal()
	return nil
}

// Read implements io.Reader for the oto.Player pulling playback audio.
func (r *OtoRenderer) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.buf) == 0 && !r.closed {
		r.cond.Wait()
	}
	if r.closed && len(r.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	r.bytesRead += int64(n)
	r.trackPeakLocked(p[:n])
	return n, nil
}

func (r *OtoRenderer) trackPeakLocked(chunk []byte) {
	for _, f := range PCM16BytesToFloat32(chunk[:len(chunk)-len(chunk)%2]) {
		if f < 0 {
			f = -f
		}
		if f > r.meterPeak {
			r.meterPeak = f
		}
	}
}

// meterLoop reports the peak sampled since the previous tick, dB-mapped the
// same way RingSpeaker does, so both Renderer implementations drive the
// talk-level LED identically.
func (r *OtoRenderer) meterLoop() {
	ticker := time.NewTicker(meterPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-r.meterStop:
			return
		case <-ticker.C:
			r.mu.Lock()
			peak := r.meterPeak
			r.meterPeak = 0
			cb := r.meterCB
			r.mu.Unlock()
			if cb != nil {
				cb(peakToByte(peak))
			}
		}
	}
}

// Clear discards buffered-but-unplayed audio and stops the current player,
// so the next Write starts a fresh playback rather than resuming mid-buffer.
func (r *OtoRenderer) Clear() {
	r.mu.Lock()
	r.buf = r.buf[:0]
	if r.player != nil && r.playing {
		r.playing = false
		player := r.player
		r.player = nil
		r.mu.Unlock()
		player.Pause()
		player.Close()
		return
	}
	r.mu.Unlock()
}

// FlushAsync blocks until the buffered audio has drained or ctx is
// cancelled.
func (r *OtoRenderer) FlushAsync(ctx context.Context) error {
	for {
		r.mu.Lock()
		drained := len(r.buf) == 0
		r.mu.Unlock()
		if drained {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// EstimatedPlayedMilliseconds converts bytes consumed by the player into an
// elapsed-playback estimate; oto does not expose exact device latency, so
// this consumed-bytes count is used as a proxy for barge-in truncation.
func (r *OtoRenderer) EstimatedPlayedMilliseconds() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	samples := r.bytesRead / 2
	return samples * 1000 / int64(r.sampleRateHz)
}

func (r *OtoRenderer) SetMeterCallback(cb func(level byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meterCB = cb
}

func (r *OtoRenderer) Stop() error {
	r.mu.Lock()
	r.closed = true
	r.cond.Broadcast()
	player := r.player
	meterStop := r.meterStop
	r.mu.Unlock()

	if player != nil {
		player.Close()
	}
	if meterStop != nil {
		close(meterStop)
	}
	return nil
}
