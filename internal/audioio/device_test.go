package audioio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMalgoCapturerOnDataChunksIntoFixedFrames(t *testing.T) {
	m := &MalgoCapturer{sampleRateHz: 16000}
	m.frames = make(chan []int16, 8)

	samples := make([]int16, CaptureFrameSamples+CaptureFrameSamples/2)
	for i := range samples {
		samples[i] = int16(i)
	}
	m.onData(Int16ToPCM16Bytes(samples))

	select {
	case frame := <-m.frames:
		assert.Len(t, frame, CaptureFrameSamples)
		assert.Equal(t, int16(0), frame[0])
	default:
		t.Fatal("expected one complete frame to have been emitted")
	}

	select {
	case <-m.frames:
		t.Fatal("a second frame should not be ready yet, only half a frame remains pending")
	default:
	}

	m.mu.Lock()
	assert.Len(t, m.pending, CaptureFrameSamples/2)
	m.mu.Unlock()
}

func TestMalgoCapturerOnDataIgnoredAfterStop(t *testing.T) {
	m := &MalgoCapturer{sampleRateHz: 16000, stopped: true}
	m.frames = make(chan []int16, 1)
	m.onData(Int16ToPCM16Bytes(make([]int16, CaptureFrameSamples)))

	select {
	case <-m.frames:
		t.Fatal("onData must be a no-op once stopped")
	default:
	}
}

func TestMalgoCapturerSampleRateHz(t *testing.T) {
	m := NewMalgoCapturer(16000)
	assert.Equal(t, 16000, m.SampleRateHz())
}

func TestMalgoCapturerStopIsIdempotent(t *testing.T) {
	m := &MalgoCapturer{sampleRateHz: 16000, frames: make(chan []int16)}
	assert.NoError(t, m.Stop())
	assert.NoError(t, m.Stop())
}

func TestOtoRendererEstimatedPlayedMillisecondsTracksBytesRead(t *testing.T) {
	r := NewOtoRenderer(16000)
	r.bytesRead = 16000 * 2 // one second of PCM16 mono at 16kHz
	assert.EqualValues(t, 1000, r.EstimatedPlayedMilliseconds())
}

func TestOtoRendererReadReturnsSilenceOnceClosedAndDrained(t *testing.T) {
	r := NewOtoRenderer(16000)
	r.closed = true

	p := make([]byte, 8)
	n, err := r.Read(p)
	assert.NoError(t, err)
	assert.Equal(t, len(p), n)
	for _, b := range p {
		assert.Equal(t, byte(0), b)
	}
}

func TestOtoRendererReadDrainsBufferedBytes(t *testing.T) {
	r := NewOtoRenderer(16000)
	r.buf = []byte{1, 2, 3, 4}

	p := make([]byte, 2)
	n, err := r.Read(p)
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{1, 2}, p)
	assert.Equal(t, []byte{3, 4}, r.buf)
	assert.EqualValues(t, 2, r.bytesRead)
}

func TestOtoRendererTrackPeakLocked(t *testing.T) {
	r := NewOtoRenderer(16000)
	loud := Int16ToPCM16Bytes([]int16{100, -30000, 5})
	r.trackPeakLocked(loud)
	assert.InDelta(t, float32(30000)/32768.0, r.meterPeak, 1e-6)
}

func TestOtoRendererClearDiscardsBufferedAudio(t *testing.T) {
	r := NewOtoRenderer(16000)
	r.buf = []byte{1, 2, 3}
	r.Clear()
	assert.Empty(t, r.buf)
}

func TestOtoRendererSetMeterCallback(t *testing.T) {
	r := NewOtoRenderer(16000)
	called := false
	r.SetMeterCallback(func(level byte) { called = true })
	r.mu.Lock()
	cb := r.meterCB
	r.mu.Unlock()
	cb(1)
	assert.True(t, called)
}
