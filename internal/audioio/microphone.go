package audioio

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/corevox/noia/internal/coreerr"
)

// ReaderMicrophone is the in-repo default Capturer: it reads little-endian
// PCM16 mono samples from src in fixed CaptureFrameSamples chunks. Real
// device bindings satisfy the same Capturer interface; MalgoCapturer
// (device.go) is the one this package ships.
type ReaderMicrophone struct {
	src      io.Reader
	rateHz   int
	frameLen int

	stopCh chan struct{}
}

// NewReaderMicrophone builds a Capturer over src at the given native sample
// rate. frameLen defaults to CaptureFrameSamples when 0.
func NewReaderMicrophone(src io.Reader, rateHz int, frameLen int) *ReaderMicrophone {
	if frameLen <= 0 {
		frameLen = CaptureFrameSamples
	}
	return &ReaderMicrophone{src: src, rateHz: rateHz, frameLen: frameLen}
}

func (m *ReaderMicrophone) SampleRateHz() int { return m.rateHz }

// Start produces a lazy, effectively infinite sequence of frames while ctx is
// alive. Each frame is a freshly allocated []int16 of length frameLen; the
// channel closes when src is exhausted, ctx is cancelled, or Stop is called.
func (m *ReaderMicrophone) Start(ctx context.Context) (<-chan []int16, error) {
	if m.src == nil {
		return nil, coreerr.DeviceError("microphone.Start", io.ErrClosedPipe)
	}
	m.stopCh = make(chan struct{})
	out := make(chan []int16)

	go func() {
		defer close(out)
		raw := make([]byte, m.frameLen*2)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			default:
			}

			if _, err := io.ReadFull(m.src, raw); err != nil {
				return
			}
			frame := make([]int16, m.frameLen)
			for i := 0; i < m.frameLen; i++ {
				frame[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
			}

			select {
			case out <- frame:
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			}
		}
	}()

	return out, nil
}

func (m *ReaderMicrophone) Stop() error {
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	return nil
}
