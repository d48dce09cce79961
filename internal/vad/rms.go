package vad

import (
	"fmt"
	"math"
	"sync"

	"github.com/corevox/noia/internal/coreerr"
)

// RMSDetector is a dependency-free fallback Detector used in tests and when
// the ONNX model/runtime has not yet been provisioned. It reports a
// binary-ish probability from simple RMS thresholds with frame-count
// debouncing.
type RMSDetector struct {
	mu               sync.Mutex
	speechThreshold  float32
	silenceThreshold float32
	speechFrames     int
	silenceFrames    int
	speechRun        int
	silenceRun       int
	inSpeech         bool
}

// NewRMSDetector builds a Detector with conservative default debounce
// constants (3 consecutive above-threshold frames to enter speech, 30 to
// leave it).
func NewRMSDetector() *RMSDetector {
	return &RMSDetector{
		speechThreshold:  0.015,
		silenceThreshold: 0.008,
		speechFrames:     3,
		silenceFrames:    30,
	}
}

func (d *RMSDetector) Process(frame []float32, sampleRateHz int) (float32, error) {
	if sampleRateHz != 8000 && sampleRateHz != 16000 {
		return 0, coreerr.Configuration("vad.RMSDetector.Process", fmt.Errorf("unsupported sample rate %d", sampleRateHz))
	}
	wantLen := 512
	if sampleRateHz == 8000 {
		wantLen = 256
	}
	if len(frame) != wantLen {
		return 0, coreerr.Configuration("vad.RMSDetector.Process", fmt.Errorf("frame length %d, want %d", len(frame), wantLen))
	}

	var sumSq float64
	for _, s := range frame {
		sumSq += float64(s) * float64(s)
	}
	rms := float32(0)
	if len(frame) > 0 {
		rms = float32(math.Sqrt(sumSq / float64(len(frame))))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if rms >= d.speechThreshold {
		d.speechRun++
		d.silenceRun = 0
	} else if rms <= d.silenceThreshold {
		d.silenceRun++
		d.speechRun = 0
	}

	if !d.inSpeech && d.speechRun >= d.speechFrames {
		d.inSpeech = true
	}
	if d.inSpeech && d.silenceRun >= d.silenceFrames {
		d.inSpeech = false
	}

	if d.inSpeech {
		return 0.9, nil
	}
	return 0.1, nil
}

func (d *RMSDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.speechRun, d.silenceRun, d.inSpeech = 0, 0, false
}

func (d *RMSDetector) Close() error { return nil }
