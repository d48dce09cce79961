// Package vad wraps a streaming neural voice-activity detector. The
// production backend runs a Silero-style ONNX graph via
// github.com/yalue/onnxruntime_go; the session threads a hidden-state tensor
// between calls alongside a sample-rate input tensor and a single
// probability output.
package vad

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/corevox/noia/internal/coreerr"
)

// Detector is the contract every component that needs frame-level speech
// probability programs against.
type Detector interface {
	// Process returns the speech probability in [0,1] for one frame of
	// float32 samples in [-1,1]. frame must be 256 samples at 8kHz or 512 at
	// 16kHz; any other length is a ConfigurationError.
	Process(frame []float32, sampleRateHz int) (float32, error)
	// Reset clears recurrent state between utterances and after barge-in.
	Reset()
	Close() error
}

// SileroDetector is the ONNX Runtime-backed Detector.
type SileroDetector struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	state   *ort.Tensor[float32]
	hidden  [2 * 1 * 64]float32
}

// stateShape is the Silero recurrent state tensor: [2,1,64], threaded
// through input/output on every call.
var stateShape = ort.NewShape(2, 1, 64)

// NewSileroDetector loads the ONNX model at modelPath using the ONNX Runtime
// shared library (produced by internal/models' provisioning step). Call
// ort.InitializeEnvironment with the shared library path once,
// process-wide, before constructing more than one Detector in a process.
func NewSileroDetector(modelPath string) (*SileroDetector, error) {
	state, err := ort.NewEmptyTensor[float32](stateShape)
	if err != nil {
		return nil, coreerr.Configuration("vad.NewSileroDetector", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		nil,
	)
	if err != nil {
		state.Destroy()
		return nil, coreerr.Configuration("vad.NewSileroDetector", err)
	}

	return &SileroDetector{session: session, state: state}, nil
}

func (d *SileroDetector) Process(frame []float32, sampleRateHz int) (float32, error) {
	if sampleRateHz != 8000 && sampleRateHz != 16000 {
		return 0, coreerr.Configuration("vad.Process", fmt.Errorf("unsupported sample rate %d", sampleRateHz))
	}
	wantLen := 512
	if sampleRateHz == 8000 {
		wantLen = 256
	}
	if len(frame) != wantLen {
		return 0, coreerr.Configuration("vad.Process", fmt.Errorf("frame length %d, want %d", len(frame), wantLen))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(frame))), append([]float32{}, frame...))
	if err != nil {
		return 0, coreerr.Configuration("vad.Process", err)
	}
	defer inputTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(sampleRateHz)})
	if err != nil {
		return 0, coreerr.Configuration("vad.Process", err)
	}
	defer srTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, coreerr.Configuration("vad.Process", err)
	}
	defer outputTensor.Destroy()

	newState, err := ort.NewEmptyTensor[float32](stateShape)
	if err != nil {
		return 0, coreerr.Configuration("vad.Process", err)
	}
	defer newState.Destroy()

	if err := d.session.Run([]ort.Value{inputTensor, d.state, srTensor}, []ort.Value{outputTensor, newState}); err != nil {
		return 0, coreerr.Configuration("vad.Process", err)
	}

	copy(d.state.GetData(), newState.GetData())
	return outputTensor.GetData()[0], nil
}

func (d *SileroDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	data := d.state.GetData()
	for i := range data {
		data[i] = 0
	}
}

func (d *SileroDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		d.session.Destroy()
	}
	if d.state != nil {
		d.state.Destroy()
	}
	return nil
}
