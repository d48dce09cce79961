// Package wakeengine implements multi-model streaming wake-word inference
// with per-model threshold and trigger-level debouncing. Each model's own
// ONNX session is an independent github.com/yalue/onnxruntime_go
// DynamicAdvancedSession, following the same binding shape as the VAD
// detector in internal/vad.
package wakeengine

import (
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/corevox/noia/internal/coreerr"
)

// ModelConfig names one wake-word model and its firing parameters.
type ModelConfig struct {
	ModelID      string
	ModelPath    string
	Threshold    float32 // [0.1, 0.9]
	TriggerLevel int     // [1, 10]: above-threshold frames required in the sliding window to fire
}

// slidingWindowMultiple sizes each model's debounce window as a multiple of
// its TriggerLevel, so a fired model has tolerated that many missed frames
// rather than only ever seeing a strict consecutive run.
const slidingWindowMultiple = 2

// model is the internal per-model inference + debounce state.
type model struct {
	cfg     ModelConfig
	session *ort.DynamicAdvancedSession
	window  []bool // ring of the last len(window) above-threshold flags
	pos     int
	hits    int // count of true flags currently in window
}

// Engine holds N wake-word models and advances every model's state on every
// frame. Models never interfere with each other.
type Engine struct {
	mu     sync.Mutex
	models []*model
}

// New constructs an Engine. Each ModelConfig's ONNX file is loaded
// immediately; a missing/invalid model file is a ConfigurationError.
func New(configs []ModelConfig) (*Engine, error) {
	e := &Engine{}
	for _, c := range configs {
		if c.TriggerLevel < 1 {
			c.TriggerLevel = 1
		}
		session, err := ort.NewDynamicAdvancedSession(
			c.ModelPath,
			[]string{"input"},
			[]string{"output"},
			nil,
		)
		if err != nil {
			return nil, coreerr.Configuration("wakeengine.New", err)
		}
		e.models = append(e.models, &model{
			cfg:     c,
			session: session,
			window:  make([]bool, c.TriggerLevel*slidingWindowMultiple),
		})
	}
	return e, nil
}

// Process feeds one float32 frame (already resampled for the wake-word
// model's expected rate) to every model and returns the index of the first
// model that fires on this frame, or -1.
func (e *Engine) Process(frame []float32) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fired := -1
	for i, m := range e.models {
		prob, err := m.infer(frame)
		if err != nil {
			return -1, err
		}
		m.push(prob >= m.cfg.Threshold)
		if fired == -1 && m.hitsAtTriggerLevel() {
			fired = i
		}
	}
	return fired, nil
}

// ModelID returns the configured identifier for model index i.
func (e *Engine) ModelID(i int) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.models) {
		return ""
	}
	return e.models[i].cfg.ModelID
}

// Reset clears every model's sliding window, e.g. between Wake Stage runs.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range e.models {
		for i := range m.window {
			m.window[i] = false
		}
		m.pos, m.hits = 0, 0
	}
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range e.models {
		m.session.Destroy()
	}
	return nil
}

func (m *model) infer(frame []float32) (float32, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(frame))), append([]float32{}, frame...))
	if err != nil {
		return 0, coreerr.Configuration("wakeengine.infer", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, coreerr.Configuration("wakeengine.infer", err)
	}
	defer outputTensor.Destroy()

	if err := m.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return 0, coreerr.Configuration("wakeengine.infer", err)
	}
	return outputTensor.GetData()[0], nil
}

func (m *model) push(aboveThreshold bool) {
	if m.window[m.pos] {
		m.hits--
	}
	m.window[m.pos] = aboveThreshold
	if aboveThreshold {
		m.hits++
	}
	m.pos = (m.pos + 1) % len(m.window)
}

// hitsAtTriggerLevel reports whether at least TriggerLevel of the frames
// currently in the window were above threshold. This is a sliding count,
// not a strict consecutive run: a handful of dips below threshold inside
// the window don't reset progress toward firing, as long as enough other
// frames in the window are hits.
func (m *model) hitsAtTriggerLevel() bool {
	return m.hits >= m.cfg.TriggerLevel
}
