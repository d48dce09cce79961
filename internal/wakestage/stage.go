// Package wakestage implements the two-stage noise-gated, pre-buffered
// wake-word loop: an amplitude gate that only engages the wake engine once
// sustained activity is seen, generalized here to drive a multi-model wake
// engine (internal/wakeengine) rather than a single fixed phrase.
package wakestage

import (
	"context"

	"github.com/corevox/noia/internal/audioio"
	"github.com/corevox/noia/internal/bus"
)

// WakeEngine is the subset of *wakeengine.Engine's behavior the Wake Stage
// depends on. Declaring it here (rather than importing the concrete type)
// lets tests inject a fake multi-model engine without an ONNX Runtime.
type WakeEngine interface {
	Process(frame []float32) (int, error)
	ModelID(i int) string
	Reset()
}

const (
	PreBufferLength        = 10
	NoiseActivationFrameCount = 5
	MaxSpeechBufferFrames  = 100
	MinSilenceFrames       = 50
)

type state int

const (
	stateIdle state = iota
	stateActive
)

// Stage runs the Idle/Active gating state machine over a stream of fixed
// frames from a Capturer.
type Stage struct {
	b      *bus.Bus
	engine WakeEngine

	silenceAmplitudeThreshold int
	wakeEngineSampleRateHz    int
	frameSampleRateHz         int

	st            state
	preBuffer     [][]int16
	speechBuffer  [][]int16
	nonSilentRun  int
	silentRun     int
}

// New builds a Stage. silenceAmplitudeThreshold <= 0 disables noise gating
// entirely: every frame is fed to the wake engine immediately.
func New(b *bus.Bus, engine WakeEngine, silenceAmplitudeThreshold, frameSampleRateHz, wakeEngineSampleRateHz int) *Stage {
	s := &Stage{
		b:                         b,
		engine:                    engine,
		silenceAmplitudeThreshold: silenceAmplitudeThreshold,
		frameSampleRateHz:         frameSampleRateHz,
		wakeEngineSampleRateHz:    wakeEngineSampleRateHz,
	}
	if silenceAmplitudeThreshold <= 0 {
		s.st = stateActive
	}
	return s
}

// WaitForWakeWord blocks on frames until a wake-word model fires or ctx is
// cancelled. It returns ("", false) on cancellation.
func (s *Stage) WaitForWakeWord(ctx context.Context, frames <-chan []int16) (string, bool) {
	for {
		select {
		case <-ctx.Done():
			return "", false
		case frame, ok := <-frames:
			if !ok {
				return "", false
			}
			if id, fired := s.feed(frame); fired {
				return id, true
			}
		}
	}
}

func (s *Stage) feed(frame []int16) (string, bool) {
	silent := s.isSilent(frame)

	switch s.st {
	case stateIdle:
		return s.feedIdle(frame, silent)
	default:
		return s.feedActive(frame, silent)
	}
}

func (s *Stage) feedIdle(frame []int16, silent bool) (string, bool) {
	s.pushPreBuffer(frame)

	if silent {
		s.nonSilentRun = 0
		return "", false
	}

	s.nonSilentRun++
	if s.nonSilentRun < NoiseActivationFrameCount {
		return "", false
	}

	s.b.PublishFrom(bus.KindNoiseDetected, "wakestage")

	s.speechBuffer = s.speechBuffer[:0]
	s.speechBuffer = append(s.speechBuffer, s.preBuffer...)
	s.preBuffer = s.preBuffer[:0]
	s.st = stateActive
	s.silentRun = 0
	s.nonSilentRun = 0

	for _, f := range s.speechBuffer {
		if id, fired := s.runWakeEngine(f); fired {
			return id, true
		}
	}
	return "", false
}

func (s *Stage) feedActive(frame []int16, silent bool) (string, bool) {
	if id, fired := s.runWakeEngine(frame); fired {
		return id, true
	}

	if silent {
		s.silentRun++
		if s.silentRun >= MinSilenceFrames {
			s.b.PublishFrom(bus.KindSilenceDetected, "wakestage")
			s.reset()
		}
	} else {
		s.silentRun = 0
	}
	return "", false
}

func (s *Stage) runWakeEngine(frame []int16) (string, bool) {
	resampled := audioio.NearestNeighborResample(frame, s.frameSampleRateHz, s.wakeEngineSampleRateHz)
	idx, err := s.engine.Process(audioio.Int16ToFloat32(resampled))
	if err != nil || idx < 0 {
		return "", false
	}
	return s.engine.ModelID(idx), true
}

func (s *Stage) pushPreBuffer(frame []int16) {
	s.preBuffer = append(s.preBuffer, frame)
	if len(s.preBuffer) > PreBufferLength {
		s.preBuffer = s.preBuffer[len(s.preBuffer)-PreBufferLength:]
	}
}

func (s *Stage) isSilent(frame []int16) bool {
	if s.silenceAmplitudeThreshold <= 0 {
		return false
	}
	var maxAbs int16
	for _, v := range frame {
		av := v
		if av < 0 {
			av = -av
		}
		if av > maxAbs {
			maxAbs = av
		}
	}
	return int(maxAbs) < s.silenceAmplitudeThreshold
}

// reset returns the Stage to Idle with byte-for-byte empty buffers.
func (s *Stage) reset() {
	s.preBuffer = s.preBuffer[:0]
	s.speechBuffer = s.speechBuffer[:0]
	s.nonSilentRun = 0
	s.silentRun = 0
	s.engine.Reset()
	if s.silenceAmplitudeThreshold > 0 {
		s.st = stateIdle
	}
}

// lenSpeechBuffer reports the current speech buffer length. speechBuffer is
// only ever filled from the pre-buffer, so it never exceeds PreBufferLength
// (<= MaxSpeechBufferFrames); no code or test in this package calls it.
func (s *Stage) lenSpeechBuffer() int { return len(s.speechBuffer) }
