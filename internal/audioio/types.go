// Package audioio implements the fixed-frame microphone capture, ring-buffered
// speaker playback with peak metering, and nearest-neighbour resampling that
// every other component builds on. Capturer and Renderer are declared as
// interfaces; ReaderMicrophone (io.Reader source) and RingSpeaker (sample-sink
// callback) are implementations used directly in tests and as the shape every real binding
// follows, while MalgoCapturer and OtoRenderer (device.go) are the production
// bindings, wrapping github.com/gen2brain/malgo and github.com/ebitengine/oto/v3
// — the same microphone/speaker pairing demonstrated in the grounding corpus's
// own realtime audio demo.
package audioio

import "context"

// CaptureFrameSamples is the fixed frame length delivered by the microphone
// on the realtime path.
const CaptureFrameSamples = 512

// Capturer is the microphone abstraction. The channel returned by Start
// yields fixed-size PCM16 mono frames for as long as the context passed to
// Start remains alive.
type Capturer interface {
	Start(ctx context.Context) (<-chan []int16, error)
	SampleRateHz() int
	Stop() error
}

// Renderer is the speaker abstraction.
type Renderer interface {
	Start() error
	Write(pcm []byte) error
	Clear()
	FlushAsync(ctx context.Context) error
	EstimatedPlayedMilliseconds() int64
	Stop() error
	SetMeterCallback(cb func(level byte))
}
