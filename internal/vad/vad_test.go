package vad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRMSDetectorRejectsUnsupportedRate(t *testing.T) {
	d := NewRMSDetector()
	_, err := d.Process(make([]float32, 512), 22050)
	require.Error(t, err)
}

func TestRMSDetectorDebouncesIntoSpeech(t *testing.T) {
	d := NewRMSDetector()
	loud := make([]float32, 256)
	for i := range loud {
		loud[i] = 0.5
	}

	var last float32
	for i := 0; i < 3; i++ {
		p, err := d.Process(loud, 8000)
		require.NoError(t, err)
		last = p
	}
	assert.Greater(t, last, float32(0.5))
}

func TestRMSDetectorResetClearsRun(t *testing.T) {
	d := NewRMSDetector()
	loud := make([]float32, 256)
	for i := range loud {
		loud[i] = 0.5
	}
	for i := 0; i < 3; i++ {
		d.Process(loud, 8000)
	}
	d.Reset()

	quiet := make([]float32, 256)
	p, err := d.Process(quiet, 8000)
	require.NoError(t, err)
	assert.Less(t, p, float32(0.5))
}
