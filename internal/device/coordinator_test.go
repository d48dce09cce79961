package device

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corevox/noia/internal/bus"
)

type fakeLED struct {
	mu     sync.Mutex
	colour Colour
	bright byte
}

func (f *fakeLED) SetColour(c Colour, b byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.colour, f.bright = c, b
	return nil
}

func (f *fakeLED) last() (Colour, byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.colour, f.bright
}

type fakePhone struct {
	mu     sync.Mutex
	active bool
}

func (f *fakePhone) SetCallActive(active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = active
	return nil
}

type fakeMixer struct {
	raw float64
}

func (f *fakeMixer) SetRaw(v float64) error   { f.raw = v; return nil }
func (f *fakeMixer) GetRaw() (float64, error) { return f.raw, nil }

func TestErrorTakesPriorityOverListening(t *testing.T) {
	b := bus.New(nil)
	led := &fakeLED{}
	New(b, led, nil, nil)

	b.PublishFrom(bus.KindStartListening, "test")
	b.PublishFrom(bus.KindSystemError, "test")

	colour, _ := led.last()
	assert.Equal(t, ColourRed, colour)
}

func TestFunctionInvokingOutranksTalkLevel(t *testing.T) {
	b := bus.New(nil)
	led := &fakeLED{}
	New(b, led, nil, nil)

	level := 200
	b.Publish(bus.New(bus.KindTalkLevel, "test", bus.TalkLevelPayload{Level: &level}))
	colour, bright := led.last()
	assert.Equal(t, ColourGreen, colour)
	assert.Equal(t, byte(200), bright)

	b.PublishFrom(bus.KindFunctionInvoking, "test")
	colour, _ = led.last()
	assert.Equal(t, ColourBlue, colour)
}

func TestNightModeFallsBackToOffWhenNoHigherFlagSet(t *testing.T) {
	b := bus.New(nil)
	led := &fakeLED{}
	New(b, led, nil, nil)

	b.PublishFrom(bus.KindNightModeActivated, "test")
	colour, _ := led.last()
	assert.Equal(t, ColourOff, colour)
}

func TestDefaultIdleColourIsWhite(t *testing.T) {
	b := bus.New(nil)
	led := &fakeLED{}
	New(b, led, nil, nil)
	colour, _ := led.last()
	assert.Equal(t, ColourWhite, colour)
}

func TestStartListeningActivatesSpeakerphoneAndClearsTransientFlags(t *testing.T) {
	b := bus.New(nil)
	led := &fakeLED{}
	phone := &fakePhone{}
	New(b, led, phone, nil)

	b.PublishFrom(bus.KindWakeWordDetected, "test")
	colour, _ := led.last()
	assert.Equal(t, ColourOrange, colour)

	b.PublishFrom(bus.KindStartListening, "test")
	colour, _ = led.last()
	assert.Equal(t, ColourLightGreen, colour)
	assert.True(t, phone.active)

	b.PublishFrom(bus.KindStopListening, "test")
	assert.False(t, phone.active)
}

func TestVolumeRoundTripWithinOneStep(t *testing.T) {
	mixer := &fakeMixer{}
	c := New(bus.New(nil), nil, nil, mixer)

	for logical := 0; logical <= 10; logical++ {
		require.NoError(t, c.SetPlaybackVolume(logical))
		got, err := c.GetPlaybackVolume()
		require.NoError(t, err)
		assert.InDelta(t, logical, got, 1, "logical=%d got=%d", logical, got)
	}
}

func TestSetPlaybackVolumeRejectsOutOfRange(t *testing.T) {
	c := New(bus.New(nil), nil, nil, &fakeMixer{})
	require.Error(t, c.SetPlaybackVolume(11))
	require.Error(t, c.SetPlaybackVolume(-1))
}

func TestVolumeControlEventsStepTheMixer(t *testing.T) {
	mixer := &fakeMixer{}
	b := bus.New(nil)
	c := New(b, nil, nil, mixer)
	require.NoError(t, c.SetPlaybackVolume(5))

	b.PublishFrom(bus.KindVolumeCtrlUp, "test")
	got, err := c.GetPlaybackVolume()
	require.NoError(t, err)
	assert.Equal(t, 6, got)

	b.PublishFrom(bus.KindVolumeCtrlDown, "test")
	b.PublishFrom(bus.KindVolumeCtrlDown, "test")
	got, err = c.GetPlaybackVolume()
	require.NoError(t, err)
	assert.Equal(t, 4, got)
}
