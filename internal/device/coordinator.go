// Package device implements the Device Coordinator: it subscribes to the
// Event Bus and translates subsystem transitions into LED colour state,
// USB-HID speakerphone call state, and mixer volume. The hardware bindings
// themselves (LEDDriver, SpeakerphoneDriver, HardwareMixer) are interfaces
// only — GPIO/LED and USB-HID drivers are out of scope for this build; the
// core publishes state, drivers consume it.
package device

import (
	"sync"

	"github.com/corevox/noia/internal/bus"
)

// Colour is one of the LED states the Coordinator can render.
type Colour string

const (
	ColourOff        Colour = "off"
	ColourRed        Colour = "red"
	ColourBlue       Colour = "blue"
	ColourGreen      Colour = "green"
	ColourLightGreen Colour = "light_green"
	ColourOrange     Colour = "orange"
	ColourYellow     Colour = "yellow"
	ColourWhite      Colour = "white"
)

// LEDDriver renders a colour, optionally at a brightness in [0,255] (only
// meaningful for ColourGreen, which carries the talk-level brightness).
type LEDDriver interface {
	SetColour(c Colour, brightness byte) error
}

// SpeakerphoneDriver toggles the USB-HID speakerphone's call-active state.
type SpeakerphoneDriver interface {
	SetCallActive(active bool) error
}

// HardwareMixer is the raw hardware volume control; Coordinator applies the
// perceptual curve on top of it.
type HardwareMixer interface {
	SetRaw(v float64) error
	GetRaw() (float64, error)
}

// flags is the priority-ordered state the LED colour is derived from,
// highest priority first.
type flags struct {
	shutdown         bool
	systemError      bool
	functionInvoking bool
	talkLevel        *byte
	listening        bool
	wakeWordDetected bool
	noiseDetected    bool
	nightMode        bool
}

// Coordinator wires the Event Bus to the hardware driver interfaces.
type Coordinator struct {
	led   LEDDriver
	phone SpeakerphoneDriver
	mixer HardwareMixer

	mu    sync.Mutex
	state flags
}

// New constructs a Coordinator, subscribes it to every event kind it reacts
// to, and renders the initial (White) colour. Any driver may be nil (e.g. in
// tests observing only bus state).
func New(b *bus.Bus, led LEDDriver, phone SpeakerphoneDriver, mixer HardwareMixer) *Coordinator {
	c := &Coordinator{led: led, phone: phone, mixer: mixer}
	c.subscribe(b)
	c.render(c.state)
	return c
}

func (c *Coordinator) subscribe(b *bus.Bus) {
	b.Subscribe(bus.KindShutdown, func(bus.Event) { c.update(func(f *flags) { f.shutdown = true }) })
	b.Subscribe(bus.KindSystemError, func(bus.Event) { c.update(func(f *flags) { f.systemError = true }) })
	b.Subscribe(bus.KindSystemOk, func(bus.Event) { c.update(func(f *flags) { f.systemError = false }) })
	b.Subscribe(bus.KindFunctionInvoking, func(bus.Event) { c.update(func(f *flags) { f.functionInvoking = true }) })
	b.Subscribe(bus.KindFunctionInvoked, func(bus.Event) { c.update(func(f *flags) { f.functionInvoking = false }) })

	b.Subscribe(bus.KindTalkLevel, func(e bus.Event) {
		p, _ := e.Payload.(bus.TalkLevelPayload)
		c.update(func(f *flags) {
			if p.Level == nil {
				f.talkLevel = nil
				return
			}
			lvl := byte(*p.Level)
			f.talkLevel = &lvl
		})
	})

	b.Subscribe(bus.KindStartListening, func(bus.Event) {
		c.update(func(f *flags) {
			f.listening = true
			f.wakeWordDetected = false
			f.noiseDetected = false
		})
		if c.phone != nil {
			c.phone.SetCallActive(true)
		}
	})
	b.Subscribe(bus.KindStopListening, func(bus.Event) {
		c.update(func(f *flags) { f.listening = false })
		if c.phone != nil {
			c.phone.SetCallActive(false)
		}
	})
	b.Subscribe(bus.KindShutdown, func(bus.Event) {
		if c.phone != nil {
			c.phone.SetCallActive(false)
		}
	})

	b.Subscribe(bus.KindWakeWordDetected, func(bus.Event) {
		c.update(func(f *flags) { f.wakeWordDetected = true; f.noiseDetected = false })
	})
	b.Subscribe(bus.KindNoiseDetected, func(bus.Event) {
		c.update(func(f *flags) { f.noiseDetected = true })
	})
	b.Subscribe(bus.KindSilenceDetected, func(bus.Event) {
		c.update(func(f *flags) { f.noiseDetected = false; f.wakeWordDetected = false })
	})

	b.Subscribe(bus.KindNightModeActivated, func(bus.Event) { c.update(func(f *flags) { f.nightMode = true }) })
	b.Subscribe(bus.KindNightModeDeactivated, func(bus.Event) { c.update(func(f *flags) { f.nightMode = false }) })

	b.Subscribe(bus.KindVolumeCtrlUp, func(bus.Event) { c.adjustVolume(1) })
	b.Subscribe(bus.KindVolumeCtrlDown, func(bus.Event) { c.adjustVolume(-1) })
}

func (c *Coordinator) update(mutate func(*flags)) {
	c.mu.Lock()
	mutate(&c.state)
	f := c.state
	c.mu.Unlock()
	c.render(f)
}

// render computes the highest-priority colour and pushes it to the LED
// driver. This is the single source of truth for the colour priority order.
func (c *Coordinator) render(f flags) {
	if c.led == nil {
		return
	}
	colour, brightness := colourFor(f)
	c.led.SetColour(colour, brightness)
}

// colourFor implements the LED colour priority order.
func colourFor(f flags) (Colour, byte) {
	switch {
	case f.shutdown:
		return ColourOff, 0
	case f.systemError:
		return ColourRed, 0
	case f.functionInvoking:
		return ColourBlue, 0
	case f.talkLevel != nil:
		return ColourGreen, *f.talkLevel
	case f.listening:
		return ColourLightGreen, 0
	case f.wakeWordDetected:
		return ColourOrange, 0
	case f.noiseDetected:
		return ColourYellow, 0
	case f.nightMode:
		return ColourOff, 0
	default:
		return ColourWhite, 0
	}
}

func (c *Coordinator) adjustVolume(delta int) {
	if c.mixer == nil {
		return
	}
	current, err := c.GetPlaybackVolume()
	if err != nil {
		return
	}
	next := current + delta
	if next < 0 {
		next = 0
	}
	if next > 10 {
		next = 10
	}
	c.SetPlaybackVolume(next)
}
