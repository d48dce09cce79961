package device

import (
	"errors"
	"math"

	"github.com/corevox/noia/internal/coreerr"
)

var errVolumeRange = errors.New("logical volume must be in [0,10]")

// volumeCurveExponent maps the logical 0..10 volume scale onto hardware raw
// range using a perceptual power curve — equal logical steps near the
// bottom of the range change perceived loudness by roughly equal amounts.
const volumeCurveExponent = 0.4

// SetPlaybackVolume maps a logical volume in [0,10] onto the hardware raw
// range [0,1] via the perceptual curve and writes it to the mixer.
func (c *Coordinator) SetPlaybackVolume(logical int) error {
	if logical < 0 || logical > 10 {
		return coreerr.Configuration("device.SetPlaybackVolume", errVolumeRange)
	}
	if c.mixer == nil {
		return nil
	}
	raw := math.Pow(float64(logical)/10.0, volumeCurveExponent)
	return c.mixer.SetRaw(raw)
}

// GetPlaybackVolume reads the hardware raw value and applies the inverse
// curve to recover the logical volume, rounding to the nearest integer.
func (c *Coordinator) GetPlaybackVolume() (int, error) {
	if c.mixer == nil {
		return 0, nil
	}
	raw, err := c.mixer.GetRaw()
	if err != nil {
		return 0, coreerr.DeviceError("device.GetPlaybackVolume", err)
	}
	if raw < 0 {
		raw = 0
	}
	logical := math.Pow(raw, 1.0/volumeCurveExponent) * 10.0
	return int(math.Round(logical)), nil
}
