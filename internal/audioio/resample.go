package audioio

import "encoding/binary"

// PCM16BytesToFloat32 converts little-endian PCM16 mono bytes to float32
// samples in [-1.0, 1.0].
func PCM16BytesToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// PCM16BytesToInt16 decodes little-endian PCM16 mono bytes into int16
// samples, truncating a trailing odd byte if present.
func PCM16BytesToInt16(pcm []byte) []int16 {
	n := len(pcm) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Int16ToPCM16Bytes encodes int16 samples as little-endian PCM16 mono bytes.
func Int16ToPCM16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Int16ToFloat32 converts PCM16 samples to float32 in [-1.0, 1.0].
func Int16ToFloat32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToPCM16Bytes converts float32 samples in [-1.0, 1.0] to
// little-endian PCM16 mono bytes, clamping out-of-range input.
func Float32ToPCM16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		if f > 1 {
			f = 1
		}
		if f < -1 {
			f = -1
		}
		s := int16(f * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// NearestNeighborResample resamples PCM16 samples from inRate to outRate
// using nearest-neighbour index selection. Nearest-neighbour is intentional:
// cheap, and phase is irrelevant both for VAD feed and for the short uplink
// frames this module resamples.
func NearestNeighborResample(in []int16, inRate, outRate int) []int16 {
	if inRate == outRate || len(in) == 0 {
		out := make([]int16, len(in))
		copy(out, in)
		return out
	}
	outLen := int(int64(len(in)) * int64(outRate) / int64(inRate))
	out := make([]int16, outLen)
	for i := 0; i < outLen; i++ {
		srcIdx := int64(i) * int64(inRate) / int64(outRate)
		if srcIdx >= int64(len(in)) {
			srcIdx = int64(len(in)) - 1
		}
		out[i] = in[srcIdx]
	}
	return out
}
