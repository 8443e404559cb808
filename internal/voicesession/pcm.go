package voicesession

import (
	"encoding/binary"
	"math"
)

// TargetSampleRate is the rate the conversational agent expects.
const TargetSampleRate = 16000

// Downsample reduces mono samples from fromRate to toRate by averaging each
// window of input samples. Rates at or below toRate are returned unchanged.
func Downsample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate <= toRate || toRate <= 0 || len(samples) == 0 {
		return samples
	}
	ratio := float64(fromRate) / float64(toRate)
	outLen := int(math.Floor(float64(len(samples)) / ratio))
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		start := int(math.Floor(float64(i) * ratio))
		end := int(math.Floor(float64(i+1) * ratio))
		if end > len(samples) {
			end = len(samples)
		}
		if end <= start {
			end = start + 1
		}
		var sum float32
		for _, s := range samples[start:end] {
			sum += s
		}
		out[i] = sum / float32(end-start)
	}
	return out
}

// Float32ToPCM16 encodes samples in [-1, 1] as little-endian signed 16-bit PCM.
// Values outside the range are clamped.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 0x8000)
		} else {
			v = int16(s * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// DecodeFloat32LE reads little-endian float32 samples from a binary frame.
// A trailing partial sample is ignored.
func DecodeFloat32LE(frame []byte) []float32 {
	out := make([]float32, len(frame)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(frame[i*4:]))
	}
	return out
}
