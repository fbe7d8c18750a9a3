package voiceagent

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Resampler converts float PCM at the capture rate into int16 PCM at the
// agent's input rate.
//
// Downsampling is strided nearest selection: one source sample per output
// slot, no anti-aliasing filter. That keeps latency and cost flat.
type Resampler struct {
	sourceRate int
	targetRate int
	ratio      float64
}

// NewResampler validates the rates. Upsampling is not supported.
func NewResampler(sourceRate, targetRate int) (*Resampler, error) {
	if sourceRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("%w: source %d, target %d", ErrInvalidRate, sourceRate, targetRate)
	}
	if targetRate > sourceRate {
		return nil, fmt.Errorf("%w: cannot upsample %d to %d", ErrInvalidRate, sourceRate, targetRate)
	}
	return &Resampler{
		sourceRate: sourceRate,
		targetRate: targetRate,
		ratio:      float64(sourceRate) / float64(targetRate),
	}, nil
}

func (r *Resampler) SourceRate() int { return r.sourceRate }

func (r *Resampler) TargetRate() int { return r.targetRate }

// OutputLen is round(n * target / source).
func (r *Resampler) OutputLen(n int) int {
	return int(math.Round(float64(n) * float64(r.targetRate) / float64(r.sourceRate)))
}

// Downsample picks one sample per output slot.
func (r *Resampler) Downsample(samples []float32) []float32 {
	n := r.OutputLen(len(samples))
	out := make([]float32, n)
	if r.sourceRate == r.targetRate {
		copy(out, samples)
		return out
	}
	last := len(samples) - 1
	for i := range out {
		idx := int(float64(i) * r.ratio)
		if idx > last {
			idx = last
		}
		out[i] = samples[idx]
	}
	return out
}

// Resample downsamples and converts to int16 in one pass.
func (r *Resampler) Resample(samples []float32) []int16 {
	return Float32ToInt16(r.Downsample(samples))
}

// Float32ToInt16 scales samples in [-1, 1] to int16, clamping anything
// outside that range. NaN becomes silence.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = floatToPCM16(s)
	}
	return out
}

func floatToPCM16(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v >= 1:
		return math.MaxInt16
	case v <= -1:
		return math.MinInt16
	case v < 0:
		return int16(v * 32768)
	default:
		return int16(v * 32767)
	}
}

// Int16ToFloat32 is the inverse scaling used for playback.
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		if s < 0 {
			out[i] = float32(s) / 32768
		} else {
			out[i] = float32(s) / 32767
		}
	}
	return out
}

// EncodePCM16LE serializes samples as little-endian bytes, the layout the
// agent expects for linear16.
func EncodePCM16LE(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// DecodePCM16LE parses little-endian linear16. A trailing odd byte is dropped.
func DecodePCM16LE(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}
