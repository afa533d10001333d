package audio

import "math"

// Normalize converts a clip to mono at the requested sample rate, the
// format recognition engines expect. Clips already in the target format
// are returned unchanged.
func Normalize(c Clip, sampleRate int) Clip {
	if c.Channels == 2 {
		c = Downmix(c)
	}
	if c.SampleRate != sampleRate {
		c = Resample(c, sampleRate)
	}
	return c
}

// Downmix averages the channels of a stereo clip into mono. Mono clips are
// returned unchanged.
func Downmix(c Clip) Clip {
	if c.Channels != 2 {
		return c
	}
	in := c.Samples()
	frames := len(in) / 2
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := int32(in[2*i]) + int32(in[2*i+1])
		out[i] = clampInt16(sum / 2)
	}
	return FromSamples(out, c.SampleRate, 1)
}

// Resample converts a mono clip to dstRate using linear interpolation.
// Stereo clips must be downmixed first; they are returned unchanged.
func Resample(c Clip, dstRate int) Clip {
	if c.Channels != 1 || dstRate <= 0 || c.SampleRate <= 0 || c.SampleRate == dstRate {
		return c
	}
	in := c.Samples()
	if len(in) == 0 {
		return Clip{SampleRate: dstRate, Channels: 1}
	}

	dstLen := int(int64(len(in)) * int64(dstRate) / int64(c.SampleRate))
	out := make([]int16, dstLen)
	step := float64(c.SampleRate) / float64(dstRate)

	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := in[idx]
		s1 := s0
		if idx+1 < len(in) {
			s1 = in[idx+1]
		}
		out[i] = int16(math.Round(float64(s0)*(1-frac) + float64(s1)*frac))
	}
	return FromSamples(out, dstRate, 1)
}

func clampInt16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
