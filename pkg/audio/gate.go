package audio

import "math"

// Denoise applies a simple noise gate: windows whose RMS falls below
// threshold are zeroed, which strips keyboard clatter and room hum between
// words before the clip reaches a recognition engine. The window is 20 ms
// of samples; threshold is a normalized RMS in [0, 1], typically the
// calibrated ambient level times a small factor.
func Denoise(c Clip, threshold float64) Clip {
	if c.Empty() || threshold <= 0 {
		return c
	}

	samples := c.Samples()
	window := c.SampleRate * max(c.Channels, 1) / 50
	if window <= 0 {
		return c
	}

	out := make([]int16, len(samples))
	copy(out, samples)

	for start := 0; start < len(out); start += window {
		end := min(start+window, len(out))
		if windowRMS(out[start:end]) < threshold {
			for i := start; i < end; i++ {
				out[i] = 0
			}
		}
	}
	return FromSamples(out, c.SampleRate, c.Channels)
}

func windowRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s) / 32767
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
