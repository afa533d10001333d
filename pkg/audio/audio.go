// Package audio holds the audio model shared by the dictation pipeline:
// the Clip type carrying one utterance of PCM, format conversion helpers,
// WAV encoding for batch recognizers, a noise gate, and the Capture
// interface the dictation orchestrator listens through.
package audio

import (
	"math"
	"time"
)

// DefaultSampleRate is the rate recognition engines expect (16 kHz mono).
const DefaultSampleRate = 16000

// Clip is one contiguous chunk of little-endian int16 PCM audio.
type Clip struct {
	// PCM is interleaved little-endian int16 sample data.
	PCM []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int
}

// Empty reports whether the clip carries no samples.
func (c Clip) Empty() bool { return len(c.PCM) < 2 }

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.PCM) / (2 * c.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Samples decodes the PCM bytes into int16 samples. A trailing odd byte is
// dropped.
func (c Clip) Samples() []int16 {
	n := len(c.PCM) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(c.PCM[2*i]) | int16(c.PCM[2*i+1])<<8
	}
	return out
}

// RMS returns the root-mean-square amplitude of the clip normalized to
// [0, 1]. Used for ambient-noise calibration and utterance segmentation.
func (c Clip) RMS() float64 {
	samples := c.Samples()
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s) / math.MaxInt16
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// FromSamples builds a Clip from int16 samples.
func FromSamples(samples []int16, sampleRate, channels int) Clip {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		pcm[2*i] = byte(s)
		pcm[2*i+1] = byte(s >> 8)
	}
	return Clip{PCM: pcm, SampleRate: sampleRate, Channels: channels}
}
