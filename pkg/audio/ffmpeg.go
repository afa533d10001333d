package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// Segmentation parameters for the ffmpeg capture.
const (
	captureFrame    = 20 * time.Millisecond
	trailingSilence = 800 * time.Millisecond

	// speechFactor scales the calibrated ambient RMS into the speech
	// threshold.
	speechFactor = 2.5

	// minThreshold floors the threshold so a dead-silent room does not
	// make breathing count as speech.
	minThreshold = 0.01
)

// FFmpegCapture records from the default microphone by running an ffmpeg
// child process that writes raw 16-bit mono PCM to its stdout. Utterances
// are segmented by energy: capture starts when a frame's RMS exceeds the
// calibrated threshold and ends after a stretch of trailing silence.
type FFmpegCapture struct {
	device     string
	sampleRate int
	log        *slog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	threshold float64
	closed    bool
}

var _ Capture = (*FFmpegCapture)(nil)

// FFmpegOption configures an [FFmpegCapture].
type FFmpegOption func(*FFmpegCapture)

// WithDevice overrides the input device passed to ffmpeg. The default is
// the platform's default microphone.
func WithDevice(device string) FFmpegOption {
	return func(c *FFmpegCapture) {
		if device != "" {
			c.device = device
		}
	}
}

// WithSampleRate overrides the capture sample rate.
func WithSampleRate(rate int) FFmpegOption {
	return func(c *FFmpegCapture) {
		if rate > 0 {
			c.sampleRate = rate
		}
	}
}

// WithCaptureLogger sets the capture's logger.
func WithCaptureLogger(l *slog.Logger) FFmpegOption {
	return func(c *FFmpegCapture) {
		if l != nil {
			c.log = l
		}
	}
}

// NewFFmpegCapture starts the ffmpeg child process and begins streaming
// microphone audio. The process runs until Close.
func NewFFmpegCapture(opts ...FFmpegOption) (*FFmpegCapture, error) {
	c := &FFmpegCapture{
		sampleRate: DefaultSampleRate,
		threshold:  minThreshold,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	inFormat, device := defaultInput()
	if c.device != "" {
		device = c.device
	}

	cmd := exec.Command("ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-f", inFormat, "-i", device,
		"-ac", "1",
		"-ar", fmt.Sprint(c.sampleRate),
		"-f", "s16le",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("audio: ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("audio: start ffmpeg: %w", err)
	}

	c.cmd = cmd
	c.stdout = stdout
	c.log.Info("microphone capture started", "device", device, "sampleRate", c.sampleRate)
	return c, nil
}

// defaultInput returns the ffmpeg input format and default device name for
// the current platform.
func defaultInput() (format, device string) {
	switch runtime.GOOS {
	case "windows":
		return "dshow", "audio=default"
	case "darwin":
		return "avfoundation", ":0"
	default:
		return "pulse", "default"
	}
}

// Calibrate implements [Capture]. It measures ambient RMS for d and stores
// the derived speech threshold.
func (c *FFmpegCapture) Calibrate(ctx context.Context, d time.Duration) (float64, error) {
	deadline := time.Now().Add(d)
	var frames []float64
	for time.Now().Before(deadline) {
		frame, err := c.readFrame(ctx)
		if err != nil {
			return 0, err
		}
		frames = append(frames, frame.RMS())
	}

	var ambient float64
	for _, r := range frames {
		ambient += r
	}
	if len(frames) > 0 {
		ambient /= float64(len(frames))
	}

	c.mu.Lock()
	c.threshold = max(ambient*speechFactor, minThreshold)
	threshold := c.threshold
	c.mu.Unlock()

	c.log.Debug("ambient noise calibrated", "ambient", ambient, "threshold", threshold)
	return ambient, nil
}

// Listen implements [Capture].
func (c *FFmpegCapture) Listen(ctx context.Context, maxUtterance time.Duration) (Clip, error) {
	c.mu.Lock()
	threshold := c.threshold
	c.mu.Unlock()

	var utterance []byte
	var silent time.Duration
	started := false
	var startedAt time.Time

	for {
		select {
		case <-ctx.Done():
			if started {
				return Clip{PCM: utterance, SampleRate: c.sampleRate, Channels: 1}, nil
			}
			return Clip{}, ErrNoSpeech
		default:
		}

		frame, err := c.readFrame(ctx)
		if err != nil {
			return Clip{}, err
		}
		loud := frame.RMS() >= threshold

		if !started {
			if !loud {
				continue
			}
			started = true
			startedAt = time.Now()
		}

		utterance = append(utterance, frame.PCM...)
		if loud {
			silent = 0
		} else {
			silent += captureFrame
			if silent >= trailingSilence {
				break
			}
		}
		if maxUtterance > 0 && time.Since(startedAt) >= maxUtterance {
			break
		}
	}

	return Clip{PCM: utterance, SampleRate: c.sampleRate, Channels: 1}, nil
}

// readFrame reads one 20 ms frame from the ffmpeg stream.
func (c *FFmpegCapture) readFrame(ctx context.Context) (Clip, error) {
	c.mu.Lock()
	closed := c.closed
	stdout := c.stdout
	c.mu.Unlock()
	if closed {
		return Clip{}, ErrCaptureClosed
	}
	if err := ctx.Err(); err != nil {
		return Clip{}, err
	}

	frameBytes := c.sampleRate * 2 / 50
	buf := make([]byte, frameBytes)
	if _, err := io.ReadFull(stdout, buf); err != nil {
		return Clip{}, fmt.Errorf("audio: read capture stream: %w", err)
	}
	return Clip{PCM: buf, SampleRate: c.sampleRate, Channels: 1}, nil
}

// Close implements [Capture]. It terminates the ffmpeg child process.
func (c *FFmpegCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	c.stdout.Close()
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	_ = c.cmd.Wait()
	c.log.Info("microphone capture stopped")
	return nil
}
