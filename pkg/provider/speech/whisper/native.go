// This file contains the NativeEngine implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/correx/correx/pkg/audio"
	"github.com/correx/correx/pkg/provider/speech"
)

// NativeEngine implements speech.Engine using the whisper.cpp Go bindings,
// running inference in-process. The model is loaded once and shared; each
// Recognize call gets a fresh whisper context because contexts are not
// safe for concurrent use.
type NativeEngine struct {
	model    whisperlib.Model
	language string

	mu     sync.Mutex
	closed bool
}

var _ speech.Engine = (*NativeEngine)(nil)

// NativeOption is a functional option for NativeEngine.
type NativeOption func(*NativeEngine)

// WithNativeLanguage sets the transcription language code (default "en").
func WithNativeLanguage(lang string) NativeOption {
	return func(e *NativeEngine) {
		if lang != "" {
			e.language = lang
		}
	}
}

// NewNative loads a ggml model file and creates a NativeEngine.
func NewNative(modelPath string, opts ...NativeOption) (*NativeEngine, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	e := &NativeEngine{model: model, language: "en"}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Name implements speech.Engine.
func (e *NativeEngine) Name() string { return "whisper-native" }

// Recognize implements speech.Engine.
func (e *NativeEngine) Recognize(ctx context.Context, clip audio.Clip) (string, error) {
	if clip.Empty() {
		return "", speech.ErrNotRecognized
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", fmt.Errorf("whisper: engine closed")
	}
	e.mu.Unlock()

	clip = audio.Normalize(clip, audio.DefaultSampleRate)
	samples := toFloat32(clip)

	wctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(e.language); err != nil {
		slog.Warn("whisper: failed to set language, using default",
			"language", e.language, "error", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return "", speech.ErrNotRecognized
	}
	return text, nil
}

// Close releases the whisper model. Recognize calls after Close fail.
func (e *NativeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.model.Close()
}

// toFloat32 converts a mono int16 clip into the normalized float32 samples
// whisper.cpp expects.
func toFloat32(c audio.Clip) []float32 {
	in := c.Samples()
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / 32768
	}
	return out
}
