// Package deepgram provides a cloud speech engine backed by Deepgram's
// streaming WebSocket API. Each utterance opens a short-lived session: the
// clip is streamed in, the stream is closed, and the final transcripts are
// concatenated into the result.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/correx/correx/pkg/audio"
	"github.com/correx/correx/pkg/provider/speech"
)

const (
	endpoint = "wss://api.deepgram.com/v1/listen"

	defaultModel    = "nova-2"
	defaultLanguage = "en-US"

	// chunkBytes is the write granularity for streaming PCM.
	chunkBytes = 8192
)

// Engine implements speech.Engine against Deepgram.
type Engine struct {
	apiKey   string
	model    string
	language string
}

var _ speech.Engine = (*Engine)(nil)

// Option is a functional option for Engine.
type Option func(*Engine)

// WithModel overrides the Deepgram model (default "nova-2").
func WithModel(model string) Option {
	return func(e *Engine) {
		if model != "" {
			e.model = model
		}
	}
}

// WithLanguage overrides the BCP-47 recognition language (default "en-US").
func WithLanguage(lang string) Option {
	return func(e *Engine) {
		if lang != "" {
			e.language = lang
		}
	}
}

// New creates a Deepgram Engine. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	e := &Engine{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Name implements speech.Engine.
func (e *Engine) Name() string { return "deepgram" }

// Recognize implements speech.Engine.
func (e *Engine) Recognize(ctx context.Context, clip audio.Clip) (string, error) {
	if clip.Empty() {
		return "", speech.ErrNotRecognized
	}
	clip = audio.Normalize(clip, audio.DefaultSampleRate)

	wsURL, err := e.buildURL(clip)
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+e.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return "", fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "utterance done")

	// Stream the clip, then ask the server to flush.
	for off := 0; off < len(clip.PCM); off += chunkBytes {
		end := min(off+chunkBytes, len(clip.PCM))
		if err := conn.Write(ctx, websocket.MessageBinary, clip.PCM[off:end]); err != nil {
			return "", fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return "", fmt.Errorf("deepgram: close stream: %w", err)
	}

	return e.collect(ctx, conn)
}

// collect reads server messages until the socket closes and joins all
// final transcripts.
func (e *Engine) collect(ctx context.Context, conn *websocket.Conn) (string, error) {
	var parts []string
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) || errors.Is(err, context.Canceled) {
				break
			}
			// Deepgram closes the socket after the flush; any read error
			// at that point means end of results.
			break
		}

		var resp response
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Type != "Results" || !resp.IsFinal {
			continue
		}
		if len(resp.Channel.Alternatives) == 0 {
			continue
		}
		if text := strings.TrimSpace(resp.Channel.Alternatives[0].Transcript); text != "" {
			parts = append(parts, text)
		}
	}

	full := strings.TrimSpace(strings.Join(parts, " "))
	if full == "" {
		return "", speech.ErrNotRecognized
	}
	return full, nil
}

func (e *Engine) buildURL(clip audio.Clip) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", e.model)
	q.Set("language", e.language)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(clip.SampleRate))
	q.Set("channels", strconv.Itoa(clip.Channels))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// response is the JSON structure Deepgram returns for a Results event.
type response struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}
