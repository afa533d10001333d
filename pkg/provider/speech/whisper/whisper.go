// Package whisper provides offline speech engines backed by whisper.cpp.
//
// Two variants exist. ServerEngine talks to a running whisper-server binary
// over its REST API (POST /inference) and needs no CGO. NativeEngine (in
// native.go) loads the model in-process through the whisper.cpp Go
// bindings, eliminating HTTP overhead at the cost of a CGO build.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/correx/correx/pkg/audio"
	"github.com/correx/correx/pkg/provider/speech"
)

// ServerEngine implements speech.Engine against a whisper-server instance.
type ServerEngine struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

var _ speech.Engine = (*ServerEngine)(nil)

// ServerOption is a functional option for ServerEngine.
type ServerOption func(*ServerEngine)

// WithServerLanguage sets the transcription language code (default "en").
func WithServerLanguage(lang string) ServerOption {
	return func(e *ServerEngine) {
		if lang != "" {
			e.language = lang
		}
	}
}

// WithHTTPClient overrides the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) ServerOption {
	return func(e *ServerEngine) {
		if c != nil {
			e.httpClient = c
		}
	}
}

// NewServer creates a ServerEngine talking to serverURL, e.g.
// "http://localhost:8080".
func NewServer(serverURL string, opts ...ServerOption) (*ServerEngine, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("whisper: serverURL must not be empty")
	}
	e := &ServerEngine{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   "en",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Name implements speech.Engine.
func (e *ServerEngine) Name() string { return "whisper-server" }

// Recognize implements speech.Engine. The clip is normalized to 16 kHz
// mono, wrapped in a WAV container, and posted to /inference as
// multipart/form-data.
func (e *ServerEngine) Recognize(ctx context.Context, clip audio.Clip) (string, error) {
	if clip.Empty() {
		return "", speech.ErrNotRecognized
	}
	wav := audio.EncodeWAV(audio.Normalize(clip, audio.DefaultSampleRate))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write form file: %w", err)
	}
	if err := mw.WriteField("language", e.language); err != nil {
		return "", fmt.Errorf("whisper: write language field: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("whisper: write format field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", speech.ErrNotRecognized
	}
	return text, nil
}
