// Package transcribe converts voice messages to text through a
// Whisper-compatible HTTP endpoint (Groq, OpenAI, or any server exposing the
// same /audio/transcriptions contract).
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/zapagent/zapagent/internal/log"
)

var (
	// ErrNoAudio indicates an empty audio payload.
	ErrNoAudio = errors.New("transcribe: empty audio payload")

	// ErrMissingAPIKey indicates the endpoint requires a key that was not
	// configured.
	ErrMissingAPIKey = errors.New("transcribe: missing API key")
)

const (
	defaultTimeout      = 60 * time.Second
	maxResponseBytes    = 1 << 20 // 1 MiB of JSON is already absurd for a transcript
	defaultAudioFileExt = "ogg"
)

// Audio is a voice payload handed over by the transport.
type Audio struct {
	Data []byte
	MIME string
}

// Transcriber is the port the engine and policy use.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// Client posts audio to a Whisper-compatible endpoint.
type Client struct {
	url      string
	apiKey   string
	model    string
	language string
	hc       *http.Client
	logger   log.Logger
}

// Config holds the endpoint settings.
type Config struct {
	URL      string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

// NewClient creates a transcription client.
func NewClient(cfg Config, logger log.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:      cfg.URL,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		language: cfg.Language,
		hc:       &http.Client{Timeout: timeout},
		logger:   logger.With("component", "transcribe"),
	}
}

// Transcribe uploads the audio as multipart form data and returns the text.
func (c *Client) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", ErrNoAudio
	}
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", "audio."+fileExt(audio.MIME))
	if err != nil {
		return "", fmt.Errorf("transcribe: create form file: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return "", fmt.Errorf("transcribe: write audio: %w", err)
	}
	if err := w.WriteField("model", c.model); err != nil {
		return "", fmt.Errorf("transcribe: write model field: %w", err)
	}
	if c.language != "" {
		if err := w.WriteField("language", c.language); err != nil {
			return "", fmt.Errorf("transcribe: write language field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("transcribe: finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return "", fmt.Errorf("transcribe: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("transcribe: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("transcribe: endpoint returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("transcribe: decode response: %w", err)
	}

	text := strings.TrimSpace(parsed.Text)
	c.logger.Debug("audio transcribed",
		"bytes", len(audio.Data),
		"chars", len(text),
		"elapsed", time.Since(start))
	return text, nil
}

// fileExt derives an upload filename extension from the MIME type.
// WhatsApp voice notes arrive as "audio/ogg; codecs=opus"; the parameter
// part must be stripped before mapping.
func fileExt(mime string) string {
	mime = strings.TrimSpace(strings.Split(mime, ";")[0])
	switch mime {
	case "audio/ogg", "application/ogg":
		return "ogg"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/wav", "audio/x-wav":
		return "wav"
	case "audio/webm":
		return "webm"
	case "audio/flac":
		return "flac"
	default:
		return defaultAudioFileExt
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
