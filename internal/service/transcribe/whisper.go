// Package transcribe wraps the speech-to-text provider behind a
// buffer-in, text-out call. The whole utterance is sent as one request so a
// turn has a single success/failure outcome.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sproutvoice/backend/internal/logging"
)

const transcribeAttempts = 3

// Config carries the provider endpoint settings.
type Config struct {
	BaseURL string // OpenAI-compatible root, e.g. https://api.openai.com
	APIKey  string
	Model   string // e.g. whisper-1
	Timeout time.Duration
}

// Client calls an OpenAI-compatible /v1/audio/transcriptions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient builds a transcription client from provider settings.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe writes the utterance to a scratch file, uploads it, and returns
// the transcript. The scratch file is removed on every exit path. Transport
// errors and 5xx responses are retried with backoff; 4xx responses are not.
func (c *Client) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	if format == "" {
		format = "wav"
	}

	scratch, err := os.CreateTemp("", "utterance-*."+format)
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	defer func() {
		scratch.Close()
		os.Remove(scratch.Name())
	}()

	if _, err := scratch.Write(audio); err != nil {
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	if _, err := scratch.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind scratch file: %w", err)
	}

	body, contentType, err := c.buildRequestBody(scratch, filepath.Base(scratch.Name()))
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < transcribeAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(1<<(attempt-1)) * 200 * time.Millisecond):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, retryable, err := c.post(ctx, body, contentType)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		logging.Warnw("transcribe: attempt failed", "attempt", attempt+1, "err", err)
	}
	return "", lastErr
}

func (c *Client) buildRequestBody(audio io.Reader, filename string) ([]byte, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", c.cfg.Model); err != nil {
		return nil, "", fmt.Errorf("write model field: %w", err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return nil, "", fmt.Errorf("copy audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return body.Bytes(), mw.FormDataContentType(), nil
}

func (c *Client) post(ctx context.Context, body []byte, contentType string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/audio/transcriptions", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("post transcription: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return "", true, fmt.Errorf("transcription provider status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", false, fmt.Errorf("transcription provider status %d: %s", resp.StatusCode, b)
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("decode transcription response: %w", err)
	}
	return out.Text, false, nil
}
