package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, rate int) (string, error)
}

// Whisper talks to a whisper.cpp server (the "server" example binary).
type Whisper struct {
	baseURL    string
	language   string
	reqTimeout time.Duration
	httpClient *http.Client
	log        zerolog.Logger
}

// WhisperOptions configures Whisper. Zero values use defaults.
type WhisperOptions struct {
	Language       string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	Logger         zerolog.Logger
}

// NewWhisper returns a client for the server at baseURL.
func NewWhisper(baseURL string, o WhisperOptions) *Whisper {
	if o.Language == "" {
		o.Language = "tr"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	tr := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		DialContext:     (&net.Dialer{Timeout: o.ConnectTimeout}).DialContext,
		MaxIdleConns:    4,
		IdleConnTimeout: 90 * time.Second,
	}
	return &Whisper{
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   o.Language,
		reqTimeout: o.RequestTimeout,
		httpClient: &http.Client{Transport: tr},
		log:        o.Logger,
	}
}

type whisperResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Ping checks that the server answers at all.
func (w *Whisper) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whisper server unreachable: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("whisper server: %s", resp.Status)
	}
	return nil
}

// Transcribe resamples to 16 kHz, posts a WAV to /inference and returns the
// trimmed text. Silent input returns "" without a request.
func (w *Whisper) Transcribe(ctx context.Context, samples []float32, rate int) (string, error) {
	if IsSilent(samples, DefaultSilenceRMS) {
		return "", nil
	}
	if w.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.reqTimeout)
		defer cancel()
	}
	wav := EncodeWAV(Resample(samples, rate, WhisperRate), WhisperRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(wav); err != nil {
		return "", err
	}
	for k, v := range map[string]string{
		"language":        w.language,
		"response_format": "json",
		"temperature":     "0.0",
	} {
		if err := mw.WriteField(k, v); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/inference", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	start := time.Now()
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("whisper read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	var out whisperResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("whisper decode: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("whisper: %s", out.Error)
	}
	text := strings.TrimSpace(out.Text)
	w.log.Debug().Dur("dur", time.Since(start)).Int("chars", len(text)).Msg("transcribed")
	return text, nil
}
