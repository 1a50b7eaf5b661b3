package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Ollama implements Backend against an Ollama server.
type Ollama struct {
	baseURL    string
	reqTimeout time.Duration
	keepAlive  string
	httpClient *http.Client
	log        zerolog.Logger
}

// OllamaOptions configures the HTTP client. Zero values use defaults.
type OllamaOptions struct {
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	// KeepAlive is sent with load requests, e.g. "5m".
	KeepAlive string
	Logger    zerolog.Logger
}

// NewOllama constructs a backend for the server at baseURL.
func NewOllama(baseURL string, o OllamaOptions) *Ollama {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.KeepAlive == "" {
		o.KeepAlive = "30m"
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   o.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Deadlines come from the request context.
	return &Ollama{
		baseURL:    strings.TrimRight(baseURL, "/"),
		reqTimeout: o.RequestTimeout,
		keepAlive:  o.KeepAlive,
		httpClient: &http.Client{Transport: tr},
		log:        o.Logger,
	}
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	TopK          int     `json:"top_k,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	NumPredict    int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model     string          `json:"model"`
	Messages  []ollamaMessage `json:"messages"`
	Stream    bool            `json:"stream"`
	Options   *ollamaOptions  `json:"options,omitempty"`
	KeepAlive any             `json:"keep_alive,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

type ollamaGenerateRequest struct {
	Model     string `json:"model"`
	KeepAlive any    `json:"keep_alive"`
}

func (b *Ollama) Chat(ctx context.Context, model string, msgs []Message, opts Options, onToken TokenFunc) (string, error) {
	if b.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.reqTimeout)
		defer cancel()
	}
	payload := ollamaChatRequest{
		Model:    model,
		Messages: make([]ollamaMessage, 0, len(msgs)),
		Stream:   onToken != nil,
	}
	for _, m := range msgs {
		om := ollamaMessage{Role: m.Role, Content: m.Content}
		for _, img := range m.Images {
			om.Images = append(om.Images, base64.StdEncoding.EncodeToString(img))
		}
		payload.Messages = append(payload.Messages, om)
	}
	if opts != (Options{}) {
		payload.Options = &ollamaOptions{
			Temperature:   opts.Temperature,
			TopP:          opts.TopP,
			TopK:          opts.TopK,
			RepeatPenalty: opts.RepeatPenalty,
			NumPredict:    opts.MaxTokens,
		}
	}
	resp, err := b.post(ctx, "/api/chat", payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if onToken == nil {
		var out ollamaChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", err
		}
		if out.Error != "" {
			return "", errors.New(out.Error)
		}
		return out.Message.Content, nil
	}

	// NDJSON stream, one object per line.
	var sb strings.Builder
	r := bufio.NewReader(resp.Body)
	for {
		line, err := r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var msg ollamaChatResponse
			if jerr := json.Unmarshal(line, &msg); jerr != nil {
				b.log.Debug().Str("backend", "ollama").Bytes("line", line).Msg("unknown stream line")
			} else {
				if msg.Error != "" {
					return sb.String(), errors.New(msg.Error)
				}
				if frag := msg.Message.Content; frag != "" {
					sb.WriteString(frag)
					if cbErr := onToken(frag); cbErr != nil {
						return sb.String(), cbErr
					}
				}
				if msg.Done {
					return sb.String(), nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// A stream that ends without done was cut off.
				return sb.String(), fmt.Errorf("ollama stream ended before done: %w", io.ErrUnexpectedEOF)
			}
			if ctx.Err() != nil {
				return sb.String(), ctx.Err()
			}
			return sb.String(), err
		}
	}
}

func (b *Ollama) ListModels(ctx context.Context) (Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/tags", nil)
	if err != nil {
		return Node{}, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return Node{}, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return Node{}, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return Node{}, err
	}
	return DecodeCatalog(body)
}

// Load sends an empty generate request, which makes Ollama load the model.
func (b *Ollama) Load(ctx context.Context, model string) error {
	return b.generate(ctx, model, b.keepAlive)
}

// Unload sets keep_alive to 0, which evicts the model immediately.
func (b *Ollama) Unload(ctx context.Context, model string) error {
	return b.generate(ctx, model, 0)
}

func (b *Ollama) generate(ctx context.Context, model string, keepAlive any) error {
	resp, err := b.post(ctx, "/api/generate", ollamaGenerateRequest{Model: model, KeepAlive: keepAlive})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return nil
}

func (b *Ollama) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
