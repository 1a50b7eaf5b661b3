package backend

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"
)

// OpenAI implements Backend against an OpenAI-compatible server such as
// llama.cpp server, LM Studio or vLLM. Model residency is managed by the
// server, so Load and Unload are no-ops.
type OpenAI struct {
	client     openai.Client
	reqTimeout time.Duration
	log        zerolog.Logger
}

// OpenAIOptions configures the client.
type OpenAIOptions struct {
	APIKey         string
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	Logger         zerolog.Logger
}

// NewOpenAI constructs a backend for baseURL, e.g. http://localhost:8080/v1.
func NewOpenAI(baseURL string, o OpenAIOptions) *OpenAI {
	key := o.APIKey
	if key == "" {
		// Local servers ignore the key but the client requires one.
		key = "sk-local"
	}
	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/"),
		option.WithAPIKey(key),
		option.WithMaxRetries(0),
	}
	if o.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(o.HTTPClient))
	}
	return &OpenAI{client: openai.NewClient(opts...), reqTimeout: o.RequestTimeout, log: o.Logger}
}

func (b *OpenAI) Chat(ctx context.Context, model string, msgs []Message, opts Options, onToken TokenFunc) (string, error) {
	if b.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.reqTimeout)
		defer cancel()
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(msgs),
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = openai.Float(opts.TopP)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}

	if onToken == nil {
		completion, err := b.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", wrapOpenAIError(err)
		}
		if len(completion.Choices) == 0 {
			return "", nil
		}
		return completion.Choices[0].Message.Content, nil
	}

	stream := b.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()
	var sb strings.Builder
	finished := false
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if chunk.Choices[0].FinishReason != "" {
			finished = true
		}
		frag := chunk.Choices[0].Delta.Content
		if frag == "" {
			continue
		}
		sb.WriteString(frag)
		if err := onToken(frag); err != nil {
			return sb.String(), err
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return sb.String(), ctx.Err()
		}
		return sb.String(), wrapOpenAIError(err)
	}
	if !finished {
		return sb.String(), fmt.Errorf("openai stream ended without finish_reason: %w", io.ErrUnexpectedEOF)
	}
	return sb.String(), nil
}

func (b *OpenAI) ListModels(ctx context.Context) (Node, error) {
	page, err := b.client.Models.List(ctx)
	if err != nil {
		return Node{}, wrapOpenAIError(err)
	}
	items := make([]Node, 0, len(page.Data))
	for _, m := range page.Data {
		items = append(items, Node{Kind: KindMap, Fields: map[string]Node{"id": Leaf(m.ID), "name": Leaf(m.ID)}})
	}
	return Node{Kind: KindMap, Fields: map[string]Node{"data": {Kind: KindList, Items: items}}}, nil
}

func (b *OpenAI) Load(context.Context, string) error { return nil }

func (b *OpenAI) Unload(context.Context, string) error { return nil }

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			if len(m.Images) == 0 {
				out = append(out, openai.UserMessage(m.Content))
				continue
			}
			parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(m.Content)}
			for _, img := range m.Images {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: "data:" + http.DetectContentType(img) + ";base64," + base64.StdEncoding.EncodeToString(img),
				}))
			}
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out
}

// wrapOpenAIError keeps the HTTP status visible to IsTransient.
func wrapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &StatusError{Code: apiErr.StatusCode, Body: apiErr.Message}
	}
	return err
}
