// Package openai provides a chat completion provider backed by the OpenAI API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/ent0n29/deadbot/internal/completion"
	"github.com/ent0n29/deadbot/internal/reliability"
)

const DefaultModel = "gpt-3.5-turbo"

var _ completion.Provider = (*Provider)(nil)

// Provider implements completion.Provider using the chat completions API.
type Provider struct {
	client oai.Client
	model  string
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// MaxRetries is passed to the SDK. Zero disables SDK retries.
	MaxRetries int
}

func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai chat: apiKey must not be empty")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.Model}, nil
}

func (p *Provider) Model() string { return p.model }

func (p *Provider) Complete(ctx context.Context, req completion.Request) (string, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", classify(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: %w", completion.ErrEmptyResponse)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai chat: %w", completion.ErrEmptyResponse)
	}
	return text, nil
}

func (p *Provider) buildParams(req completion.Request) (oai.ChatCompletionNewParams, error) {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.model),
		Messages:    messages,
		Temperature: param.NewOpt(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}

func convertMessage(m completion.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case completion.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case completion.RoleUser:
		return oai.UserMessage(m.Content), nil
	case completion.RoleAssistant:
		asst := oai.ChatCompletionAssistantMessageParam{}
		asst.Content.OfString = oai.String(m.Content)
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai chat: unknown message role %q", m.Role)
	}
}

func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return &reliability.StatusError{Provider: "openai", Code: apiErr.StatusCode, Err: err}
	}
	return err
}
