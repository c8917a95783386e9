// Package openai provides a model channel backed by the OpenAI API (or any
// OpenAI-compatible endpoint via WithBaseURL).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/taskrelay/taskrelay/pkg/provider/llm"
)

// Channel implements llm.Channel using the OpenAI chat completions API.
type Channel struct {
	client oai.Client
	model  string
}

// Compile-time check.
var _ llm.Channel = (*Channel)(nil)

// config holds optional configuration for the channel.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option is a functional option for Channel.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Useful for
// OpenAI-compatible local servers (llama.cpp, vLLM, LM Studio).
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout. The default is
// [llm.DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI Channel.
func New(apiKey string, model string, opts ...Option) (*Channel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{timeout: llm.DefaultTimeout}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Channel{client: client, model: model}, nil
}

// Convention implements llm.Channel. The OpenAI API takes the wrapped
// {type: "function", function: {...}} tool layout.
func (c *Channel) Convention() llm.SchemaConvention { return llm.ConventionWrapped }

// Send implements llm.Channel.
func (c *Channel) Send(ctx context.Context, transcript []llm.Message, tools []llm.ToolSchema) (*llm.Response, error) {
	params, err := c.buildParams(transcript, tools)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return nil, &llm.StatusError{Backend: "openai", StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return nil, &llm.TransportError{Backend: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	choice := resp.Choices[0]
	out := &llm.Response{
		Content: choice.Message.Content,
		Raw:     json.RawMessage(resp.RawJSON()),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// buildParams converts the transcript and tool schemas into OpenAI SDK params.
func (c *Channel) buildParams(transcript []llm.Message, tools []llm.ToolSchema) (oai.ChatCompletionNewParams, error) {
	var messages []oai.ChatCompletionMessageParamUnion

	for _, m := range transcript {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: messages,
	}

	// Only attach tools when the schema list is non-empty; an empty tools
	// array fails validation on several OpenAI-compatible servers.
	for _, ts := range tools {
		name, desc, schemaParams := unwrapToolSchema(ts)
		if name == "" {
			continue
		}
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        name,
				Description: oai.String(desc),
				Parameters:  shared.FunctionParameters(schemaParams),
			},
		})
	}

	return params, nil
}

// unwrapToolSchema pulls name, description, and parameters out of a wrapped
// tool schema entry. Flat entries (no function wrapper) are accepted too, so
// a convention mismatch degrades to a usable request instead of a panic.
func unwrapToolSchema(ts llm.ToolSchema) (name, description string, parameters map[string]any) {
	inner := ts
	if fn, ok := ts["function"].(map[string]any); ok {
		inner = fn
	}
	name, _ = inner["name"].(string)
	description, _ = inner["description"].(string)
	parameters, _ = inner["parameters"].(map[string]any)
	return name, description, parameters
}

// convertMessage converts an llm.Message to an OpenAI SDK message param.
func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case "system":
		return oai.SystemMessage(m.Content), nil

	case "user":
		return oai.UserMessage(m.Content), nil

	case "assistant":
		asst := oai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			asst.Content.OfString = oai.String(m.Content)
		}
		if m.Name != "" {
			asst.Name = oai.String(m.Name)
		}
		for _, tc := range m.ToolCalls {
			asst.ToolCalls = append(asst.ToolCalls, oai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: oai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil

	case "tool":
		return oai.ToolMessage(m.Content, m.ToolCallID), nil

	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
	}
}
