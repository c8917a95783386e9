// Package anyllm provides a universal model channel backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// more.
//
// Usage:
//
//	ch, err := anyllm.New("ollama", "qwen2.5:7b-instruct")
//	ch, err := anyllm.New("anthropic", "claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/taskrelay/taskrelay/pkg/provider/llm"
)

// Channel implements llm.Channel by wrapping github.com/mozilla-ai/any-llm-go.
type Channel struct {
	backend anyllmlib.Provider
	model   string
}

// Compile-time check.
var _ llm.Channel = (*Channel)(nil)

// New creates a new Channel backed by the given provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gpt-4o", "qwen2.5:7b-instruct").
//
// opts are any-llm-go configuration options (anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL, ...). If no API key option is provided, the backend
// falls back to the relevant environment variable (OPENAI_API_KEY, etc.).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Channel, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Channel{backend: backend, model: model}, nil
}

// createBackend creates the underlying any-llm-go provider for the given name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Convention implements llm.Channel. any-llm-go normalises every backend to
// the OpenAI-compatible wrapped tool layout.
func (c *Channel) Convention() llm.SchemaConvention { return llm.ConventionWrapped }

// Send implements llm.Channel.
func (c *Channel) Send(ctx context.Context, transcript []llm.Message, tools []llm.ToolSchema) (*llm.Response, error) {
	params := c.buildParams(transcript, tools)

	resp, err := c.backend.Completion(ctx, params)
	if err != nil {
		return nil, &llm.TransportError{Backend: "anyllm", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: empty choices in response")
	}

	choice := resp.Choices[0]
	out := &llm.Response{
		Content: choice.Message.ContentString(),
	}
	if raw, err := json.Marshal(resp); err == nil {
		out.Raw = raw
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

// buildParams converts the transcript and tool schemas into anyllm
// CompletionParams.
func (c *Channel) buildParams(transcript []llm.Message, tools []llm.ToolSchema) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message
	for _, m := range transcript {
		messages = append(messages, convertMessage(m))
	}

	params := anyllmlib.CompletionParams{
		Model:    c.model,
		Messages: messages,
	}

	for _, ts := range tools {
		name, desc, schemaParams := unwrapToolSchema(ts)
		if name == "" {
			continue
		}
		params.Tools = append(params.Tools, anyllmlib.Tool{
			Type: "function",
			Function: anyllmlib.Function{
				Name:        name,
				Description: desc,
				Parameters:  schemaParams,
			},
		})
	}

	return params
}

// unwrapToolSchema pulls name, description, and parameters out of a wrapped
// tool schema entry, tolerating flat entries as well.
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

// convertMessage converts an llm.Message to an anyllm.Message.
func convertMessage(m llm.Message) anyllmlib.Message {
	msg := anyllmlib.Message{
		Role:       m.Role,
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}

	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, anyllmlib.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: anyllmlib.FunctionCall{
				Name:      tc.Name,
				Arguments: string(tc.Arguments),
			},
		})
	}

	return msg
}
