// Package ollama provides a model channel backed by a local Ollama server.
//
// Ollama (https://ollama.com) hosts local large language models. This package
// uses Ollama's native /api/chat endpoint with streaming disabled, and speaks
// the flat tool-schema convention: the tool list is attached to the request
// under the legacy "functions" field, which instruction-tuned local models
// such as qwen2.5 respond to with a function_call in the message.
//
// Example usage:
//
//	ch, err := ollama.New("", "qwen2.5:7b-instruct") // http://localhost:11434
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resp, err := ch.Send(ctx, transcript, tools)
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/taskrelay/taskrelay/pkg/provider/llm"
)

// DefaultBaseURL is the default base URL for a locally running Ollama instance.
const DefaultBaseURL = "http://localhost:11434"

// maxErrorBody caps how much of an error response body is kept for diagnostics.
const maxErrorBody = 2048

// Ensure Channel implements the llm.Channel interface at compile time.
var _ llm.Channel = (*Channel)(nil)

// Channel implements llm.Channel against a local Ollama server's /api/chat
// endpoint. It is safe for concurrent use.
type Channel struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// config holds optional configuration collected from functional options.
type config struct {
	timeout time.Duration
}

// Option is a functional option for Channel.
type Option func(*config)

// WithTimeout overrides the per-request timeout. The default is
// [llm.DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new Ollama Channel.
//
// baseURL is the base URL of the Ollama server; if empty, [DefaultBaseURL] is
// used. A trailing slash is stripped. model is the Ollama model name and must
// not be empty.
func New(baseURL string, model string, opts ...Option) (*Channel, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := &config{timeout: llm.DefaultTimeout}
	for _, o := range opts {
		o(cfg)
	}

	httpClient := &http.Client{}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	return &Channel{
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
	}, nil
}

// chatRequest is the JSON request body sent to Ollama's /api/chat endpoint.
type chatRequest struct {
	Model    string           `json:"model"`
	Messages []llm.Message    `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []llm.ToolSchema `json:"functions,omitempty"`
}

// chatMessage mirrors the message object in Ollama's response. Local models
// place their call in one of three spots depending on template and mood, so
// all three are decoded.
type chatMessage struct {
	Role         string        `json:"role"`
	Content      string        `json:"content"`
	FunctionCall *rawToolCall  `json:"function_call"`
	ToolCall     *rawToolCall  `json:"tool_call"`
	ToolCalls    []rawToolCall `json:"tool_calls"`
}

// rawToolCall is a call entry as Ollama emits it: either inline
// {name, arguments} or wrapped as {function: {name, arguments}}.
type rawToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Function  *struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// chatResponse is the JSON response body from /api/chat. Some proxy frontends
// return a messages array instead of a single message; the first entry wins.
type chatResponse struct {
	Message  *chatMessage  `json:"message"`
	Messages []chatMessage `json:"messages"`
}

// Convention implements llm.Channel. Ollama's legacy functions field takes
// the flat tool list.
func (c *Channel) Convention() llm.SchemaConvention { return llm.ConventionFlat }

// Send implements llm.Channel by POSTing the transcript to /api/chat and
// decoding the structured reply. The functions field is attached only when
// tools is non-empty — Ollama rejects requests that declare an empty tool
// list for models without tool support.
func (c *Channel) Send(ctx context.Context, transcript []llm.Message, tools []llm.ToolSchema) (*llm.Response, error) {
	reqBody := chatRequest{
		Model:    c.model,
		Messages: transcript,
		Stream:   false,
	}
	if len(tools) > 0 {
		reqBody.Tools = tools
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &llm.TransportError{Backend: "ollama", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &llm.TransportError{Backend: "ollama", Err: err}
	}

	if resp.StatusCode >= 400 {
		detail := string(raw)
		if len(detail) > maxErrorBody {
			detail = detail[:maxErrorBody]
		}
		return nil, &llm.StatusError{Backend: "ollama", StatusCode: resp.StatusCode, Body: detail}
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}

	msg := decoded.Message
	if msg == nil && len(decoded.Messages) > 0 {
		msg = &decoded.Messages[0]
	}

	out := &llm.Response{Raw: raw}
	if msg == nil {
		return out, nil
	}

	out.Content = msg.Content
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, normalizeCall(tc))
	}
	if msg.FunctionCall != nil {
		out.ToolCalls = append(out.ToolCalls, normalizeCall(*msg.FunctionCall))
	}
	if msg.ToolCall != nil {
		out.ToolCalls = append(out.ToolCalls, normalizeCall(*msg.ToolCall))
	}
	return out, nil
}

// normalizeCall flattens the wrapped {function: {...}} layout into an
// llm.ToolCall, preferring the inner function fields when both are present.
func normalizeCall(tc rawToolCall) llm.ToolCall {
	out := llm.ToolCall{
		ID:        tc.ID,
		Name:      tc.Name,
		Arguments: tc.Arguments,
	}
	if tc.Function != nil {
		if tc.Function.Name != "" {
			out.Name = tc.Function.Name
		}
		if len(tc.Function.Arguments) > 0 {
			out.Arguments = tc.Function.Arguments
		}
	}
	return out
}
