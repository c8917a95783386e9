package llm

import "encoding/json"

// Message represents a single message in a model conversation transcript.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`

	// Name carries the originating tool name when Role is "tool".
	Name string `json:"name,omitempty"`

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is set when Role is "tool", identifying which tool call this
	// message responds to. Empty for backends that do not assign call IDs.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation as it appears in a raw model response.
//
// Arguments is kept as raw JSON because backends disagree on its shape: it may
// be a JSON object, or a JSON string that itself contains an encoded object.
// The extractor is responsible for canonicalising it.
type ToolCall struct {
	// ID is the backend-assigned identifier for this call, if any.
	ID string `json:"id,omitempty"`

	// Name is the tool name as produced by the model. It may be miscased or
	// otherwise mangled; resolution against the registry happens at dispatch.
	Name string `json:"name"`

	// Arguments is the raw, undecoded argument payload.
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolSchema is one entry of the model-facing tool list. Its layout depends on
// the [SchemaConvention] the active channel expects; channels treat it as an
// opaque payload and forward it in whatever request field their backend reads.
type ToolSchema map[string]any

// SchemaConvention selects the wire layout of the tool list sent to a model
// backend.
type SchemaConvention int

const (
	// ConventionFlat is a flat list of {name, description, parameters}
	// records, the layout Ollama's legacy functions field expects.
	ConventionFlat SchemaConvention = iota

	// ConventionWrapped wraps each entry as
	// {type: "function", function: {name, description, parameters}},
	// the OpenAI-compatible layout.
	ConventionWrapped
)

// String returns the human-readable name of the convention.
func (c SchemaConvention) String() string {
	switch c {
	case ConventionFlat:
		return "flat"
	case ConventionWrapped:
		return "wrapped"
	default:
		return "unknown"
	}
}

// Response is the structured result of one model call.
type Response struct {
	// Content is the assistant's text reply. Empty when the model responded
	// exclusively through the structured tool-call channel.
	Content string

	// ToolCalls lists tool invocations found in the structured channel of the
	// response. The caller decides whether (and how) to execute them.
	ToolCalls []ToolCall

	// Raw is the undecoded response body, kept for diagnostics when a reply
	// carries no readable content.
	Raw json.RawMessage
}
