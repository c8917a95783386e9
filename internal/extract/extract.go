// Package extract turns raw model responses into canonical tool-call
// requests.
//
// Models emit tool calls in several shapes: a structured tool-call field with
// arguments already decoded, the same field with arguments as a JSON-encoded
// string, or a JSON object dumped straight into the message text when the
// model skips the structured channel entirely. [Extract] tries an ordered
// list of strategies and returns the first hit; a response that matches none
// of them is the ordinary "just answering" case, not an error.
package extract

import (
	"encoding/json"
	"strings"

	"github.com/taskrelay/taskrelay/pkg/provider/llm"
)

// Call is the canonical extracted tool invocation.
type Call struct {
	// Name is the tool name exactly as the model produced it. Normalization
	// is the dispatcher's job.
	Name string

	// Args is the decoded argument mapping. Never nil for a non-nil Call.
	Args map[string]any
}

// strategy inspects a response and reports a call, or nil when the shape it
// understands is absent. Strategies must be pure and must not fail: a shape
// that almost matches but does not decode is treated as absent.
type strategy func(*llm.Response) *Call

var strategies = []strategy{
	fromStructured,
	fromEmbeddedJSON,
}

// Extract returns the tool call carried by a model response, or nil when the
// response is a plain answer. It is a pure function of its input.
func Extract(resp *llm.Response) *Call {
	if resp == nil {
		return nil
	}
	for _, s := range strategies {
		if call := s(resp); call != nil {
			return call
		}
	}
	return nil
}

// fromStructured reads the response's structured tool-call field. Arguments
// may be a JSON object or a string holding a JSON object; anything that does
// not decode yields an empty-argument call rather than a failure, so the
// dispatcher (and through it the model) still learns which tool was meant.
func fromStructured(resp *llm.Response) *Call {
	for _, tc := range resp.ToolCalls {
		if tc.Name == "" {
			continue
		}
		return &Call{Name: tc.Name, Args: decodeArgs(tc.Arguments)}
	}
	return nil
}

// callMarkers are the substrings whose presence makes message text worth a
// JSON parse attempt. Plain prose that merely starts with "{" is skipped
// unless one of these appears.
var callMarkers = []string{`"function_call"`, `"tool_call"`, `"tool_calls"`, `"name"`}

// fromEmbeddedJSON handles the degraded case where the model wrote its tool
// call into the message text as a JSON object instead of using the
// structured channel. A parse failure falls through to "no call".
func fromEmbeddedJSON(resp *llm.Response) *Call {
	text := strings.TrimSpace(resp.Content)
	if !strings.HasPrefix(text, "{") {
		return nil
	}
	if !containsAny(text, callMarkers) {
		return nil
	}

	var body struct {
		FunctionCall *embeddedCall   `json:"function_call"`
		ToolCall     *embeddedCall   `json:"tool_call"`
		ToolCalls    []*embeddedCall `json:"tool_calls"`
		Name         string          `json:"name"`
		Arguments    json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text), &body); err != nil {
		return nil
	}

	candidates := []*embeddedCall{body.FunctionCall, body.ToolCall}
	candidates = append(candidates, body.ToolCalls...)
	// A top-level name alone is not a call: JSON answers about named things
	// (tasks, projects) carry one too. Only the name/arguments pair counts.
	if body.Name != "" && len(body.Arguments) > 0 {
		candidates = append(candidates, &embeddedCall{Name: body.Name, Arguments: body.Arguments})
	}
	for _, c := range candidates {
		if c == nil || c.Name == "" {
			continue
		}
		return &Call{Name: c.Name, Args: decodeArgs(c.Arguments)}
	}
	return nil
}

type embeddedCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Function  *embeddedCall   `json:"function"`
}

// UnmarshalJSON accepts both the inline {name, arguments} layout and the
// wrapped {function: {name, arguments}} layout.
func (c *embeddedCall) UnmarshalJSON(data []byte) error {
	type plain embeddedCall
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Name == "" && p.Function != nil {
		p = plain(*p.Function)
	}
	*c = embeddedCall(p)
	return nil
}

// decodeArgs normalizes a raw argument payload into a mapping. It accepts an
// object, a JSON string containing an object, or nothing; every failure mode
// collapses to the empty mapping.
func decodeArgs(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) == 0 {
		return args
	}

	if err := json.Unmarshal(raw, &args); err == nil {
		return args
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		inner := map[string]any{}
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			return inner
		}
	}
	return map[string]any{}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
