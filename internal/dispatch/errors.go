package dispatch

import (
	"fmt"
	"strings"
)

// UnknownToolError reports a tool name that matched nothing in the registry,
// even after normalization. The message enumerates the valid names (and a
// close match when one exists) so the model can self-correct on the retry.
type UnknownToolError struct {
	// Name is the tool name as the model produced it.
	Name string

	// Valid lists the canonical names of all registered tools, sorted.
	Valid []string

	// Suggestion is the closest registered name, or empty when nothing is
	// close enough to be worth proposing.
	Suggestion string
}

func (e *UnknownToolError) Error() string {
	msg := fmt.Sprintf("dispatch: unknown tool %q, valid tools: %s", e.Name, strings.Join(e.Valid, ", "))
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	return msg
}

// InvalidArgumentsError reports an argument payload that is not a mapping.
type InvalidArgumentsError struct {
	Tool string

	// Value is the rejected payload, rendered with %T in the message.
	Value any
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("dispatch: tool %q arguments must be a mapping, got %T", e.Tool, e.Value)
}

// BackendError reports a tool backend that answered but refused or botched
// the call: a non-2xx status, or a success body that is not JSON. It carries
// the backend's own detail so the model sees what went wrong.
type BackendError struct {
	Tool       string
	StatusCode int
	Detail     string
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("dispatch: tool %q backend returned status %d: %s", e.Tool, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("dispatch: tool %q backend failure: %s", e.Tool, e.Detail)
}
