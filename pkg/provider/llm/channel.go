// Package llm defines the Channel interface for language model backends.
//
// A channel wraps a remote or local model API (a local Ollama instance, an
// OpenAI-compatible endpoint, or anything any-llm-go can reach) and exposes a
// uniform send-transcript-get-response interface for the taskrelay
// orchestrator, without coupling it to any specific SDK.
//
// Channels are stateless per call: the full transcript is supplied on every
// Send and nothing is retained between calls. Implementations must be safe
// for concurrent use.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single model call. Local inference can be slow, so
// the bound is generous; it exists to fail a hung backend, not to police
// normal latency.
const DefaultTimeout = 180 * time.Second

// Channel is the abstraction over any model backend.
type Channel interface {
	// Send submits the transcript plus the model-facing tool list and blocks
	// until the backend produces a response or the call times out.
	//
	// tools must already be shaped per the channel's [SchemaConvention]; pass
	// nil or an empty slice to offer no tools — channels must not forge an
	// empty tools field, since some backends reject it.
	//
	// Transport failures are reported as [*TransportError]; HTTP status >= 400
	// as [*StatusError]. Neither is retried at this layer.
	Send(ctx context.Context, transcript []Message, tools []ToolSchema) (*Response, error)

	// Convention reports the tool-schema layout this channel's backend
	// expects. The orchestrator uses it to request matching schemas from the
	// tool registry.
	Convention() SchemaConvention
}

// TransportError indicates the model backend could not be reached at all:
// connection refused, DNS failure, or timeout. Fatal for the current turn.
type TransportError struct {
	// Backend names the channel implementation, for log and error context.
	Backend string

	// Err is the underlying transport error.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("llm: %s backend unreachable: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *TransportError) Unwrap() error { return e.Err }

// StatusError indicates the model backend answered with an application-level
// failure (HTTP status >= 400). Fatal for the current turn; the orchestrator
// never retries it.
type StatusError struct {
	// Backend names the channel implementation.
	Backend string

	// StatusCode is the HTTP status returned by the backend.
	StatusCode int

	// Body is the (possibly truncated) response body, kept for diagnostics.
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: %s backend returned status %d: %s", e.Backend, e.StatusCode, e.Body)
}

// IsFatal reports whether err is a channel-level failure that cannot be
// self-corrected by the model (transport or status error).
func IsFatal(err error) bool {
	var te *TransportError
	var se *StatusError
	return errors.As(err, &te) || errors.As(err, &se)
}
