// Package mock provides a test double for the llm.Channel interface.
//
// Use Channel in unit tests to verify the exact transcript and tool schemas
// the orchestrator sends, and to feed scripted responses without a live model
// backend. All fields are safe to set before calling any method; mutating
// them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	ch := &mock.Channel{
//	    Responses: []*llm.Response{{Content: "Hello!"}},
//	}
//	resp, err := ch.Send(ctx, transcript, nil)
package mock

import (
	"context"
	"sync"

	"github.com/taskrelay/taskrelay/pkg/provider/llm"
)

// SendCall records a single invocation of Send.
type SendCall struct {
	// Ctx is the context passed to Send.
	Ctx context.Context
	// Transcript is the message slice passed to Send.
	Transcript []llm.Message
	// Tools is the tool schema slice passed to Send.
	Tools []llm.ToolSchema
}

// Channel is a mock implementation of llm.Channel.
//
// Each call to Send consumes the next entry of Responses (the last entry is
// repeated once the script runs out). Set Err to inject an error on every
// call instead.
type Channel struct {
	mu sync.Mutex

	// Responses is the scripted sequence of responses returned by Send.
	Responses []*llm.Response

	// Err, if non-nil, is returned from every Send call.
	Err error

	// SchemaConvention is returned by Convention. The zero value is
	// [llm.ConventionFlat].
	SchemaConvention llm.SchemaConvention

	// SendCalls records every invocation of Send in order.
	SendCalls []SendCall

	// next indexes the Responses script.
	next int
}

// Compile-time check.
var _ llm.Channel = (*Channel)(nil)

// Send implements llm.Channel by returning the next scripted response.
func (c *Channel) Send(ctx context.Context, transcript []llm.Message, tools []llm.ToolSchema) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Record a copy of the transcript so later appends by the caller do not
	// retroactively alter the call record.
	tcopy := make([]llm.Message, len(transcript))
	copy(tcopy, transcript)
	c.SendCalls = append(c.SendCalls, SendCall{Ctx: ctx, Transcript: tcopy, Tools: tools})

	if c.Err != nil {
		return nil, c.Err
	}
	if len(c.Responses) == 0 {
		return &llm.Response{}, nil
	}

	resp := c.Responses[c.next]
	if c.next < len(c.Responses)-1 {
		c.next++
	}
	return resp, nil
}

// Convention implements llm.Channel.
func (c *Channel) Convention() llm.SchemaConvention { return c.SchemaConvention }
