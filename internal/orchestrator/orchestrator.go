// Package orchestrator drives one user turn end to end: model query, tool
// extraction, dispatch, and the closing summary query.
//
// The turn is a small state machine. A response without a tool call is the
// final answer. A response with one is dispatched; on success the tool result
// is appended and the model is queried once more for a natural-language
// summary. On a dispatch failure the error detail is appended as a tool
// message and the whole sequence runs exactly once more so the model can
// self-correct. The retry bound is a hard invariant carried as an explicit
// depth parameter, not a loop counter.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskrelay/taskrelay/internal/extract"
	"github.com/taskrelay/taskrelay/internal/observe"
	"github.com/taskrelay/taskrelay/internal/registry"
	"github.com/taskrelay/taskrelay/pkg/provider/llm"
)

// maxRetryDepth bounds tool-call self-correction. One retry, never more.
const maxRetryDepth = 1

// Dispatcher executes an extracted tool call. Implemented by the dispatch
// package; tests substitute their own.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args any) (json.RawMessage, error)
}

// Orchestrator runs conversation turns over a fixed channel, registry, and
// dispatcher. It is not safe for concurrent turns on the same session;
// distinct sessions may run concurrently.
type Orchestrator struct {
	channel    llm.Channel
	reg        *registry.Registry
	dispatcher Dispatcher
	metrics    *observe.Metrics
	log        *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// New returns an Orchestrator over the given collaborators.
func New(channel llm.Channel, reg *registry.Registry, dispatcher Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		channel:    channel,
		reg:        reg,
		dispatcher: dispatcher,
		metrics:    observe.DefaultMetrics(),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Turn runs one full user-input-to-final-answer cycle on the session. The
// returned string is the assistant's final message. A non-nil error means
// the turn failed; the transcript keeps everything appended so far and the
// session stays usable for the next turn.
func (o *Orchestrator) Turn(ctx context.Context, sess *Session, input string) (string, error) {
	sess.Append(llm.Message{Role: "user", Content: input})

	answer, err := o.step(ctx, sess, 0)
	if err != nil {
		o.metrics.RecordTurn(ctx, "error")
		return "", err
	}
	o.metrics.RecordTurn(ctx, "ok")
	return answer, nil
}

// step runs one model-query/extract/dispatch round. depth counts dispatch
// failures already fed back to the model; at maxRetryDepth a further failure
// aborts the turn instead of recursing.
func (o *Orchestrator) step(ctx context.Context, sess *Session, depth int) (string, error) {
	resp, err := o.query(ctx, sess)
	if err != nil {
		return "", err
	}

	sess.Append(llm.Message{
		Role:      "assistant",
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})

	call := extract.Extract(resp)
	if call == nil {
		// The common "just answering" path.
		return resp.Content, nil
	}

	o.log.Info("tool call detected",
		"session", sess.ID(), "tool", call.Name, "depth", depth)

	result, err := o.dispatch(ctx, call)
	if err != nil {
		if llm.IsFatal(err) {
			return "", err
		}
		if depth >= maxRetryDepth {
			return "", fmt.Errorf("orchestrator: turn aborted, tool call failed after retry: %w", err)
		}

		// Feed the error detail back as a tool result so the model can
		// self-correct, then run the sequence exactly once more.
		o.log.Warn("tool call failed, feeding error back to model",
			"session", sess.ID(), "tool", call.Name, "error", err)
		sess.Append(llm.Message{
			Role:    "tool",
			Name:    call.Name,
			Content: fmt.Sprintf(`{"error": %q}`, err.Error()),
		})
		return o.step(ctx, sess, depth+1)
	}

	sess.Append(llm.Message{
		Role:    "tool",
		Name:    call.Name,
		Content: string(result),
	})

	return o.summarize(ctx, sess)
}

// summarize asks the model to phrase the tool result for the user. This
// closing query never dispatches another tool call; whatever content comes
// back is the answer, and an unreadable reply surfaces the raw response for
// diagnostics rather than silently succeeding.
func (o *Orchestrator) summarize(ctx context.Context, sess *Session) (string, error) {
	resp, err := o.query(ctx, sess)
	if err != nil {
		return "", err
	}

	sess.Append(llm.Message{
		Role:      "assistant",
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})

	if resp.Content == "" {
		o.log.Warn("no assistant content after tool call", "session", sess.ID())
		return fmt.Sprintf("no assistant message after tool call, raw response: %s", resp.Raw), nil
	}
	return resp.Content, nil
}

func (o *Orchestrator) query(ctx context.Context, sess *Session) (*llm.Response, error) {
	tools := o.reg.ModelTools(o.channel.Convention())

	start := time.Now()
	resp, err := o.channel.Send(ctx, sess.Messages(), tools)
	o.metrics.ModelRequestDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		o.metrics.RecordModelError(ctx, o.channel.Convention().String(), "send")
		return nil, err
	}
	return resp, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, call *extract.Call) (json.RawMessage, error) {
	start := time.Now()
	result, err := o.dispatcher.Dispatch(ctx, call.Name, call.Args)
	o.metrics.ToolDispatchDuration.Record(ctx, time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	o.metrics.RecordToolCall(ctx, call.Name, status)
	return result, err
}
