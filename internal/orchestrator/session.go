package orchestrator

import (
	"github.com/google/uuid"

	"github.com/taskrelay/taskrelay/pkg/provider/llm"
)

// DefaultSystemPrompt steers the model towards the structured tool channel.
const DefaultSystemPrompt = "You are an MCP-compatible agent. When tools are provided, ALWAYS call a tool if " +
	"the user request relates to that tool. Do not answer directly. Respond ONLY with " +
	"a tool call in JSON format when appropriate."

// Session owns one conversation transcript. The transcript is append-only
// and has a single writer, the orchestrator; collaborators only ever see
// copies via [Session.Messages].
type Session struct {
	id       string
	messages []llm.Message
}

// NewSession creates a session seeded with the given system prompt, or
// [DefaultSystemPrompt] when empty.
func NewSession(systemPrompt string) *Session {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Session{
		id: uuid.NewString(),
		messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
		},
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Append adds a message to the transcript.
func (s *Session) Append(msg llm.Message) {
	s.messages = append(s.messages, msg)
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []llm.Message {
	out := make([]llm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the transcript.
func (s *Session) Len() int { return len(s.messages) }
