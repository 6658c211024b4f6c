// Package assist provides a stateful prompt-refinement chat. It helps
// authors brainstorm image generation prompts before wiring them into a
// generator node; the session keeps its own history and replays it on
// every turn.
package assist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/campaignforge/forge/internal/genai"
	"github.com/campaignforge/forge/pkg/schema"
)

const systemInstruction = "You are an expert creative director and prompt engineer. Help the user brainstorm and refine highly detailed image generation prompts for a marketing campaign. Keep responses concise and focus on providing ready-to-use prompts."

const greeting = "Hi! I can help you brainstorm and refine prompts for your campaign scenes. What are we building?"

// Role identifies the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one turn of an assistant conversation.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Session is a single assistant conversation. Safe for concurrent use;
// turns are serialized.
type Session struct {
	service genai.Service
	log     *slog.Logger

	mu       sync.Mutex
	messages []Message
}

// NewSession opens a conversation pre-seeded with the assistant greeting.
func NewSession(svc genai.Service, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		service:  svc,
		log:      log,
		messages: []Message{{Role: RoleModel, Text: greeting}},
	}
}

// Send appends the user's message, asks the model for a reply against
// the full history, and returns the reply. A blank message is rejected;
// a failed model call leaves the user's message in the history so a
// retry does not lose it.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "message is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, Message{Role: RoleUser, Text: text})

	reply, err := s.service.GenerateText(ctx, []genai.Part{
		genai.TextPart(systemInstruction),
		genai.TextPart(s.historyPrompt()),
	})
	if err != nil {
		s.log.ErrorContext(ctx, "assistant turn failed", "error", err)
		return "", err
	}

	s.messages = append(s.messages, Message{Role: RoleModel, Text: reply})
	return reply, nil
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) historyPrompt() string {
	var b strings.Builder
	b.WriteString("Here is the conversation history:\n")
	for _, m := range s.messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Text)
	}
	b.WriteString("\nPlease respond to the last user message.")
	return b.String()
}
