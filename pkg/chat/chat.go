package chat

import (
	"fmt"
	"strings"
)

// ChatRequest is a message sent by the user to Arq.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is Arq's reply. Source names the provider tier that produced the
// reply; "fallback" means no provider answered and Message holds the canned
// apology.
type ChatResponse struct {
	Message string `json:"message,omitempty"`
	Source  string `json:"source,omitempty"`
	Mood    string `json:"mood,omitempty"`
	Error   string `json:"error,omitempty"`
}

const (
	ChatRoleUser   = "user"
	ChatRoleAgent  = "assistant"
	ChatRoleSystem = "system"
)

// MaxMessageLength bounds a single user message.
const MaxMessageLength = 1000

// ChatMessage is a single turn as sent to hosted providers.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

func (cr *ChatRequest) Validate() error {
	if strings.TrimSpace(cr.Message) == "" {
		return fmt.Errorf("message cannot be empty")
	}
	if len(cr.Message) > MaxMessageLength {
		return fmt.Errorf("message exceeds %d characters", MaxMessageLength)
	}
	return nil
}
