package chat

import (
	"sync"
	"time"
)

// Role is who authored a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation transcript.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	TurnID  string    `json:"turn_id"`
	At      time.Time `json:"at"`
}

// History is the transcript of a chat. It is safe for concurrent use.
type History struct {
	mu       sync.RWMutex
	messages []Message
}

func (h *History) append(msgs ...Message) {
	h.mu.Lock()
	h.messages = append(h.messages, msgs...)
	h.mu.Unlock()
}

// Messages returns a copy of the transcript, oldest first.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len is the number of messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear drops every message.
func (h *History) Clear() {
	h.mu.Lock()
	h.messages = nil
	h.mu.Unlock()
}
