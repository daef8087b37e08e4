// Package conversation holds the in-memory chat transcript and the session
// logic a chat front-end drives: input guarding, the send timeout and the
// fixed fallback reply.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Message is one entry in the transcript. It is never modified after it is appended.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"is_user"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage creates a message authored by the user.
func NewUserMessage(content string, at time.Time) Message {
	return Message{ID: uuid.NewString(), Content: content, IsUser: true, Timestamp: at}
}

// NewBotMessage creates a message authored by the assistant.
func NewBotMessage(content string, at time.Time) Message {
	return Message{ID: uuid.NewString(), Content: content, Timestamp: at}
}
