package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pario-ai/chatline/pkg/dispatch"
)

// FallbackMessage is the bot reply recorded whenever a send fails.
const FallbackMessage = "Sorry, there was an error processing your request."

// DefaultTimeout bounds how long Submit waits for a reply.
const DefaultTimeout = 15 * time.Second

var (
	// ErrEmptyMessage is returned for empty or whitespace-only input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrBusy is returned while a previous message is still being sent.
	ErrBusy = errors.New("a message is already being sent")
)

// Sender resolves a user message to reply text.
type Sender interface {
	Send(ctx context.Context, userMessage, systemPrompt string) (string, error)
}

// Session drives one conversation: at most one send is outstanding at a time.
type Session struct {
	sender       Sender
	conv         *Conversation
	systemPrompt string
	timeout      time.Duration
	log          zerolog.Logger
	now          func() time.Time

	mu   sync.Mutex
	busy bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSystemPrompt sets the system prompt sent with every message.
func WithSystemPrompt(p string) SessionOption {
	return func(s *Session) { s.systemPrompt = p }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// NewSession creates a Session with an empty conversation.
func NewSession(sender Sender, opts ...SessionOption) *Session {
	s := &Session{
		sender:  sender,
		conv:    New(),
		timeout: DefaultTimeout,
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit appends text as a user message, waits for the reply and appends it.
// Any send failure, including the timeout, is recorded as FallbackMessage and
// is not returned. Only input errors (ErrEmptyMessage, ErrBusy) are returned,
// and in that case nothing is appended.
func (s *Session) Submit(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return Message{}, ErrBusy
	}
	s.busy = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	s.conv.Append(NewUserMessage(text, s.now()))

	// The send outlives a timeout; only our wait is bounded.
	sendCtx := context.WithoutCancel(ctx)
	reply, err := dispatch.Race(ctx, s.timeout, func() (string, error) {
		return s.sender.Send(sendCtx, text, s.systemPrompt)
	})
	if err != nil {
		s.log.Error().Err(err).Bool("timeout", errors.Is(err, dispatch.ErrTimeout)).Msg("send failed")
		reply = FallbackMessage
	}

	bot := NewBotMessage(reply, s.now())
	s.conv.Append(bot)
	return bot, nil
}

// Busy reports whether a send is outstanding and input should be disabled.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Messages returns the transcript in order.
func (s *Session) Messages() []Message {
	return s.conv.Messages()
}

// Reset clears the transcript. It fails with ErrBusy while a send is outstanding.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.conv.Reset()
	return nil
}
