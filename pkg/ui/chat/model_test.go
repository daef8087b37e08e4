package chat

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/chatline/pkg/conversation"
)

type senderFunc func(ctx context.Context, userMessage, systemPrompt string) (string, error)

func (f senderFunc) Send(ctx context.Context, userMessage, systemPrompt string) (string, error) {
	return f(ctx, userMessage, systemPrompt)
}

func newTestModel(t *testing.T, send senderFunc) Model {
	t.Helper()
	s := conversation.NewSession(send)
	m := New(context.Background(), s, WithMarkdown(false))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(Model)
}

// drain runs cmd and returns the first submitResultMsg it yields.
func drain(t *testing.T, cmd tea.Cmd) (submitResultMsg, bool) {
	t.Helper()
	if cmd == nil {
		return submitResultMsg{}, false
	}
	switch msg := cmd().(type) {
	case submitResultMsg:
		return msg, true
	case tea.BatchMsg:
		for _, c := range msg {
			if res, ok := drain(t, c); ok {
				return res, true
			}
		}
	}
	return submitResultMsg{}, false
}

func TestEnterSubmitsAndShowsReply(t *testing.T) {
	m := newTestModel(t, func(_ context.Context, userMessage, _ string) (string, error) {
		return "Hi there!", nil
	})
	m = typeText(t, m, "Hello")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	assert.True(t, m.Sending())
	assert.Empty(t, m.input.Value())
	assert.False(t, m.input.Focused(), "input is disabled while sending")

	res, ok := drain(t, cmd)
	require.True(t, ok)
	require.NoError(t, res.err)

	next, _ = m.Update(res)
	m = next.(Model)
	assert.False(t, m.Sending())
	assert.True(t, m.input.Focused())

	view := m.View()
	assert.Contains(t, view, "Hello")
	assert.Contains(t, view, "Hi there!")
}

func TestEnterOnBlankInputDoesNothing(t *testing.T) {
	called := false
	m := newTestModel(t, func(context.Context, string, string) (string, error) {
		called = true
		return "", nil
	})
	m = typeText(t, m, "   ")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	assert.Nil(t, cmd)
	assert.False(t, m.Sending())
	assert.False(t, called)
}

func TestEnterIgnoredWhileSending(t *testing.T) {
	m := newTestModel(t, func(context.Context, string, string) (string, error) {
		return "ok", nil
	})
	m = typeText(t, m, "first")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.True(t, m.Sending())

	m = typeText(t, m, "second")
	assert.Empty(t, m.input.Value(), "typing is ignored while sending")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestFailureShowsFallback(t *testing.T) {
	m := newTestModel(t, func(context.Context, string, string) (string, error) {
		return "", errors.New("upstream returned 500")
	})
	m = typeText(t, m, "Hello")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)

	res, ok := drain(t, cmd)
	require.True(t, ok)
	next, _ = m.Update(res)
	m = next.(Model)

	assert.Contains(t, m.View(), conversation.FallbackMessage)
}

func TestCtrlLClearsTranscript(t *testing.T) {
	m := newTestModel(t, func(context.Context, string, string) (string, error) {
		return "reply", nil
	})
	m = typeText(t, m, "Hello")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	res, _ := drain(t, cmd)
	next, _ = m.Update(res)
	m = next.(Model)
	require.Len(t, m.session.Messages(), 2)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	m = next.(Model)
	assert.Empty(t, m.session.Messages())
	assert.Contains(t, m.View(), "No messages yet.")
}

func TestQuitKeys(t *testing.T) {
	m := newTestModel(t, func(context.Context, string, string) (string, error) { return "", nil })
	for _, k := range []tea.KeyType{tea.KeyCtrlC, tea.KeyEsc} {
		_, cmd := m.Update(tea.KeyMsg{Type: k})
		require.NotNil(t, cmd)
		assert.Equal(t, tea.Quit(), cmd())
	}
}

func TestSpinnerTickIgnoredWhenIdle(t *testing.T) {
	m := newTestModel(t, func(context.Context, string, string) (string, error) { return "", nil })
	_, cmd := m.Update(m.spinner.Tick())
	assert.Nil(t, cmd)
}

func TestRunLines(t *testing.T) {
	s := conversation.NewSession(senderFunc(func(_ context.Context, userMessage, _ string) (string, error) {
		if userMessage == "bad" {
			return "", errors.New("boom")
		}
		return strings.ToUpper(userMessage), nil
	}))

	in := strings.NewReader("hello\n\n   \nbad\nworld\n")
	var out bytes.Buffer
	require.NoError(t, RunLines(context.Background(), s, in, &out))

	assert.Equal(t, "HELLO\n"+conversation.FallbackMessage+"\nWORLD\n", out.String())
	assert.Len(t, s.Messages(), 6)
}

func TestRunLinesCancelled(t *testing.T) {
	s := conversation.NewSession(senderFunc(func(context.Context, string, string) (string, error) {
		return "x", nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunLines(ctx, s, strings.NewReader("hello\n"), &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.Messages())
}
