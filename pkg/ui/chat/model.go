// Package chat is the interactive terminal front end for a conversation.
package chat

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/pario-ai/chatline/pkg/conversation"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	userLabel   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")).Render("You")
	botLabel    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")).Render("Bot")
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// chrome is the number of rows taken by everything except the viewport.
const chrome = 4

// submitResultMsg carries the outcome of a Submit back into Update.
type submitResultMsg struct {
	reply conversation.Message
	err   error
}

// Model is the Bubble Tea model for a chat session.
type Model struct {
	ctx      context.Context
	session  *conversation.Session
	title    string
	markdown bool
	renderer *glamour.TermRenderer

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width   int
	sending bool
	status  string
}

// Option configures a Model.
type Option func(*Model)

// WithTitle sets the header line.
func WithTitle(t string) Option {
	return func(m *Model) { m.title = t }
}

// WithMarkdown toggles glamour rendering of bot replies.
func WithMarkdown(on bool) Option {
	return func(m *Model) { m.markdown = on }
}

// New builds a Model around session. ctx bounds every submit.
func New(ctx context.Context, session *conversation.Session, opts ...Option) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message and press Enter"
	ti.Prompt = "> "
	ti.CharLimit = 4096
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:      ctx,
		session:  session,
		title:    "chatline",
		markdown: true,
		viewport: viewport.New(80, 20),
		input:    ti,
		spinner:  sp,
		width:    80,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Sending reports whether a reply is outstanding.
func (m Model) Sending() bool {
	return m.sending
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case submitResultMsg:
		m.sending = false
		m.status = ""
		if msg.err != nil {
			m.status = msg.err.Error()
		}
		m.input.Focus()
		m.refresh()
		return m, textinput.Blink

	case spinner.TickMsg:
		if !m.sending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "ctrl+l":
		if err := m.session.Reset(); err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.status = ""
		m.refresh()
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case "enter":
		if m.sending {
			return m, nil
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		m.input.Blur()
		m.sending = true
		m.status = ""
		return m, tea.Batch(m.submit(text), m.spinner.Tick)
	}

	if m.sending {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(text string) tea.Cmd {
	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		reply, err := session.Submit(ctx, text)
		return submitResultMsg{reply: reply, err: err}
	}
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.viewport.Width = width
	m.viewport.Height = max(height-chrome, 1)
	m.input.Width = max(width-len(m.input.Prompt)-1, 1)

	if m.markdown {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(max(width-4, 20)),
		)
		if err == nil {
			m.renderer = r
		}
	}
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.render())
	m.viewport.GotoBottom()
}

func (m Model) render() string {
	msgs := m.session.Messages()
	if len(msgs) == 0 {
		return statusStyle.Render("No messages yet.")
	}

	wrap := lipgloss.NewStyle().Width(max(m.width-2, 10))
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		if msg.IsUser {
			b.WriteString(userLabel + " " + statusStyle.Render(msg.Timestamp.Format("15:04")) + "\n")
			b.WriteString(wrap.Render(msg.Content) + "\n")
			continue
		}
		b.WriteString(botLabel + " " + statusStyle.Render(msg.Timestamp.Format("15:04")) + "\n")
		b.WriteString(m.renderReply(msg.Content, wrap) + "\n")
	}
	return b.String()
}

func (m Model) renderReply(content string, wrap lipgloss.Style) string {
	if m.renderer != nil {
		if out, err := m.renderer.Render(content); err == nil {
			return strings.TrimRight(out, "\n")
		}
	}
	return wrap.Render(content)
}

// View implements tea.Model.
func (m Model) View() string {
	var status string
	switch {
	case m.sending:
		status = m.spinner.View() + statusStyle.Render(" waiting for reply...")
	case m.status != "":
		status = errorStyle.Render(m.status)
	default:
		status = statusStyle.Render("enter send · ctrl+l clear · esc quit")
	}
	return strings.Join([]string{
		titleStyle.Render(m.title),
		m.viewport.View(),
		status,
		m.input.View(),
	}, "\n")
}
