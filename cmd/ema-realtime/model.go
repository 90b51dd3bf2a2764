package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

type (
	assistantDeltaMsg string
	userTranscriptMsg string
	responseDoneMsg   struct{}
	interruptedMsg    struct{}
	recordingSentMsg  struct{ duration time.Duration }
	errorMsg          struct{ err error }
	runFinishedMsg    struct{ err error }
)

func errorCmd(err error) tea.Cmd {
	return func() tea.Msg { return errorMsg{err: err} }
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	noticeStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("241"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	recordingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

type entry struct {
	style lipgloss.Style
	text  string
}

type model struct {
	ctx     context.Context
	session *session

	textinput textinput.Model
	viewport  viewport.Model
	ready     bool
	width     int

	history []entry
	// answering is the index of the assistant entry receiving deltas, -1
	// when no answer is in progress.
	answering int
	status    string
}

func newModel(ctx context.Context, s *session) model {
	input := textinput.New()
	input.Placeholder = "Say something... (Enter to send, Ctrl+R to record, Ctrl+C to exit)"
	if s.streaming {
		input.Placeholder = "Listening. Type to send text, Ctrl+C to exit"
	}
	input.Focus()

	return model{
		ctx:       ctx,
		session:   s,
		textinput: input,
		answering: -1,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.textinput.Value())
			if text == "" {
				return m, nil
			}
			m.textinput.Reset()
			m.append(userStyle, "you: "+text)
			m.session.playback.StopImmediately()
			return m, m.session.sendText(m.ctx, text)
		case tea.KeyCtrlR:
			return m, m.session.toggleRecording(m.ctx)
		case tea.KeyCtrlX:
			m.session.playback.StopImmediately()
			return m, nil
		}

	case tea.WindowSizeMsg:
		headerHeight, footerHeight := 2, 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.width = msg.Width
		m.textinput.Width = msg.Width - 4
		m.refresh()

	case assistantDeltaMsg:
		if m.answering < 0 {
			m.history = append(m.history, entry{style: assistantStyle, text: "ema: "})
			m.answering = len(m.history) - 1
		}
		m.history[m.answering].text += string(msg)
		m.refresh()

	case userTranscriptMsg:
		m.append(userStyle, "you: "+strings.TrimSpace(string(msg)))

	case responseDoneMsg:
		m.answering = -1

	case interruptedMsg:
		if m.answering >= 0 {
			m.history[m.answering].text += " ..."
			m.answering = -1
		}
		m.append(noticeStyle, "(interrupted)")

	case recordingSentMsg:
		m.append(noticeStyle, fmt.Sprintf("(sent %.1fs of audio)", msg.duration.Seconds()))

	case errorMsg:
		m.append(errorStyle, "error: "+msg.err.Error())

	case runFinishedMsg:
		if msg.err != nil {
			m.append(errorStyle, "connection lost: "+msg.err.Error())
		} else {
			m.append(noticeStyle, "(disconnected)")
		}
		m.status = "offline"
	}

	m.textinput, tiCmd = m.textinput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

func (m *model) append(style lipgloss.Style, text string) {
	m.history = append(m.history, entry{style: style, text: text})
	m.refresh()
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m model) renderHistory() string {
	width := max(m.width-2, 20)
	lines := make([]string, 0, len(m.history))
	for _, e := range m.history {
		lines = append(lines, e.style.Render(wordwrap.String(e.text, width)))
	}
	return strings.Join(lines, "\n")
}

func (m model) View() string {
	if !m.ready {
		return "connecting..."
	}

	header := headerStyle.Render(m.session.client.Name())
	switch {
	case m.session.isRecording() && !m.session.streaming:
		header += "  " + recordingStyle.Render("● recording")
	case m.status != "":
		header += "  " + noticeStyle.Render(m.status)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", header, m.viewport.View(), m.textinput.View())
}
