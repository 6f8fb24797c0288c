package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/vango-go/cortes-live/pkg/client/chat"
	"github.com/vango-go/cortes-live/pkg/client/connection"
)

const helpLine = "enter send · ctrl+l language · ctrl+n narration · ctrl+p narrate timeline · ctrl+t avatar · pgup/pgdn timeline · f5/f6 chat volume · f7/f8 narrator volume · ctrl+r reconnect · esc quit"

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E0B04A"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5FAFD7"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E0B04A"))
	noticeStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#D75F5F"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD75F"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#D7AF5F"))
)

// refreshMsg asks the model to re-read the controller.
type refreshMsg struct{}

type errMsg struct{ err error }

type model struct {
	ctx   context.Context
	ctl   controller
	input textinput.Model
	vp    viewport.Model

	width  int
	height int
	snap   snapshot
	err    string
}

func newModel(ctx context.Context, ctl controller) model {
	in := textinput.New()
	in.Placeholder = "Ask Dr. Cortés about his life and work"
	in.Prompt = "> "
	in.CharLimit = 2000
	in.Focus()

	m := model{
		ctx:   ctx,
		ctl:   ctl,
		input: in,
		vp:    viewport.New(80, 20),
		width: 80,
	}
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.vp.Width = msg.Width
		m.vp.Height = max(msg.Height-5, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()
		return m, nil

	case refreshMsg:
		m.refresh()
		return m, nil

	case errMsg:
		if msg.err != nil {
			m.err = msg.err.Error()
		} else {
			m.err = ""
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		m.ctl.Unlock()
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.SetValue("")
			return m, m.run(func(ctx context.Context) error { return m.ctl.Send(ctx, text) })
		case "ctrl+r":
			return m, m.run(m.ctl.Reconnect)
		case "ctrl+l":
			return m, m.run(m.ctl.CycleLanguage)
		case "ctrl+n":
			return m, m.run(m.ctl.ToggleNarration)
		case "ctrl+t":
			return m, m.run(m.ctl.ToggleMode)
		case "ctrl+p":
			return m, m.run(m.ctl.PlayTimeline)
		case "f5", "f6", "f7", "f8":
			ch, delta := channelChat, volumeStep
			if msg.String() == "f7" || msg.String() == "f8" {
				ch = channelNarration
			}
			if msg.String() == "f5" || msg.String() == "f7" {
				delta = -volumeStep
			}
			return m, m.run(func(ctx context.Context) error { return m.ctl.AdjustVolume(ctx, ch, delta) })
		case "pgup":
			m.ctl.MoveSection(m.ctx, -1)
			m.refresh()
			return m, nil
		case "pgdown":
			m.ctl.MoveSection(m.ctx, 1)
			m.refresh()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// run executes fn off the update loop and reports its error.
func (m model) run(fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return errMsg{err: fn(ctx)}
	}
}

func (m *model) refresh() {
	m.snap = m.ctl.Snapshot()
	m.vp.SetContent(renderTranscript(m.snap.Entries, m.vp.Width))
	m.vp.GotoBottom()
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Dr. Carlos E. Cortés"))
	b.WriteString("  ")
	b.WriteString(renderStatus(m.snap))
	b.WriteString("\n")
	b.WriteString(m.vp.View())
	b.WriteString("\n")
	if m.err != "" {
		b.WriteString(noticeStyle.Render(m.err))
		b.WriteString("\n")
	} else if m.snap.Pending {
		b.WriteString(mutedStyle.Render("Dr. Cortés is thinking..."))
		b.WriteString("\n")
	} else {
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(helpLine))
	return b.String()
}

func renderTranscript(entries []chat.Entry, width int) string {
	if width <= 0 {
		width = 80
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		var label string
		switch e.Role {
		case chat.RoleUser:
			label = userStyle.Render("You")
		case chat.RoleAssistant:
			label = assistantStyle.Render("Dr. Cortés")
		default:
			b.WriteString(noticeStyle.Render(wordwrap.String(e.Text, width)))
			b.WriteString("\n")
			continue
		}
		b.WriteString(label)
		b.WriteString("\n")
		b.WriteString(wordwrap.String(e.Text, width))
		b.WriteString("\n")
	}
	return b.String()
}

func renderStatus(s snapshot) string {
	var conn string
	switch s.Status {
	case connection.StatusConnected:
		conn = okStyle.Render("● connected")
	case connection.StatusConnecting:
		conn = warnStyle.Render("● " + string(s.Status))
	case connection.StatusReconnecting:
		conn = warnStyle.Render(fmt.Sprintf("● %s (attempt %d)", s.Status, s.Retries))
	default:
		conn = noticeStyle.Render("● " + string(s.Status))
		if s.NeedsManual {
			conn += mutedStyle.Render(" (ctrl+r to reconnect)")
		}
	}

	parts := []string{conn, string(s.Lang), string(s.Mode)}
	if s.Section != "" {
		parts = append(parts, "timeline "+s.Section)
	}
	switch {
	case s.Narration.Muted:
		parts = append(parts, mutedStyle.Render("narration off"))
	case s.Narration.Speaking:
		parts = append(parts, okStyle.Render("narrating"))
	case s.Narration.Visible:
		parts = append(parts, "narration on")
	}
	if s.Speaking {
		parts = append(parts, okStyle.Render("speaking"))
	}
	if s.Audio {
		parts = append(parts, fmt.Sprintf("vol chat %d%% narrator %d%%", s.ChatVolume, s.NarrationVolume))
	}
	return strings.Join(parts, mutedStyle.Render(" · "))
}
