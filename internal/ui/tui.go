package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/omochice/termchat/internal/chat"
	"github.com/omochice/termchat/internal/eventbus"
)

const (
	minSidebarWidth = 20
	maxActivity     = 200
)

var (
	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Model is the full-screen bubbletea front end: a chat pane, the users in
// the room, an activity log and an input line.
type Model struct {
	bus     *eventbus.Bus
	palette *Palette
	title   string

	chat     viewport.Model
	input    textinput.Model
	lines    []string
	users    []string
	activity []string

	width  int
	height int
	ready  bool
	ended  *SessionEndedMsg
}

// NewModel creates the TUI model. Typed lines are published on bus as MESSAGE_SENT.
func NewModel(bus *eventbus.Bus, title string) Model {
	input := textinput.New()
	input.Placeholder = "Type a message and press Enter"
	input.Prompt = "> "
	input.CharLimit = 1024
	input.Focus()

	return Model{
		bus:     bus,
		palette: NewPalette(),
		title:   title,
		input:   input,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if text != "" {
				m.bus.Publish(chat.EventMessageSent, text)
			}
			return m, nil
		}

	case ChatMsg:
		m.lines = append(m.lines, m.palette.Name(msg.UserName)+": "+msg.Message)
		m.refreshChat()
		return m, nil

	case StatusMsg:
		m.users = append([]string(nil), msg...)
		return m, nil

	case ActivityMsg:
		m.activity = append(m.activity, m.palette.Activity(string(msg)))
		if len(m.activity) > maxActivity {
			m.activity = m.activity[len(m.activity)-maxActivity:]
		}
		return m, nil

	case SessionEndedMsg:
		m.ended = &msg
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Connecting..."
	}

	sidebarWidth := m.sidebarWidth()
	paneHeight := m.paneHeight()

	chatPane := paneStyle.
		Width(m.width - sidebarWidth - 4).
		Height(paneHeight).
		Render(titleStyle.Render(m.title) + "\n" + m.chat.View())

	usersHeight := paneHeight / 2
	usersPane := paneStyle.
		Width(sidebarWidth).
		Height(usersHeight).
		Render(titleStyle.Render("Users on room") + "\n" + m.renderUsers(usersHeight-1))

	activityHeight := paneHeight - usersHeight - 2
	activityPane := paneStyle.
		Width(sidebarWidth).
		Height(activityHeight).
		Render(titleStyle.Render("Activity log") + "\n" + tail(m.activity, activityHeight-1))

	body := lipgloss.JoinHorizontal(lipgloss.Top, chatPane, lipgloss.JoinVertical(lipgloss.Left, usersPane, activityPane))

	footer := m.input.View()
	if m.ended != nil && m.ended.Err != nil {
		footer = errorStyle.Render("connection lost: " + m.ended.Err.Error())
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

// Lines returns the rendered chat lines.
func (m Model) Lines() []string {
	return m.lines
}

// Users returns the user names shown in the users pane.
func (m Model) Users() []string {
	return m.users
}

// Activity returns the rendered activity log lines.
func (m Model) Activity() []string {
	return m.activity
}

// Ended returns the session end notice, if one was received.
func (m Model) Ended() *SessionEndedMsg {
	return m.ended
}

func (m *Model) layout() {
	chatWidth := m.width - m.sidebarWidth() - 4
	chatHeight := m.paneHeight() - 1
	if chatWidth < 1 {
		chatWidth = 1
	}
	if chatHeight < 1 {
		chatHeight = 1
	}
	if !m.ready {
		m.chat = viewport.New(chatWidth, chatHeight)
		m.ready = true
	} else {
		m.chat.Width = chatWidth
		m.chat.Height = chatHeight
	}
	m.input.Width = m.width - 4
	m.refreshChat()
}

func (m *Model) refreshChat() {
	if !m.ready {
		return
	}
	m.chat.SetContent(strings.Join(m.lines, "\n"))
	m.chat.GotoBottom()
}

func (m Model) sidebarWidth() int {
	w := m.width / 4
	if w < minSidebarWidth {
		w = minSidebarWidth
	}
	return w
}

func (m Model) paneHeight() int {
	// borders plus the input line
	h := m.height - 3
	if h < 4 {
		h = 4
	}
	return h
}

func (m Model) renderUsers(limit int) string {
	names := make([]string, 0, len(m.users))
	for _, name := range m.users {
		names = append(names, m.palette.Name(name))
	}
	return tail(names, limit)
}

func tail(lines []string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
