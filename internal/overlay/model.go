// Package overlay is a terminal overlay UI. It shows the blocking notice
// pushed by the daemon and sends the user home when it is dismissed.
package overlay

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// Source is the daemon side of the overlay stream.
type Source interface {
	Next() (domain.OverlayActivation, error)
	Dismiss() error
	Back() error
}

type activationMsg domain.OverlayActivation

type disconnectedMsg struct{ err error }

type actionErrMsg struct{ err error }

// Model is the bubbletea model for the overlay.
type Model struct {
	source Source
	active *domain.OverlayActivation
	width  int
	height int
	err    error
}

// New creates the overlay model.
func New(source Source) Model {
	return Model{source: source}
}

// Err returns the error that ended the stream, if any.
func (m Model) Err() error { return m.err }

// Init starts listening for activations.
func (m Model) Init() tea.Cmd {
	return m.listen()
}

func (m Model) listen() tea.Cmd {
	return func() tea.Msg {
		a, err := m.source.Next()
		if err != nil {
			return disconnectedMsg{err: err}
		}
		return activationMsg(a)
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case activationMsg:
		a := domain.OverlayActivation(msg)
		m.active = &a
		return m, m.listen()

	case disconnectedMsg:
		m.err = msg.err
		return m, tea.Quit

	case actionErrMsg:
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	if m.active == nil {
		if key == "q" {
			return m, tea.Quit
		}
		return m, nil
	}

	// While the notice is up the only ways out lead home.
	switch key {
	case "enter", " ":
		m.active = nil
		return m, m.run(m.source.Dismiss)
	case "esc", "backspace", "left":
		m.active = nil
		return m, m.run(m.source.Back)
	}
	return m, nil
}

func (m Model) run(action func() error) tea.Cmd {
	return func() tea.Msg {
		if err := action(); err != nil {
			return actionErrMsg{err: err}
		}
		return nil
	}
}

// View renders the notice or the idle banner.
func (m Model) View() string {
	var content string
	if m.active == nil {
		content = styleIdle.Render("appguard overlay: watching for blocked apps  (q to quit)")
	} else {
		content = styleBox.Render(lipgloss.JoinVertical(lipgloss.Center,
			styleTitle.Render(fmt.Sprintf("%s is blocked", m.active.BlockedLabel)),
			"",
			styleBody.Render("This app is on your block list."),
			"",
			styleHint.Render("enter: go to home screen"),
		))
	}

	if m.err != nil {
		content = lipgloss.JoinVertical(lipgloss.Left, content, styleHint.Render("error: "+m.err.Error()))
	}

	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}
