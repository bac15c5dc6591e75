package overlay

import "github.com/charmbracelet/lipgloss"

var (
	colorAlert  = lipgloss.Color("#dc2626")
	colorBright = lipgloss.Color("#f9fafb")
	colorDimmed = lipgloss.Color("#6b7280")
	colorBorder = lipgloss.Color("#4b5563")
)

var (
	styleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAlert).
			Padding(1, 4)

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAlert)

	styleBody = lipgloss.NewStyle().
			Foreground(colorBright)

	styleHint = lipgloss.NewStyle().
			Foreground(colorDimmed)

	styleIdle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorBorder).
			Foreground(colorDimmed).
			Padding(0, 2)
)
