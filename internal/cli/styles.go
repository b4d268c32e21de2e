package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/ecf/internal/task"
)

// Status styles
var (
	styleStatusInProgress = lipgloss.NewStyle().
				Foreground(lipgloss.Color("yellow")).
				Bold(true)

	styleStatusCompleted = lipgloss.NewStyle().
				Foreground(lipgloss.Color("green")).
				Bold(true)

	styleStatusFailed = lipgloss.NewStyle().
				Foreground(lipgloss.Color("red")).
				Bold(true)

	styleStatusCreated = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

// UI element styles
var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	styleDim = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// renderStatus styles a task status for terminal output.
func renderStatus(s task.Status) string {
	switch s {
	case task.StatusInProgress:
		return styleStatusInProgress.Render(string(s))
	case task.StatusCompleted:
		return styleStatusCompleted.Render(string(s))
	case task.StatusFailed:
		return styleStatusFailed.Render(string(s))
	default:
		return styleStatusCreated.Render(string(s))
	}
}
