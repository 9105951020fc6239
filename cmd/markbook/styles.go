package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/IshaanNene/markbook/internal/types"
)

const (
	colorPrimary = "#7D56F4"
	colorSuccess = "#04B575"
	colorError   = "#FF0000"
	colorInfo    = "#626262"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorPrimary))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorSuccess))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorError))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorInfo))
)

// renderEvent formats one session event for the terminal.
func renderEvent(ev types.Event) string {
	switch ev.Kind {
	case types.EventDone:
		return statusStyle.Render(fmt.Sprintf("Done! %d bookmarks saved.", ev.Count))
	case types.EventError:
		return errorStyle.Render("Error: " + ev.Text)
	default:
		return infoStyle.Render(ev.Text)
	}
}
