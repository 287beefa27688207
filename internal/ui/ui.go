// Package ui provides terminal output styling for the notesync CLI.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	passStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981"))
	warnStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F59E0B"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8942E1"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// colorEnabled honors the terminal's advertised capabilities and NO_COLOR.
var colorEnabled = termenv.EnvColorProfile() != termenv.Ascii

func render(style lipgloss.Style, s string) string {
	if !colorEnabled {
		return s
	}
	return style.Render(s)
}

// RenderPass styles success output.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderWarn styles warning output.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderFail styles failure output.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderAccent styles highlighted output.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderSubtle styles de-emphasized output.
func RenderSubtle(s string) string { return render(subtleStyle, s) }

// StatusGlyph returns a styled one-character marker for a job or item
// status string.
func StatusGlyph(status string) string {
	switch status {
	case "completed", "success":
		return RenderPass("✓")
	case "completed_with_errors", "paused", "skipped":
		return RenderWarn("⚠")
	case "failed":
		return RenderFail("✗")
	case "running":
		return RenderAccent("→")
	default:
		return RenderSubtle("·")
	}
}
