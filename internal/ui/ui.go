// Package ui holds the terminal styles shared by the CLI commands.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var profile = termenv.EnvColorProfile()

var (
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

func render(style lipgloss.Style, s string) string {
	if profile == termenv.Ascii {
		return s
	}
	return style.Render(s)
}

// RenderAccent highlights a short marker or key value.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderPass marks a completed action.
func RenderPass(s string) string { return render(successStyle, s) }

// RenderWarn marks something that needs the user's attention.
func RenderWarn(s string) string { return render(warningStyle, s) }

// RenderFail marks a failure.
func RenderFail(s string) string { return render(errorStyle, s) }

// RenderSubtle de-emphasizes supporting detail.
func RenderSubtle(s string) string { return render(subtleStyle, s) }

// RenderHeader styles a section heading.
func RenderHeader(s string) string { return render(headerStyle, s) }
