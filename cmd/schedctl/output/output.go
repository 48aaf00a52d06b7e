// Package output prints styled messages for schedctl.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorInfo    = lipgloss.Color("#3B82F6")
	colorMuted   = lipgloss.Color("#6B7280")
	colorPrimary = lipgloss.Color("#7C3AED")

	successStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(colorInfo)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	primaryStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	keyStyle     = lipgloss.NewStyle().Foreground(colorMuted).Width(16)
)

// Printer writes styled lines to W.
type Printer struct {
	W io.Writer
}

func (p Printer) Success(format string, args ...any) {
	fmt.Fprint(p.W, successStyle.Render("✓ "))
	fmt.Fprintf(p.W, format+"\n", args...)
}

func (p Printer) Warning(format string, args ...any) {
	fmt.Fprint(p.W, warningStyle.Render("⚠ "))
	fmt.Fprintf(p.W, format+"\n", args...)
}

func (p Printer) Error(format string, args ...any) {
	fmt.Fprint(p.W, errorStyle.Render("✗ "))
	fmt.Fprintf(p.W, format+"\n", args...)
}

func (p Printer) Info(format string, args ...any) {
	fmt.Fprint(p.W, infoStyle.Render("ℹ "))
	fmt.Fprintf(p.W, format+"\n", args...)
}

func (p Printer) Muted(format string, args ...any) {
	fmt.Fprintln(p.W, mutedStyle.Render(fmt.Sprintf(format, args...)))
}

// Section prints a header with an underline of the same width.
func (p Printer) Section(title string) {
	fmt.Fprintln(p.W)
	fmt.Fprintln(p.W, primaryStyle.Render(title))
	fmt.Fprintln(p.W, mutedStyle.Render(strings.Repeat("═", lipgloss.Width(title))))
}

// Field prints an aligned key/value line.
func (p Printer) Field(key string, value any) {
	fmt.Fprintf(p.W, "%s %v\n", keyStyle.Render(key), value)
}

// StatusIcon returns a colored icon for a post state or delivery outcome.
func StatusIcon(status string) string {
	switch status {
	case "published":
		return successStyle.Render("✓")
	case "pending":
		return warningStyle.Render("○")
	case "failed":
		return errorStyle.Render("✗")
	case "draft", "skipped":
		return mutedStyle.Render("•")
	default:
		return infoStyle.Render("◉")
	}
}
