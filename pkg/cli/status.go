package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Theme is the colour scheme of status output.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Warn    lipgloss.Color
	Error   lipgloss.Color
}

// DefaultTheme is bright green on the terminal default.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Warn:    lipgloss.Color("#ffb86c"),
	Error:   lipgloss.Color("#ff5555"),
}

// Status prints progress and result lines for humans. Machine-readable
// output goes through Output instead.
type Status struct {
	w io.Writer

	label lipgloss.Style
	ok    lipgloss.Style
	dim   lipgloss.Style
	warn  lipgloss.Style
	err   lipgloss.Style
}

// NewStatus returns a Status writing to w. A nil w writes to stderr.
func NewStatus(w io.Writer, t Theme) *Status {
	if w == nil {
		w = os.Stderr
	}
	return &Status{
		w:     w,
		label: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		ok:    lipgloss.NewStyle().Foreground(t.Primary),
		dim:   lipgloss.NewStyle().Foreground(t.Dim),
		warn:  lipgloss.NewStyle().Foreground(t.Warn),
		err:   lipgloss.NewStyle().Bold(true).Foreground(t.Error),
	}
}

func (s *Status) line(style lipgloss.Style, prefix, format string, args ...any) {
	fmt.Fprintln(s.w, style.Render(prefix+" "+fmt.Sprintf(format, args...)))
}

// Success prints a line with a check mark.
func (s *Status) Success(format string, args ...any) { s.line(s.ok, "✓", format, args...) }

// Info prints a dimmed progress line.
func (s *Status) Info(format string, args ...any) { s.line(s.dim, "ℹ", format, args...) }

// Warn prints a warning line.
func (s *Status) Warn(format string, args ...any) { s.line(s.warn, "⚠", format, args...) }

// Error prints an error line.
func (s *Status) Error(format string, args ...any) { s.line(s.err, "✗", format, args...) }

// Field prints a labelled value. Empty values are skipped.
func (s *Status) Field(label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(s.w, "  %s %s\n", s.label.Render(label+":"), value)
}
