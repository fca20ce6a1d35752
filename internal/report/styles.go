package report

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Semantic colors.
var (
	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")

	lightForeground = lipgloss.Color("#101F38")
	lightMuted      = lipgloss.Color("#6b7785")
	darkForeground  = lipgloss.Color("#f2f2f2")
	darkMuted       = lipgloss.Color("#8a97ab")
)

// Styles holds the rendering styles for terminal reports.
type Styles struct {
	IsDark  bool
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Body    lipgloss.Style
	Muted   lipgloss.Style
	Passed  lipgloss.Style
	Failed  lipgloss.Style
	Skipped lipgloss.Style
	Aborted lipgloss.Style
}

// NewStyles returns styles for a dark or light terminal.
func NewStyles(dark bool) Styles {
	fg, muted := lightForeground, lightMuted
	if dark {
		fg, muted = darkForeground, darkMuted
	}
	return Styles{
		IsDark:  dark,
		Title:   lipgloss.NewStyle().Bold(true).Foreground(Info).MarginBottom(1),
		Bold:    lipgloss.NewStyle().Bold(true).Foreground(fg),
		Body:    lipgloss.NewStyle().Foreground(fg),
		Muted:   lipgloss.NewStyle().Foreground(muted),
		Passed:  lipgloss.NewStyle().Bold(true).Foreground(Success),
		Failed:  lipgloss.NewStyle().Bold(true).Foreground(Destructive),
		Skipped: lipgloss.NewStyle().Foreground(Warning),
		Aborted: lipgloss.NewStyle().Bold(true).Foreground(Warning),
	}
}

// DetectStyles picks light or dark styles from the terminal environment.
func DetectStyles() Styles {
	return NewStyles(detectDark())
}

func detectDark() bool {
	if v := os.Getenv("COLORFGBG"); v != "" {
		// "foreground;background"; low ANSI indices are dark backgrounds.
		parts := strings.Split(v, ";")
		if len(parts) == 2 {
			if bg, err := strconv.Atoi(parts[1]); err == nil {
				if (bg >= 0 && bg <= 6) || bg == 8 {
					return true
				}
			}
		}
	}
	return os.Getenv("SITECHECK_DARK_MODE") == "1"
}

// Status renders a status word in its color.
func (s Styles) Status(status string) string {
	switch status {
	case StatusPassed:
		return s.Passed.Render(status)
	case StatusFailed:
		return s.Failed.Render(status)
	case StatusAborted:
		return s.Aborted.Render(status)
	case "skipped":
		return s.Skipped.Render(status)
	default:
		return s.Muted.Render(status)
	}
}
