package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"sitecheck/internal/session"
)

const (
	colSep         = " | "
	minMessageCols = 20
)

var stepHeaders = []string{"#", "Step", "Status", "Time", "Message"}

// stepTable renders one product's steps in aligned columns that fit width.
// Status cells are colored after padding so escape codes do not shift the
// columns. Failed steps get a second line with the root cause.
func stepTable(p Product, styles Styles, width int) string {
	var sb strings.Builder
	sb.WriteString(styles.Title.Render(fmt.Sprintf("%s  %s", p.Name, styles.Status(p.Status))))
	sb.WriteString("\n")
	if p.URL != "" {
		sb.WriteString(styles.Muted.Render(p.URL) + "\n")
	}
	if len(p.Steps) == 0 {
		sb.WriteString(styles.Muted.Render("no steps ran") + "\n\n")
		return sb.String()
	}

	rows := make([][]string, 0, len(p.Steps))
	for _, st := range p.Steps {
		rows = append(rows, []string{
			fmt.Sprintf("%d", st.Number),
			st.Name,
			st.State.String(),
			fmt.Sprintf("%.1fs", st.Duration().Seconds()),
			stepText(st),
		})
	}

	// The message column takes whatever the fixed columns leave.
	widths := make([]int, len(stepHeaders)-1)
	for i := range widths {
		widths[i] = lipgloss.Width(stepHeaders[i])
		for _, row := range rows {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}
	indent := len(widths) * len(colSep)
	for _, w := range widths {
		indent += w
	}
	msgCols := width - indent
	if msgCols < minMessageCols {
		msgCols = minMessageCols
	}

	sep := styles.Muted.Render(colSep)
	line := func(cells []string, status func(string) string) string {
		var lb strings.Builder
		for i, w := range widths {
			cell := cells[i]
			pad := strings.Repeat(" ", w-lipgloss.Width(cell))
			if i == 2 && status != nil {
				cell = status(cell)
			}
			lb.WriteString(cell + pad + sep)
		}
		lb.WriteString(truncate(cells[len(widths)], msgCols))
		return strings.TrimRight(lb.String(), " ")
	}

	sb.WriteString(styles.Bold.Render(line(stepHeaders, nil)) + "\n")
	sb.WriteString(styles.Muted.Render(strings.Repeat("-", indent+msgCols)) + "\n")
	for i, st := range p.Steps {
		sb.WriteString(line(rows[i], styles.Status) + "\n")
		if st.State == session.StateFailed && st.Details != nil && st.Details.RootCause != "" {
			cause := truncate("root cause: "+st.Details.RootCause, msgCols)
			sb.WriteString(strings.Repeat(" ", indent) + styles.Muted.Render(cause) + "\n")
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

// stepText is the message column: the step message, or its error when the
// step has no message.
func stepText(st *session.Step) string {
	if st.Message == "" {
		return st.Error
	}
	return st.Message
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
