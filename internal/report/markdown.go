package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"sitecheck/internal/session"
)

// Markdown renders the report as a markdown document.
func (r *Report) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Site check report (%s)\n\n", r.Mode)
	fmt.Fprintf(&sb, "Run `%s` at %s, %.1fs.\n\n", r.RunID, r.GeneratedAt.Format("2006-01-02 15:04:05"), r.Duration)

	s := r.Totals.Steps
	fmt.Fprintf(&sb, "**%d products**: %d passed, %d failed, %d aborted. ", r.Totals.Products, r.Totals.Passed, r.Totals.Failed, r.Totals.Aborted)
	fmt.Fprintf(&sb, "**%d steps**: %d passed, %d failed, %d skipped (%.1f%%).\n\n", s.Total, s.Passed, s.Failed, s.Skipped, s.PassRate)

	for _, p := range r.Products {
		fmt.Fprintf(&sb, "## %s: %s\n\n", p.Name, p.Status)
		fmt.Fprintf(&sb, "%s\n\n", p.URL)
		if p.Aborted != "" {
			fmt.Fprintf(&sb, "> %s\n\n", p.Aborted)
		}
		for _, st := range p.Steps {
			if st.State != session.StateFailed || st.Details == nil {
				continue
			}
			d := st.Details
			fmt.Fprintf(&sb, "- **Step %d %s**: %s\n", st.Number, st.Name, d.Problem)
			fmt.Fprintf(&sb, "  - scenario: %s, operation: %s\n", d.Scenario, d.Operation)
			if d.RootCause != "" {
				fmt.Fprintf(&sb, "  - root cause: `%s`\n", d.RootCause)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderMarkdown renders markdown for the terminal. It falls back to the raw
// text when glamour cannot build a renderer.
func RenderMarkdown(md string, styles Styles, width int) string {
	if width <= 0 {
		width = 80
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if styles.IsDark {
		opts = append(opts, glamour.WithStylePath("dark"))
	} else {
		opts = append(opts, glamour.WithStylePath("light"))
	}
	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

// Text renders a step table per product followed by the markdown summary,
// fitted to width columns.
func (r *Report) Text(styles Styles, width int) string {
	if width <= 0 {
		width = 80
	}
	var sb strings.Builder
	for _, p := range r.Products {
		sb.WriteString(stepTable(p, styles, width))
	}
	sb.WriteString(RenderMarkdown(r.Markdown(), styles, width))
	return sb.String()
}
