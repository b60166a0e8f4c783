// Package render prints console progress and end-of-run summaries.
// Console output is advisory; the JSON documents are the real output.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	primaryColor = lipgloss.Color("#0969DA")
	accentColor  = lipgloss.Color("#2DA44E")
	errorColor   = lipgloss.Color("#CF222E")
	dimColor     = lipgloss.Color("#6E7681")

	headerStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	valueStyle = lipgloss.NewStyle().
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)
)

// Row is one labelled value in a summary box.
type Row struct {
	Label string
	Value string
}

// Printer writes progress lines to w.
type Printer struct {
	w     io.Writer
	total int
	step  int
}

// NewPrinter returns a Printer announcing steps out of total.
func NewPrinter(w io.Writer, total int) *Printer {
	if w == nil {
		w = io.Discard
	}
	return &Printer{w: w, total: total}
}

// Step announces the next stage.
func (p *Printer) Step(format string, args ...any) {
	p.step++
	fmt.Fprintf(p.w, "%s Step %d/%d: %s\n", headerStyle.Render("▶"), p.step, p.total, fmt.Sprintf(format, args...))
}

// Done reports a completed sub-task of the current stage.
func (p *Printer) Done(format string, args ...any) {
	fmt.Fprintf(p.w, "   ✓ %s\n", fmt.Sprintf(format, args...))
}

// Warn reports a degraded sub-task.
func (p *Printer) Warn(format string, args ...any) {
	fmt.Fprintf(p.w, "   ⚠ %s\n", fmt.Sprintf(format, args...))
}

// Summary renders a bordered summary box titled title.
func Summary(title string, rows []Row, errs []string) string {
	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r.Label))
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(title))
	for _, r := range rows {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(r.Label + strings.Repeat(" ", width-lipgloss.Width(r.Label))))
		b.WriteString("  ")
		b.WriteString(valueStyle.Render(r.Value))
	}
	for _, e := range errs {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("✗ " + e))
	}
	return boxStyle.Render(b.String())
}

// PrintSummary writes Summary to the printer's writer.
func (p *Printer) PrintSummary(title string, rows []Row, errs []string) {
	fmt.Fprintln(p.w, Summary(title, rows, errs))
}
