package status

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// 🎨 Display configuration
const (
	projectIndent = 2  // spaces to indent project lines
	idWidth       = 24 // width for the project id
	cellWidth     = 10 // width for each stage column
)

// Formatter defines how project results are rendered
type Formatter interface {
	// FormatProject formats one project line
	FormatProject(p ProjectStatus, shown []Stage) string

	// FormatSummary formats the totals for one stage
	FormatSummary(stage Stage, done, skipped, failed int) string
}

// DefaultFormatter renders colored fixed-width lines
type DefaultFormatter struct{}

// NewDefaultFormatter creates a new DefaultFormatter
func NewDefaultFormatter() *DefaultFormatter {
	return &DefaultFormatter{}
}

func outcomeCell(o Outcome) string {
	text := fmt.Sprintf("%-*s", cellWidth, o.String())
	switch o {
	case Done:
		return color.GreenString("✓ ") + text
	case Skipped:
		return color.YellowString("- ") + text
	case Failed:
		return color.RedString("✗ ") + text
	default:
		return color.HiBlackString("• ") + text
	}
}

// FormatProject formats a project with one cell per shown stage and the
// first skip reason or error
func (f *DefaultFormatter) FormatProject(p ProjectStatus, shown []Stage) string {
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", projectIndent))
	b.WriteString(fmt.Sprintf("%-*s", idWidth, p.ID))

	var note string
	for _, s := range shown {
		res := p.Result(s)
		b.WriteString(" ")
		b.WriteString(outcomeCell(res.Outcome))
		if note != "" {
			continue
		}
		switch {
		case res.Err != nil:
			note = res.Err.Error()
		case res.Reason != "":
			note = res.Reason
		}
	}
	if note != "" {
		b.WriteString(" ")
		b.WriteString(color.New(color.Faint).Sprint(note))
	}
	return strings.TrimRight(b.String(), " ")
}

// FormatSummary formats the totals of a stage
func (f *DefaultFormatter) FormatSummary(stage Stage, done, skipped, failed int) string {
	return fmt.Sprintf("%s: %d done, %d skipped, %d failed", stage, done, skipped, failed)
}

// 🖨️ Write prints every project, a summary per stage that ran, and the
// final "Done." line
func (r *Report) Write(w io.Writer) error {
	return r.WriteWith(w, NewDefaultFormatter())
}

// WriteWith is Write with a custom formatter
func (r *Report) WriteWith(w io.Writer, f Formatter) error {
	var shown []Stage
	for _, s := range stages {
		if r.Count(s, Pending) < len(r.Projects()) {
			shown = append(shown, s)
		}
	}

	var lines []string
	for _, p := range r.Projects() {
		lines = append(lines, f.FormatProject(p, shown))
	}
	for _, s := range shown {
		lines = append(lines, f.FormatSummary(s, r.Count(s, Done), r.Count(s, Skipped), r.Count(s, Failed)))
	}
	lines = append(lines, "Done.")

	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}
