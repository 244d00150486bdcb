// Package report renders the outcome of a job for a terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/ocyss/asyncpool/internal/job"
	"github.com/olekukonko/tablewriter"
)

// DefaultMaxFailures is the number of failure rows printed before the table
// is cut short.
const DefaultMaxFailures = 20

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
)

// Render writes a headline, a summary table and, when records failed, a
// failure table listing at most maxFailures of them.
func Render(w io.Writer, r *job.Report, maxFailures int) error {
	if r == nil || r.Ledger == nil {
		return fmt.Errorf("report: nothing to render")
	}

	writeHeadline(w, r)
	_, _ = fmt.Fprintln(w)

	if err := writeSummary(w, r); err != nil {
		return err
	}

	if r.Ledger.Failed() == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(w)
	return writeFailures(w, r, maxFailures)
}

// Headline returns the one-line outcome, e.g. "orders completed with 3 failures".
func Headline(r *job.Report) string {
	switch {
	case r.FlushErr != nil:
		return fmt.Sprintf("%s failed: %v", r.Name, r.FlushErr)
	case r.Ledger.Failed() > 0:
		return fmt.Sprintf("%s completed with %s failures", r.Name, FormatNumber(r.Ledger.Failed()))
	default:
		return fmt.Sprintf("%s completed: %s", r.Name, r.Ledger.Summary())
	}
}

func writeHeadline(w io.Writer, r *job.Report) {
	switch {
	case r.FlushErr != nil:
		_, _ = red.Fprintln(w, "✗ "+Headline(r))
	case r.Ledger.Failed() > 0:
		_, _ = yellow.Fprintln(w, "⚠ "+Headline(r))
	default:
		_, _ = green.Fprintln(w, "✓ "+Headline(r))
	}
}

func writeSummary(w io.Writer, r *job.Report) error {
	l := r.Ledger
	_, _ = bold.Fprintln(w, "SUMMARY")

	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")

	target := r.Table
	if r.View != "" {
		target += "/" + r.View
	}
	rows := [][]string{
		{"Mode", r.Mode},
		{"Target", target},
		{"Submitted", FormatNumber(l.Submitted)},
		{"Succeeded", FormatNumber(l.Succeeded)},
		{"Failed", FormatNumber(l.Failed())},
		{"Abandoned", FormatNumber(l.Abandoned)},
		{"Flushed", FormatNumber(l.Flushed)},
		{"Batches", FormatNumber(l.Batches)},
		{"Duration", FormatDuration(r.Duration)},
	}
	if r.FailureView != nil {
		rows = append(rows, []string{"Failure view", r.FailureView.Name})
	}
	for _, row := range rows {
		_ = table.Append(row[0], row[1])
	}
	return table.Render()
}

func writeFailures(w io.Writer, r *job.Report, maxFailures int) error {
	if maxFailures < 1 {
		maxFailures = DefaultMaxFailures
	}
	failures := r.Ledger.Failures
	_, _ = bold.Fprintln(w, "FAILURES")

	table := tablewriter.NewWriter(w)
	table.Header("#", "Record", "Error")
	for i, f := range failures[:min(len(failures), maxFailures)] {
		_ = table.Append(fmt.Sprint(i+1), f.Item.ID, firstLine(f.Err))
	}
	if err := table.Render(); err != nil {
		return err
	}

	if rest := len(failures) - maxFailures; rest > 0 {
		_, _ = yellow.Fprintf(w, "... and %s more\n", FormatNumber(rest))
	}
	return nil
}

// firstLine drops stack traces attached to panics.
func firstLine(err error) string {
	if err == nil {
		return ""
	}
	s, _, _ := strings.Cut(err.Error(), "\n")
	return s
}

// FormatNumber formats an integer with comma separators.
func FormatNumber(n int) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	s := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// FormatDuration rounds d to a unit that fits its size.
func FormatDuration(d time.Duration) string {
	switch {
	case d == 0:
		return "0"
	case d < time.Millisecond:
		return d.Round(time.Microsecond).String()
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(10 * time.Millisecond).String()
	}
}
