package report

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/ocyss/asyncpool/internal/job"
	"github.com/ocyss/asyncpool/pool"
	"github.com/ocyss/asyncpool/records"
)

func init() {
	color.NoColor = true
}

func failures(n int) []pool.Failure[records.Record] {
	out := make([]pool.Failure[records.Record], n)
	for i := range out {
		out[i] = pool.Failure[records.Record]{
			Item: records.Record{ID: fmt.Sprintf("rec%04d", i)},
			Err:  fmt.Errorf("trim %q: value is float64, not text\nextra detail", "Name"),
			Seq:  i,
		}
	}
	return out
}

func TestHeadline(t *testing.T) {
	tests := []struct {
		name   string
		report *job.Report
		want   string
	}{
		{
			"all succeeded",
			&job.Report{Name: "orders", Ledger: &pool.Ledger[records.Record]{Submitted: 1200, Succeeded: 1200}},
			"orders completed: all 1200 items succeeded",
		},
		{
			"partial failure",
			&job.Report{Name: "orders", Ledger: &pool.Ledger[records.Record]{Submitted: 5000, Failures: failures(1500)}},
			"orders completed with 1,500 failures",
		},
		{
			"flush failure",
			&job.Report{
				Name:     "orders",
				Ledger:   &pool.Ledger[records.Record]{},
				FlushErr: &pool.FlushError{Batch: 2, Size: 10, Err: errors.New("boom")},
			},
			"orders failed: pool: flush of batch 2 (10 results) failed: boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Headline(tt.report); got != tt.want {
				t.Errorf("Headline() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	r := &job.Report{
		Name:  "orders",
		Mode:  "all",
		Table: "tbl1",
		View:  "vewGrid",
		Ledger: &pool.Ledger[records.Record]{
			Submitted: 30,
			Succeeded: 25,
			Failures:  failures(5),
			Flushed:   25,
			Batches:   3,
		},
		Duration:    1500 * time.Millisecond,
		FailureView: &records.ViewMeta{ID: "vew9", Name: "logs_AbCd1234"},
	}

	var buf bytes.Buffer
	if err := Render(&buf, r, 3); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"⚠ orders completed with 5 failures",
		"SUMMARY",
		"tbl1/vewGrid",
		"1.5s",
		"logs_AbCd1234",
		"FAILURES",
		"rec0002",
		"float64",
		"... and 2 more",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output misses %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "rec0003") {
		t.Error("failure table should stop at maxFailures")
	}
	if strings.Contains(out, "extra detail") {
		t.Error("only the first line of an error should be printed")
	}
}

func TestRender_Clean(t *testing.T) {
	r := &job.Report{
		Name:   "orders",
		Ledger: &pool.Ledger[records.Record]{Submitted: 3, Succeeded: 3, Flushed: 3, Batches: 1},
	}
	var buf bytes.Buffer
	if err := Render(&buf, r, 0); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "✓ orders completed") {
		t.Errorf("headline = %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}
	if strings.Contains(buf.String(), "FAILURES") {
		t.Error("no failure table expected")
	}
}

func TestRender_Nil(t *testing.T) {
	if err := Render(&bytes.Buffer{}, nil, 0); err == nil {
		t.Error("Render(nil) should fail")
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[int]string{0: "0", 999: "999", 1000: "1,000", 1234567: "1,234,567", -4200: "-4,200"}
	for n, want := range tests {
		if got := FormatNumber(n); got != want {
			t.Errorf("FormatNumber(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		0:                       "0",
		1500 * time.Nanosecond:  "2µs",
		2345 * time.Microsecond: "2ms",
		1234 * time.Millisecond: "1.23s",
	}
	for d, want := range tests {
		if got := FormatDuration(d); got != want {
			t.Errorf("FormatDuration(%v) = %q, want %q", d, got, want)
		}
	}
}
