package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/ocyss/asyncpool/internal/testutil"
	"github.com/rs/zerolog"
)

func init() {
	color.NoColor = true
}

func seedStore(t *testing.T, badEvery int) *testutil.MockStore {
	t.Helper()
	m := testutil.NewMockStore()
	t.Cleanup(m.Close)

	m.AddTable("tbl1", "Orders")
	m.AddView("tbl1", "vewGrid", "All orders", "grid")
	m.AddField("tbl1", "fldName", "Name", 1)
	m.AddRecords("tbl1", 12, func(i int) map[string]any {
		if badEvery > 0 && i%badEvery == 0 {
			return map[string]any{"fldName": i}
		}
		return map[string]any{"fldName": fmt.Sprintf(" item-%d ", i)}
	})
	m.Select("tbl1", "vewGrid")
	return m
}

func writeConfig(t *testing.T, baseURL, sinkType string) string {
	t.Helper()
	data := fmt.Sprintf(`api:
  base_url: %s
job:
  name: cli-test
  concurrency: 4
  page_size: 5
  transforms:
    - op: trim
      field: Name
sink:
  type: %s
  batch_size: 5
log:
  level: error
`, baseURL, sinkType)

	path := filepath.Join(t.TempDir(), "job.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(args ...string) (stdout, stderr string, err error) {
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, "http://localhost:1", "api")

	out, _, err := execute(CmdValidate, "--config", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	for _, want := range []string{"is valid", "cli-test (all mode)", "transforms:   1", "sink:         api (batches of 5)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output misses %q:\n%s", want, out)
		}
	}
}

func TestValidate_Invalid(t *testing.T) {
	path := writeConfig(t, "not a url", "carrier-pigeon")

	_, _, err := execute(CmdValidate, "--config", path)
	if err == nil {
		t.Fatal("validate should fail")
	}
	if !strings.Contains(err.Error(), "api.base_url") || !strings.Contains(err.Error(), "sink.type") {
		t.Errorf("err = %v", err)
	}
}

func TestValidate_MissingFile(t *testing.T) {
	_, _, err := execute(CmdValidate, "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "configuration file not found") {
		t.Errorf("err = %v", err)
	}
}

func TestVersion(t *testing.T) {
	out, _, err := execute(CmdVersion)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != Version {
		t.Errorf("version output = %q", out)
	}
}

func TestRun(t *testing.T) {
	m := seedStore(t, 0)
	path := writeConfig(t, m.URL(), "api")

	out, _, err := execute(CmdRun, "--config", path, "--no-progress")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "cli-test completed: all 12 items succeeded") {
		t.Errorf("report missing headline:\n%s", out)
	}
	if rec, _ := m.Record("tbl1", "rec0004"); rec["fldName"] != "item-4" {
		t.Errorf("rec0004 = %v", rec)
	}
}

func TestRun_StdoutSinkKeepsReportOnStderr(t *testing.T) {
	m := seedStore(t, 0)
	path := writeConfig(t, m.URL(), "stdout")

	out, errOut, err := execute(CmdRun, "--config", path)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := strings.Count(out, `"record_id"`); n != 12 {
		t.Errorf("stdout has %d records, want 12:\n%s", n, out)
	}
	if strings.Contains(out, "SUMMARY") {
		t.Error("report should not be mixed into stdout results")
	}
	if !strings.Contains(errOut, "SUMMARY") {
		t.Errorf("stderr misses the report:\n%s", errOut)
	}
}

func TestRun_FailuresExitNonZero(t *testing.T) {
	m := seedStore(t, 4)
	path := writeConfig(t, m.URL(), "api")

	out, _, err := execute(CmdRun, "--config", path, "--no-progress")
	if !errors.Is(err, ErrRecordsFailed) {
		t.Fatalf("err = %v, want ErrRecordsFailed", err)
	}
	if !strings.Contains(err.Error(), "3 of 12 items failed") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(out, "FAILURES") || !strings.Contains(out, "rec0008") {
		t.Errorf("report misses the failure table:\n%s", out)
	}
}

func TestServeMetrics(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- serveMetrics(context.Background(), ln, done, zerolog.Nop())
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "go_goroutines") {
		t.Errorf("status %d, body:\n%.200s", resp.StatusCode, body)
	}

	close(done)
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("serveMetrics: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serveMetrics did not stop")
	}
}
