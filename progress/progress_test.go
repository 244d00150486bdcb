package progress

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestCounter(t *testing.T) {
	var c Counter

	if c.Percent() != 0 {
		t.Errorf("percent without total should be 0, got %v", c.Percent())
	}

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Increment()
		}()
	}
	wg.Wait()
	c.SetTotal(200)

	if c.Done() != 50 || c.Total() != 200 {
		t.Errorf("expected 50/200, got %d/%d", c.Done(), c.Total())
	}
	if c.Percent() != 25 {
		t.Errorf("expected 25%%, got %v", c.Percent())
	}
}

func TestLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	l := NewLogged(3, &logger)

	l.SetTotal(7)
	for range 7 {
		l.Increment()
	}

	var dones []int
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry struct {
			Message string `json:"message"`
			Done    int    `json:"done"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		if entry.Message == "Progress" {
			dones = append(dones, entry.Done)
		}
	}

	// Every third completion plus the final one.
	want := []int{3, 6, 7}
	if len(dones) != len(want) {
		t.Fatalf("expected progress lines at %v, got %v", want, dones)
	}
	for i := range want {
		if dones[i] != want[i] {
			t.Errorf("expected progress lines at %v, got %v", want, dones)
		}
	}
}

func TestMulti(t *testing.T) {
	var a, b Counter
	m := Multi{&a, &b}

	m.SetTotal(2)
	m.Increment()
	m.Increment()

	for i, c := range []*Counter{&a, &b} {
		if c.Total() != 2 || c.Done() != 2 {
			t.Errorf("reporter %d saw %d/%d", i, c.Done(), c.Total())
		}
	}
}

func TestBar(t *testing.T) {
	bar := NewBar("testing", io.Discard)

	// More completions than the spinner width before the total is known.
	for range 60 {
		bar.Increment()
	}
	bar.SetTotal(100)
	for range 10 {
		bar.Increment()
	}

	if bar.Current() != 70 {
		t.Errorf("expected 70 completions, got %d", bar.Current())
	}
	if err := bar.Finish(); err != nil {
		t.Errorf("Finish: %v", err)
	}
}
