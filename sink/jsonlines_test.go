package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type item struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func TestJSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONLines[item](&buf)

	if err := s.Write(context.Background(), []item{{"a", 1}, {"b", 2}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(context.Background(), []item{{"c", 3}}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got []item
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var it item
		if err := json.Unmarshal(sc.Bytes(), &it); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		got = append(got, it)
	}
	if len(got) != 3 || got[2].ID != "c" || s.Written() != 3 {
		t.Errorf("unexpected output %+v (written=%d)", got, s.Written())
	}
}

func TestJSONLines_CancelledContext(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONLines[item](&buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Write(ctx, []item{{"a", 1}}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected Canceled, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written after cancellation")
	}
}
