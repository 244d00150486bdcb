package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// JSONLines writes one JSON document per result. Used for dry runs.
type JSONLines[R any] struct {
	mu      sync.Mutex
	enc     *json.Encoder
	written int
}

func NewJSONLines[R any](w io.Writer) *JSONLines[R] {
	return &JSONLines[R]{enc: json.NewEncoder(w)}
}

// Write has the pool.SinkFunc signature.
func (s *JSONLines[R]) Write(ctx context.Context, batch []R) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.enc.Encode(r); err != nil {
			return fmt.Errorf("write result %d: %w", i, err)
		}
		s.written++
	}
	return nil
}

// Written returns how many results have been written.
func (s *JSONLines[R]) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}
