package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/ocyss/asyncpool/records"
)

// ErrNoConditions means none of the rows carried a value to filter on.
var ErrNoConditions = errors.New("session: no filter conditions")

// FailureRow identifies one failed record by a field value.
type FailureRow struct {
	FieldID string
	Value   any
}

// ViewEditor creates and filters views. *records.Table implements it.
type ViewEditor interface {
	AddView(ctx context.Context, name string, typ records.ViewType) (records.ViewMeta, error)
	SetFilter(ctx context.Context, viewID string, filter records.Filter) error
	DeleteView(ctx context.Context, viewID string) error
}

// FailureView creates a grid view named logs_<random> that shows exactly the
// rows of a failure report: one "field is value" condition per row, joined by
// OR. Field types come from the session's field maps. When the filter cannot
// be applied the view is deleted again.
func FailureView(ctx context.Context, s *Session, editor ViewEditor, rows []FailureRow) (records.ViewMeta, error) {
	conditions := make([]records.Condition, 0, len(rows))
	for _, row := range rows {
		if isEmptyValue(row.Value) {
			continue
		}
		typ, _ := s.FieldType(row.FieldID)
		conditions = append(conditions, records.Condition{
			FieldID:   row.FieldID,
			FieldType: typ,
			Operator:  records.OpIs,
			Value:     row.Value,
		})
	}
	if len(conditions) == 0 {
		return records.ViewMeta{}, ErrNoConditions
	}

	view, err := editor.AddView(ctx, "logs_"+randomString(8), records.ViewGrid)
	if err != nil {
		return records.ViewMeta{}, fmt.Errorf("create failure view: %w", err)
	}

	filter := records.Filter{Conjunction: records.Or, Conditions: conditions}
	if err := editor.SetFilter(ctx, view.ID, filter); err != nil {
		if delErr := editor.DeleteView(ctx, view.ID); delErr != nil {
			err = errors.Join(err, fmt.Errorf("delete view %s: %w", view.ID, delErr))
		}
		return records.ViewMeta{}, fmt.Errorf("filter failure view: %w", err)
	}

	s.logger.Info().
		Str("view", view.ID).
		Str("name", view.Name).
		Int("conditions", len(conditions)).
		Msg("Failure view created")
	return view, nil
}

func isEmptyValue(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	}
	return false
}

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}
