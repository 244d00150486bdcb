package job

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ocyss/asyncpool/internal/config"
	"github.com/ocyss/asyncpool/records"
)

// FieldResolver maps field names to ids and types. *session.Session implements it.
type FieldResolver interface {
	FieldID(name string) (string, bool)
	FieldType(id string) (records.FieldType, bool)
}

type step struct {
	op    string
	field string
	name  string
	from  string
	value any
}

// Transformer applies a list of field operations to a record.
// Steps run in order; each sees the values written by the previous ones.
type Transformer struct {
	steps []step
}

// Compile resolves the field names of transforms against fields. Every
// unknown or read-only field is reported.
func Compile(transforms []config.Transform, fields FieldResolver) (*Transformer, error) {
	var errs []error
	steps := make([]step, 0, len(transforms))

	for i, t := range transforms {
		id, ok := fields.FieldID(t.Field)
		if !ok {
			errs = append(errs, fmt.Errorf("transform %d: unknown field %q", i, t.Field))
			continue
		}
		if typ, _ := fields.FieldType(id); !typ.Writable() {
			errs = append(errs, fmt.Errorf("transform %d: field %q (%s) is read-only", i, t.Field, typ))
			continue
		}

		s := step{op: strings.ToLower(t.Op), field: id, name: t.Field, value: t.Value}
		if s.op == config.OpCopy {
			from, ok := fields.FieldID(t.From)
			if !ok {
				errs = append(errs, fmt.Errorf("transform %d: unknown source field %q", i, t.From))
				continue
			}
			s.from = from
		}
		steps = append(steps, s)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Transformer{steps: steps}, nil
}

// Apply returns an update for rec holding only the fields the transforms wrote.
// rec itself is not modified.
func (t *Transformer) Apply(rec records.Record) (records.Record, error) {
	current := rec.Clone()
	update := records.Record{ID: rec.ID, Fields: make(map[string]any, len(t.steps))}

	for _, s := range t.steps {
		var v any
		switch s.op {
		case config.OpTrim, config.OpUpper, config.OpLower:
			old := current.Fields[s.field]
			if old == nil {
				continue
			}
			str, ok := old.(string)
			if !ok {
				return records.Record{}, fmt.Errorf("%s %q: value is %T, not text", s.op, s.name, old)
			}
			v = textOp(s.op, str)
		case config.OpSet:
			v = s.value
		case config.OpCopy:
			v = current.Fields[s.from]
		case config.OpClear:
			v = nil
		default:
			return records.Record{}, fmt.Errorf("unknown transform %q", s.op)
		}
		current.Fields[s.field] = v
		update.Fields[s.field] = v
	}

	return update, nil
}

func textOp(op, s string) string {
	switch op {
	case config.OpTrim:
		return strings.TrimSpace(s)
	case config.OpUpper:
		return strings.ToUpper(s)
	default:
		return strings.ToLower(s)
	}
}
