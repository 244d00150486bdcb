package job

import (
	"strings"
	"testing"

	"github.com/ocyss/asyncpool/internal/config"
	"github.com/ocyss/asyncpool/records"
)

type fieldMap map[string]records.FieldMeta

func (m fieldMap) FieldID(name string) (string, bool) {
	f, ok := m[name]
	return f.ID, ok
}

func (m fieldMap) FieldType(id string) (records.FieldType, bool) {
	for _, f := range m {
		if f.ID == id {
			return f.Type, true
		}
	}
	return 0, false
}

var testFields = fieldMap{
	"Name":    {ID: "fldName", Name: "Name", Type: records.FieldText},
	"Note":    {ID: "fldNote", Name: "Note", Type: records.FieldText},
	"Qty":     {ID: "fldQty", Name: "Qty", Type: records.FieldNumber},
	"Created": {ID: "fldCreated", Name: "Created", Type: records.FieldCreatedTime},
}

func TestTransformer_Apply(t *testing.T) {
	rec := records.Record{ID: "rec1", Fields: map[string]any{
		"fldName": "  Widget  ",
		"fldNote": "Mixed Case",
		"fldQty":  3.0,
	}}

	tests := []struct {
		name       string
		transforms []config.Transform
		want       map[string]any
	}{
		{"trim", []config.Transform{{Op: "trim", Field: "Name"}}, map[string]any{"fldName": "Widget"}},
		{"upper", []config.Transform{{Op: "upper", Field: "Note"}}, map[string]any{"fldNote": "MIXED CASE"}},
		{"lower", []config.Transform{{Op: "LOWER", Field: "Note"}}, map[string]any{"fldNote": "mixed case"}},
		{"set", []config.Transform{{Op: "set", Field: "Qty", Value: 10}}, map[string]any{"fldQty": 10}},
		{"copy", []config.Transform{{Op: "copy", Field: "Note", From: "Name"}}, map[string]any{"fldNote": "  Widget  "}},
		{"clear", []config.Transform{{Op: "clear", Field: "Note"}}, map[string]any{"fldNote": nil}},
		{
			"chained steps see earlier writes",
			[]config.Transform{{Op: "trim", Field: "Name"}, {Op: "upper", Field: "Name"}, {Op: "copy", Field: "Note", From: "Name"}},
			map[string]any{"fldName": "WIDGET", "fldNote": "WIDGET"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := Compile(tt.transforms, testFields)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			got, err := tr.Apply(rec)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if got.ID != "rec1" {
				t.Errorf("ID = %q", got.ID)
			}
			if len(got.Fields) != len(tt.want) {
				t.Fatalf("fields = %v, want %v", got.Fields, tt.want)
			}
			for k, v := range tt.want {
				if got.Fields[k] != v {
					t.Errorf("field %s = %v, want %v", k, got.Fields[k], v)
				}
			}
		})
	}

	if rec.Fields["fldName"] != "  Widget  " {
		t.Error("Apply must not modify the input record")
	}
}

func TestTransformer_MissingValue(t *testing.T) {
	tr, err := Compile([]config.Transform{{Op: "trim", Field: "Name"}}, testFields)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	got, err := tr.Apply(records.Record{ID: "rec1", Fields: map[string]any{}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(got.Fields) != 0 {
		t.Errorf("fields = %v, want none", got.Fields)
	}
}

func TestTransformer_NonText(t *testing.T) {
	tr, err := Compile([]config.Transform{{Op: "upper", Field: "Qty"}}, testFields)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	_, err = tr.Apply(records.Record{ID: "rec1", Fields: map[string]any{"fldQty": 4.0}})
	if err == nil || !strings.Contains(err.Error(), "float64, not text") {
		t.Errorf("err = %v, want a not-text error", err)
	}
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile([]config.Transform{
		{Op: "trim", Field: "Missing"},
		{Op: "set", Field: "Created", Value: "x"},
		{Op: "copy", Field: "Note", From: "Nowhere"},
		{Op: "trim", Field: "Name"},
	}, testFields)
	if err == nil {
		t.Fatal("Compile should fail")
	}
	for _, want := range []string{`unknown field "Missing"`, `"Created" (created_time) is read-only`, `unknown source field "Nowhere"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should contain %q", err, want)
		}
	}
}
