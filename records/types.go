package records

import (
	"fmt"
	"strconv"
)

// FieldType identifies how a field stores its value.
type FieldType int

const (
	FieldNotSupport   FieldType = 0
	FieldText         FieldType = 1
	FieldNumber       FieldType = 2
	FieldSingleSelect FieldType = 3
	FieldMultiSelect  FieldType = 4
	FieldDateTime     FieldType = 5
	FieldCheckbox     FieldType = 7
	FieldUser         FieldType = 11
	FieldPhone        FieldType = 13
	FieldURL          FieldType = 15
	FieldAttachment   FieldType = 17
	FieldLink         FieldType = 18
	FieldFormula      FieldType = 20
	FieldCreatedTime  FieldType = 1001
	FieldModifiedTime FieldType = 1002
)

var fieldTypeNames = map[FieldType]string{
	FieldNotSupport:   "unsupported",
	FieldText:         "text",
	FieldNumber:       "number",
	FieldSingleSelect: "single_select",
	FieldMultiSelect:  "multi_select",
	FieldDateTime:     "datetime",
	FieldCheckbox:     "checkbox",
	FieldUser:         "user",
	FieldPhone:        "phone",
	FieldURL:          "url",
	FieldAttachment:   "attachment",
	FieldLink:         "link",
	FieldFormula:      "formula",
	FieldCreatedTime:  "created_time",
	FieldModifiedTime: "modified_time",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return "field_type_" + strconv.Itoa(int(t))
}

// ParseFieldType maps a name such as "text" back to its FieldType.
func ParseFieldType(s string) (FieldType, error) {
	for t, name := range fieldTypeNames {
		if name == s {
			return t, nil
		}
	}
	return FieldNotSupport, fmt.Errorf("unknown field type %q", s)
}

// Writable reports whether values of this type can be set through the API.
func (t FieldType) Writable() bool {
	switch t {
	case FieldNotSupport, FieldFormula, FieldCreatedTime, FieldModifiedTime:
		return false
	}
	return true
}

// ViewType is the layout of a view.
type ViewType string

const (
	ViewGrid     ViewType = "grid"
	ViewKanban   ViewType = "kanban"
	ViewForm     ViewType = "form"
	ViewGallery  ViewType = "gallery"
	ViewGantt    ViewType = "gantt"
	ViewCalendar ViewType = "calendar"
)

// Record is one row. Fields are keyed by field id.
type Record struct {
	ID     string         `json:"record_id"`
	Fields map[string]any `json:"fields"`
}

// Clone returns a copy whose field map can be modified freely.
func (r Record) Clone() Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{ID: r.ID, Fields: fields}
}

type TableMeta struct {
	ID   string `json:"table_id"`
	Name string `json:"name"`
}

type ViewMeta struct {
	ID   string   `json:"view_id"`
	Name string   `json:"name"`
	Type ViewType `json:"type"`
}

type FieldMeta struct {
	ID        string    `json:"field_id"`
	Name      string    `json:"name"`
	Type      FieldType `json:"type"`
	IsPrimary bool      `json:"is_primary,omitempty"`
}

// Selection is the table and view the user currently has open.
type Selection struct {
	TableID string `json:"table_id"`
	ViewID  string `json:"view_id"`
}

// Operator compares a field with a value in a filter condition.
type Operator string

const (
	OpIs         Operator = "is"
	OpIsNot      Operator = "isNot"
	OpContains   Operator = "contains"
	OpIsEmpty    Operator = "isEmpty"
	OpIsNotEmpty Operator = "isNotEmpty"
)

// Conjunction joins filter conditions.
type Conjunction string

const (
	And Conjunction = "and"
	Or  Conjunction = "or"
)

type Condition struct {
	FieldID   string    `json:"field_id"`
	FieldType FieldType `json:"field_type"`
	Operator  Operator  `json:"operator"`
	Value     any       `json:"value,omitempty"`
}

type Filter struct {
	Conjunction Conjunction `json:"conjunction"`
	Conditions  []Condition `json:"conditions"`
}
