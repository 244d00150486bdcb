package session

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/ocyss/asyncpool/internal/testutil"
	"github.com/ocyss/asyncpool/records"
)

func TestFailureView(t *testing.T) {
	m, client := seedStore(t)
	s := newSession(client)
	defer s.Close()
	ctx := context.Background()

	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	rows := []FailureRow{
		{FieldID: "fldName", Value: "order-1"},
		{FieldID: "fldName", Value: ""},
		{FieldID: "fldQty", Value: 7},
		{FieldID: "fldName", Value: nil},
	}
	view, err := FailureView(ctx, s, client.Table("tbl1"), rows)
	if err != nil {
		t.Fatalf("FailureView: %v", err)
	}
	if !regexp.MustCompile(`^logs_[A-Za-z0-9]{8}$`).MatchString(view.Name) {
		t.Errorf("view name %q does not look like logs_<8 chars>", view.Name)
	}

	var created *testutil.MockView
	views := m.Views("tbl1")
	for i := range views {
		if views[i].ID == view.ID {
			created = &views[i]
		}
	}
	if created == nil {
		t.Fatalf("view %s not found in store", view.ID)
	}
	if created.Type != "grid" {
		t.Errorf("view type = %q, want grid", created.Type)
	}

	var filter records.Filter
	if err := json.Unmarshal(created.Filter, &filter); err != nil {
		t.Fatalf("decode filter: %v", err)
	}
	if filter.Conjunction != records.Or {
		t.Errorf("conjunction = %q, want or", filter.Conjunction)
	}
	if len(filter.Conditions) != 2 {
		t.Fatalf("conditions = %d, want 2 (empty values skipped)", len(filter.Conditions))
	}
	first, second := filter.Conditions[0], filter.Conditions[1]
	if first.FieldID != "fldName" || first.FieldType != records.FieldText || first.Operator != records.OpIs || first.Value != "order-1" {
		t.Errorf("first condition = %+v", first)
	}
	if second.FieldID != "fldQty" || second.FieldType != records.FieldNumber {
		t.Errorf("second condition = %+v", second)
	}
}

func TestFailureView_NoConditions(t *testing.T) {
	m, client := seedStore(t)
	s := newSession(client)
	defer s.Close()

	_, err := FailureView(context.Background(), s, client.Table("tbl1"), []FailureRow{{FieldID: "fldName"}})
	if !errors.Is(err, ErrNoConditions) {
		t.Fatalf("err = %v, want ErrNoConditions", err)
	}
	if n := m.Calls("POST", "/api/v1/tables/tbl1/views"); n != 0 {
		t.Errorf("view created %d times without conditions", n)
	}
}

func TestFailureView_FilterFailureDeletesView(t *testing.T) {
	m, client := seedStore(t)
	s := newSession(client)
	defer s.Close()
	ctx := context.Background()

	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	before := len(m.Views("tbl1"))

	// Added views are numbered from 1.
	m.Fail("PUT", "/api/v1/tables/tbl1/views/vew1/filter", testutil.Failure{Status: 400, Code: 1254001, Msg: "bad filter"})

	_, err := FailureView(ctx, s, client.Table("tbl1"), []FailureRow{{FieldID: "fldName", Value: "x"}})
	if err == nil {
		t.Fatal("FailureView should fail when the filter is rejected")
	}
	var apiErr *records.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 1254001 {
		t.Errorf("err = %v, want the filter APIError", err)
	}
	if got := len(m.Views("tbl1")); got != before {
		t.Errorf("views = %d, want %d (created view removed)", got, before)
	}
	if n := m.Calls("DELETE", "/api/v1/tables/tbl1/views/vew1"); n != 1 {
		t.Errorf("DeleteView calls = %d, want 1", n)
	}
}
