package records

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ocyss/asyncpool/producer"
)

// MaxBatchUpdate is the largest number of records SetRecords accepts per call.
const MaxBatchUpdate = 5000

// Table is a handle on one table.
type Table struct {
	client *Client
	id     string
	path   string
}

func (t *Table) ID() string {
	return t.id
}

type pageData struct {
	Items     []Record `json:"items"`
	Total     int      `json:"total"`
	HasMore   bool     `json:"has_more"`
	PageToken string   `json:"page_token"`
}

// FetchPage reads one page of records. It makes *Table a producer.PageSource.
func (t *Table) FetchPage(ctx context.Context, req producer.PageRequest) (producer.Page[Record], error) {
	q := url.Values{}
	if req.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(req.PageSize))
	}
	if req.PageToken != "" {
		q.Set("page_token", req.PageToken)
	}

	var data pageData
	if err := t.client.do(ctx, "list_records", http.MethodGet, t.path+"/records", q, nil, &data); err != nil {
		return producer.Page[Record]{}, err
	}
	return producer.Page[Record]{
		Items:     data.Items,
		Total:     data.Total,
		HasMore:   data.HasMore,
		NextToken: data.PageToken,
	}, nil
}

// Resolve reads one record by id. It makes *Table a producer.Resolver.
func (t *Table) Resolve(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, ErrEmptyID
	}
	var data struct {
		Record Record `json:"record"`
	}
	if err := t.client.do(ctx, "get_record", http.MethodGet, t.path+"/records/"+url.PathEscape(id), nil, nil, &data); err != nil {
		return Record{}, err
	}
	if data.Record.ID == "" {
		data.Record.ID = id
	}
	return data.Record, nil
}

// RecordIDs returns the ids of the records selected in a view, in view order.
func (t *Table) RecordIDs(ctx context.Context, viewID string) ([]string, error) {
	if viewID == "" {
		return nil, ErrEmptyID
	}
	var data struct {
		RecordIDs []string `json:"record_ids"`
	}
	path := t.path + "/views/" + url.PathEscape(viewID) + "/selection"
	if err := t.client.do(ctx, "selected_records", http.MethodGet, path, nil, nil, &data); err != nil {
		return nil, err
	}
	return data.RecordIDs, nil
}

// SetRecords writes the fields of the given records. Its signature matches
// pool.SinkFunc[Record], so a table can be a pool's result sink. Batches above
// MaxBatchUpdate are sent in several calls.
func (t *Table) SetRecords(ctx context.Context, batch []Record) error {
	for len(batch) > 0 {
		n := min(len(batch), MaxBatchUpdate)
		body := struct {
			Records []Record `json:"records"`
		}{Records: batch[:n]}
		if err := t.client.do(ctx, "batch_update", http.MethodPost, t.path+"/records/batch_update", nil, body, nil); err != nil {
			return err
		}
		batch = batch[n:]
	}
	return nil
}

// AddView creates a view and returns its metadata.
func (t *Table) AddView(ctx context.Context, name string, typ ViewType) (ViewMeta, error) {
	body := struct {
		Name string   `json:"name"`
		Type ViewType `json:"type"`
	}{Name: name, Type: typ}

	var data struct {
		View ViewMeta `json:"view"`
	}
	if err := t.client.do(ctx, "add_view", http.MethodPost, t.path+"/views", nil, body, &data); err != nil {
		return ViewMeta{}, err
	}
	return data.View, nil
}

// DeleteView removes a view.
func (t *Table) DeleteView(ctx context.Context, viewID string) error {
	if viewID == "" {
		return ErrEmptyID
	}
	return t.client.do(ctx, "delete_view", http.MethodDelete, t.path+"/views/"+url.PathEscape(viewID), nil, nil, nil)
}

// SetFilter replaces the filter of a view.
func (t *Table) SetFilter(ctx context.Context, viewID string, filter Filter) error {
	if viewID == "" {
		return ErrEmptyID
	}
	path := t.path + "/views/" + url.PathEscape(viewID) + "/filter"
	return t.client.do(ctx, "set_filter", http.MethodPut, path, nil, filter, nil)
}
