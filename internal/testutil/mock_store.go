// Package testutil provides an in-memory record store server for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockField is a field of a mock table. Type uses the API's numeric codes.
type MockField struct {
	ID   string `json:"field_id"`
	Name string `json:"name"`
	Type int    `json:"type"`
}

// MockView is a view of a mock table.
type MockView struct {
	ID     string          `json:"view_id"`
	Name   string          `json:"name"`
	Type   string          `json:"type"`
	Filter json.RawMessage `json:"-"`
}

type mockRecord struct {
	ID     string         `json:"record_id"`
	Fields map[string]any `json:"fields"`
}

type mockTable struct {
	id       string
	name     string
	views    []*MockView
	fields   []MockField
	records  []*mockRecord
	byID     map[string]*mockRecord
	selected map[string][]string
	updates  [][]string
}

// Failure describes an injected error response.
type Failure struct {
	Status int
	Code   int
	Msg    string
	// Times limits how many matching calls fail. Zero means every call.
	Times int
	// Nth fails only the nth matching call (1-based). Zero disables it.
	Nth   int
	Delay time.Duration
}

type failureRule struct {
	Failure
	hits int
}

// MockStore is an httptest server speaking the record store API.
type MockStore struct {
	server *httptest.Server
	token  string

	mu         sync.Mutex
	tables     map[string]*mockTable
	order      []string
	selection  [2]string
	failures   map[string]*failureRule
	calls      map[string]int
	requests   int
	nextViewID int
	latency    time.Duration
}

// NewMockStore starts a mock store. Close it when done.
func NewMockStore() *MockStore {
	m := &MockStore{
		tables:   make(map[string]*mockTable),
		failures: make(map[string]*failureRule),
		calls:    make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/tables", m.listTables)
	mux.HandleFunc("GET /api/v1/selection", m.getSelection)
	mux.HandleFunc("GET /api/v1/tables/{table}/views", m.listViews)
	mux.HandleFunc("POST /api/v1/tables/{table}/views", m.addView)
	mux.HandleFunc("DELETE /api/v1/tables/{table}/views/{view}", m.deleteView)
	mux.HandleFunc("GET /api/v1/tables/{table}/views/{view}/fields", m.listFields)
	mux.HandleFunc("PUT /api/v1/tables/{table}/views/{view}/filter", m.setFilter)
	mux.HandleFunc("GET /api/v1/tables/{table}/views/{view}/selection", m.selectedRecords)
	mux.HandleFunc("GET /api/v1/tables/{table}/records", m.listRecords)
	mux.HandleFunc("GET /api/v1/tables/{table}/records/{record}", m.getRecord)
	mux.HandleFunc("POST /api/v1/tables/{table}/records/batch_update", m.batchUpdate)

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		m.mu.Lock()
		m.requests++
		m.calls[key]++
		n := m.calls[key]
		rule := m.failures[key]
		latency := m.latency
		m.mu.Unlock()

		if latency > 0 {
			time.Sleep(latency)
		}
		if m.token != "" && r.Header.Get("Authorization") != "Bearer "+m.token {
			writeError(w, http.StatusUnauthorized, 99991663, "invalid access token")
			return
		}
		if rule != nil && m.shouldFail(rule, n) {
			if rule.Delay > 0 {
				time.Sleep(rule.Delay)
			}
			writeError(w, rule.Status, rule.Code, rule.Msg)
			return
		}

		mux.ServeHTTP(w, r)
	}))

	return m
}

// URL returns the server URL, to be used as the client base URL.
func (m *MockStore) URL() string {
	return m.server.URL
}

// Close shuts down the server.
func (m *MockStore) Close() {
	m.server.Close()
}

// RequireToken makes every request without this bearer token fail with 401.
// Call it before the first request.
func (m *MockStore) RequireToken(token string) {
	m.token = token
}

// SetLatency delays every response.
func (m *MockStore) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// AddTable creates an empty table.
func (m *MockStore) AddTable(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[id] = &mockTable{
		id:       id,
		name:     name,
		byID:     make(map[string]*mockRecord),
		selected: make(map[string][]string),
	}
	m.order = append(m.order, id)
}

// AddView adds a view; typ is "grid", "kanban" and so on.
func (m *MockStore) AddView(tableID, id, name, typ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.mustTable(tableID)
	t.views = append(t.views, &MockView{ID: id, Name: name, Type: typ})
}

// AddField adds a field visible in every view.
func (m *MockStore) AddField(tableID, id, name string, typ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.mustTable(tableID)
	t.fields = append(t.fields, MockField{ID: id, Name: name, Type: typ})
}

// AddRecord appends a record.
func (m *MockStore) AddRecord(tableID, id string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.mustTable(tableID)
	rec := &mockRecord{ID: id, Fields: copyFields(fields)}
	t.records = append(t.records, rec)
	t.byID[id] = rec
}

// AddRecords appends n records with ids rec0000, rec0001, ... built by fields.
func (m *MockStore) AddRecords(tableID string, n int, fields func(i int) map[string]any) []string {
	ids := make([]string, n)
	for i := range n {
		ids[i] = fmt.Sprintf("rec%04d", i)
		m.AddRecord(tableID, ids[i], fields(i))
	}
	return ids
}

// Select sets the open table and view and the records selected in that view.
func (m *MockStore) Select(tableID, viewID string, recordIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selection = [2]string{tableID, viewID}
	if t, ok := m.tables[tableID]; ok {
		t.selected[viewID] = append([]string(nil), recordIDs...)
	}
}

// Fail injects failures for calls to method and path (query excluded),
// e.g. Fail("POST", "/api/v1/tables/t1/records/batch_update", ...).
func (m *MockStore) Fail(method, path string, f Failure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.Status == 0 {
		f.Status = http.StatusInternalServerError
	}
	if f.Msg == "" {
		f.Msg = http.StatusText(f.Status)
	}
	m.failures[method+" "+path] = &failureRule{Failure: f}
}

// Record returns a copy of a record's fields.
func (m *MockStore) Record(tableID, id string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[tableID]
	if !ok {
		return nil, false
	}
	rec, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	return copyFields(rec.Fields), true
}

// Views returns a copy of a table's views.
func (m *MockStore) Views(tableID string) []MockView {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[tableID]
	if !ok {
		return nil
	}
	out := make([]MockView, len(t.views))
	for i, v := range t.views {
		out[i] = *v
	}
	return out
}

// UpdateBatches returns the record ids of every accepted batch update, in order.
func (m *MockStore) UpdateBatches(tableID string) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[tableID]
	if !ok {
		return nil
	}
	out := make([][]string, len(t.updates))
	copy(out, t.updates)
	return out
}

// Calls returns how many requests hit method and path.
func (m *MockStore) Calls(method, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method+" "+path]
}

// RequestCount returns the total number of requests.
func (m *MockStore) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

func (m *MockStore) shouldFail(rule *failureRule, n int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rule.Nth > 0 {
		return n == rule.Nth
	}
	if rule.Times > 0 && rule.hits >= rule.Times {
		return false
	}
	rule.hits++
	return true
}

// mustTable panics on unknown tables; callers are test setup code.
func (m *MockStore) mustTable(id string) *mockTable {
	t, ok := m.tables[id]
	if !ok {
		panic("testutil: unknown table " + id)
	}
	return t
}

func (m *MockStore) table(w http.ResponseWriter, r *http.Request) (*mockTable, bool) {
	t, ok := m.tables[r.PathValue("table")]
	if !ok {
		writeError(w, http.StatusNotFound, 1254041, "table not found")
	}
	return t, ok
}

func (t *mockTable) view(w http.ResponseWriter, r *http.Request) (*MockView, int, bool) {
	id := r.PathValue("view")
	for i, v := range t.views {
		if v.ID == id {
			return v, i, true
		}
	}
	writeError(w, http.StatusNotFound, 1254042, "view not found")
	return nil, -1, false
}

func (m *MockStore) listTables(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]map[string]string, 0, len(m.order))
	for _, id := range m.order {
		items = append(items, map[string]string{"table_id": id, "name": m.tables[id].name})
	}
	writeData(w, map[string]any{"items": items})
}

func (m *MockStore) getSelection(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	writeData(w, map[string]string{"table_id": m.selection[0], "view_id": m.selection[1]})
}

func (m *MockStore) listViews(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.table(w, r)
	if !ok {
		return
	}
	writeData(w, map[string]any{"items": t.views})
}

func (m *MockStore) addView(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, 1254001, err.Error())
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.table(w, r)
	if !ok {
		return
	}
	m.nextViewID++
	v := &MockView{ID: "vew" + strconv.Itoa(m.nextViewID), Name: body.Name, Type: body.Type}
	t.views = append(t.views, v)
	writeData(w, map[string]any{"view": v})
}

func (m *MockStore) deleteView(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.table(w, r)
	if !ok {
		return
	}
	_, i, ok := t.view(w, r)
	if !ok {
		return
	}
	t.views = append(t.views[:i], t.views[i+1:]...)
	writeData(w, nil)
}

func (m *MockStore) listFields(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.table(w, r)
	if !ok {
		return
	}
	if _, _, ok := t.view(w, r); !ok {
		return
	}
	writeData(w, map[string]any{"items": t.fields})
}

func (m *MockStore) setFilter(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, 1254001, err.Error())
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.table(w, r)
	if !ok {
		return
	}
	v, _, ok := t.view(w, r)
	if !ok {
		return
	}
	v.Filter = body
	writeData(w, nil)
}

func (m *MockStore) selectedRecords(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.table(w, r)
	if !ok {
		return
	}
	if _, _, ok := t.view(w, r); !ok {
		return
	}
	ids := t.selected[r.PathValue("view")]
	if ids == nil {
		ids = []string{}
	}
	writeData(w, map[string]any{"record_ids": ids})
}

func (m *MockStore) listRecords(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.table(w, r)
	if !ok {
		return
	}

	size := 500
	if s := r.URL.Query().Get("page_size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, 1254001, "invalid page_size")
			return
		}
		size = n
	}
	start := 0
	if tok := r.URL.Query().Get("page_token"); tok != "" {
		n, err := strconv.Atoi(tok)
		if err != nil || n < 0 || n > len(t.records) {
			writeError(w, http.StatusBadRequest, 1254001, "invalid page_token")
			return
		}
		start = n
	}

	end := min(start+size, len(t.records))
	items := make([]mockRecord, 0, end-start)
	for _, rec := range t.records[start:end] {
		items = append(items, mockRecord{ID: rec.ID, Fields: copyFields(rec.Fields)})
	}

	data := map[string]any{
		"items":    items,
		"total":    len(t.records),
		"has_more": end < len(t.records),
	}
	if end < len(t.records) {
		data["page_token"] = strconv.Itoa(end)
	}
	writeData(w, data)
}

func (m *MockStore) getRecord(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.table(w, r)
	if !ok {
		return
	}
	rec, ok := t.byID[r.PathValue("record")]
	if !ok {
		writeError(w, http.StatusNotFound, 1254043, "record not found")
		return
	}
	writeData(w, map[string]any{"record": mockRecord{ID: rec.ID, Fields: copyFields(rec.Fields)}})
}

func (m *MockStore) batchUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Records []mockRecord `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, 1254001, err.Error())
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.table(w, r)
	if !ok {
		return
	}
	for _, rec := range body.Records {
		if _, ok := t.byID[rec.ID]; !ok {
			writeError(w, http.StatusBadRequest, 1254043, "record not found: "+rec.ID)
			return
		}
	}

	ids := make([]string, len(body.Records))
	for i, rec := range body.Records {
		stored := t.byID[rec.ID]
		for k, v := range rec.Fields {
			if v == nil {
				delete(stored.Fields, k)
				continue
			}
			stored.Fields[k] = v
		}
		ids[i] = rec.ID
	}
	t.updates = append(t.updates, ids)
	writeData(w, map[string]any{"records": len(ids)})
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "msg": "success", "data": data})
}

func writeError(w http.ResponseWriter, status, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg})
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
