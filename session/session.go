// Package session tracks which table, view and fields a job works on.
//
// A Session loads tables, then the grid views of the selected table, then the
// fields of the selected view, calling the registered hooks around each step.
// Field maps translate between field names and ids for the current view.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ocyss/asyncpool/records"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoTable = errors.New("session: no table selected")
	ErrNoView  = errors.New("session: no view selected")
	ErrClosed  = errors.New("session: closed")
)

// Host is the metadata API a session reads from. *records.Client implements it.
type Host interface {
	TableMetas(ctx context.Context) ([]records.TableMeta, error)
	ViewMetas(ctx context.Context, tableID string) ([]records.ViewMeta, error)
	FieldMetas(ctx context.Context, tableID, viewID string) ([]records.FieldMeta, error)
	Selection(ctx context.Context) (records.Selection, error)
}

// Watcher is implemented by hosts that push field changes. onChange is called
// whenever a field of the table is added, removed or modified; the returned
// function stops the subscription.
type Watcher interface {
	WatchFields(ctx context.Context, tableID string, onChange func()) (stop func(), err error)
}

// FieldMaps index the fields of the current view.
type FieldMaps struct {
	IDToName map[string]string
	IDToType map[string]records.FieldType
	NameToID map[string]string
}

func buildFieldMaps(fields []records.FieldMeta) FieldMaps {
	m := FieldMaps{
		IDToName: make(map[string]string, len(fields)),
		IDToType: make(map[string]records.FieldType, len(fields)),
		NameToID: make(map[string]string, len(fields)),
	}
	for _, f := range fields {
		m.IDToName[f.ID] = f.Name
		m.IDToType[f.ID] = f.Type
		m.NameToID[f.Name] = f.ID
	}
	return m
}

// Session holds the table, view and field state of one job.
// It is safe for concurrent use.
type Session struct {
	host   Host
	ctx    context.Context
	logger zerolog.Logger

	mu      sync.RWMutex
	tables  []records.TableMeta
	tableID string
	views   []records.ViewMeta
	viewID  string
	fields  []records.FieldMeta
	maps    FieldMaps
	hooks   [numHooks]Hook
	onField FieldHook

	// tableScope holds subscriptions tied to the selected table.
	tableScope *Scope
	closed     bool
}

// Option configures a Session.
type Option func(*Session)

// WithContext sets the context used by background refreshes triggered by a
// Watcher. Defaults to context.Background().
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		if ctx != nil {
			s.ctx = ctx
		}
	}
}

// WithLogger sets the logger. Defaults to the global zerolog logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// New creates an empty session. Call Refresh or SelectTable to load state.
func New(host Host, opts ...Option) *Session {
	if host == nil {
		panic("session host cannot be nil")
	}
	s := &Session{
		host:       host,
		ctx:        context.Background(),
		logger:     log.Logger,
		maps:       buildFieldMaps(nil),
		tableScope: NewScope(),
	}
	for i := range s.hooks {
		s.hooks[i] = noopHook
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = s.logger.With().Str("component", "session").Logger()
	return s
}

// Refresh reloads the table list and the current selection, then selects the
// selected table (which loads its views and fields).
func (s *Session) Refresh(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := s.call(ctx, BeforeGetTable); err != nil {
		return err
	}

	var tables []records.TableMeta
	var sel records.Selection
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tables, err = s.host.TableMetas(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		sel, err = s.host.Selection(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load tables: %w", err)
	}

	s.mu.Lock()
	s.tables = tables
	s.mu.Unlock()

	if sel.TableID != "" {
		if err := s.SelectTable(ctx, sel.TableID); err != nil {
			return err
		}
		if sel.ViewID != "" && sel.ViewID != s.ViewID() && s.hasView(sel.ViewID) {
			if err := s.SelectView(ctx, sel.ViewID); err != nil {
				return err
			}
		}
	}

	return s.call(ctx, GetTable)
}

// SelectTable makes tableID current and loads its grid views; the first grid
// view becomes the current view. Subscriptions of the previous table are
// released. When the host is a Watcher, field changes reload the views.
func (s *Session) SelectTable(ctx context.Context, tableID string) error {
	if tableID == "" {
		return ErrNoTable
	}
	if s.isClosed() {
		return ErrClosed
	}

	scope := NewScope()
	s.mu.Lock()
	prev := s.tableScope
	s.tableScope = scope
	s.tableID = tableID
	s.views, s.viewID, s.fields = nil, "", nil
	s.maps = buildFieldMaps(nil)
	s.mu.Unlock()
	prev.Release()

	if w, ok := s.host.(Watcher); ok {
		stop, err := w.WatchFields(s.ctx, tableID, func() {
			if err := s.loadViews(s.ctx); err != nil {
				s.logger.Warn().Err(err).Str("table", tableID).Msg("Reloading views after field change failed")
			}
		})
		if err != nil {
			return fmt.Errorf("watch fields of %s: %w", tableID, err)
		}
		scope.Add(stop)
	}

	s.logger.Debug().Str("table", tableID).Msg("Table selected")
	return s.loadViews(ctx)
}

func (s *Session) loadViews(ctx context.Context) error {
	if err := s.call(ctx, BeforeGetView); err != nil {
		return err
	}

	tableID := s.TableID()
	if tableID == "" {
		return ErrNoTable
	}
	views, err := s.host.ViewMetas(ctx, tableID)
	if err != nil {
		return fmt.Errorf("load views of %s: %w", tableID, err)
	}

	grid := make([]records.ViewMeta, 0, len(views))
	for _, v := range views {
		if v.Type == records.ViewGrid {
			grid = append(grid, v)
		}
	}

	s.mu.Lock()
	s.views = grid
	s.mu.Unlock()

	if len(grid) > 0 {
		if err := s.SelectView(ctx, grid[0].ID); err != nil {
			return err
		}
	}
	return s.call(ctx, GetView)
}

// SelectView makes viewID current and loads its fields. An empty viewID
// selects the first grid view of the current table.
func (s *Session) SelectView(ctx context.Context, viewID string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if s.TableID() == "" {
		return ErrNoTable
	}
	if viewID == "" {
		views := s.Views()
		if len(views) == 0 {
			return ErrNoView
		}
		viewID = views[0].ID
	}

	s.mu.Lock()
	s.viewID = viewID
	s.mu.Unlock()

	return s.loadFields(ctx)
}

func (s *Session) loadFields(ctx context.Context) error {
	if err := s.call(ctx, BeforeGetField); err != nil {
		return err
	}

	tableID, viewID := s.TableID(), s.ViewID()
	if tableID == "" || viewID == "" {
		return ErrNoView
	}
	fields, err := s.host.FieldMetas(ctx, tableID, viewID)
	if err != nil {
		return fmt.Errorf("load fields of %s/%s: %w", tableID, viewID, err)
	}

	s.mu.Lock()
	s.fields = fields
	s.maps = buildFieldMaps(fields)
	onField := s.onField
	s.mu.Unlock()

	if err := s.call(ctx, GetField); err != nil {
		return err
	}

	if onField != nil {
		g, gctx := errgroup.WithContext(ctx)
		for _, f := range fields {
			g.Go(func() error { return onField(gctx, f) })
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("fieldTraverse hook: %w", err)
		}
	}

	s.logger.Debug().
		Str("table", tableID).
		Str("view", viewID).
		Int("fields", len(fields)).
		Msg("Fields loaded")
	return nil
}

func (s *Session) TableID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tableID
}

func (s *Session) ViewID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewID
}

func (s *Session) Tables() []records.TableMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tables)
}

// Views returns the grid views of the current table.
func (s *Session) Views() []records.ViewMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.views)
}

// Fields returns the fields of the current view, in view order.
func (s *Session) Fields() []records.FieldMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.fields)
}

// FieldID returns the id of the field called name.
func (s *Session) FieldID(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.maps.NameToID[name]
	return id, ok
}

// FieldName returns the name of field id.
func (s *Session) FieldName(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.maps.IDToName[id]
	return name, ok
}

// FieldType returns the type of field id.
func (s *Session) FieldType(id string) (records.FieldType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.maps.IDToType[id]
	return t, ok
}

// PrimaryField returns the primary field of the current view, falling back
// to the first field.
func (s *Session) PrimaryField() (records.FieldMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.fields {
		if f.IsPrimary {
			return f, true
		}
	}
	if len(s.fields) > 0 {
		return s.fields[0], true
	}
	return records.FieldMeta{}, false
}

// FilterFields returns the fields whose type is one of types, or every field
// when types is empty.
func (s *Session) FilterFields(types ...records.FieldType) []records.FieldMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(types) == 0 {
		return slices.Clone(s.fields)
	}
	var out []records.FieldMeta
	for _, f := range s.fields {
		if slices.Contains(types, f.Type) {
			out = append(out, f)
		}
	}
	return out
}

// Close releases every subscription and clears the state.
// Later selections fail with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	scope := s.tableScope
	s.tables, s.views, s.fields = nil, nil, nil
	s.tableID, s.viewID = "", ""
	s.maps = buildFieldMaps(nil)
	s.mu.Unlock()

	scope.Release()
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) hasView(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.ContainsFunc(s.views, func(v records.ViewMeta) bool { return v.ID == id })
}
