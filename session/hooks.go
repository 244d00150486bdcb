package session

import (
	"context"
	"fmt"

	"github.com/ocyss/asyncpool/records"
)

// HookKind names a point in the table → view → field loading sequence.
type HookKind int

const (
	BeforeGetTable HookKind = iota
	GetTable
	BeforeGetView
	GetView
	BeforeGetField
	GetField

	numHooks
)

func (k HookKind) String() string {
	switch k {
	case BeforeGetTable:
		return "beforeGetTable"
	case GetTable:
		return "getTable"
	case BeforeGetView:
		return "beforeGetView"
	case GetView:
		return "getView"
	case BeforeGetField:
		return "beforeGetField"
	case GetField:
		return "getField"
	default:
		return fmt.Sprintf("HookKind(%d)", int(k))
	}
}

// Hook runs at a loading step. An error aborts the step.
type Hook func(ctx context.Context, s *Session) error

// FieldHook runs once per field after the field list is loaded.
type FieldHook func(ctx context.Context, field records.FieldMeta) error

func noopHook(context.Context, *Session) error { return nil }

// On registers the hook for kind, replacing any previous one.
// A nil hook restores the no-op default.
func (s *Session) On(kind HookKind, hook Hook) {
	if kind < 0 || kind >= numHooks {
		panic(fmt.Sprintf("session: unknown hook kind %d", int(kind)))
	}
	if hook == nil {
		hook = noopHook
	}
	s.mu.Lock()
	s.hooks[kind] = hook
	s.mu.Unlock()
}

// OnFieldTraverse registers the per-field hook. Fields are visited concurrently.
func (s *Session) OnFieldTraverse(hook FieldHook) {
	s.mu.Lock()
	s.onField = hook
	s.mu.Unlock()
}

func (s *Session) call(ctx context.Context, kind HookKind) error {
	s.mu.RLock()
	hook := s.hooks[kind]
	s.mu.RUnlock()

	if err := hook(ctx, s); err != nil {
		return fmt.Errorf("%s hook: %w", kind, err)
	}
	return nil
}
