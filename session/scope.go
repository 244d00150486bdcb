package session

import "sync"

// Scope collects release functions (event unsubscribes, timers, ...) that must
// run together. Release runs them in reverse order of registration.
type Scope struct {
	mu       sync.Mutex
	fns      []func()
	released bool
}

// NewScope returns an empty scope.
func NewScope() *Scope {
	return &Scope{}
}

// Add registers release functions. On a released scope they run at once.
func (s *Scope) Add(fns ...func()) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		for _, fn := range fns {
			if fn != nil {
				fn()
			}
		}
		return
	}
	for _, fn := range fns {
		if fn != nil {
			s.fns = append(s.fns, fn)
		}
	}
	s.mu.Unlock()
}

// Release runs every registered function once. Later calls do nothing.
func (s *Scope) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	fns := s.fns
	s.fns = nil
	s.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// Len returns the number of pending release functions.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}
