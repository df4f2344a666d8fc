package fetcher

import "sync"

// ErrorSlot latches the most recent background failure. Reading does not
// clear it; only Reset does.
type ErrorSlot struct {
	mu  sync.RWMutex
	err error
}

// Record stores err, replacing any earlier one. A nil err is ignored.
func (s *ErrorSlot) Record(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Err returns the latched error, if any.
func (s *ErrorSlot) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Reset clears the latched error.
func (s *ErrorSlot) Reset() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}
