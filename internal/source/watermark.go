package source

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Watermark holds the creation time of the newest processed post. It only
// moves forward.
type Watermark struct {
	mu    sync.RWMutex
	value string
	at    time.Time
	set   bool
}

// NewWatermark seeds a watermark from a restored cursor. An empty seed means
// nothing has been processed yet.
func NewWatermark(seed string) (*Watermark, error) {
	w := &Watermark{}
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return w, nil
	}
	at, err := ParseTimestamp(seed)
	if err != nil {
		return nil, fmt.Errorf("parse watermark %q: %w", seed, err)
	}
	w.value, w.at, w.set = seed, at, true
	return w, nil
}

// Value returns the raw timestamp string, or "" when unset.
func (w *Watermark) Value() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.value
}

// Time returns the parsed watermark and whether one is set.
func (w *Watermark) Time() (time.Time, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.at, w.set
}

// Since returns the lower bound for the next search. The search filter is
// inclusive, so the bound is one millisecond past the watermark.
func (w *Watermark) Since() (string, bool) {
	at, ok := w.Time()
	if !ok {
		return "", false
	}
	return FormatTimestamp(at.Truncate(time.Millisecond).Add(time.Millisecond)), true
}

// AdvanceTo moves the watermark to ts if ts is newer. It reports whether the
// watermark changed.
func (w *Watermark) AdvanceTo(ts string) bool {
	at, err := ParseTimestamp(ts)
	if err != nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.set && !at.After(w.at) {
		return false
	}
	w.value, w.at, w.set = ts, at, true
	return true
}
