// Package notify provides an explicitly owned notification queue for
// user-facing status messages.
//
// The queue is passed by reference to the components that produce
// notifications (transport state changes, translator failures) and to the
// consumers that render them, so no global mutable notification state is
// shared between instances.
package notify

import (
	"sync"
	"time"
)

// Level classifies a notification's severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is one user-facing status message.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Queue retains at most maxSize notifications and evicts entries older than
// maxAge. Entries that exceed either limit are evicted automatically on every
// [Queue.Push].
//
// All methods are safe for concurrent use.
type Queue struct {
	mu      sync.RWMutex
	entries []Notification
	maxSize int
	maxAge  time.Duration
	now     func() time.Time
}

// NewQueue creates a queue bounded by maxSize entries and maxAge.
func NewQueue(maxSize int, maxAge time.Duration) *Queue {
	return &Queue{
		entries: make([]Notification, 0, maxSize),
		maxSize: maxSize,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Push appends a notification and evicts entries that exceed the configured
// maximum size or age.
func (q *Queue) Push(level Level, message string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, Notification{
		Level:   level,
		Message: message,
		Time:    q.now(),
	})
	q.evict()
}

// Recent returns up to maxEntries notifications within the age window, in
// chronological order (oldest first).
func (q *Queue) Recent(maxEntries int) []Notification {
	q.mu.RLock()
	defer q.mu.RUnlock()

	cutoff := q.now().Add(-q.maxAge)
	result := make([]Notification, 0, maxEntries)

	for i := len(q.entries) - 1; i >= 0 && len(result) < maxEntries; i-- {
		e := q.entries[i]
		if e.Time.Before(cutoff) {
			continue
		}
		result = append(result, e)
	}

	// Reverse to chronological order.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

// evict removes entries that are too old or exceed maxSize.
// Must be called with q.mu held.
func (q *Queue) evict() {
	cutoff := q.now().Add(-q.maxAge)

	start := 0
	for start < len(q.entries) && q.entries[start].Time.Before(cutoff) {
		start++
	}

	keep := q.entries[start:]
	if len(keep) > q.maxSize {
		keep = keep[len(keep)-q.maxSize:]
	}

	// Copy to a fresh slice so evicted entries can be garbage collected.
	if start > 0 || len(keep) < len(q.entries) {
		fresh := make([]Notification, len(keep), q.maxSize)
		copy(fresh, keep)
		q.entries = fresh
	}
}
