package recovery

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/vietddude/corpus/internal/core/domain"
)

// Entry is one recorded failure.
type Entry struct {
	Message  string
	Category domain.ErrorCategory
	Context  map[string]any
	Stack    string
	At       time.Time
}

// ErrorLog keeps the most recent failures in a fixed-size ring; the
// oldest entries are evicted first. Safe for concurrent use.
type ErrorLog struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

// DefaultErrorLogSize bounds the ring when no size is given.
const DefaultErrorLogSize = 256

// NewErrorLog creates a log holding at most max entries.
func NewErrorLog(max int) *ErrorLog {
	if max <= 0 {
		max = DefaultErrorLogSize
	}
	return &ErrorLog{
		entries: make([]Entry, 0, max),
		max:     max,
	}
}

// Record appends an entry, evicting the oldest when full.
func (l *ErrorLog) Record(category domain.ErrorCategory, message string, context map[string]any) {
	l.append(Entry{
		Message:  message,
		Category: category,
		Context:  context,
		At:       time.Now(),
	})
}

// RecordError appends err with its category and a captured stack.
func (l *ErrorLog) RecordError(err error, context map[string]any) {
	if err == nil {
		return
	}
	l.append(Entry{
		Message:  err.Error(),
		Category: domain.CategoryOf(err),
		Context:  context,
		Stack:    string(debug.Stack()),
		At:       time.Now(),
	})
}

func (l *ErrorLog) append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
	if len(l.entries) > l.max {
		l.entries = l.entries[1:]
	}
}

// Len returns the number of retained entries.
func (l *ErrorLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a copy of the retained entries, oldest first.
func (l *ErrorLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
