package txn

import (
	"time"

	"github.com/vietddude/corpus/internal/core/domain"
)

// OperationLog is the append-only list of operations a transaction has
// executed. Not safe for concurrent use: a context is owned by the one
// logical flow that opened it.
type OperationLog struct {
	ops []domain.Operation
}

// NewOperationLog creates an empty log.
func NewOperationLog() *OperationLog {
	return &OperationLog{}
}

// Record appends a change with the current timestamp.
func (l *OperationLog) Record(change domain.Change) domain.Operation {
	op := domain.Operation{Change: change, RecordedAt: time.Now()}
	l.ops = append(l.ops, op)
	return op
}

// Append copies already-timestamped operations onto the log. Used when
// a nested transaction merges into its parent.
func (l *OperationLog) Append(ops []domain.Operation) {
	l.ops = append(l.ops, ops...)
}

// Len returns the number of recorded operations.
func (l *OperationLog) Len() int { return len(l.ops) }

// Operations returns a copy of the log in recording order.
func (l *OperationLog) Operations() []domain.Operation {
	out := make([]domain.Operation, len(l.ops))
	copy(out, l.ops)
	return out
}

// Snapshot captures the current log for a savepoint.
func (l *OperationLog) Snapshot() []domain.Operation {
	return l.Operations()
}

// Restore discards everything appended after the snapshot was taken
// and resets the log to it.
func (l *OperationLog) Restore(snapshot []domain.Operation) {
	l.ops = make([]domain.Operation, len(snapshot))
	copy(l.ops, snapshot)
}

// Reset empties the log.
func (l *OperationLog) Reset() {
	l.ops = nil
}
