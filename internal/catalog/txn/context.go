package txn

import (
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/corpus/internal/core/domain"
)

// Context is one transaction's in-memory state. Created and mutated by
// the Coordinator only; a context must not be shared across concurrent
// flows.
type Context struct {
	ID         string
	Status     domain.TxStatus
	Log        *OperationLog
	Savepoints *SavepointStore
	StartedAt  time.Time
	FinishedAt time.Time // zero until terminal
	Metadata   map[string]any

	ParentID string // empty for roots
	Level    int    // 0 for roots
	IsRoot   bool
}

func newContext(parent *Context, metadata map[string]any) *Context {
	c := &Context{
		ID:         uuid.New().String(),
		Status:     domain.TxPending,
		Log:        NewOperationLog(),
		Savepoints: NewSavepointStore(),
		StartedAt:  time.Now(),
		Metadata:   metadata,
		IsRoot:     parent == nil,
	}
	if parent != nil {
		c.ParentID = parent.ID
		c.Level = parent.Level + 1
	}
	return c
}

// finish fixes the terminal status and stamps FinishedAt.
func (c *Context) finish(status domain.TxStatus) {
	c.Status = status
	c.FinishedAt = time.Now()
}

// age is how long ago the context was opened.
func (c *Context) age(now time.Time) time.Duration {
	return now.Sub(c.StartedAt)
}
