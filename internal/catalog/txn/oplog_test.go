package txn

import (
	"testing"
	"time"

	"github.com/vietddude/corpus/internal/core/domain"
)

func chunkCreate(id string) domain.Change {
	return domain.ChunkChange{
		Act:  domain.ActionCreate,
		ID:   id,
		Data: &domain.Chunk{ID: id},
	}
}

func TestOperationLog_RecordAndRestore(t *testing.T) {
	l := NewOperationLog()

	l.Record(chunkCreate("a"))
	l.Record(chunkCreate("b"))
	snap := l.Snapshot()

	l.Record(chunkCreate("c"))
	if l.Len() != 3 {
		t.Fatalf("len = %d, want 3", l.Len())
	}

	l.Restore(snap)
	if l.Len() != 2 {
		t.Fatalf("len = %d, want 2 after restore", l.Len())
	}

	ops := l.Operations()
	if ops[0].Change.TargetID() != "a" || ops[1].Change.TargetID() != "b" {
		t.Errorf("restored order = %s, %s, want a, b",
			ops[0].Change.TargetID(), ops[1].Change.TargetID())
	}

	// The returned slice is a copy; mutating it must not touch the log
	ops[0] = domain.Operation{}
	if l.Operations()[0].Change == nil {
		t.Error("Operations must return a copy")
	}
}

func TestOperationLog_AppendAndReset(t *testing.T) {
	parent := NewOperationLog()
	parent.Record(chunkCreate("a"))

	child := NewOperationLog()
	child.Record(chunkCreate("b"))
	child.Record(chunkCreate("c"))

	parent.Append(child.Operations())
	if parent.Len() != 3 {
		t.Fatalf("len = %d, want 3 after append", parent.Len())
	}

	parent.Reset()
	if parent.Len() != 0 {
		t.Errorf("len = %d, want 0 after reset", parent.Len())
	}
}

func TestRegistry_Sweep(t *testing.T) {
	r := NewRegistry()

	terminal := newContext(nil, nil)
	terminal.finish(domain.TxCommitted)
	terminal.StartedAt = time.Now().Add(-time.Hour)
	r.Register(terminal)

	active := newContext(nil, nil)
	active.Status = domain.TxActive
	active.StartedAt = time.Now().Add(-time.Hour)
	r.Register(active)

	recent := newContext(nil, nil)
	recent.finish(domain.TxRolledBack)
	r.Register(recent)

	if removed := r.Sweep(30 * time.Minute); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if r.Lookup(terminal.ID) != nil {
		t.Error("old terminal context should be removed")
	}
	if r.Lookup(active.ID) == nil {
		t.Error("active context must survive regardless of age")
	}
	if r.Lookup(recent.ID) == nil {
		t.Error("recent terminal context should survive")
	}
	if r.Len() != 2 {
		t.Errorf("len = %d, want 2", r.Len())
	}
}

func TestSavepointStore_MergeInto(t *testing.T) {
	child := NewSavepointStore()
	sp := child.Create("tx-1", "sp1", nil, nil)

	parent := NewSavepointStore()
	parent.Create("tx-0", "sp0", nil, nil)

	child.MergeInto(parent)
	if parent.Len() != 2 {
		t.Fatalf("parent len = %d, want 2", parent.Len())
	}
	if parent.Get(sp.ID) == nil {
		t.Error("merged savepoint should be reachable in the parent")
	}
}
