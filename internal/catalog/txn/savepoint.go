package txn

import (
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/corpus/internal/core/domain"
)

// Savepoint is a named checkpoint of a transaction's operation log.
// Rolling back to it restores the log to the captured snapshot;
// releasing it removes the checkpoint without touching the log.
type Savepoint struct {
	ID        string
	Name      string
	TxID      string
	CreatedAt time.Time
	Metadata  map[string]any

	snapshot []domain.Operation
}

// Snapshot returns a copy of the captured operation log.
func (s *Savepoint) Snapshot() []domain.Operation {
	out := make([]domain.Operation, len(s.snapshot))
	copy(out, s.snapshot)
	return out
}

// SavepointStore holds a transaction's savepoints keyed by id.
type SavepointStore struct {
	sps map[string]*Savepoint
}

// NewSavepointStore creates an empty store.
func NewSavepointStore() *SavepointStore {
	return &SavepointStore{sps: make(map[string]*Savepoint)}
}

// Create captures a snapshot under a new savepoint id.
func (st *SavepointStore) Create(txID, name string, snapshot []domain.Operation, metadata map[string]any) *Savepoint {
	sp := &Savepoint{
		ID:        uuid.New().String(),
		Name:      name,
		TxID:      txID,
		CreatedAt: time.Now(),
		Metadata:  metadata,
		snapshot:  snapshot,
	}
	st.sps[sp.ID] = sp
	return sp
}

// Get returns the savepoint or nil.
func (st *SavepointStore) Get(id string) *Savepoint {
	return st.sps[id]
}

// Remove deletes a savepoint, reporting whether it existed.
func (st *SavepointStore) Remove(id string) bool {
	if _, ok := st.sps[id]; !ok {
		return false
	}
	delete(st.sps, id)
	return true
}

// Len returns the number of savepoints held.
func (st *SavepointStore) Len() int { return len(st.sps) }

// MergeInto copies every savepoint into the parent store. Ids are
// UUIDs, so collisions cannot occur.
func (st *SavepointStore) MergeInto(parent *SavepointStore) {
	for id, sp := range st.sps {
		parent.sps[id] = sp
	}
}

// Clear drops all savepoints.
func (st *SavepointStore) Clear() {
	st.sps = make(map[string]*Savepoint)
}
