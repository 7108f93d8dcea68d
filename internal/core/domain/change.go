package domain

import "time"

// Action is the kind of mutation a transaction records.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Kind identifies which catalog table a change touches.
type Kind string

const (
	KindCollection Kind = "collection"
	KindDocument   Kind = "document"
	KindChunk      Kind = "chunk"
)

// Change is the closed set of catalog mutations a transaction can
// record. Each variant carries its own typed payload and before-image;
// consumers dispatch with a type switch over the three variants.
type Change interface {
	Kind() Kind
	Action() Action
	TargetID() string

	// sealed keeps the variant set closed to this package.
	sealed()
}

// CollectionChange mutates a collection row.
// Data is the payload for create/update. Before is the row image
// captured before update/delete; rollback restores or re-inserts it.
type CollectionChange struct {
	Act    Action
	ID     string
	Data   *Collection
	Before *Collection
}

func (c CollectionChange) Kind() Kind       { return KindCollection }
func (c CollectionChange) Action() Action   { return c.Act }
func (c CollectionChange) TargetID() string { return c.ID }
func (CollectionChange) sealed()            {}

// DocumentChange mutates a document row.
type DocumentChange struct {
	Act    Action
	ID     string
	Data   *Document
	Before *Document
}

func (c DocumentChange) Kind() Kind       { return KindDocument }
func (c DocumentChange) Action() Action   { return c.Act }
func (c DocumentChange) TargetID() string { return c.ID }
func (DocumentChange) sealed()            {}

// ChunkChange mutates a chunk row.
type ChunkChange struct {
	Act    Action
	ID     string
	Data   *Chunk
	Before *Chunk
}

func (c ChunkChange) Kind() Kind       { return KindChunk }
func (c ChunkChange) Action() Action   { return c.Act }
func (c ChunkChange) TargetID() string { return c.ID }
func (ChunkChange) sealed()            {}

// Operation is one recorded change plus when it was recorded.
// Immutable once appended to a transaction's operation log.
type Operation struct {
	Change     Change
	RecordedAt time.Time
}

// TxStatus is the lifecycle state of a transaction context.
type TxStatus string

const (
	TxPending    TxStatus = "pending"
	TxActive     TxStatus = "active"
	TxCommitted  TxStatus = "committed"
	TxRolledBack TxStatus = "rolled_back"
	TxFailed     TxStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s TxStatus) Terminal() bool {
	return s == TxCommitted || s == TxRolledBack || s == TxFailed
}
