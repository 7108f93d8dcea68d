package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vietddude/corpus/internal/core/domain"
	"github.com/vietddude/corpus/internal/infra/storage"
)

// MemoryStorage implements storage.Relational in memory. Transactions
// work on a cloned state that replaces the live one only on success,
// so fn errors leave no trace. Used by tests and local wiring.
type MemoryStorage struct {
	mu    sync.RWMutex
	state *state
}

type state struct {
	collections map[string]domain.Collection
	documents   map[string]domain.Document
	chunks      map[string]domain.Chunk
	chunkMeta   map[string]string // chunk id -> collection id
	chunkIndex  map[string]string // chunk id -> collection id
}

func newState() *state {
	return &state{
		collections: make(map[string]domain.Collection),
		documents:   make(map[string]domain.Document),
		chunks:      make(map[string]domain.Chunk),
		chunkMeta:   make(map[string]string),
		chunkIndex:  make(map[string]string),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.collections {
		c.collections[k] = v
	}
	for k, v := range s.documents {
		c.documents[k] = v
	}
	for k, v := range s.chunks {
		c.chunks[k] = v
	}
	for k, v := range s.chunkMeta {
		c.chunkMeta[k] = v
	}
	for k, v := range s.chunkIndex {
		c.chunkIndex[k] = v
	}
	return c
}

// NewMemoryStorage creates an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{state: newState()}
}

func (m *MemoryStorage) Collections() storage.CollectionRepository { return &collectionRepo{m: m} }
func (m *MemoryStorage) Documents() storage.DocumentRepository     { return &documentRepo{m: m} }
func (m *MemoryStorage) Chunks() storage.ChunkRepository           { return &chunkRepo{m: m} }
func (m *MemoryStorage) ChunkMeta() storage.ChunkMetaRepository    { return &chunkMetaRepo{m: m} }
func (m *MemoryStorage) ChunkIndex() storage.ChunkIndexRepository  { return &chunkIndexRepo{m: m} }

// SetChunkMeta seeds a chunk-meta row (tests).
func (m *MemoryStorage) SetChunkMeta(chunkID, collectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.chunkMeta[chunkID] = collectionID
	m.state.chunkIndex[chunkID] = collectionID
}

// Counts returns row counts per table (tests).
func (m *MemoryStorage) Counts() (collections, documents, chunks int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.collections), len(m.state.documents), len(m.state.chunks)
}

// RunInTransaction clones the state, runs fn against the clone, and
// swaps it in on success. The store is locked for the duration, so
// transactions serialize.
func (m *MemoryStorage) RunInTransaction(
	ctx context.Context,
	fn func(ctx context.Context, tx storage.Tx) error,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	uow := &memTx{work: work, savepoints: make(map[string]*state)}
	if err := fn(ctx, uow); err != nil {
		return err
	}
	m.state = uow.work
	return nil
}

// memTx is the transactional view over the cloned state.
type memTx struct {
	work       *state
	savepoints map[string]*state
	seq        int
}

func (t *memTx) Collections() storage.CollectionRepository { return &collectionRepo{tx: t} }
func (t *memTx) Documents() storage.DocumentRepository     { return &documentRepo{tx: t} }
func (t *memTx) Chunks() storage.ChunkRepository           { return &chunkRepo{tx: t} }
func (t *memTx) ChunkMeta() storage.ChunkMetaRepository    { return &chunkMetaRepo{tx: t} }
func (t *memTx) ChunkIndex() storage.ChunkIndexRepository  { return &chunkIndexRepo{tx: t} }

func (t *memTx) CreateSavepoint(ctx context.Context, name string) (string, error) {
	t.seq++
	id := fmt.Sprintf("sp_%d", t.seq)
	t.savepoints[id] = t.work.clone()
	return id, nil
}

func (t *memTx) RollbackToSavepoint(ctx context.Context, id string) error {
	snap, ok := t.savepoints[id]
	if !ok {
		return fmt.Errorf("savepoint %s does not exist", id)
	}
	t.work = snap.clone()
	return nil
}

func (t *memTx) ReleaseSavepoint(ctx context.Context, id string) error {
	if _, ok := t.savepoints[id]; !ok {
		return fmt.Errorf("savepoint %s does not exist", id)
	}
	delete(t.savepoints, id)
	return nil
}

// access resolves the state a repo call should touch: the transaction
// clone when inside one, the live state (under lock) otherwise.
type accessor struct {
	m  *MemoryStorage
	tx *memTx
}

func (a accessor) read(fn func(s *state)) {
	if a.tx != nil {
		fn(a.tx.work)
		return
	}
	a.m.mu.RLock()
	defer a.m.mu.RUnlock()
	fn(a.m.state)
}

func (a accessor) write(fn func(s *state)) {
	if a.tx != nil {
		fn(a.tx.work)
		return
	}
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	fn(a.m.state)
}

// -----------------------------------------------------------------------------
// Collection Repository
// -----------------------------------------------------------------------------

type collectionRepo struct {
	m  *MemoryStorage
	tx *memTx
}

func (r *collectionRepo) acc() accessor { return accessor{m: r.m, tx: r.tx} }

func (r *collectionRepo) GetByID(ctx context.Context, id string) (*domain.Collection, error) {
	var out *domain.Collection
	r.acc().read(func(s *state) {
		if c, ok := s.collections[id]; ok {
			cp := c
			out = &cp
		}
	})
	return out, nil
}

func (r *collectionRepo) Save(ctx context.Context, c *domain.Collection) error {
	r.acc().write(func(s *state) {
		s.collections[c.ID] = *c
	})
	return nil
}

func (r *collectionRepo) Delete(ctx context.Context, id string) error {
	r.acc().write(func(s *state) {
		delete(s.collections, id)
	})
	return nil
}

// -----------------------------------------------------------------------------
// Document Repository
// -----------------------------------------------------------------------------

type documentRepo struct {
	m  *MemoryStorage
	tx *memTx
}

func (r *documentRepo) acc() accessor { return accessor{m: r.m, tx: r.tx} }

func (r *documentRepo) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	var out *domain.Document
	r.acc().read(func(s *state) {
		if d, ok := s.documents[id]; ok {
			cp := d
			out = &cp
		}
	})
	return out, nil
}

func (r *documentRepo) Save(ctx context.Context, d *domain.Document) error {
	r.acc().write(func(s *state) {
		s.documents[d.ID] = *d
	})
	return nil
}

func (r *documentRepo) HardDelete(ctx context.Context, id string) error {
	r.acc().write(func(s *state) {
		delete(s.documents, id)
	})
	return nil
}

func (r *documentRepo) ListByCollection(
	ctx context.Context,
	collectionID string,
) ([]*domain.Document, error) {
	var out []*domain.Document
	r.acc().read(func(s *state) {
		for _, d := range s.documents {
			if d.CollectionID == collectionID {
				cp := d
				out = append(out, &cp)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -----------------------------------------------------------------------------
// Chunk Repository
// -----------------------------------------------------------------------------

type chunkRepo struct {
	m  *MemoryStorage
	tx *memTx
}

func (r *chunkRepo) acc() accessor { return accessor{m: r.m, tx: r.tx} }

func (r *chunkRepo) GetByID(ctx context.Context, id string) (*domain.Chunk, error) {
	var out *domain.Chunk
	r.acc().read(func(s *state) {
		if c, ok := s.chunks[id]; ok {
			cp := c
			out = &cp
		}
	})
	return out, nil
}

func (r *chunkRepo) Save(ctx context.Context, c *domain.Chunk) error {
	r.acc().write(func(s *state) {
		s.chunks[c.ID] = *c
	})
	return nil
}

func (r *chunkRepo) Delete(ctx context.Context, id string) error {
	r.acc().write(func(s *state) {
		delete(s.chunks, id)
	})
	return nil
}

func (r *chunkRepo) DeleteByCollection(ctx context.Context, collectionID string) error {
	r.acc().write(func(s *state) {
		for id, c := range s.chunks {
			if c.CollectionID == collectionID {
				delete(s.chunks, id)
			}
		}
	})
	return nil
}

// -----------------------------------------------------------------------------
// Chunk Meta / Full-text Index Repositories
// -----------------------------------------------------------------------------

type chunkMetaRepo struct {
	m  *MemoryStorage
	tx *memTx
}

func (r *chunkMetaRepo) DeleteByCollection(ctx context.Context, collectionID string) error {
	accessor{m: r.m, tx: r.tx}.write(func(s *state) {
		for id, cid := range s.chunkMeta {
			if cid == collectionID {
				delete(s.chunkMeta, id)
			}
		}
	})
	return nil
}

type chunkIndexRepo struct {
	m  *MemoryStorage
	tx *memTx
}

func (r *chunkIndexRepo) DeleteByCollection(ctx context.Context, collectionID string) error {
	accessor{m: r.m, tx: r.tx}.write(func(s *state) {
		for id, cid := range s.chunkIndex {
			if cid == collectionID {
				delete(s.chunkIndex, id)
			}
		}
	})
	return nil
}
