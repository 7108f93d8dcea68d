package domain

import "time"

// Collection groups documents that share one embedding space in the
// vector store.
type Collection struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Document is a single ingested source inside a collection.
type Document struct {
	ID           string
	CollectionID string
	Title        string
	SourceURL    string
	Content      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Chunk is a slice of a document. Its embedding lives in the vector
// store under the same id; the catalog row is the source of truth.
type Chunk struct {
	ID           string
	DocumentID   string
	CollectionID string
	Seq          int
	Content      string
	TokenCount   int
	CreatedAt    time.Time
}
