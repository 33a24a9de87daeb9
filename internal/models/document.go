// Package models defines core data structures for documents, chunks, jobs, and search.
package models

import (
	"time"

	pgvector "github.com/pgvector/pgvector-go"
)

// Document is one ingested file. Apart from Pages, which is recorded once the
// page stream finishes, rows do not change after creation. Each document owns
// its chunks exclusively; deleting a document cascades to its chunks.
type Document struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	SHA256      string    `json:"sha256"`
	StoragePath string    `json:"storage_path"`
	Pages       *int      `json:"pages,omitempty"` // only set for paginated formats
	CreatedAt   time.Time `json:"created_at"`
}

// Chunk is one fixed-size window of a document's extracted text together with
// its embedding. ChunkIndex values are contiguous per document, assigned in the
// order extraction produced the text.
type Chunk struct {
	ID         int64           `json:"id"`
	DocID      string          `json:"doc_id"`
	ChunkIndex int             `json:"chunk_index"`
	Content    string          `json:"content"`
	Embedding  pgvector.Vector `json:"-"`
}
