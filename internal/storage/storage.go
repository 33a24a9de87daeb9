// Package storage persists documents, chunks, and jobs.
package storage

import (
	"context"

	"github.com/electrohub/askveeva/internal/models"
)

// Store defines persistence operations for documents, chunks, and ingestion jobs.
// Job status transitions are monotonic: queued -> running -> done|error; the
// implementations reject backward transitions.
type Store interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	// SetDocumentPages records a paginated document's page count, known only
	// after its pages have been streamed.
	SetDocumentPages(ctx context.Context, id string, pages int) error
	// DeleteDocument removes a document and, by cascade, all of its chunks.
	DeleteDocument(ctx context.Context, id string) error

	// InsertChunks inserts all chunks in one multi-row statement.
	InsertChunks(ctx context.Context, chunks []*models.Chunk) error
	GetChunksByDocID(ctx context.Context, docID string) ([]*models.Chunk, error)
	GetChunkByIndex(ctx context.Context, docID string, index int) (*models.Chunk, error)
	// SearchChunks returns the chunks nearest to embedding by cosine distance,
	// with Score set to cosine similarity.
	SearchChunks(ctx context.Context, embedding []float32, limit int) ([]*models.ChunkMatch, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	MarkJobRunning(ctx context.Context, id string) error
	SetJobTotal(ctx context.Context, id string, total int) error
	// UpdateJobProgress commits a processed-files counter; values lower than
	// the current one are ignored so progress is non-decreasing.
	UpdateJobProgress(ctx context.Context, id string, processed int) error
	MarkJobDone(ctx context.Context, id string, processed int) error
	// MarkJobError is terminal and freezes processed_files at its last value.
	MarkJobError(ctx context.Context, id string, msg string) error

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
	CountJobs(ctx context.Context) (int64, error)

	Close() error
}
