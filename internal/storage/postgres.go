package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/electrohub/askveeva/internal/models"
)

// PostgresStore implements Store using Postgres with the pgvector extension.
type PostgresStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPostgres connects to the database at url, registers pgvector types, and
// initializes the schema. dimensions is the embedding vector width and is baked
// into the chunk table's column type.
func NewPostgres(ctx context.Context, url string, dimensions int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	s := &PostgresStore{pool: pool, dimensions: dimensions}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	// Dimension is config-controlled DDL, not user input.
	schema := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS askv_docs (
		id UUID PRIMARY KEY,
		filename TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size_bytes BIGINT NOT NULL,
		sha256 TEXT NOT NULL,
		storage_path TEXT NOT NULL,
		pages INTEGER,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS askv_chunks (
		id BIGSERIAL PRIMARY KEY,
		doc_id UUID NOT NULL REFERENCES askv_docs(id) ON DELETE CASCADE,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding vector(%d),
		UNIQUE (doc_id, chunk_index)
	);

	CREATE INDEX IF NOT EXISTS idx_askv_chunks_doc_id ON askv_chunks(doc_id);
	CREATE INDEX IF NOT EXISTS idx_askv_chunks_embedding ON askv_chunks
		USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);

	CREATE TABLE IF NOT EXISTS askv_jobs (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		total_files INTEGER NOT NULL DEFAULT 0,
		processed_files INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`, s.dimensions)
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// CreateDocument inserts a document row.
func (s *PostgresStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	doc.CreatedAt = time.Now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO askv_docs (id, filename, content_type, size_bytes, sha256, storage_path, pages, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID, doc.Filename, doc.ContentType, doc.SizeBytes, doc.SHA256, doc.StoragePath, doc.Pages, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument returns a document by ID.
func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, content_type, size_bytes, sha256, storage_path, pages, created_at
		 FROM askv_docs WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.Filename, &doc.ContentType, &doc.SizeBytes, &doc.SHA256, &doc.StoragePath, &doc.Pages, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns documents newest first with offset and limit.
func (s *PostgresStore) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, filename, content_type, size_bytes, sha256, storage_path, pages, created_at
		 FROM askv_docs ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.ContentType, &doc.SizeBytes, &doc.SHA256, &doc.StoragePath, &doc.Pages, &doc.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// SetDocumentPages records a document's page count.
func (s *PostgresStore) SetDocumentPages(ctx context.Context, id string, pages int) error {
	_, err := s.pool.Exec(ctx, `UPDATE askv_docs SET pages = $2 WHERE id = $1`, id, pages)
	return err
}

// DeleteDocument removes a document; chunks cascade via the foreign key.
func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM askv_docs WHERE id = $1`, id)
	return err
}

// InsertChunks inserts all chunks in one multi-row statement.
func (s *PostgresStore) InsertChunks(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO askv_chunks (doc_id, chunk_index, content, embedding) VALUES `)
	args := make([]any, 0, len(chunks)*4)
	for i, ch := range chunks {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * 4
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, ch.DocID, ch.ChunkIndex, ch.Content, ch.Embedding)
	}
	if _, err := s.pool.Exec(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert %d chunks: %w", len(chunks), err)
	}
	return nil
}

// GetChunksByDocID returns all chunks for a document ordered by chunk_index.
func (s *PostgresStore) GetChunksByDocID(ctx context.Context, docID string) ([]*models.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, doc_id, chunk_index, content, embedding
		 FROM askv_chunks WHERE doc_id = $1 ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		var ch models.Chunk
		if err := rows.Scan(&ch.ID, &ch.DocID, &ch.ChunkIndex, &ch.Content, &ch.Embedding); err != nil {
			return nil, err
		}
		chunks = append(chunks, &ch)
	}
	return chunks, rows.Err()
}

// GetChunkByIndex returns one chunk of a document by its index.
func (s *PostgresStore) GetChunkByIndex(ctx context.Context, docID string, index int) (*models.Chunk, error) {
	var ch models.Chunk
	err := s.pool.QueryRow(ctx,
		`SELECT id, doc_id, chunk_index, content, embedding
		 FROM askv_chunks WHERE doc_id = $1 AND chunk_index = $2`, docID, index,
	).Scan(&ch.ID, &ch.DocID, &ch.ChunkIndex, &ch.Content, &ch.Embedding)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("chunk not found: %s/%d", docID, index)
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// SearchChunks returns the nearest chunks by cosine distance.
func (s *PostgresStore) SearchChunks(ctx context.Context, embedding []float32, limit int) ([]*models.ChunkMatch, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(ctx,
		`SELECT c.doc_id, d.filename, c.chunk_index, c.content, 1 - (c.embedding <=> $1) AS score
		 FROM askv_chunks c
		 JOIN askv_docs d ON d.id = c.doc_id
		 ORDER BY c.embedding <=> $1
		 LIMIT $2`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var matches []*models.ChunkMatch
	for rows.Next() {
		var m models.ChunkMatch
		if err := rows.Scan(&m.DocID, &m.Filename, &m.ChunkIndex, &m.Content, &m.Score); err != nil {
			return nil, err
		}
		m.SemanticScore = m.Score
		matches = append(matches, &m)
	}
	return matches, rows.Err()
}

// CreateJob inserts a job in the queued state.
func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	now := time.Now()
	job.Status = models.JobQueued
	job.CreatedAt = now
	job.UpdatedAt = now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO askv_jobs (id, kind, status, total_files, processed_files, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.Kind, job.Status, job.TotalFiles, job.ProcessedFiles, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob returns a job by ID.
func (s *PostgresStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	var errMsg *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, kind, status, total_files, processed_files, error, created_at, updated_at
		 FROM askv_jobs WHERE id = $1`, id,
	).Scan(&job.ID, &job.Kind, &job.Status, &job.TotalFiles, &job.ProcessedFiles, &errMsg, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	if errMsg != nil {
		job.Error = *errMsg
	}
	return &job, nil
}

// MarkJobRunning transitions queued -> running.
func (s *PostgresStore) MarkJobRunning(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE askv_jobs SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		id, models.JobRunning, models.JobQueued)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is not queued", id)
	}
	return nil
}

// SetJobTotal records the total file count once the runner knows it.
func (s *PostgresStore) SetJobTotal(ctx context.Context, id string, total int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE askv_jobs SET total_files = $2, updated_at = now() WHERE id = $1`, id, total)
	return err
}

// UpdateJobProgress commits a processed-files counter, never decreasing it.
func (s *PostgresStore) UpdateJobProgress(ctx context.Context, id string, processed int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE askv_jobs SET processed_files = GREATEST(processed_files, $2), updated_at = now()
		 WHERE id = $1`, id, processed)
	return err
}

// MarkJobDone transitions running -> done with the final counter.
func (s *PostgresStore) MarkJobDone(ctx context.Context, id string, processed int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE askv_jobs SET status = $2, processed_files = GREATEST(processed_files, $3), updated_at = now()
		 WHERE id = $1 AND status = $4`,
		id, models.JobDone, processed, models.JobRunning)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is not running", id)
	}
	return nil
}

// MarkJobError transitions to the terminal error state, freezing processed_files.
func (s *PostgresStore) MarkJobError(ctx context.Context, id string, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE askv_jobs SET status = $2, error = $3, updated_at = now()
		 WHERE id = $1 AND status IN ($4, $5)`,
		id, models.JobError, msg, models.JobQueued, models.JobRunning)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s already terminal", id)
	}
	return nil
}

// CountDocuments returns the total number of documents.
func (s *PostgresStore) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM askv_docs`).Scan(&n)
	return n, err
}

// CountChunks returns the total number of chunks.
func (s *PostgresStore) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM askv_chunks`).Scan(&n)
	return n, err
}

// CountJobs returns the total number of jobs.
func (s *PostgresStore) CountJobs(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM askv_jobs`).Scan(&n)
	return n, err
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
