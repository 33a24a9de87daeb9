package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/electrohub/askveeva/internal/models"
)

// MemoryStore is an in-memory Store used by tests and local development.
// It mirrors the Postgres implementation's semantics: cascade delete of
// chunks, monotonic job transitions, non-decreasing progress counters, and
// cosine-ordered chunk search.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]*models.Document
	chunks map[string][]*models.Chunk // doc_id -> chunks in insertion order
	jobs   map[string]*models.Job
	nextID int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]*models.Document),
		chunks: make(map[string][]*models.Chunk),
		jobs:   make(map[string]*models.Job),
	}
}

// CreateDocument inserts a document.
func (s *MemoryStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return fmt.Errorf("document already exists: %s", doc.ID)
	}
	doc.CreatedAt = time.Now()
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

// GetDocument returns a document by ID.
func (s *MemoryStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	cp := *doc
	return &cp, nil
}

// ListDocuments returns documents newest first.
func (s *MemoryStore) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*models.Document, 0, len(s.docs))
	for _, d := range s.docs {
		cp := *d
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// SetDocumentPages records a document's page count.
func (s *MemoryStore) SetDocumentPages(ctx context.Context, id string, pages int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	doc.Pages = &pages
	return nil
}

// DeleteDocument removes a document and cascades to its chunks.
func (s *MemoryStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	delete(s.chunks, id)
	return nil
}

// InsertChunks appends chunks, enforcing the per-document unique index.
func (s *MemoryStore) InsertChunks(ctx context.Context, chunks []*models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range chunks {
		if _, ok := s.docs[ch.DocID]; !ok {
			return fmt.Errorf("chunk references missing document: %s", ch.DocID)
		}
		for _, existing := range s.chunks[ch.DocID] {
			if existing.ChunkIndex == ch.ChunkIndex {
				return fmt.Errorf("duplicate chunk index %d for document %s", ch.ChunkIndex, ch.DocID)
			}
		}
	}
	for _, ch := range chunks {
		s.nextID++
		cp := *ch
		cp.ID = s.nextID
		s.chunks[ch.DocID] = append(s.chunks[ch.DocID], &cp)
	}
	return nil
}

// GetChunksByDocID returns a document's chunks ordered by chunk_index.
func (s *MemoryStore) GetChunksByDocID(ctx context.Context, docID string) ([]*models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := make([]*models.Chunk, 0, len(s.chunks[docID]))
	for _, ch := range s.chunks[docID] {
		cp := *ch
		chunks = append(chunks, &cp)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	return chunks, nil
}

// GetChunkByIndex returns one chunk of a document by its index.
func (s *MemoryStore) GetChunkByIndex(ctx context.Context, docID string, index int) (*models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.chunks[docID] {
		if ch.ChunkIndex == index {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("chunk not found: %s/%d", docID, index)
}

// SearchChunks ranks all chunks by cosine similarity to embedding.
func (s *MemoryStore) SearchChunks(ctx context.Context, embedding []float32, limit int) ([]*models.ChunkMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []*models.ChunkMatch
	for docID, chunks := range s.chunks {
		doc := s.docs[docID]
		if doc == nil {
			continue
		}
		for _, ch := range chunks {
			score := cosine(embedding, ch.Embedding.Slice())
			matches = append(matches, &models.ChunkMatch{
				DocID:         docID,
				Filename:      doc.Filename,
				ChunkIndex:    ch.ChunkIndex,
				Content:       ch.Content,
				Score:         score,
				SemanticScore: score,
			})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// CreateJob inserts a job in the queued state.
func (s *MemoryStore) CreateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	job.Status = models.JobQueued
	job.CreatedAt = now
	job.UpdatedAt = now
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

// GetJob returns a job by ID.
func (s *MemoryStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	cp := *job
	return &cp, nil
}

// MarkJobRunning transitions queued -> running.
func (s *MemoryStore) MarkJobRunning(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.Status != models.JobQueued {
		return fmt.Errorf("job %s is not queued", id)
	}
	job.Status = models.JobRunning
	job.UpdatedAt = time.Now()
	return nil
}

// SetJobTotal records the total file count.
func (s *MemoryStore) SetJobTotal(ctx context.Context, id string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	job.TotalFiles = total
	job.UpdatedAt = time.Now()
	return nil
}

// UpdateJobProgress commits a non-decreasing processed-files counter.
func (s *MemoryStore) UpdateJobProgress(ctx context.Context, id string, processed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	if processed > job.ProcessedFiles {
		job.ProcessedFiles = processed
	}
	job.UpdatedAt = time.Now()
	return nil
}

// MarkJobDone transitions running -> done.
func (s *MemoryStore) MarkJobDone(ctx context.Context, id string, processed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.Status != models.JobRunning {
		return fmt.Errorf("job %s is not running", id)
	}
	job.Status = models.JobDone
	if processed > job.ProcessedFiles {
		job.ProcessedFiles = processed
	}
	job.UpdatedAt = time.Now()
	return nil
}

// MarkJobError transitions to the terminal error state.
func (s *MemoryStore) MarkJobError(ctx context.Context, id string, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.Terminal() {
		return fmt.Errorf("job %s already terminal", id)
	}
	job.Status = models.JobError
	job.Error = msg
	job.UpdatedAt = time.Now()
	return nil
}

// CountDocuments returns the total number of documents.
func (s *MemoryStore) CountDocuments(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.docs)), nil
}

// CountChunks returns the total number of chunks.
func (s *MemoryStore) CountChunks(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, chunks := range s.chunks {
		n += int64(len(chunks))
	}
	return n, nil
}

// CountJobs returns the total number of jobs.
func (s *MemoryStore) CountJobs(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.jobs)), nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error { return nil }
