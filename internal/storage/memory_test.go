package storage

import (
	"context"
	"testing"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/electrohub/askveeva/internal/models"
)

func newDoc(id, filename string) *models.Document {
	return &models.Document{
		ID:          id,
		Filename:    filename,
		ContentType: "text/plain",
		SizeBytes:   10,
		SHA256:      "abc",
		StoragePath: "archive.zip/" + filename,
	}
}

func TestMemoryStore_CascadeDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreateDocument(ctx, newDoc("d1", "a.txt")); err != nil {
		t.Fatal(err)
	}
	chunks := []*models.Chunk{
		{DocID: "d1", ChunkIndex: 0, Content: "x", Embedding: pgvector.NewVector([]float32{1, 0})},
		{DocID: "d1", ChunkIndex: 1, Content: "y", Embedding: pgvector.NewVector([]float32{0, 1})},
	}
	if err := s.InsertChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetChunksByDocID(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("chunks survived document deletion: %d", len(got))
	}
}

func TestMemoryStore_DuplicateChunkIndexRejected(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreateDocument(ctx, newDoc("d1", "a.txt")); err != nil {
		t.Fatal(err)
	}
	first := []*models.Chunk{{DocID: "d1", ChunkIndex: 0, Content: "x"}}
	if err := s.InsertChunks(ctx, first); err != nil {
		t.Fatal(err)
	}
	dup := []*models.Chunk{{DocID: "d1", ChunkIndex: 0, Content: "again"}}
	if err := s.InsertChunks(ctx, dup); err == nil {
		t.Fatal("duplicate chunk index should be rejected")
	}
}

func TestMemoryStore_IdenticalBytesProduceIndependentDocuments(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := newDoc("d1", "same.txt")
	b := newDoc("d2", "same.txt")
	b.SHA256 = a.SHA256
	if err := s.CreateDocument(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateDocument(ctx, b); err != nil {
		t.Fatalf("re-ingesting identical bytes must create a second row: %v", err)
	}
	if err := s.InsertChunks(ctx, []*models.Chunk{{DocID: "d1", ChunkIndex: 0, Content: "x"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertChunks(ctx, []*models.Chunk{{DocID: "d2", ChunkIndex: 0, Content: "x"}}); err != nil {
		t.Fatalf("second document must own an independent chunk set: %v", err)
	}
}

func TestMemoryStore_JobLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	job := &models.Job{ID: "j1", Kind: models.JobKindArchive}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetJob(ctx, "j1")
	if got.Status != models.JobQueued {
		t.Fatalf("new job status = %s", got.Status)
	}

	if err := s.MarkJobDone(ctx, "j1", 0); err == nil {
		t.Fatal("queued -> done must be rejected")
	}
	if err := s.MarkJobRunning(ctx, "j1"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkJobRunning(ctx, "j1"); err == nil {
		t.Fatal("running -> running must be rejected")
	}

	_ = s.SetJobTotal(ctx, "j1", 10)
	_ = s.UpdateJobProgress(ctx, "j1", 5)
	_ = s.UpdateJobProgress(ctx, "j1", 3) // stale write must not regress
	got, _ = s.GetJob(ctx, "j1")
	if got.ProcessedFiles != 5 {
		t.Errorf("progress regressed to %d", got.ProcessedFiles)
	}

	if err := s.MarkJobDone(ctx, "j1", 10); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetJob(ctx, "j1")
	if got.Status != models.JobDone || got.ProcessedFiles != 10 {
		t.Errorf("done job = %+v", got)
	}
	if err := s.MarkJobError(ctx, "j1", "late"); err == nil {
		t.Fatal("terminal job must reject further transitions")
	}
}

func TestMemoryStore_JobErrorFreezesProgress(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	job := &models.Job{ID: "j2", Kind: models.JobKindFileSet}
	_ = s.CreateJob(ctx, job)
	_ = s.MarkJobRunning(ctx, "j2")
	_ = s.SetJobTotal(ctx, "j2", 8)
	_ = s.UpdateJobProgress(ctx, "j2", 3)
	if err := s.MarkJobError(ctx, "j2", "embedding service unreachable"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetJob(ctx, "j2")
	if got.Status != models.JobError {
		t.Errorf("status = %s", got.Status)
	}
	if got.ProcessedFiles != 3 {
		t.Errorf("error must freeze processed_files, got %d", got.ProcessedFiles)
	}
	if got.Error == "" {
		t.Error("error message not recorded")
	}
}

func TestMemoryStore_SearchChunksRanksByCosine(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.CreateDocument(ctx, newDoc("d1", "a.txt"))
	_ = s.InsertChunks(ctx, []*models.Chunk{
		{DocID: "d1", ChunkIndex: 0, Content: "close", Embedding: pgvector.NewVector([]float32{1, 0})},
		{DocID: "d1", ChunkIndex: 1, Content: "far", Embedding: pgvector.NewVector([]float32{0, 1})},
	})
	matches, err := s.SearchChunks(ctx, []float32{1, 0.1}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d", len(matches))
	}
	if matches[0].Content != "close" {
		t.Errorf("ranking wrong, first = %q", matches[0].Content)
	}
	if matches[0].Score <= matches[1].Score {
		t.Errorf("scores not descending: %f then %f", matches[0].Score, matches[1].Score)
	}
}
