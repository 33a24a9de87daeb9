package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/electrohub/askveeva/internal/chunker"
	"github.com/electrohub/askveeva/internal/embedding"
	"github.com/electrohub/askveeva/internal/extract"
	"github.com/electrohub/askveeva/internal/keyword"
	"github.com/electrohub/askveeva/internal/storage"
)

// memKeywordIndex records indexed entries for assertions.
type memKeywordIndex struct {
	mu      sync.Mutex
	entries map[string]*keyword.Entry
}

func newMemKeywordIndex() *memKeywordIndex {
	return &memKeywordIndex{entries: make(map[string]*keyword.Entry)}
}

func (m *memKeywordIndex) Index(ctx context.Context, id string, entry *keyword.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = entry
	return nil
}

func (m *memKeywordIndex) Search(ctx context.Context, query string, limit int) ([]*keyword.Result, error) {
	return nil, nil
}

func (m *memKeywordIndex) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

func (m *memKeywordIndex) Close() error { return nil }

func newTestPipeline(t *testing.T, store storage.Store, kw keyword.Index, chunkSize, overlap, batchSize int) *Pipeline {
	t.Helper()
	return NewPipeline(
		store,
		embedding.NewMockEmbedder(16),
		kw,
		extract.NewExtractor(),
		chunker.New(chunkSize, overlap),
		batchSize,
		zap.NewNop(),
	)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPipeline_IngestTextFile(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	kw := newMemKeywordIndex()
	p := newTestPipeline(t, store, kw, 10, 3, 64)

	text := strings.Repeat("maintenance procedure ", 5)
	path := writeFile(t, t.TempDir(), "proc.txt", text)

	doc, err := p.IngestFile(ctx, path, "proc.txt")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Filename != "proc.txt" || doc.SHA256 == "" || doc.SizeBytes == 0 {
		t.Errorf("document metadata incomplete: %+v", doc)
	}

	chunks, err := store.GetChunksByDocID(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) == 0 {
		t.Fatal("no chunks committed")
	}
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, ch.ChunkIndex)
		}
		if len(ch.Embedding.Slice()) != 16 {
			t.Errorf("chunk %d embedding dims = %d", i, len(ch.Embedding.Slice()))
		}
		if kw.entries[keyword.ChunkID(doc.ID, i)] == nil {
			t.Errorf("chunk %d missing from keyword index", i)
		}
	}
}

func TestPipeline_ChunkIndicesThreadAcrossBatches(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := newTestPipeline(t, store, newMemKeywordIndex(), 10, 0, 2)

	path := writeFile(t, t.TempDir(), "long.txt", strings.Repeat("x", 95))
	doc, err := p.IngestFile(ctx, path, "long.txt")
	if err != nil {
		t.Fatal(err)
	}
	chunks, _ := store.GetChunksByDocID(ctx, doc.ID)
	// 95 runes, size 10, no overlap: nine full windows plus a residual.
	if len(chunks) != 10 {
		t.Fatalf("chunks = %d, want 10", len(chunks))
	}
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Fatalf("batching broke index sequence at %d: %d", i, ch.ChunkIndex)
		}
	}
}

// scriptedPages drives the paginated path with a fixed page sequence.
type scriptedPages struct {
	pages []extract.PageResult
}

func (s *scriptedPages) Extract(ctx context.Context, path string) (extract.Result, error) {
	return extract.Result{}, nil
}

func (s *scriptedPages) StreamPages(path string, sink func(extract.PageResult) error) (int, error) {
	for _, p := range s.pages {
		if err := sink(p); err != nil {
			return len(s.pages), err
		}
	}
	return len(s.pages), nil
}

func TestPipeline_PaginatedPageFailureContributesNothing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	kw := newMemKeywordIndex()
	pageOne := "alpha bravo charlie "
	pageThree := "delta echo foxtrot"
	ext := &scriptedPages{pages: []extract.PageResult{
		{Page: 1, Text: pageOne},
		{Page: 2, Err: errors.New("corrupt glyph table")},
		{Page: 3, Text: pageThree},
	}}
	// batchSize 2 forces flushes mid-stream, so indices must thread across them.
	p := NewPipeline(store, embedding.NewMockEmbedder(16), kw, ext, chunker.New(10, 0), 2, zap.NewNop())

	path := writeFile(t, t.TempDir(), "report.pdf", "placeholder bytes")
	doc, err := p.IngestFile(ctx, path, "report.pdf")
	if err != nil {
		t.Fatalf("a single failed page must not fail the document: %v", err)
	}

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Pages == nil || *got.Pages != 3 {
		t.Errorf("pages = %v, want 3", got.Pages)
	}

	chunks, err := store.GetChunksByDocID(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) == 0 {
		t.Fatal("no chunks committed")
	}
	var rebuilt strings.Builder
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Fatalf("batching broke index sequence at %d: %d", i, ch.ChunkIndex)
		}
		rebuilt.WriteString(ch.Content)
	}
	// Zero overlap: concatenated chunks, residual included, rebuild the good
	// pages exactly; the failed page adds nothing.
	if rebuilt.String() != pageOne+pageThree {
		t.Errorf("rebuilt text = %q, want %q", rebuilt.String(), pageOne+pageThree)
	}
}

func TestPipeline_PaginatedEmbedFailureNamesEmbedStage(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	ext := &scriptedPages{pages: []extract.PageResult{
		{Page: 1, Text: strings.Repeat("pressure relief valve ", 4)},
	}}
	emb := &failingEmbedder{err: errors.New("service unavailable")}
	p := NewPipeline(store, emb, newMemKeywordIndex(), ext, chunker.New(10, 0), 1, zap.NewNop())

	path := writeFile(t, t.TempDir(), "manual.pdf", "placeholder bytes")
	_, err := p.IngestFile(ctx, path, "manual.pdf")
	if err == nil {
		t.Fatal("embedding failure must abort the document")
	}
	if !strings.Contains(err.Error(), "embed chunks of") {
		t.Errorf("error does not name the embedding stage: %v", err)
	}
	if strings.Contains(err.Error(), "extract") {
		t.Errorf("batch failure mislabeled as extraction: %v", err)
	}
}

type failingEmbedder struct{ err error }

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, f.err
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, f.err
}

func (f *failingEmbedder) Dimensions() int { return 16 }

func TestPipeline_UnsupportedTypeRegistersZeroChunkDocument(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := newTestPipeline(t, store, newMemKeywordIndex(), 100, 10, 8)

	path := writeFile(t, t.TempDir(), "firmware.bin", "\x00\x01\x02")
	doc, err := p.IngestFile(ctx, path, "firmware.bin")
	if err != nil {
		t.Fatal(err)
	}
	chunks, _ := store.GetChunksByDocID(ctx, doc.ID)
	if len(chunks) != 0 {
		t.Errorf("unsupported file produced %d chunks", len(chunks))
	}
	if _, err := store.GetDocument(ctx, doc.ID); err != nil {
		t.Error("document row missing for unsupported file")
	}
}

func TestPipeline_DeleteDocumentCleansKeywordIndex(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	kw := newMemKeywordIndex()
	p := newTestPipeline(t, store, kw, 10, 0, 8)

	path := writeFile(t, t.TempDir(), "doomed.txt", strings.Repeat("y", 35))
	doc, err := p.IngestFile(ctx, path, "doomed.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(kw.entries) == 0 {
		t.Fatal("nothing indexed")
	}
	if err := p.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatal(err)
	}
	if len(kw.entries) != 0 {
		t.Errorf("%d keyword entries survived deletion", len(kw.entries))
	}
	chunks, _ := store.GetChunksByDocID(ctx, doc.ID)
	if len(chunks) != 0 {
		t.Errorf("%d chunks survived deletion", len(chunks))
	}
}
