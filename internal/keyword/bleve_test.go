package keyword

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "keyword.bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestBleveIndex_SearchFindsChunk(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	entries := map[string]*Entry{
		ChunkID("d1", 0): {DocID: "d1", Filename: "pump.txt", Content: "centrifugal pump overhaul procedure"},
		ChunkID("d1", 1): {DocID: "d1", Filename: "pump.txt", Content: "bearing replacement steps"},
		ChunkID("d2", 0): {DocID: "d2", Filename: "hvac.txt", Content: "air handler filter schedule"},
	}
	for id, entry := range entries {
		if err := idx.Index(ctx, id, entry); err != nil {
			t.Fatal(err)
		}
	}

	results, err := idx.Search(ctx, "pump overhaul", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("no hits")
	}
	if results[0].ID != ChunkID("d1", 0) {
		t.Errorf("top hit = %s", results[0].ID)
	}
	if results[0].Score <= 0 {
		t.Errorf("score = %f", results[0].Score)
	}
}

func TestBleveIndex_Delete(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	id := ChunkID("d1", 0)
	if err := idx.Index(ctx, id, &Entry{DocID: "d1", Filename: "a.txt", Content: "unique marker phrase"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete(ctx, []string{id}); err != nil {
		t.Fatal(err)
	}
	results, err := idx.Search(ctx, "unique marker phrase", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("deleted chunk still matches: %v", results)
	}
}

func TestChunkIDRoundTrip(t *testing.T) {
	id := ChunkID("4f9d2c3a", 17)
	docID, idx, err := ParseChunkID(id)
	if err != nil {
		t.Fatal(err)
	}
	if docID != "4f9d2c3a" || idx != 17 {
		t.Errorf("parsed %s/%d", docID, idx)
	}
	if _, _, err := ParseChunkID("no-separator"); err == nil {
		t.Error("malformed id must error")
	}
	if _, _, err := ParseChunkID("doc:notanumber"); err == nil {
		t.Error("non-numeric index must error")
	}
}
