// Package keyword provides keyword (BM25) indexing and search over chunks.
package keyword

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Entry is the indexed representation of one chunk.
type Entry struct {
	DocID    string `json:"doc_id"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// Result is a single keyword search hit. ID is a chunk ID (see ChunkID).
type Result struct {
	ID    string
	Score float64
}

// Index defines keyword search operations over chunks.
type Index interface {
	Index(ctx context.Context, id string, entry *Entry) error
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
	Delete(ctx context.Context, ids []string) error
	Close() error
}

// ChunkID builds the keyword index ID for a document chunk.
func ChunkID(docID string, chunkIndex int) string {
	return fmt.Sprintf("%s:%d", docID, chunkIndex)
}

// ParseChunkID splits a keyword index ID back into document ID and chunk index.
func ParseChunkID(id string) (docID string, chunkIndex int, err error) {
	i := strings.LastIndexByte(id, ':')
	if i < 0 {
		return "", 0, fmt.Errorf("malformed chunk id %q", id)
	}
	idx, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed chunk id %q: %w", id, err)
	}
	return id[:i], idx, nil
}
