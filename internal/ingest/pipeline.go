// Package ingest turns uploaded files into embedded, searchable chunks and
// runs the asynchronous ingestion jobs that feed it.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/electrohub/askveeva/internal/chunker"
	"github.com/electrohub/askveeva/internal/embedding"
	"github.com/electrohub/askveeva/internal/extract"
	"github.com/electrohub/askveeva/internal/keyword"
	"github.com/electrohub/askveeva/internal/models"
	"github.com/electrohub/askveeva/internal/storage"
)

// Extractor yields document text, whole-file or page by page.
// *extract.Extractor is the production implementation.
type Extractor interface {
	Extract(ctx context.Context, path string) (extract.Result, error)
	StreamPages(path string, sink func(extract.PageResult) error) (int, error)
}

// Pipeline converts one file into a document row plus embedded chunks.
type Pipeline struct {
	store        storage.Store
	embedder     embedding.Embedder
	keywordIndex keyword.Index
	extractor    Extractor
	chunker      *chunker.Chunker
	batchSize    int
	logger       *zap.Logger
}

// NewPipeline wires the ingestion pipeline. batchSize caps how many chunks are
// embedded and inserted per round trip.
func NewPipeline(
	store storage.Store,
	embedder embedding.Embedder,
	keywordIndex keyword.Index,
	extractor Extractor,
	ch *chunker.Chunker,
	batchSize int,
	logger *zap.Logger,
) *Pipeline {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Pipeline{
		store:        store,
		embedder:     embedder,
		keywordIndex: keywordIndex,
		extractor:    extractor,
		chunker:      ch,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// IngestFile registers the file at path as a document and indexes its content.
// storagePath is the logical origin recorded on the document (for archive
// members, "archive.zip/member.pdf"). Re-ingesting identical bytes creates a
// new independent document. A failure partway leaves the document and already
// committed chunks in place.
func (p *Pipeline) IngestFile(ctx context.Context, path, storagePath string) (*models.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	sum, err := fileSHA256(path)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:          uuid.NewString(),
		Filename:    filepath.Base(path),
		ContentType: contentType(path),
		SizeBytes:   info.Size(),
		SHA256:      sum,
		StoragePath: storagePath,
	}
	if err := p.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if extract.IsPaginated(ext) {
		if err := p.ingestPaginated(ctx, doc, path); err != nil {
			return doc, err
		}
		return doc, nil
	}

	result, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return doc, fmt.Errorf("extract %s: %w", doc.Filename, err)
	}
	if result.Skipped {
		p.logger.Info("registered without content",
			zap.String("doc_id", doc.ID),
			zap.String("filename", doc.Filename),
			zap.String("note", result.Note))
		return doc, nil
	}

	chunks := p.chunker.Split(result.Text)
	if err := p.commitChunks(ctx, doc, chunks, 0); err != nil {
		return doc, err
	}
	p.logger.Info("ingested document",
		zap.String("doc_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Int("chunks", len(chunks)))
	return doc, nil
}

// ingestPaginated streams PDF pages through the chunker, committing full
// windows in batches so memory stays bounded by one batch of chunks.
func (p *Pipeline) ingestPaginated(ctx context.Context, doc *models.Document, path string) error {
	var (
		residual   string
		pending    []string
		chunkIndex int
		commitErr  error
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := p.commitChunks(ctx, doc, pending, chunkIndex); err != nil {
			commitErr = err
			return err
		}
		chunkIndex += len(pending)
		pending = pending[:0]
		return nil
	}

	pages, err := p.extractor.StreamPages(path, func(page extract.PageResult) error {
		if page.Err != nil {
			return nil
		}
		var emitted []string
		emitted, residual = p.chunker.Feed(residual, page.Text)
		pending = append(pending, emitted...)
		if len(pending) >= p.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		// A batch flush failure aborts the stream through the sink; it is
		// already labeled with the embed/insert stage, so do not blame
		// extraction for it.
		if commitErr != nil {
			return commitErr
		}
		return fmt.Errorf("extract %s: %w", doc.Filename, err)
	}
	if residual != "" {
		pending = append(pending, residual)
	}
	if err := flush(); err != nil {
		return err
	}
	if err := p.store.SetDocumentPages(ctx, doc.ID, pages); err != nil {
		return err
	}
	p.logger.Info("ingested document",
		zap.String("doc_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Int("pages", pages),
		zap.Int("chunks", chunkIndex))
	return nil
}

// commitChunks embeds texts in batches, inserts them starting at firstIndex,
// and mirrors them into the keyword index.
func (p *Pipeline) commitChunks(ctx context.Context, doc *models.Document, texts []string, firstIndex int) error {
	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, err := p.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("embed chunks of %s: %w", doc.Filename, err)
		}
		chunks := make([]*models.Chunk, len(batch))
		for i, text := range batch {
			chunks[i] = &models.Chunk{
				DocID:      doc.ID,
				ChunkIndex: firstIndex + start + i,
				Content:    text,
				Embedding:  pgvector.NewVector(vectors[i]),
			}
		}
		if err := p.store.InsertChunks(ctx, chunks); err != nil {
			return fmt.Errorf("insert chunks of %s: %w", doc.Filename, err)
		}
		for _, ch := range chunks {
			entry := &keyword.Entry{DocID: doc.ID, Filename: doc.Filename, Content: ch.Content}
			if err := p.keywordIndex.Index(ctx, keyword.ChunkID(doc.ID, ch.ChunkIndex), entry); err != nil {
				return fmt.Errorf("keyword index chunk %d of %s: %w", ch.ChunkIndex, doc.Filename, err)
			}
		}
	}
	return nil
}

// DeleteDocument removes a document from the store and the keyword index.
func (p *Pipeline) DeleteDocument(ctx context.Context, docID string) error {
	chunks, err := p.store.GetChunksByDocID(ctx, docID)
	if err != nil {
		return err
	}
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = keyword.ChunkID(docID, ch.ChunkIndex)
	}
	if err := p.store.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	if err := p.keywordIndex.Delete(ctx, ids); err != nil {
		p.logger.Warn("keyword index cleanup failed", zap.String("doc_id", docID), zap.Error(err))
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
