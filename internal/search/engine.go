package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/electrohub/askveeva/internal/config"
	"github.com/electrohub/askveeva/internal/embedding"
	"github.com/electrohub/askveeva/internal/keyword"
	"github.com/electrohub/askveeva/internal/models"
	"github.com/electrohub/askveeva/internal/storage"
	"github.com/electrohub/askveeva/pkg/utils"
)

const askSystemPrompt = "You are a maintenance documentation assistant. " +
	"Answer the question using only the provided document excerpts. " +
	"If the excerpts do not contain the answer, say so plainly. " +
	"Cite filenames when referencing specific procedures."

// Engine runs hybrid retrieval and answer synthesis over ingested chunks.
type Engine struct {
	store        storage.Store
	embedder     embedding.Embedder
	keywordIndex keyword.Index
	llm          llms.Model
	config       *config.SearchConfig
	logger       *zap.Logger
}

// NewEngine creates a search engine with the given dependencies. llm may be
// nil, in which case Ask returns an error but Search still works.
func NewEngine(
	store storage.Store,
	embedder embedding.Embedder,
	keywordIndex keyword.Index,
	llm llms.Model,
	cfg *config.SearchConfig,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		store:        store,
		embedder:     embedder,
		keywordIndex: keywordIndex,
		llm:          llm,
		config:       cfg,
		logger:       logger,
	}
}

// Search runs keyword and semantic retrieval in parallel, fuses the scores,
// and returns chunk-level results.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := query.Validate(e.config.DefaultLimit, e.config.MaxLimit); err != nil {
		return nil, err
	}

	var (
		keywordResults []*keyword.Result
		semanticHits   []*models.ChunkMatch
		errChan        = make(chan error, 2)
		wg             sync.WaitGroup
	)

	if query.KeywordWeight > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := e.keywordIndex.Search(ctx, query.Query, e.config.TopKCandidates)
			if err != nil {
				errChan <- fmt.Errorf("keyword search failed: %w", err)
				return
			}
			keywordResults = results
		}()
	}

	if query.SemanticWeight > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			queryEmbedding, err := e.embedder.Embed(ctx, query.Query)
			if err != nil {
				errChan <- fmt.Errorf("query embedding failed: %w", err)
				return
			}
			hits, err := e.store.SearchChunks(ctx, queryEmbedding, e.config.TopKCandidates)
			if err != nil {
				errChan <- fmt.Errorf("semantic search failed: %w", err)
				return
			}
			semanticHits = hits
		}()
	}

	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}

	keywordScores := NormalizeKeywordScores(keywordResults)
	semanticScores := NormalizeSemanticScores(semanticHits)
	fused := Fuse(keywordScores, semanticScores, query.KeywordWeight, query.SemanticWeight)

	semanticByID := make(map[string]*models.ChunkMatch, len(semanticHits))
	for _, m := range semanticHits {
		semanticByID[keyword.ChunkID(m.DocID, m.ChunkIndex)] = m
	}

	response := &models.SearchResponse{
		Results: make([]*models.ChunkMatch, 0, query.Limit),
		Total:   len(fused),
		Query:   query.Query,
	}

	for _, f := range fused {
		if len(response.Results) >= query.Limit {
			break
		}
		match, err := e.hydrate(ctx, f, semanticByID)
		if err != nil {
			// Index and store can briefly disagree after a delete.
			e.logger.Debug("skipping unresolvable hit", zap.String("chunk_id", f.ChunkID), zap.Error(err))
			continue
		}
		response.Results = append(response.Results, match)
	}
	response.QueryTime = time.Since(startTime).Milliseconds()
	return response, nil
}

// hydrate resolves a fused hit to a full ChunkMatch. Semantic hits already
// carry content; keyword-only hits are loaded from the store.
func (e *Engine) hydrate(ctx context.Context, f *FusedResult, semanticByID map[string]*models.ChunkMatch) (*models.ChunkMatch, error) {
	if m, ok := semanticByID[f.ChunkID]; ok {
		return &models.ChunkMatch{
			DocID:         m.DocID,
			Filename:      m.Filename,
			ChunkIndex:    m.ChunkIndex,
			Content:       m.Content,
			Score:         f.Score,
			KeywordScore:  f.KeywordScore,
			SemanticScore: f.SemanticScore,
		}, nil
	}
	docID, idx, err := keyword.ParseChunkID(f.ChunkID)
	if err != nil {
		return nil, err
	}
	chunk, err := e.store.GetChunkByIndex(ctx, docID, idx)
	if err != nil {
		return nil, err
	}
	doc, err := e.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	return &models.ChunkMatch{
		DocID:         docID,
		Filename:      doc.Filename,
		ChunkIndex:    idx,
		Content:       chunk.Content,
		Score:         f.Score,
		KeywordScore:  f.KeywordScore,
		SemanticScore: f.SemanticScore,
	}, nil
}

// Ask retrieves the most relevant chunks for question and synthesizes an
// answer grounded in them.
func (e *Engine) Ask(ctx context.Context, question string) (*models.AskResponse, error) {
	if e.llm == nil {
		return nil, fmt.Errorf("chat model is not configured")
	}
	query := &models.SearchQuery{
		Query:          question,
		Limit:          e.config.AskContextChunks,
		KeywordWeight:  e.config.KeywordWeight,
		SemanticWeight: e.config.SemanticWeight,
	}
	resp, err := e.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return &models.AskResponse{
			Answer:  "No relevant documents were found for this question.",
			Sources: []*models.AskSource{},
		}, nil
	}

	var sb strings.Builder
	sources := make([]*models.AskSource, 0, len(resp.Results))
	for i, m := range resp.Results {
		fmt.Fprintf(&sb, "[%d] %s (part %d):\n%s\n\n", i+1, m.Filename, m.ChunkIndex+1, m.Content)
		sources = append(sources, &models.AskSource{
			DocID:      m.DocID,
			Filename:   m.Filename,
			ChunkIndex: m.ChunkIndex,
			Score:      m.Score,
			Snippet:    utils.Truncate(m.Content, 240),
		})
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, askSystemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman,
			fmt.Sprintf("Document excerpts:\n\n%sQuestion: %s", sb.String(), question)),
	}
	completion, err := e.llm.GenerateContent(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("answer synthesis failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("chat model returned no choices")
	}
	return &models.AskResponse{
		Answer:  completion.Choices[0].Content,
		Sources: sources,
	}, nil
}
