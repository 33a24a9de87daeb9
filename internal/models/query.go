package models

import "fmt"

// SearchQuery represents a retrieval request over indexed chunks.
type SearchQuery struct {
	Query          string  `json:"query"`
	Limit          int     `json:"limit,omitempty"`
	KeywordWeight  float64 `json:"keyword_weight,omitempty"`
	SemanticWeight float64 `json:"semantic_weight,omitempty"`
}

// Validate checks the query and normalizes limit and weights.
// When both weights are zero, semantic-only retrieval is used.
func (q *SearchQuery) Validate(defaultLimit, maxLimit int) error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.KeywordWeight < 0 || q.SemanticWeight < 0 {
		return fmt.Errorf("weights cannot be negative")
	}
	if q.KeywordWeight == 0 && q.SemanticWeight == 0 {
		q.SemanticWeight = 1.0
	}
	return nil
}

// ChunkMatch is a single retrieval hit.
type ChunkMatch struct {
	DocID         string  `json:"doc_id"`
	Filename      string  `json:"filename"`
	ChunkIndex    int     `json:"chunk_index"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	KeywordScore  float64 `json:"keyword_score,omitempty"`
	SemanticScore float64 `json:"semantic_score,omitempty"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*ChunkMatch `json:"results"`
	Total     int           `json:"total"`
	QueryTime int64         `json:"query_time_ms"`
	Query     string        `json:"query"`
}

// AskSource attributes part of a synthesized answer to a document chunk.
type AskSource struct {
	DocID      string  `json:"doc_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
}

// AskResponse is a synthesized natural-language answer with source attributions.
type AskResponse struct {
	Answer  string       `json:"answer"`
	Sources []*AskSource `json:"sources"`
}
