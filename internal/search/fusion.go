// Package search provides hybrid retrieval (keyword + semantic) over chunks
// and answer synthesis on top of it.
package search

import (
	"sort"

	"github.com/electrohub/askveeva/internal/keyword"
	"github.com/electrohub/askveeva/internal/models"
)

// FusedResult holds a chunk ID and its fused keyword/semantic scores.
type FusedResult struct {
	ChunkID       string
	Score         float64
	KeywordScore  float64
	SemanticScore float64
}

// NormalizeKeywordScores normalizes BM25 scores to [0,1] by max.
func NormalizeKeywordScores(results []*keyword.Result) map[string]float64 {
	if len(results) == 0 {
		return make(map[string]float64)
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	normalized := make(map[string]float64)
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}

// NormalizeSemanticScores keys cosine scores by chunk ID. Cosine similarity is
// already in a comparable range, so scores pass through unchanged.
func NormalizeSemanticScores(matches []*models.ChunkMatch) map[string]float64 {
	normalized := make(map[string]float64)
	for _, m := range matches {
		normalized[keyword.ChunkID(m.DocID, m.ChunkIndex)] = m.Score
	}
	return normalized
}

// Fuse merges keyword and semantic score maps with weights and returns chunks
// sorted by fused score descending.
func Fuse(keywordScores, semanticScores map[string]float64, keywordWeight, semanticWeight float64) []*FusedResult {
	scoreMap := make(map[string]*FusedResult)
	for id, score := range keywordScores {
		scoreMap[id] = &FusedResult{
			ChunkID:      id,
			KeywordScore: score,
		}
	}
	for id, score := range semanticScores {
		if result, exists := scoreMap[id]; exists {
			result.SemanticScore = score
		} else {
			scoreMap[id] = &FusedResult{
				ChunkID:       id,
				SemanticScore: score,
			}
		}
	}
	results := make([]*FusedResult, 0, len(scoreMap))
	for _, result := range scoreMap {
		result.Score = (keywordWeight * result.KeywordScore) + (semanticWeight * result.SemanticScore)
		results = append(results, result)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results
}
