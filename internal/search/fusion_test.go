package search

import (
	"testing"

	"github.com/electrohub/askveeva/internal/keyword"
	"github.com/electrohub/askveeva/internal/models"
)

func TestNormalizeKeywordScores(t *testing.T) {
	results := []*keyword.Result{
		{ID: "d1:0", Score: 8.0},
		{ID: "d2:3", Score: 4.0},
		{ID: "d3:1", Score: 2.0},
	}
	normalized := NormalizeKeywordScores(results)
	if normalized["d1:0"] != 1.0 {
		t.Errorf("top score = %f, want 1.0", normalized["d1:0"])
	}
	if normalized["d2:3"] != 0.5 {
		t.Errorf("mid score = %f, want 0.5", normalized["d2:3"])
	}
	if len(NormalizeKeywordScores(nil)) != 0 {
		t.Error("empty input should produce empty map")
	}
}

func TestNormalizeSemanticScores(t *testing.T) {
	hits := []*models.ChunkMatch{
		{DocID: "d1", ChunkIndex: 2, Score: 0.91},
		{DocID: "d2", ChunkIndex: 0, Score: 0.4},
	}
	normalized := NormalizeSemanticScores(hits)
	if normalized["d1:2"] != 0.91 {
		t.Errorf("score = %f, want pass-through 0.91", normalized["d1:2"])
	}
	if len(normalized) != 2 {
		t.Errorf("map size = %d", len(normalized))
	}
}

func TestFuse_WeightsAndOrdering(t *testing.T) {
	kw := map[string]float64{"d1:0": 1.0, "d2:0": 0.5}
	sem := map[string]float64{"d2:0": 1.0, "d3:0": 0.9}

	fused := Fuse(kw, sem, 0.3, 0.7)
	if len(fused) != 3 {
		t.Fatalf("fused count = %d, want 3", len(fused))
	}
	// d2: 0.3*0.5 + 0.7*1.0 = 0.85, d3: 0.63, d1: 0.3
	if fused[0].ChunkID != "d2:0" {
		t.Errorf("first = %s, want d2:0", fused[0].ChunkID)
	}
	if fused[1].ChunkID != "d3:0" || fused[2].ChunkID != "d1:0" {
		t.Errorf("order = %s, %s", fused[1].ChunkID, fused[2].ChunkID)
	}
	if fused[0].KeywordScore != 0.5 || fused[0].SemanticScore != 1.0 {
		t.Errorf("component scores not preserved: %+v", fused[0])
	}
}

func TestFuse_KeywordOnly(t *testing.T) {
	kw := map[string]float64{"d1:0": 1.0}
	fused := Fuse(kw, nil, 1.0, 0)
	if len(fused) != 1 || fused[0].Score != 1.0 {
		t.Fatalf("fused = %+v", fused)
	}
	if fused[0].SemanticScore != 0 {
		t.Errorf("semantic score = %f, want 0", fused[0].SemanticScore)
	}
}
