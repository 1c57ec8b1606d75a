package retrieval

import (
	"math"

	"github.com/google/uuid"

	"github.com/jinford/book-rag/internal/core/book"
)

// SelectMMR は候補集合から Maximal Marginal Relevance で k 件を選択する
//
// 各ステップで λ·sim(query, c) − (1−λ)·max sim(c, selected) が最大の候補を選ぶ。
// 同点の場合は候補の並び順が先のものを優先するため、同じ入力に対して結果は常に同じになる。
func SelectMMR(queryVector []float32, candidates []book.ScoredChunk, k int, lambda float64) []book.ScoredChunk {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	candidates = dedupe(candidates)
	if k > len(candidates) {
		k = len(candidates)
	}

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = relevanceOf(queryVector, c)
	}

	// maxRedundancy[i] は候補 i と選択済み集合との最大類似度
	maxRedundancy := make([]float64, len(candidates))
	for i := range maxRedundancy {
		maxRedundancy[i] = math.Inf(-1)
	}
	used := make([]bool, len(candidates))
	selected := make([]book.ScoredChunk, 0, k)

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i := range candidates {
			if used[i] {
				continue
			}
			redundancy := 0.0
			if len(selected) > 0 {
				redundancy = maxRedundancy[i]
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy
			if score > bestScore {
				best = i
				bestScore = score
			}
		}
		if best < 0 {
			break
		}

		used[best] = true
		selected = append(selected, candidates[best])

		for i := range candidates {
			if used[i] {
				continue
			}
			sim := book.CosineSimilarity(candidates[i].Chunk.Embedding, candidates[best].Chunk.Embedding)
			if sim > maxRedundancy[i] {
				maxRedundancy[i] = sim
			}
		}
	}

	return selected
}

// relevanceOf はクエリとの関連度を返す
// チャンクのEmbeddingが無い場合はインデックスが返したスコアで代用する
func relevanceOf(queryVector []float32, c book.ScoredChunk) float64 {
	if len(c.Chunk.Embedding) == 0 || len(queryVector) == 0 {
		return c.Score
	}
	return book.CosineSimilarity(queryVector, c.Chunk.Embedding)
}

// dedupe はチャンクIDの重複を取り除く（最初に出現したものを残す）
func dedupe(chunks []book.ScoredChunk) []book.ScoredChunk {
	seen := make(map[uuid.UUID]struct{}, len(chunks))
	out := make([]book.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.Chunk.ID]; ok {
			continue
		}
		seen[c.Chunk.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
