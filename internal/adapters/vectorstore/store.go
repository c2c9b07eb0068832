// Package vectorstore keeps embedded chunks and answers nearest-neighbour
// queries by cosine similarity.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"

	model "github.com/okian/queryai/internal/domain/model"
)

// Store persists chunks and searches them by vector.
type Store interface {
	// Add inserts chunks, replacing any with the same id.
	Add(ctx context.Context, chunks []model.Chunk) error
	// Search returns at most k chunks scoring at least minScore, best first.
	Search(ctx context.Context, query []float32, k int, minScore float64) ([]model.ScoredChunk, error)
	// HasDocument reports whether any chunk of documentID is stored.
	HasDocument(ctx context.Context, documentID string) (bool, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Cosine returns the cosine similarity of a and b. Zero vectors score 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, am, bm float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		am += x * x
		bm += y * y
	}
	if am == 0 || bm == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(am) * math.Sqrt(bm)), nil
}

// rank scores candidates against query and keeps the best k.
// Candidates of a different dimension are skipped.
func rank(query []float32, candidates []model.Chunk, k int, minScore float64) []model.ScoredChunk {
	if k <= 0 || len(query) == 0 {
		return nil
	}
	hits := make([]model.ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		score, err := Cosine(query, c.Embedding)
		if err != nil || score < minScore {
			continue
		}
		hits = append(hits, model.ScoredChunk{Chunk: c, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func validate(chunks []model.Chunk) error {
	for _, c := range chunks {
		if c.ID == "" {
			return ErrMissingID
		}
		if len(c.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %s", ErrNoEmbedding, c.ID)
		}
	}
	return nil
}
