package search

import (
	"sort"

	"github.com/Marvins20/ai-ethics-multiagents/internal/keyword"
	"github.com/Marvins20/ai-ethics-multiagents/internal/vector"
)

// rrfK damps the contribution of top ranks in reciprocal-rank fusion.
const rrfK = 60

// Weights are the per-ranker weights of the fused score.
type Weights struct {
	Lexical float64
	Vector  float64
}

// DefaultWeights weighs both rankers equally.
var DefaultWeights = Weights{Lexical: 0.5, Vector: 0.5}

// Fused is one entry of a fused ranking. A rank of 0 means the entry was absent from
// that ranker's list.
type Fused struct {
	ID          string
	Score       float64
	LexicalRank int
	VectorRank  int
}

// Fuse merges two ranked lists by weighted reciprocal rank: each ranker contributes
// weight / (rank + 60) with 1-based ranks, and an entry missing from a list gets nothing
// from it. The result is ordered by score, then lexical rank (entries present in the
// lexical list first), then vector rank, then id. Duplicate ids within a list keep
// their best rank.
func Fuse(lexical []keyword.Hit, vec []vector.Hit, w Weights) []Fused {
	byID := make(map[string]*Fused, len(lexical)+len(vec))
	get := func(id string) *Fused {
		f, ok := byID[id]
		if !ok {
			f = &Fused{ID: id}
			byID[id] = f
		}
		return f
	}
	for i, h := range lexical {
		f := get(h.ID)
		if f.LexicalRank != 0 {
			continue
		}
		f.LexicalRank = i + 1
		f.Score += w.Lexical / float64(i+1+rrfK)
	}
	for i, h := range vec {
		f := get(h.ID)
		if f.VectorRank != 0 {
			continue
		}
		f.VectorRank = i + 1
		f.Score += w.Vector / float64(i+1+rrfK)
	}

	out := make([]Fused, 0, len(byID))
	for _, f := range byID {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.LexicalRank != b.LexicalRank {
			return rankBefore(a.LexicalRank, b.LexicalRank)
		}
		if a.VectorRank != b.VectorRank {
			return rankBefore(a.VectorRank, b.VectorRank)
		}
		return a.ID < b.ID
	})
	return out
}

// rankBefore orders present ranks ascending and absent (0) ranks last.
func rankBefore(a, b int) bool {
	if a == 0 {
		return false
	}
	if b == 0 {
		return true
	}
	return a < b
}
