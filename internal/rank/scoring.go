// Package rank scores and orders retrieval candidates by blending semantic
// similarity, recency, keyword relevance and metric magnitude.
package rank

import (
	"math"
	"time"
)

// KeywordScale is the empirical magnitude of a strong bm25 match.
const KeywordScale = 20.0

// CosineSimilarity returns the cosine of the angle between a and b clamped to
// [0,1]. Empty, mismatched or zero-magnitude vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 0
	}
	return clamp01(sim)
}

// RecencyDecay is exp(-ln2 * ageDays / halfLifeDays): 1 at age 0, 0.5 after
// one half-life. Negative ages count as 0.
func RecencyDecay(ageDays, halfLifeDays float64) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	if halfLifeDays <= 0 {
		if ageDays == 0 {
			return 1
		}
		return 0
	}
	return math.Exp(-math.Ln2 * ageDays / halfLifeDays)
}

// AgeDays is the fractional number of days between ts and now.
func AgeDays(ts, now time.Time) float64 {
	return now.Sub(ts).Hours() / 24
}

// KeywordScore normalizes a raw bm25 score, where more negative is better.
func KeywordScore(raw float64) float64 {
	return clamp01(-raw / KeywordScale)
}

// MinMax normalizes v into [0,1] over [lo,hi]. A degenerate range maps to 0.5.
func MinMax(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0.5
	}
	return clamp01((v - lo) / (hi - lo))
}

func clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

// Clamp bounds v to [lo,hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
