// Package speaker resolves per-chunk voice embeddings into session-wide
// speaker identities by nearest-centroid cosine matching.
package speaker

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrDegenerateVector means an embedding has zero (or non-finite) norm,
	// so cosine similarity is undefined for it.
	ErrDegenerateVector = errors.New("degenerate embedding vector")
	// ErrDimensionMismatch means two embeddings have different lengths.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedding is a fixed-length voice characteristics vector.
type Embedding []float64

// Clone returns a copy that does not share memory with e.
func (e Embedding) Clone() Embedding {
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

func norm(e Embedding) (float64, error) {
	n := floats.Norm(e, 2)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, ErrDegenerateVector
	}
	return n, nil
}

// Similarity returns the cosine similarity of a and b in [-1, 1].
func Similarity(a, b Embedding) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	na, err := norm(a)
	if err != nil {
		return 0, err
	}
	nb, err := norm(b)
	if err != nil {
		return 0, err
	}
	s := floats.Dot(a, b) / (na * nb)
	return math.Max(-1, math.Min(1, s)), nil
}

// Nearest returns the index of the centroid most similar to e and its score.
// It returns -1 when there is nothing to compare against. Ties keep the
// lowest index. Centroids with zero norm cannot be compared and are passed
// over; a degenerate e is always an error.
func Nearest(centroids []Embedding, e Embedding) (int, float64, error) {
	if _, err := norm(e); err != nil {
		return -1, 0, err
	}
	best, bestScore := -1, math.Inf(-1)
	for i, c := range centroids {
		s, err := Similarity(c, e)
		if errors.Is(err, ErrDegenerateVector) {
			continue
		}
		if err != nil {
			return -1, 0, err
		}
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return -1, 0, nil
	}
	return best, bestScore, nil
}

// Mean returns the component-wise arithmetic mean of vs. All vectors must
// have the same length.
func Mean(vs []Embedding) Embedding {
	if len(vs) == 0 {
		return nil
	}
	out := make(Embedding, len(vs[0]))
	for _, v := range vs {
		floats.Add(out, v)
	}
	floats.Scale(1/float64(len(vs)), out)
	return out
}
