package similarity

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	embedding "github.com/matthewjhunter/go-embedding"
)

const (
	// DefaultThreshold is the similarity a candidate must exceed to count as related.
	DefaultThreshold = 0.8

	// SearchThreshold is the looser cut-off used for free-text search.
	SearchThreshold = 0.5
)

// InvalidVectorError reports an embedding that cannot take part in a
// similarity computation: empty, zero-norm, or of a different length than
// the vector it is compared against.
type InvalidVectorError struct {
	Reason string
}

func (e *InvalidVectorError) Error() string {
	return "invalid vector: " + e.Reason
}

// Embedded is anything that carries an embedding. A nil or empty vector
// means the embedding has not been computed yet.
type Embedded interface {
	Vector() []float32
}

// Scored pairs a candidate with its cosine similarity to the query.
type Scored[T any] struct {
	Item       T
	Similarity float64
}

// CosineSimilarity returns the cosine similarity of a and b in [-1, 1].
func CosineSimilarity(a, b []float32) (float64, error) {
	if err := validate(a, b); err != nil {
		return 0, err
	}
	return embedding.CosineSimilarity(a, b), nil
}

// CosineDistance returns 1 - CosineSimilarity(a, b), in [0, 2].
func CosineDistance(a, b []float32) (float64, error) {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}

func validate(a, b []float32) error {
	if len(a) == 0 || len(b) == 0 {
		return &InvalidVectorError{Reason: "empty vector"}
	}
	if len(a) != len(b) {
		return &InvalidVectorError{Reason: fmt.Sprintf("length mismatch (%d vs %d)", len(a), len(b))}
	}
	if isZero(a) || isZero(b) {
		return &InvalidVectorError{Reason: "zero-norm vector"}
	}
	return nil
}

func isZero(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum) == 0
}

// Rank scores every candidate that has an embedding against query and
// returns those whose similarity is strictly greater than threshold, most
// similar first. Candidates without an embedding are skipped. Ties keep
// their input order.
func Rank[T Embedded](query []float32, candidates []T, threshold float64) ([]Scored[T], error) {
	if len(query) == 0 {
		return nil, &InvalidVectorError{Reason: "empty query vector"}
	}

	var results []Scored[T]
	for _, c := range candidates {
		vec := c.Vector()
		if len(vec) == 0 {
			continue
		}
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			return nil, err
		}
		if sim > threshold {
			results = append(results, Scored[T]{Item: c, Similarity: sim})
		}
	}

	slices.SortStableFunc(results, func(a, b Scored[T]) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	return results, nil
}

// TopK returns the k candidates most similar to query regardless of score.
func TopK[T Embedded](query []float32, candidates []T, k int) ([]Scored[T], error) {
	results, err := Rank(query, candidates, math.Inf(-1))
	if err != nil {
		return nil, err
	}
	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// AverageDistance is the mean cosine distance from center to every item that
// has an embedding. It is 0 when center is missing or no item has one.
func AverageDistance[T Embedded](center []float32, items []T) (float64, error) {
	if len(center) == 0 {
		return 0, nil
	}

	var total float64
	var n int
	for _, it := range items {
		vec := it.Vector()
		if len(vec) == 0 {
			continue
		}
		d, err := CosineDistance(center, vec)
		if err != nil {
			return 0, err
		}
		total += d
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return total / float64(n), nil
}

// Vec adapts a bare vector to Embedded.
type Vec []float32

func (v Vec) Vector() []float32 { return v }
