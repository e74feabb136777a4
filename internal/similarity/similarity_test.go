package similarity

import (
	"errors"
	"math"
	"testing"
)

type doc struct {
	id  string
	vec []float32
}

func (d doc) Vector() []float32 { return d.vec }

func TestCosineSimilarity_Identical(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3})
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(sim-1.0) > 1e-4 {
		t.Errorf("expected ~1.0, got %f", sim)
	}
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0, 0}, []float32{0, 1, 0})
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(sim) > 1e-4 {
		t.Errorf("expected ~0.0, got %f", sim)
	}
}

func TestCosineDistance_Opposite(t *testing.T) {
	d, err := CosineDistance([]float32{1, 0}, []float32{-1, 0})
	if err != nil {
		t.Fatalf("CosineDistance failed: %v", err)
	}
	if math.Abs(d-2.0) > 1e-4 {
		t.Errorf("expected ~2.0, got %f", d)
	}
}

func TestCosineSimilarity_InvalidVectors(t *testing.T) {
	cases := map[string][2][]float32{
		"empty":     {{}, {1, 0}},
		"mismatch":  {{1, 0}, {1, 0, 0}},
		"zero norm": {{0, 0, 0}, {1, 0, 0}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := CosineSimilarity(c[0], c[1])
			var ive *InvalidVectorError
			if !errors.As(err, &ive) {
				t.Fatalf("expected InvalidVectorError, got %v", err)
			}
		})
	}
}

func TestRank_OrdersAndFilters(t *testing.T) {
	query := []float32{1, 0}
	candidates := []doc{
		{id: "exact", vec: []float32{1, 0}},
		{id: "near", vec: []float32{0.9, 0.1}},
		{id: "orthogonal", vec: []float32{0, 1}},
		{id: "missing"},
	}

	results, err := Rank(query, candidates, 0.5)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Item.id != "exact" || results[1].Item.id != "near" {
		t.Errorf("unexpected order: %s, %s", results[0].Item.id, results[1].Item.id)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Errorf("results not descending at %d", i)
		}
	}
}

func TestRank_ThresholdIsStrict(t *testing.T) {
	results, err := Rank([]float32{1, 0}, []doc{{id: "a", vec: []float32{0, 1}}}, 0)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("similarity equal to threshold must be excluded, got %d results", len(results))
	}
}

func TestRank_ZeroQuery(t *testing.T) {
	_, err := Rank([]float32{0, 0}, []doc{{id: "a", vec: []float32{1, 0}}}, 0.5)
	var ive *InvalidVectorError
	if !errors.As(err, &ive) {
		t.Fatalf("expected InvalidVectorError, got %v", err)
	}
}

func TestTopK(t *testing.T) {
	candidates := []doc{
		{id: "far", vec: []float32{-1, 0}},
		{id: "mid", vec: []float32{0, 1}},
		{id: "close", vec: []float32{1, 0.1}},
	}
	results, err := TopK([]float32{1, 0}, candidates, 2)
	if err != nil {
		t.Fatalf("TopK failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Item.id != "close" || results[1].Item.id != "mid" {
		t.Errorf("unexpected order: %s, %s", results[0].Item.id, results[1].Item.id)
	}
}

func TestAverageDistance(t *testing.T) {
	center := []float32{1, 0}
	items := []doc{
		{id: "same", vec: []float32{1, 0}},
		{id: "orthogonal", vec: []float32{0, 1}},
		{id: "missing"},
	}
	avg, err := AverageDistance(center, items)
	if err != nil {
		t.Fatalf("AverageDistance failed: %v", err)
	}
	if math.Abs(avg-0.5) > 1e-4 {
		t.Errorf("expected 0.5, got %f", avg)
	}
}

func TestAverageDistance_NothingToAverage(t *testing.T) {
	if avg, _ := AverageDistance(nil, []doc{{vec: []float32{1}}}); avg != 0 {
		t.Errorf("expected 0 without a center, got %f", avg)
	}
	if avg, _ := AverageDistance([]float32{1, 0}, []doc{{id: "x"}}); avg != 0 {
		t.Errorf("expected 0 without embedded items, got %f", avg)
	}
}
