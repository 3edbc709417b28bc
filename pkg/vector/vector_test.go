package vector_test

import (
	"testing"

	"github.com/soundprediction/distillery/pkg/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "simple", a: []float32{1, 2, 3}, b: []float32{4, 5, 6}, want: 32},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "length mismatch", a: []float32{1, 2}, b: []float32{1}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, vector.Dot(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, vector.Cosine([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, 0.0, vector.Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, vector.Cosine([]float32{1, 1}, []float32{-1, -1}), 1e-9)
	assert.Zero(t, vector.Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, vector.Cosine(nil, nil))
}

func TestNormalize(t *testing.T) {
	n := vector.Normalize([]float32{3, 4})
	require.Len(t, n, 2)
	assert.InDelta(t, 0.6, float64(n[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(n[1]), 1e-6)
	assert.InDelta(t, 1.0, vector.Magnitude(n), 1e-6)

	assert.Nil(t, vector.Normalize(nil))
	assert.Nil(t, vector.Normalize([]float32{0, 0}))
}

func TestTopKByScore(t *testing.T) {
	items := []vector.ScoredItem[string]{
		{Item: "d1", Score: 0.1},
		{Item: "d2", Score: 0.9},
		{Item: "d3", Score: 0.5},
		{Item: "d4", Score: 0.7},
	}

	top := vector.TopKByScore(items, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "d2", top[0].Item)
	assert.Equal(t, "d4", top[1].Item)

	// k larger than input returns everything, descending.
	all := vector.TopKByScore(items, 10)
	require.Len(t, all, 4)
	assert.Equal(t, []string{"d2", "d4", "d3", "d1"}, []string{all[0].Item, all[1].Item, all[2].Item, all[3].Item})

	assert.Nil(t, vector.TopKByScore(items, 0))
	assert.Nil(t, vector.TopKByScore[string](nil, 3))
}
