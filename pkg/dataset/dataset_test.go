package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/distillery/pkg/types"
)

var (
	testQueries = types.QuerySet{
		"Q1": {ID: "Q1", Text: "largest rodent"},
		"Q2": {ID: "Q2", Text: "systems language"},
	}
	testCorpus = types.Corpus{
		"P1": {ID: "P1", Title: "Capybara", Text: "The largest living rodent."},
		"P2": {ID: "P2", Text: "Rust is a systems programming language."},
		"P3": {ID: "P3", Text: "The Amazon river basin."},
	}
	testLabels = []types.MarginLabel{
		{QueryID: "Q1", PositiveID: "P1", NegativeID: "P2", ScorePos: 0.9, ScoreNeg: 0.2},
		{QueryID: "Q2", PositiveID: "P2", NegativeID: "P3", ScorePos: 0.8, ScoreNeg: 0.5},
	}
)

func TestAssembleResolvesTextsInRowOrder(t *testing.T) {
	examples, err := Materialize(Assemble(testLabels, testQueries, testCorpus, 1))
	require.NoError(t, err)
	require.Len(t, examples, 2)

	assert.Equal(t, types.TrainingExample{
		Query:    "largest rodent",
		Positive: "Capybara The largest living rodent.",
		Negative: "Rust is a systems programming language.",
		Margin:   0.7,
	}, examples[0])
	assert.Equal(t, "systems language", examples[1].Query)
	assert.InDelta(t, 0.3, examples[1].Margin, 1e-12)
}

func TestAssembleRepeatsRowsPerEpoch(t *testing.T) {
	it := Assemble(testLabels, testQueries, testCorpus, 3)
	assert.Equal(t, 6, it.Len())

	examples, err := Materialize(it)
	require.NoError(t, err)
	require.Len(t, examples, 6)
	assert.Equal(t, examples[:2], examples[2:4])
	assert.Equal(t, examples[:2], examples[4:6])
}

func TestAssembleTreatsZeroEpochsAsOne(t *testing.T) {
	examples, err := Materialize(Assemble(testLabels, testQueries, testCorpus, 0))
	require.NoError(t, err)
	assert.Len(t, examples, 2)
}

func TestAssembleFailsOnUnknownIDs(t *testing.T) {
	tests := []struct {
		name string
		row  types.MarginLabel
	}{
		{"unknown query", types.MarginLabel{QueryID: "QX", PositiveID: "P1", NegativeID: "P2"}},
		{"unknown positive", types.MarginLabel{QueryID: "Q1", PositiveID: "PX", NegativeID: "P2"}},
		{"unknown negative", types.MarginLabel{QueryID: "Q1", PositiveID: "P1", NegativeID: "PX"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := Assemble([]types.MarginLabel{tt.row}, testQueries, testCorpus, 1)
			assert.False(t, it.Next())
			assert.Error(t, it.Err())
		})
	}
}

func TestAssembleEmptyLabels(t *testing.T) {
	it := Assemble(nil, testQueries, testCorpus, 2)
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
}
