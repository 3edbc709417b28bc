// Package loss defines the margin distillation objective.
//
// The student margin for an example is dot(q, pos) - dot(q, neg) over the
// student's embeddings; the loss is the mean squared error between student
// margins and the teacher margins carried on the examples. Dot product is
// deliberate: cosine similarity would rescale every margin and break the
// correspondence with the teacher scores.
package loss

import (
	"context"
	"fmt"

	"github.com/soundprediction/distillery/pkg/embedder"
	"github.com/soundprediction/distillery/pkg/types"
	"github.com/soundprediction/distillery/pkg/vector"
)

// StudentMargin returns dot(q, pos) - dot(q, neg) for one example.
func StudentMargin(q, pos, neg []float32) float64 {
	return vector.Dot(q, pos) - vector.Dot(q, neg)
}

// MSE returns the mean squared error between two equal-length series.
func MSE(predicted, target []float64) (float64, error) {
	if len(predicted) != len(target) {
		return 0, fmt.Errorf("length mismatch: %d predicted vs %d target", len(predicted), len(target))
	}
	if len(predicted) == 0 {
		return 0, fmt.Errorf("cannot compute loss over zero examples")
	}
	var sum float64
	for i := range predicted {
		d := predicted[i] - target[i]
		sum += d * d
	}
	return sum / float64(len(predicted)), nil
}

// MarginMSE embeds a batch of examples with the student encoder and returns
// the margin MSE against their teacher margins. Queries, positives and
// negatives are embedded in one call each to keep batching under the
// client's control.
func MarginMSE(ctx context.Context, student embedder.Client, batch []types.TrainingExample) (float64, error) {
	if len(batch) == 0 {
		return 0, fmt.Errorf("cannot compute loss over zero examples")
	}

	queries := make([]string, len(batch))
	positives := make([]string, len(batch))
	negatives := make([]string, len(batch))
	target := make([]float64, len(batch))
	for i, ex := range batch {
		queries[i] = ex.Query
		positives[i] = ex.Positive
		negatives[i] = ex.Negative
		target[i] = ex.Margin
	}

	qVecs, err := student.Embed(ctx, queries)
	if err != nil {
		return 0, fmt.Errorf("failed to embed queries: %w", err)
	}
	posVecs, err := student.Embed(ctx, positives)
	if err != nil {
		return 0, fmt.Errorf("failed to embed positives: %w", err)
	}
	negVecs, err := student.Embed(ctx, negatives)
	if err != nil {
		return 0, fmt.Errorf("failed to embed negatives: %w", err)
	}
	if len(qVecs) != len(batch) || len(posVecs) != len(batch) || len(negVecs) != len(batch) {
		return 0, fmt.Errorf("embedder returned wrong vector count for batch of %d", len(batch))
	}

	predicted := make([]float64, len(batch))
	for i := range batch {
		predicted[i] = StudentMargin(qVecs[i], posVecs[i], negVecs[i])
	}
	return MSE(predicted, target)
}
