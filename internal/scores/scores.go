// Package scores decodes model output vectors into class labels.
//
// All functions are pure. The label table is positionally aligned with the
// output vector: scores[i] belongs to labels[i].
package scores

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrLabelCountMismatch is returned when the output vector and the label
// table differ in length. It signals a configuration error; no fallback
// label exists.
var ErrLabelCountMismatch = errors.New("label count mismatch")

// ShapeLabels is the default label table, in model output order.
var ShapeLabels = []string{
	"Circle",
	"Square",
	"Rectangle",
	"Kite",
	"Parallelogram",
	"Rhombus",
	"Trapezoid",
	"Triangle",
}

// Score pairs one output value with its label.
type Score struct {
	Label string  `json:"label"`
	Index int     `json:"index"`
	Value float32 `json:"value"`
}

// CheckCount returns ErrLabelCountMismatch unless n scores can be paired
// with labels.
func CheckCount(n int, labels []string) error {
	if n != len(labels) {
		return fmt.Errorf("%w: %d scores, %d labels", ErrLabelCountMismatch, n, len(labels))
	}
	if n == 0 {
		return fmt.Errorf("%w: empty label table", ErrLabelCountMismatch)
	}
	return nil
}

// TopIndex returns the index of the largest score. Ties resolve to the
// lowest index. NaN never wins; an all-NaN vector yields 0.
func TopIndex(scores []float32) int {
	best := -1
	var max float32
	for i, v := range scores {
		if math.IsNaN(float64(v)) {
			continue
		}
		if best < 0 || v > max {
			best = i
			max = v
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

// TopLabel returns the label of the highest score.
func TopLabel(scores []float32, labels []string) (string, error) {
	top, err := Top(scores, labels)
	if err != nil {
		return "", err
	}
	return top.Label, nil
}

// Top returns the highest score with its label.
func Top(scores []float32, labels []string) (Score, error) {
	if err := CheckCount(len(scores), labels); err != nil {
		return Score{}, err
	}
	i := TopIndex(scores)
	return Score{Label: labels[i], Index: i, Value: scores[i]}, nil
}

// Rank returns up to n scores ordered best first. Equal values keep their
// output order and NaN values sort last. n <= 0 returns every score.
func Rank(scores []float32, labels []string, n int) ([]Score, error) {
	if err := CheckCount(len(scores), labels); err != nil {
		return nil, err
	}

	ranked := make([]Score, len(scores))
	for i, v := range scores {
		ranked[i] = Score{Label: labels[i], Index: i, Value: v}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].Value, ranked[j].Value
		if math.IsNaN(float64(b)) {
			return !math.IsNaN(float64(a))
		}
		return a > b
	})

	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

// Softmax converts raw logits into probabilities. It is numerically stable
// for large logits and leaves the arg-max unchanged.
func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}

	max := math.Inf(-1)
	for _, v := range logits {
		if f := float64(v); f > max {
			max = f
		}
	}

	var sum float64
	exp := make([]float64, len(logits))
	for i, v := range logits {
		exp[i] = math.Exp(float64(v) - max)
		sum += exp[i]
	}
	for i := range exp {
		out[i] = float32(exp[i] / sum)
	}
	return out
}
