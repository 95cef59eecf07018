package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/JakeFAU/analytica/internal/preprocess"
)

// ErrModelUnavailable is returned when a dimension's instance could not be built.
var ErrModelUnavailable = errors.New("model unavailable")

// Encoding is a tokenized input ready for inference.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
}

// Tokenizer turns normalized text into model input.
type Tokenizer interface {
	Encode(ctx context.Context, text string) (Encoding, error)
}

// Model runs a forward pass and returns raw logits, one per label.
type Model interface {
	Forward(ctx context.Context, enc Encoding) ([]float64, error)
}

// Loader builds the tokenizer and model for a dimension.
type Loader interface {
	Load(ctx context.Context, d Dimension) (Tokenizer, Model, error)
}

// Instance is an immutable, shareable classifier for one dimension.
type Instance struct {
	dimension Dimension
	tokenizer Tokenizer
	model     Model
	labels    []string
}

// NewInstance pairs a tokenizer and model with the dimension's label set.
func NewInstance(d Dimension, tok Tokenizer, model Model) (*Instance, error) {
	labels, err := Labels(d)
	if err != nil {
		return nil, err
	}
	if tok == nil || model == nil {
		return nil, fmt.Errorf("%s: tokenizer and model are required", d)
	}
	return &Instance{dimension: d, tokenizer: tok, model: model, labels: labels}, nil
}

// Dimension reports which axis the instance labels.
func (i *Instance) Dimension() Dimension {
	return i.dimension
}

// Classify normalizes text, runs inference and decodes the argmax label.
// Empty or whitespace-only input yields UnknownLabel without touching the model.
func (i *Instance) Classify(ctx context.Context, text string) (string, error) {
	normalized := preprocess.Normalize(text)
	if normalized == "" {
		return UnknownLabel, nil
	}
	enc, err := i.tokenizer.Encode(ctx, normalized)
	if err != nil {
		return "", fmt.Errorf("%s: encode: %w", i.dimension, err)
	}
	logits, err := i.model.Forward(ctx, enc)
	if err != nil {
		return "", fmt.Errorf("%s: forward: %w", i.dimension, err)
	}
	if len(logits) != len(i.labels) {
		return "", fmt.Errorf("%s: model returned %d logits for %d labels", i.dimension, len(logits), len(i.labels))
	}
	for _, v := range logits {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("%s: model returned non-finite logits", i.dimension)
		}
	}
	probs := Softmax(logits)
	return i.labels[Argmax(probs)], nil
}

// Softmax converts logits into probabilities, subtracting the max for stability.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for idx, v := range logits {
		e := math.Exp(v - maxLogit)
		out[idx] = e
		sum += e
	}
	for idx := range out {
		out[idx] /= sum
	}
	return out
}

// Argmax returns the index of the largest value; ties go to the lowest index.
// It returns -1 for an empty slice.
func Argmax(values []float64) int {
	if len(values) == 0 {
		return -1
	}
	best := 0
	for idx := 1; idx < len(values); idx++ {
		if values[idx] > values[best] {
			best = idx
		}
	}
	return best
}

func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
