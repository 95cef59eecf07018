// Package classifier maps post text to a fixed label per semantic dimension.
//
// Each dimension owns one lazily built Instance (tokenizer, model, ordered
// label set). Instances are constructed at most once per Registry and shared
// by all callers; a failed construction is remembered and reported as
// ErrModelUnavailable instead of falling back to a default label.
package classifier

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/analytica/internal/social"
)

// Dimension names an independent classification axis.
type Dimension string

const (
	// Sentiment labels overall polarity.
	Sentiment Dimension = "sentiment"
	// Toxicity labels offensive language.
	Toxicity Dimension = "toxicity"
	// Emotion labels the dominant emotion.
	Emotion Dimension = "emotion"

	combined = "combined"
)

// UnknownLabel is returned for empty input.
const UnknownLabel = "Unknown"

// labelSets holds the ordered labels; index i corresponds to model output i.
var labelSets = map[Dimension][]string{
	Sentiment: {"Negative", "Neutral", "Positive"},
	Toxicity:  {"not-offensive", "offensive"},
	Emotion:   {"anger", "joy", "optimism", "sadness"},
}

// ErrUnknownDimension is returned for a dimension outside the fixed set.
var ErrUnknownDimension = fmt.Errorf("%w: unknown dimension", social.ErrInvalidInput)

// All returns every dimension in a stable order.
func All() []Dimension {
	return []Dimension{Sentiment, Toxicity, Emotion}
}

// Labels returns a copy of the ordered label set for d.
func Labels(d Dimension) ([]string, error) {
	labels, ok := labelSets[d]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDimension, d)
	}
	out := make([]string, len(labels))
	copy(out, labels)
	return out, nil
}

// String implements fmt.Stringer.
func (d Dimension) String() string {
	return string(d)
}

// ParseDimension accepts a single dimension name, case-insensitively.
func ParseDimension(raw string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := labelSets[d]; !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownDimension, raw)
	}
	return d, nil
}

// ParseDimensions parses a list of names. "combined" expands to every dimension.
// Duplicates are dropped and the first-seen order is kept. An empty list is an error.
func ParseDimensions(raw []string) ([]Dimension, error) {
	seen := make(map[Dimension]struct{}, len(labelSets))
	var out []Dimension
	add := func(d Dimension) {
		if _, ok := seen[d]; ok {
			return
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			if part == combined {
				for _, d := range All() {
					add(d)
				}
				continue
			}
			d, err := ParseDimension(part)
			if err != nil {
				return nil, err
			}
			add(d)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: at least one dimension is required", social.ErrInvalidInput)
	}
	return out, nil
}
