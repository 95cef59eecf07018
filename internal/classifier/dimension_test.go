package classifier

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/analytica/internal/social"
)

func TestLabels(t *testing.T) {
	t.Parallel()

	labels, err := Labels(Sentiment)
	require.NoError(t, err)
	require.Equal(t, []string{"Negative", "Neutral", "Positive"}, labels)

	labels[0] = "mutated"
	again, _ := Labels(Sentiment)
	require.Equal(t, "Negative", again[0])

	labels, err = Labels(Toxicity)
	require.NoError(t, err)
	require.Equal(t, []string{"not-offensive", "offensive"}, labels)

	labels, err = Labels(Emotion)
	require.NoError(t, err)
	require.Equal(t, []string{"anger", "joy", "optimism", "sadness"}, labels)

	_, err = Labels("irony")
	require.ErrorIs(t, err, ErrUnknownDimension)
}

func TestParseDimensions(t *testing.T) {
	t.Parallel()

	dims, err := ParseDimensions([]string{"combined"})
	require.NoError(t, err)
	require.Equal(t, []Dimension{Sentiment, Toxicity, Emotion}, dims)

	dims, err = ParseDimensions([]string{"Emotion, sentiment", "emotion"})
	require.NoError(t, err)
	require.Equal(t, []Dimension{Emotion, Sentiment}, dims)

	_, err = ParseDimensions([]string{"sentiment", "sarcasm"})
	require.ErrorIs(t, err, social.ErrInvalidInput)

	_, err = ParseDimensions(nil)
	require.ErrorIs(t, err, social.ErrInvalidInput)

	_, err = ParseDimensions([]string{" , "})
	require.ErrorIs(t, err, social.ErrInvalidInput)
}

func TestSoftmax(t *testing.T) {
	t.Parallel()

	probs := Softmax([]float64{1000, 1000, 999})
	var sum float64
	for _, p := range probs {
		require.False(t, math.IsNaN(p))
		sum += p
	}
	require.InDelta(t, 1.0, sum, 1e-9)
	require.InDelta(t, probs[0], probs[1], 1e-12)
	require.Greater(t, probs[0], probs[2])

	require.Nil(t, Softmax(nil))
}

func TestArgmaxTiesPickFirst(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, Argmax([]float64{0.2, 0.4, 0.4}))
	require.Equal(t, 0, Argmax([]float64{0.5, 0.5}))
	require.Equal(t, 2, Argmax([]float64{-3, -2, -1}))
	require.Equal(t, -1, Argmax(nil))
}

func TestInstanceRejectsNonFiniteLogits(t *testing.T) {
	t.Parallel()

	inst, err := NewInstance(Toxicity, &fakeTokenizer{}, &fakeModel{logits: []float64{math.NaN(), 1}})
	require.NoError(t, err)
	_, err = inst.Classify(t.Context(), "text")
	require.Error(t, err)

	_, err = NewInstance(Toxicity, nil, nil)
	require.Error(t, err)
}
