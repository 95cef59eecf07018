package preprocess

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedDetector string

func (f fixedDetector) Detect(string) string { return string(f) }

func TestStagePrepareTranslatesForeignText(t *testing.T) {
	t.Parallel()

	tr := &countingTranslator{out: "good morning"}
	stage := NewStage(fixedDetector("es"), tr, Config{TargetLanguage: "EN"}, zap.NewNop())

	got := stage.Prepare(context.Background(), "buenos días")
	require.Equal(t, Prepared{
		Original:     "buenos días",
		Language:     "es",
		AnalysisText: "good morning",
		Translated:   true,
	}, got)
	require.Equal(t, 1, tr.count())
}

func TestStagePrepareSkipsTargetLanguage(t *testing.T) {
	t.Parallel()

	tr := &countingTranslator{out: "unused"}
	stage := NewStage(fixedDetector("en"), tr, Config{}, nil)

	got := stage.Prepare(context.Background(), "good morning")
	require.Equal(t, "good morning", got.AnalysisText)
	require.False(t, got.Translated)
	require.Zero(t, tr.count())
}

func TestStageTranslationFailureFallsBack(t *testing.T) {
	t.Parallel()

	tr := &countingTranslator{err: errors.New("quota exceeded")}
	stage := NewStage(fixedDetector("de"), tr, Config{}, zap.NewNop())

	text, ok := stage.TranslateToTarget(context.Background(), "guten Morgen", "de")
	require.False(t, ok)
	require.Equal(t, "guten Morgen", text)

	got := stage.Prepare(context.Background(), "guten Morgen")
	require.True(t, got.TranslationFailed)
	require.False(t, got.Translated)
	require.Equal(t, "guten Morgen", got.AnalysisText)
}

func TestStageWithoutTranslatorOrDetector(t *testing.T) {
	t.Parallel()

	stage := NewStage(nil, nil, Config{}, nil)
	got := stage.Prepare(context.Background(), "anything")
	require.Equal(t, UnknownLanguage, got.Language)
	require.Equal(t, "anything", got.AnalysisText)
	require.False(t, got.Translated)
	require.False(t, got.TranslationFailed)
}
