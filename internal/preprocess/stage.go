package preprocess

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/analytica/internal/metrics"
)

// DefaultTargetLanguage is the language classifiers are trained on.
const DefaultTargetLanguage = "en"

// Config controls the Stage.
type Config struct {
	TargetLanguage string
}

// Prepared is the outcome of preprocessing one post.
type Prepared struct {
	Original          string
	Language          string
	AnalysisText      string
	Translated        bool
	TranslationFailed bool
}

// Stage runs detection and optional translation ahead of classification.
type Stage struct {
	detector   LanguageDetector
	translator Translator
	target     string
	logger     *zap.Logger
}

// NewStage builds a Stage. translator may be nil, which disables translation.
func NewStage(detector LanguageDetector, translator Translator, cfg Config, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	target := strings.ToLower(strings.TrimSpace(cfg.TargetLanguage))
	if target == "" {
		target = DefaultTargetLanguage
	}
	return &Stage{
		detector:   detector,
		translator: translator,
		target:     target,
		logger:     logger,
	}
}

// DetectLanguage returns an ISO 639-1 code or UnknownLanguage.
func (s *Stage) DetectLanguage(text string) string {
	if s.detector == nil {
		return UnknownLanguage
	}
	lang := s.detector.Detect(text)
	if lang == "" {
		lang = UnknownLanguage
	}
	metrics.ObserveLanguage(lang)
	return lang
}

// TranslateToTarget translates text when lang differs from the target language.
// On any failure it returns the original text and false; the failure is counted and logged.
func (s *Stage) TranslateToTarget(ctx context.Context, text, lang string) (string, bool) {
	translated, ok, _ := s.translate(ctx, text, lang)
	return translated, ok
}

func (s *Stage) translate(ctx context.Context, text, lang string) (string, bool, bool) {
	if s.translator == nil || lang == s.target || strings.TrimSpace(text) == "" {
		return text, false, false
	}
	out, err := s.translator.Translate(ctx, text, s.target)
	if err != nil {
		metrics.ObserveTranslationFailure()
		s.logger.Warn("translation failed, using original text",
			zap.String("source_language", lang),
			zap.String("target_language", s.target),
			zap.Int("text_len", len(text)),
			zap.Error(err),
		)
		return text, false, true
	}
	return out, true, false
}

// Prepare detects the language and, if needed, translates the text.
func (s *Stage) Prepare(ctx context.Context, text string) Prepared {
	lang := s.DetectLanguage(text)
	analysis, translated, failed := s.translate(ctx, text, lang)
	return Prepared{
		Original:          text,
		Language:          lang,
		AnalysisText:      analysis,
		Translated:        translated,
		TranslationFailed: failed,
	}
}
