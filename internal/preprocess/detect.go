package preprocess

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// UnknownLanguage is returned whenever detection cannot produce a code.
const UnknownLanguage = "unknown"

// LanguageDetector guesses the language of a text.
type LanguageDetector interface {
	Detect(text string) string
}

// Detector detects languages with whatlanggo trigram profiles.
type Detector struct {
	minConfidence float64
}

// NewDetector returns a Detector. Guesses below minConfidence are reported as unknown.
func NewDetector(minConfidence float64) *Detector {
	return &Detector{minConfidence: minConfidence}
}

// Detect returns an ISO 639-1 code or UnknownLanguage. It never panics.
func (d *Detector) Detect(text string) (code string) {
	defer func() {
		if r := recover(); r != nil {
			code = UnknownLanguage
		}
	}()
	if strings.TrimSpace(text) == "" {
		return UnknownLanguage
	}
	info := whatlanggo.Detect(text)
	if info.Confidence < d.minConfidence {
		return UnknownLanguage
	}
	return canonicalLanguage(info.Lang.Iso6391())
}

// canonicalLanguage maps a raw code onto its base ISO 639-1 subtag.
func canonicalLanguage(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return UnknownLanguage
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return UnknownLanguage
	}
	base, conf := tag.Base()
	if conf == language.No {
		return UnknownLanguage
	}
	return base.String()
}
