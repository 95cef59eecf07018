package preprocess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrTranslation marks a translation backend failure.
var ErrTranslation = errors.New("translation failed")

// Translator converts text into the target language.
type Translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
}

// LibreConfig configures a LibreTranslate-compatible endpoint.
type LibreConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// LibreTranslator calls POST /translate on a LibreTranslate-compatible server.
type LibreTranslator struct {
	client *resty.Client
	apiKey string
}

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
}

type libreError struct {
	Error string `json:"error"`
}

// NewLibreTranslator builds a translator for the configured endpoint.
func NewLibreTranslator(cfg LibreConfig) (*LibreTranslator, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("translate url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &LibreTranslator{client: client, apiKey: cfg.APIKey}, nil
}

// Translate sends text with source auto-detection.
func (t *LibreTranslator) Translate(ctx context.Context, text, target string) (string, error) {
	var (
		out     libreResponse
		failure libreError
	)
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(libreRequest{
			Q:      text,
			Source: "auto",
			Target: target,
			Format: "text",
			APIKey: t.apiKey,
		}).
		SetResult(&out).
		SetError(&failure).
		Post("/translate")
	if err != nil {
		return "", fmt.Errorf("%w: request: %w", ErrTranslation, err)
	}
	if resp.IsError() {
		msg := failure.Error
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrTranslation, resp.StatusCode(), msg)
	}
	if strings.TrimSpace(out.TranslatedText) == "" {
		return "", fmt.Errorf("%w: empty translation", ErrTranslation)
	}
	return out.TranslatedText, nil
}
