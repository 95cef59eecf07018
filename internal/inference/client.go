// Package inference talks to the model-serving sidecars that back the
// classifier: a tokenizer service and a KServe v2 (Open Inference Protocol)
// model server.
package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/analytica/internal/classifier"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultMaxTokens = 512
)

// ErrUnavailable marks a sidecar that is unreachable or reports the model as not ready.
var ErrUnavailable = errors.New("inference backend unavailable")

// DefaultModels maps each dimension to its served model name.
var DefaultModels = map[string]string{
	string(classifier.Sentiment): "twitter-roberta-base-sentiment",
	string(classifier.Toxicity):  "twitter-roberta-base-offensive",
	string(classifier.Emotion):   "twitter-roberta-base-emotion",
}

// Config points the client at its sidecars.
type Config struct {
	TokenizerURL string
	ModelURL     string
	Timeout      time.Duration
	MaxTokens    int
	// Models overrides DefaultModels per dimension name.
	Models map[string]string
}

// Client implements classifier.Loader over HTTP.
type Client struct {
	tokenizer *resty.Client
	server    *resty.Client
	maxTokens int
	models    map[string]string
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.TokenizerURL) == "" {
		return nil, fmt.Errorf("inference.tokenizer_url is required")
	}
	if strings.TrimSpace(cfg.ModelURL) == "" {
		return nil, fmt.Errorf("inference.model_url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	models := make(map[string]string, len(DefaultModels))
	for k, v := range DefaultModels {
		models[k] = v
	}
	for k, v := range cfg.Models {
		if strings.TrimSpace(v) != "" {
			models[strings.ToLower(k)] = v
		}
	}
	return &Client{
		tokenizer: newRestyClient(cfg.TokenizerURL, timeout),
		server:    newRestyClient(cfg.ModelURL, timeout),
		maxTokens: maxTokens,
		models:    models,
	}, nil
}

func newRestyClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
}

// ModelName returns the served model for d.
func (c *Client) ModelName(d classifier.Dimension) (string, error) {
	name, ok := c.models[string(d)]
	if !ok {
		return "", fmt.Errorf("%w %q", classifier.ErrUnknownDimension, d)
	}
	return name, nil
}

// Load checks model readiness and returns HTTP-backed tokenizer and model handles.
func (c *Client) Load(ctx context.Context, d classifier.Dimension) (classifier.Tokenizer, classifier.Model, error) {
	name, err := c.ModelName(d)
	if err != nil {
		return nil, nil, err
	}
	if err := c.Ready(ctx, name); err != nil {
		return nil, nil, err
	}
	return &Tokenizer{client: c.tokenizer, model: name, maxTokens: c.maxTokens},
		&Model{client: c.server, name: name},
		nil
}

// Ready calls GET /v2/models/{name}/ready.
func (c *Client) Ready(ctx context.Context, name string) error {
	resp, err := c.server.R().
		SetContext(ctx).
		Get("/v2/models/" + url.PathEscape(name) + "/ready")
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, name, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: %s: ready returned %d", ErrUnavailable, name, resp.StatusCode())
	}
	return nil
}
