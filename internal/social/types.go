package social

import (
	"fmt"
	"strings"
	"time"
)

// TargetKind selects what a collection request points at.
type TargetKind string

const (
	// TargetProfile collects posts authored by a single account.
	TargetProfile TargetKind = "profile"
	// TargetHashtag collects posts from a hashtag feed.
	TargetHashtag TargetKind = "hashtag"
)

// Recency selects the ordering of a hashtag feed.
type Recency string

const (
	// RecencyLatest orders the feed newest first.
	RecencyLatest Recency = "latest"
	// RecencyTop uses the platform's ranking.
	RecencyTop Recency = "top"
)

// DefaultLimit is used when a request leaves Limit unset.
const DefaultLimit = 50

// Request describes one collection run.
type Request struct {
	Kind    TargetKind `json:"kind" mapstructure:"kind"`
	Target  string     `json:"target" mapstructure:"target"`
	Limit   int        `json:"limit" mapstructure:"limit"`
	Recency Recency    `json:"recency" mapstructure:"recency"`
}

// WithDefaults fills unset optional fields.
func (r Request) WithDefaults(defaultLimit int) Request {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if r.Limit == 0 {
		r.Limit = defaultLimit
	}
	if r.Recency == "" {
		r.Recency = RecencyLatest
	}
	r.Target = strings.TrimSpace(r.Target)
	if r.Kind == TargetProfile {
		r.Target = strings.TrimPrefix(r.Target, "@")
	}
	if r.Kind == TargetHashtag {
		r.Target = strings.TrimPrefix(r.Target, "#")
	}
	return r
}

// Validate rejects requests that cannot be served before any browser work starts.
func (r Request) Validate() error {
	switch r.Kind {
	case TargetProfile, TargetHashtag:
	default:
		return fmt.Errorf("%w: unknown target kind %q", ErrInvalidInput, r.Kind)
	}
	if strings.TrimSpace(r.Target) == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidInput)
	}
	if strings.ContainsAny(r.Target, " /?#&") {
		return fmt.Errorf("%w: target %q contains reserved characters", ErrInvalidInput, r.Target)
	}
	if r.Limit <= 0 {
		return fmt.Errorf("%w: limit must be > 0", ErrInvalidInput)
	}
	switch r.Recency {
	case RecencyLatest, RecencyTop:
	default:
		return fmt.Errorf("%w: unknown recency %q", ErrInvalidInput, r.Recency)
	}
	return nil
}

// String renders the request for logs.
func (r Request) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.Target)
}

// Post is one item as rendered by the platform.
type Post struct {
	PlatformID string `json:"platform_id"`
	Handle     string `json:"handle"`
	Text       string `json:"text"`
	Timestamp  string `json:"timestamp"`
}

// Key returns the natural key used for persistence. A parseable timestamp is
// rendered as its UTC instant so equal instants share a key in every store.
func (p Post) Key() string {
	ts := p.Timestamp
	if at, err := p.PostedAt(); err == nil {
		ts = at.Format(time.RFC3339Nano)
	}
	return p.PlatformID + "_" + ts
}

// Fingerprint returns a stable content hash of the natural key.
func (p Post) Fingerprint(h Hasher) (string, error) {
	sum, err := h.Hash([]byte(p.Key()))
	if err != nil {
		return "", fmt.Errorf("fingerprint post: %w", err)
	}
	return sum, nil
}

// PostedAt parses the rendered timestamp.
func (p Post) PostedAt() (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, p.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse post timestamp %q: %w", p.Timestamp, err)
	}
	return ts.UTC(), nil
}

// LabeledPost is a post after preprocessing and classification.
type LabeledPost struct {
	Post
	Language       string            `json:"language"`
	TranslatedText string            `json:"translated_text,omitempty"`
	Labels         map[string]string `json:"labels"`
	Unavailable    []string          `json:"unavailable,omitempty"`
	RunID          string            `json:"run_id"`
	CollectedAt    time.Time         `json:"collected_at"`
}

// Label returns the label recorded for a dimension, if any.
func (p LabeledPost) Label(dimension string) (string, bool) {
	v, ok := p.Labels[dimension]
	return v, ok
}
