package social

import (
	"context"
	"io"
	"time"
)

// Launcher starts a fresh, unauthenticated browser.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is one running browser process. Pages opened on it share cookies.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	// Alive returns nil when the browser still answers protocol calls.
	Alive(ctx context.Context) error
	Close() error
}

// Page is a single tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Present reports whether at least one node matches selector right now.
	Present(ctx context.Context, selector string) (bool, error)
	// Fill types value into the first node matching selector, optionally pressing Enter.
	Fill(ctx context.Context, selector, value string, submit bool) error
	// Cards returns every node currently matching selector, in document order.
	Cards(ctx context.Context, selector string) ([]Card, error)
	ScrollBy(ctx context.Context, px int) error
	ScrollHeight(ctx context.Context) (int64, error)
	Close() error
}

// Card is a rendered candidate element.
type Card interface {
	HTML(ctx context.Context) (string, error)
}

// PostStore persists labeled posts idempotently by natural key.
type PostStore interface {
	Upsert(ctx context.Context, post LabeledPost) error
}

// BlobStore writes run artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run summaries to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for scheduled jobs.
type Queue interface {
	Enqueue(ctx context.Context, job QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// QueueItem wraps a collection job ready to run.
type QueueItem struct {
	JobID      string   `json:"job_id"`
	Name       string   `json:"name"`
	Request    Request  `json:"request"`
	Dimensions []string `json:"dimensions"`
	Submitted  int64    `json:"submitted"`
}
