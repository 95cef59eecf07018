// Package storage selects the blob backend used for run archives and writes
// run snapshots to it.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/analytica/internal/social"
	"github.com/JakeFAU/analytica/internal/storage/gcs"
	"github.com/JakeFAU/analytica/internal/storage/local"
	"github.com/JakeFAU/analytica/internal/storage/memory"
)

// Backend names accepted by Open.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	BaseDir string
	Bucket  string
	Prefix  string
}

// Open returns the configured BlobStore and a close func. BackendNone yields
// a nil store, which callers treat as "archiving disabled".
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (social.BlobStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "", BackendNone:
		return nil, noop, nil
	case BackendMemory:
		return memory.NewBlobStore(), noop, nil
	case BackendLocal:
		s, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, noop, fmt.Errorf("local blob store: %w", err)
		}
		return s, noop, nil
	case BackendGCS:
		client, err := gcs.NewClient(ctx, cfg.Bucket, logger)
		if err != nil {
			return nil, noop, err
		}
		s, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("gcs blob store: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// RunArchivePath returns the object path of a run snapshot, partitioned by day.
func RunArchivePath(runID string, at time.Time) string {
	at = at.UTC()
	return path.Join("runs", at.Format("2006"), at.Format("01"), at.Format("02"), runID+".json")
}

// WriteJSON encodes v and stores it at name.
func WriteJSON(ctx context.Context, blobs social.BlobStore, name string, v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	uri, err := blobs.PutObject(ctx, name, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("put %s: %w", name, err)
	}
	return uri, nil
}
