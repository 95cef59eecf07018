package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/analytica/internal/social"
)

// Label columns written by Upsert.
var labelColumns = []string{"sentiment", "toxicity", "emotion"}

// PostStore upserts labeled posts keyed by (platform_id, posted_at).
type PostStore struct {
	pool  Pool
	table string
}

// NewPostStore wraps pool. table defaults to "posts".
func NewPostStore(pool Pool, table string) (*PostStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table, "posts")
	if err != nil {
		return nil, err
	}
	return &PostStore{pool: pool, table: table}, nil
}

// Upsert inserts post or overwrites the row with the same natural key. Label
// columns this write did not produce keep their stored value, and a kept
// label drops its dimension from unavailable.
func (s *PostStore) Upsert(ctx context.Context, post social.LabeledPost) error {
	postedAt, err := post.PostedAt()
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (
	platform_id,
	posted_at,
	handle,
	text,
	language,
	translated_text,
	sentiment,
	toxicity,
	emotion,
	unavailable,
	run_id,
	collected_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
ON CONFLICT (platform_id, posted_at) DO UPDATE SET
	handle = EXCLUDED.handle,
	text = EXCLUDED.text,
	language = EXCLUDED.language,
	translated_text = EXCLUDED.translated_text,
	sentiment = COALESCE(EXCLUDED.sentiment, %[1]s.sentiment),
	toxicity = COALESCE(EXCLUDED.toxicity, %[1]s.toxicity),
	emotion = COALESCE(EXCLUDED.emotion, %[1]s.emotion),
	unavailable = ARRAY(
		SELECT d FROM unnest(EXCLUDED.unavailable) AS d
		WHERE NOT (
			(d = 'sentiment' AND %[1]s.sentiment IS NOT NULL) OR
			(d = 'toxicity' AND %[1]s.toxicity IS NOT NULL) OR
			(d = 'emotion' AND %[1]s.emotion IS NOT NULL)
		)
	),
	run_id = EXCLUDED.run_id,
	collected_at = EXCLUDED.collected_at`, s.table)

	unavailable := post.Unavailable
	if unavailable == nil {
		unavailable = []string{}
	}
	args := []any{
		post.PlatformID,
		postedAt,
		post.Handle,
		post.Text,
		post.Language,
		nullable(post.TranslatedText),
	}
	for _, col := range labelColumns {
		args = append(args, nullable(post.Labels[col]))
	}
	args = append(args, unavailable, post.RunID, post.CollectedAt)

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert post %s: %w", post.Key(), err)
	}
	return nil
}

// Ping checks connectivity.
func (s *PostStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
