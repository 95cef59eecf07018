package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/analytica/internal/social"
)

var _ social.PostStore = (*PostStore)(nil)

func strPtr(s string) *string { return &s }

func samplePost() social.LabeledPost {
	return social.LabeledPost{
		Post: social.Post{
			PlatformID: "1790001",
			Handle:     "@nasa",
			Text:       "Liftoff!",
			Timestamp:  "2024-05-01T12:30:00.000Z",
		},
		Language:    "en",
		Labels:      map[string]string{"sentiment": "Positive", "emotion": "joy"},
		Unavailable: []string{"toxicity"},
		RunID:       "run-1",
		CollectedAt: time.Unix(1714566600, 0).UTC(),
	}
}

func TestPostStoreUpsert(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostStore(mock, "")
	require.NoError(t, err)

	post := samplePost()
	mock.ExpectExec(`(?s)INSERT INTO posts.*ON CONFLICT \(platform_id, posted_at\) DO UPDATE SET.*COALESCE\(EXCLUDED.sentiment, posts.sentiment\)`).
		WithArgs(
			"1790001",
			time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
			"@nasa",
			"Liftoff!",
			"en",
			(*string)(nil),
			strPtr("Positive"),
			(*string)(nil),
			strPtr("joy"),
			[]string{"toxicity"},
			"run-1",
			post.CollectedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Upsert(context.Background(), post))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostStoreUpsertKeepsStoredLabelsOutOfUnavailable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostStore(mock, "")
	require.NoError(t, err)

	mock.ExpectExec(`(?s)unavailable = ARRAY\(\s*SELECT d FROM unnest\(EXCLUDED.unavailable\) AS d.*` +
		`\(d = 'sentiment' AND posts.sentiment IS NOT NULL\).*` +
		`\(d = 'toxicity' AND posts.toxicity IS NOT NULL\).*` +
		`\(d = 'emotion' AND posts.emotion IS NOT NULL\)`).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Upsert(context.Background(), samplePost()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostStoreUpsertSameKeyTwice(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostStore(mock, "posts")
	require.NoError(t, err)

	first := samplePost()
	second := samplePost()
	second.Text = "Liftoff! (edited)"

	for _, p := range []social.LabeledPost{first, second} {
		mock.ExpectExec(`INSERT INTO posts`).
			WithArgs(
				p.PlatformID, pgxmock.AnyArg(), p.Handle, p.Text, p.Language,
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), p.RunID, pgxmock.AnyArg(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	require.NoError(t, s.Upsert(context.Background(), first))
	require.NoError(t, s.Upsert(context.Background(), second))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostStoreUpsertErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostStore(mock, "posts")
	require.NoError(t, err)

	bad := samplePost()
	bad.Timestamp = "not-a-time"
	require.Error(t, s.Upsert(context.Background(), bad))

	mock.ExpectExec(`INSERT INTO posts`).WillReturnError(errors.New("conn reset"))
	err = s.Upsert(context.Background(), samplePost())
	require.ErrorContains(t, err, "conn reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPostStore(nil, "posts")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewPostStore(mock, "posts; DROP TABLE x")
	require.Error(t, err)
}

func TestNewPoolRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewPool(context.Background(), Config{})
	require.Error(t, err)
	_, err = NewPool(context.Background(), Config{DSN: "://bad"})
	require.Error(t, err)
}
