package collector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/analytica/internal/social/socialtest"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	post, err := Extract(socialtest.PostHTML("1790001", "@nasa", "Liftoff! #Artemis", "2024-05-01T12:30:00.000Z"))
	require.NoError(t, err)
	require.Equal(t, "1790001", post.PlatformID)
	require.Equal(t, "@nasa", post.Handle)
	require.Equal(t, "Liftoff! #Artemis", post.Text)
	require.Equal(t, "2024-05-01T12:30:00.000Z", post.Timestamp)
}

func TestExtractPrefersTimestampPermalink(t *testing.T) {
	t.Parallel()

	markup := `<article data-testid="tweet">
<span>@esa</span>
<a href="/someone/status/111/photo/1"><img></a>
<a href="/esa/status/222?s=20"><time datetime="2024-05-01T12:30:00Z">1h</time></a>
<div data-testid="tweetText">quoting</div>
</article>`
	post, err := Extract(markup)
	require.NoError(t, err)
	require.Equal(t, "222", post.PlatformID)
}

func TestExtractMissingFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		markup string
	}{
		{
			name:   "no handle",
			markup: `<article><a href="/x/status/1"><time datetime="2024-05-01T12:30:00Z"></time></a><div data-testid="tweetText">hi</div></article>`,
		},
		{
			name:   "no text node",
			markup: `<article><span>@x</span><a href="/x/status/1"><time datetime="2024-05-01T12:30:00Z"></time></a></article>`,
		},
		{
			name:   "no timestamp",
			markup: `<article><span>@x</span><a href="/x/status/1">link</a><div data-testid="tweetText">hi</div></article>`,
		},
		{
			name:   "no status link",
			markup: `<article><span>@x</span><time datetime="2024-05-01T12:30:00Z"></time><div data-testid="tweetText">hi</div></article>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Extract(tt.markup)
			require.ErrorIs(t, err, ErrMissingField)
		})
	}
}

func TestExtractRejectsBadTimestamp(t *testing.T) {
	t.Parallel()

	_, err := Extract(socialtest.PostHTML("1", "@x", "hi", "yesterday"))
	require.Error(t, err)
}

func TestExtractAllowsEmptyText(t *testing.T) {
	t.Parallel()

	post, err := Extract(socialtest.PostHTML("1", "@x", "", "2024-05-01T12:30:00Z"))
	require.NoError(t, err)
	require.Empty(t, post.Text)
}
