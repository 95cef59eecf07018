package preprocess

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"mention and link", "hi @bob see http://x.co", "hi @user see http"},
		{"lone at sign kept", "meet @ noon", "meet @ noon"},
		{"https link", "read https://go.dev/doc now", "read http now"},
		{"collapses whitespace", "  a \t b\n\nc  ", "a b c"},
		{"http prefix without scheme", "httpbin rocks", "http rocks"},
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"multiple mentions", "@a @bb @ccc", "@user @user @user"},
		{"mention mid token untouched", "mail me a@b.com", "mail me a@b.com"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIsDeterministicAndIdempotent(t *testing.T) {
	t.Parallel()

	in := "RT @someone:   check https://t.co/abc and @other  #go"
	first := Normalize(in)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Normalize(in))
	}
	require.Equal(t, first, Normalize(first))
}

func FuzzNormalize(f *testing.F) {
	for _, seed := range []string{"hi @bob http://x", "", "@", "   "} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, in string) {
		out := Normalize(in)
		if out != Normalize(in) {
			t.Fatalf("Normalize(%q) not deterministic", in)
		}
		if Normalize(out) != out {
			t.Fatalf("Normalize(%q) not idempotent: %q", in, out)
		}
	})
}
