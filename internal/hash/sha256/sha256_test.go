package sha256

import (
	"testing"

	"github.com/JakeFAU/analytica/internal/social"
)

var _ social.Hasher = (*Hasher)(nil)

// TestHasherHashDeterministic ensures repeated hashing yields the same digest.
func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

// TestPostFingerprintStable checks fingerprints depend only on the natural key.
func TestPostFingerprintStable(t *testing.T) {
	t.Parallel()

	h := New()
	a := social.Post{PlatformID: "1", Timestamp: "2024-05-01T10:00:00.000Z", Text: "first render"}
	b := social.Post{PlatformID: "1", Timestamp: "2024-05-01T10:00:00.000Z", Text: "edited render"}
	c := social.Post{PlatformID: "2", Timestamp: "2024-05-01T10:00:00.000Z"}

	fa, err := a.Fingerprint(h)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	fb, _ := b.Fingerprint(h)
	fc, _ := c.Fingerprint(h)
	if fa != fb {
		t.Fatalf("expected same fingerprint for same key, got %s vs %s", fa, fb)
	}
	if fa == fc {
		t.Fatalf("expected different fingerprints for different keys")
	}
}
