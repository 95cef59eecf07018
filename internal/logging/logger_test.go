package logging

import (
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

// TestSecretNeverRenders checks fmt verbs and zap fields keep the value hidden.
func TestSecretNeverRenders(t *testing.T) {
	t.Parallel()

	s := Secret("hunter2")
	for _, out := range []string{
		fmt.Sprintf("%v", s),
		fmt.Sprintf("%s", s),
		fmt.Sprintf("%#v", s),
		fmt.Sprint(struct{ P Secret }{s}),
	} {
		if strings.Contains(out, "hunter2") {
			t.Fatalf("secret leaked in %q", out)
		}
	}
	if s.Reveal() != "hunter2" {
		t.Fatal("Reveal() must return the raw value")
	}
	if Redact("") != "" {
		t.Fatal("empty secrets should stay empty")
	}

	core, logs := observer.New(zap.DebugLevel)
	zap.New(core).Info("login", zap.Object("password", s), zap.Stringer("again", s))
	for _, entry := range logs.All() {
		for k, v := range entry.ContextMap() {
			if strings.Contains(fmt.Sprint(v), "hunter2") {
				t.Fatalf("secret leaked in field %s", k)
			}
		}
	}
}
