// Package session owns the single authenticated browser used for collection.
// A Manager lazily logs in on first use, hands the live session to callers,
// and rebuilds it when the browser dies.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/analytica/internal/logging"
	"github.com/JakeFAU/analytica/internal/metrics"
	"github.com/JakeFAU/analytica/internal/social"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("session manager closed")

// ErrNoSession is returned by Probe before the first login.
var ErrNoSession = errors.New("no active session")

// Credentials are the platform login. Password never renders in logs.
type Credentials struct {
	Email    string
	Username string
	Password logging.Secret
}

// Validate requires the fields every login needs.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: username is required", social.ErrInvalidInput)
	}
	if c.Password == "" {
		return fmt.Errorf("%w: password is required", social.ErrInvalidInput)
	}
	return nil
}

// String implements fmt.Stringer without exposing any secret.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{username:%s email:%s password:%s}",
		logging.Redact(c.Username), logging.Redact(c.Email), c.Password)
}

// GoString keeps %#v redacted.
func (c Credentials) GoString() string {
	return c.String()
}

// MarshalLogObject lets zap log which credentials are configured.
func (c Credentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddBool("username_set", c.Username != "")
	enc.AddBool("email_set", c.Email != "")
	enc.AddBool("password_set", c.Password != "")
	return nil
}

// Config holds the login page URL, form selectors and pacing.
type Config struct {
	LoginURL          string
	UsernameSelector  string
	PasswordSelector  string
	ChallengeSelector string
	SettleDelay       time.Duration
}

// DefaultConfig returns the selectors used by the platform's login flow.
func DefaultConfig(baseURL string) Config {
	if baseURL == "" {
		baseURL = "https://twitter.com"
	}
	return Config{
		LoginURL:          strings.TrimRight(baseURL, "/") + "/i/flow/login",
		UsernameSelector:  `input[autocomplete="username"]`,
		PasswordSelector:  `input[autocomplete="current-password"]`,
		ChallengeSelector: `input[data-testid="ocfEnterTextTextInput"]`,
		SettleDelay:       3 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig("")
	if c.LoginURL == "" {
		c.LoginURL = def.LoginURL
	}
	if c.UsernameSelector == "" {
		c.UsernameSelector = def.UsernameSelector
	}
	if c.PasswordSelector == "" {
		c.PasswordSelector = def.PasswordSelector
	}
	if c.ChallengeSelector == "" {
		c.ChallengeSelector = def.ChallengeSelector
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	return c
}

// State is the lifecycle of a Session.
type State int32

const (
	StateUninitialized State = iota
	StateActive
	StateDead
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDead:
		return "dead"
	default:
		return "uninitialized"
	}
}

// Session is an authenticated browser. Once Dead it is never reused.
type Session struct {
	browser    social.Browser
	generation int
	createdAt  time.Time
	state      atomic.Int32
}

// Browser returns the underlying browser.
func (s *Session) Browser() social.Browser { return s.browser }

// Generation counts logins performed by the owning manager.
func (s *Session) Generation() int { return s.generation }

// CreatedAt is when the login completed.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Manager builds and hands out the authenticated session.
type Manager struct {
	launcher social.Launcher
	creds    Credentials
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time

	// building admits one login at a time; mu guards the fields below and
	// is never held across browser calls.
	building chan struct{}

	mu         sync.Mutex
	current    *Session
	generation int
	closed     bool
}

// NewManager validates credentials and returns a Manager with no session yet.
func NewManager(launcher social.Launcher, creds Credentials, cfg Config, logger *zap.Logger) (*Manager, error) {
	if launcher == nil {
		return nil, errors.New("launcher is required")
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		launcher: launcher,
		creds:    creds,
		cfg:      cfg.withDefaults(),
		logger:   logger.Named("session"),
		now:      time.Now,
		building: make(chan struct{}, 1),
	}, nil
}

// State reports the state of the current session, or Uninitialized.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		if m.generation > 0 {
			return StateDead
		}
		return StateUninitialized
	}
	return m.current.State()
}

// Acquire returns a live session, logging in when there is none or the
// current one no longer answers. Concurrent callers wait for a single login.
// State and Probe stay responsive while a login is in progress.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	select {
	case m.building <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for session: %w", ctx.Err())
	}
	defer func() { <-m.building }()

	m.mu.Lock()
	closed, s := m.closed, m.current
	m.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if s != nil && s.State() == StateActive {
		err := s.browser.Alive(ctx)
		if err == nil {
			return s, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("probe session: %w", ctx.Err())
		}
		m.logger.Warn("session no longer alive, rebuilding",
			zap.Int("generation", s.generation), zap.Error(err))
		m.Invalidate(s)
	}

	s, err := m.build(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.teardown(s)
		return nil, ErrClosed
	}
	m.current = s
	m.mu.Unlock()
	return s, nil
}

func (m *Manager) build(ctx context.Context) (*Session, error) {
	start := m.now()
	m.logger.Info("building session", zap.Object("credentials", m.creds))

	b, err := m.launcher.Launch(ctx)
	if err != nil {
		metrics.ObserveSessionBuild("launch_error")
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	if err := m.login(ctx, b); err != nil {
		metrics.ObserveSessionBuild("auth_error")
		if closeErr := b.Close(); closeErr != nil {
			m.logger.Warn("close browser after failed login", zap.Error(closeErr))
		}
		return nil, err
	}

	m.mu.Lock()
	m.generation++
	s := &Session{browser: b, generation: m.generation, createdAt: m.now()}
	m.mu.Unlock()
	s.state.Store(int32(StateActive))
	metrics.ObserveSessionBuild("success")
	m.logger.Info("session ready",
		zap.Int("generation", s.generation),
		zap.Duration("elapsed", m.now().Sub(start)))
	return s, nil
}

func (m *Manager) login(ctx context.Context, b social.Browser) error {
	page, err := b.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("%w: open login tab: %w", social.ErrAuthentication, err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			m.logger.Debug("close login tab", zap.Error(closeErr))
		}
	}()
	flow := &authFlow{page: page, cfg: m.cfg, creds: m.creds, logger: m.logger, step: StepStart}
	return flow.run(ctx)
}

// Use runs fn with a live session. When fn reports a lost session the
// session is invalidated so the next caller logs in again.
func (m *Manager) Use(ctx context.Context, fn func(*Session) error) error {
	s, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	err = fn(s)
	if errors.Is(err, social.ErrSessionLost) {
		m.Invalidate(s)
	}
	return err
}

// Invalidate marks s Dead and closes its browser. It is safe to call on a
// session that was already replaced.
func (m *Manager) Invalidate(s *Session) {
	if s == nil {
		return
	}
	m.mu.Lock()
	if m.current == s {
		m.current = nil
	}
	m.mu.Unlock()
	m.teardown(s)
}

func (m *Manager) teardown(s *Session) {
	if State(s.state.Swap(int32(StateDead))) == StateDead {
		return
	}
	if err := s.browser.Close(); err != nil {
		m.logger.Warn("close dead session", zap.Int("generation", s.generation), zap.Error(err))
	}
}

// Probe checks the current session without rebuilding it.
func (m *Manager) Probe(ctx context.Context) error {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return ErrNoSession
	}
	if err := s.browser.Alive(ctx); err != nil {
		return fmt.Errorf("probe session: %w", err)
	}
	return nil
}

// Close tears down the current session and rejects further Acquire calls.
// A login still in progress is discarded when it completes.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	s := m.current
	m.current = nil
	m.mu.Unlock()
	if s != nil {
		m.teardown(s)
	}
	return nil
}
