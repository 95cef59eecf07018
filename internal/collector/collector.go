// Package collector scrolls a profile or hashtag feed in an authenticated
// browser and extracts posts from the rendered cards.
package collector

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/analytica/internal/metrics"
	"github.com/JakeFAU/analytica/internal/social"
)

// Stop reasons reported in logs and metrics.
const (
	StopLimit    = "limit"
	StopStagnant = "stagnant"
	StopCanceled = "canceled"
	StopError    = "error"
)

// Config tunes the scroll loop.
type Config struct {
	BaseURL      string
	CardSelector string
	// Window is how many of the most recently rendered cards are inspected per pass.
	Window      int
	MaxStagnant int
	ScrollStep  int
	SettleDelay time.Duration
	NavSettle   time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://twitter.com"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.CardSelector == "" {
		c.CardSelector = `article[data-testid="tweet"]`
	}
	if c.Window <= 0 {
		c.Window = 20
	}
	if c.MaxStagnant <= 0 {
		c.MaxStagnant = 5
	}
	if c.ScrollStep <= 0 {
		c.ScrollStep = 2000
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.NavSettle < 0 {
		c.NavSettle = 0
	}
	return c
}

// Waiter paces navigations.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Collector runs collection passes.
type Collector struct {
	cfg     Config
	hasher  social.Hasher
	limiter Waiter
	logger  *zap.Logger
}

// New returns a Collector. limiter may be nil.
func New(cfg Config, hasher social.Hasher, limiter Waiter, logger *zap.Logger) (*Collector, error) {
	if hasher == nil {
		return nil, errors.New("hasher is required")
	}
	cfg = cfg.withDefaults()
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{cfg: cfg, hasher: hasher, limiter: limiter, logger: logger.Named("collector")}, nil
}

// TargetURL returns the page a request navigates to.
func (c *Collector) TargetURL(req social.Request) string {
	switch req.Kind {
	case social.TargetHashtag:
		u := c.cfg.BaseURL + "/hashtag/" + url.PathEscape(req.Target) + "?src=hashtag_click"
		if req.Recency != social.RecencyTop {
			u += "&f=live"
		}
		return u
	default:
		return c.cfg.BaseURL + "/" + url.PathEscape(req.Target)
	}
}

// Collect gathers up to req.Limit posts in encounter order. It may return
// fewer, including none, which is not an error. When ctx ends mid-pass the
// posts gathered so far are returned along with the context error.
func (c *Collector) Collect(ctx context.Context, b social.Browser, req social.Request) ([]social.Post, error) {
	req = req.WithDefaults(social.DefaultLimit)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	target := c.TargetURL(req)
	logger := c.logger.With(zap.String("target", req.String()), zap.Int("limit", req.Limit))

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, target); err != nil {
			return nil, err
		}
	}
	page, err := b.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			logger.Debug("close tab", zap.Error(closeErr))
		}
	}()

	if err := page.Navigate(ctx, target); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", target, err)
	}
	if err := sleep(ctx, c.cfg.NavSettle); err != nil {
		return nil, err
	}

	pass := &pass{
		Collector: c,
		page:      page,
		req:       req,
		logger:    logger,
		seen:      make(map[string]struct{}),
	}
	posts, reason, err := pass.run(ctx)
	metrics.ObserveCollectStop(reason)
	logger.Info("collection finished",
		zap.String("reason", reason),
		zap.Int("collected", len(posts)),
		zap.Int("failures", pass.failures),
		zap.Int("scrolls", pass.scrolls))
	return posts, err
}

// pass holds the state of one Collect call.
type pass struct {
	*Collector
	page   social.Page
	req    social.Request
	logger *zap.Logger

	seen     map[string]struct{}
	posts    []social.Post
	failures int
	scrolls  int
}

func (p *pass) run(ctx context.Context) ([]social.Post, string, error) {
	height, err := p.page.ScrollHeight(ctx)
	if err != nil {
		return p.posts, p.stopReason(ctx), fmt.Errorf("read scroll height: %w", err)
	}
	stagnant := 0
	for {
		added, err := p.harvest(ctx)
		if err != nil {
			return p.posts, p.stopReason(ctx), err
		}
		if len(p.posts) >= p.req.Limit {
			return p.posts, StopLimit, nil
		}

		if err := p.page.ScrollBy(ctx, p.cfg.ScrollStep); err != nil {
			return p.posts, p.stopReason(ctx), fmt.Errorf("scroll: %w", err)
		}
		p.scrolls++
		if err := sleep(ctx, p.cfg.SettleDelay); err != nil {
			return p.posts, StopCanceled, err
		}
		next, err := p.page.ScrollHeight(ctx)
		if err != nil {
			return p.posts, p.stopReason(ctx), fmt.Errorf("read scroll height: %w", err)
		}

		if next == height && added == 0 {
			stagnant++
			if stagnant >= p.cfg.MaxStagnant {
				return p.posts, StopStagnant, nil
			}
		} else {
			stagnant = 0
		}
		height = next
	}
}

// harvest inspects the trailing window of rendered cards and returns how
// many qualifying posts it appended.
func (p *pass) harvest(ctx context.Context) (int, error) {
	cards, err := p.page.Cards(ctx, p.cfg.CardSelector)
	if err != nil {
		return 0, fmt.Errorf("list cards: %w", err)
	}
	if len(cards) > p.cfg.Window {
		cards = cards[len(cards)-p.cfg.Window:]
	}
	added := 0
	for _, card := range cards {
		if len(p.posts) >= p.req.Limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return added, err
		}
		post, err := p.extract(ctx, card)
		if err != nil {
			p.failures++
			metrics.ObserveExtractionFailure(string(p.req.Kind))
			p.logger.Debug("skipping card", zap.Error(err))
			continue
		}
		fp, err := post.Fingerprint(p.hasher)
		if err != nil {
			p.failures++
			p.logger.Debug("skipping card", zap.Error(err))
			continue
		}
		if _, dup := p.seen[fp]; dup {
			continue
		}
		p.seen[fp] = struct{}{}
		if !Relevant(p.req, post) {
			continue
		}
		p.posts = append(p.posts, post)
		added++
		metrics.ObservePostCollected(string(p.req.Kind))
	}
	return added, nil
}

func (p *pass) extract(ctx context.Context, card social.Card) (social.Post, error) {
	markup, err := card.HTML(ctx)
	if err != nil {
		return social.Post{}, fmt.Errorf("read card: %w", err)
	}
	return Extract(markup)
}

func (p *pass) stopReason(ctx context.Context) string {
	if ctx.Err() != nil {
		return StopCanceled
	}
	return StopError
}

// Relevant reports whether a post belongs in the result for req. A profile
// keeps only the account's own non-empty posts; a hashtag keeps everything.
func Relevant(req social.Request, post social.Post) bool {
	if req.Kind != social.TargetProfile {
		return true
	}
	if strings.TrimSpace(post.Text) == "" {
		return false
	}
	return strings.EqualFold(post.Handle, "@"+strings.TrimPrefix(req.Target, "@"))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
