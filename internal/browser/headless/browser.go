// Package headless drives Chrome through chromedp for the authenticated
// collection session. One Browser is one Chrome process; every Page is a tab
// sharing that process's cookies.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/analytica/internal/social"
)

// Config controls browser launch and per-operation budgets.
type Config struct {
	Headless       bool
	UserAgent      string
	ExecPath       string
	WindowWidth    int
	WindowHeight   int
	MaxTabs        int
	OpTimeout      time.Duration
	ProbeTimeout   time.Duration
	StartupTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1280
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 2000
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 30 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 45 * time.Second
	}
	return c
}

// Launcher starts Chrome processes.
type Launcher struct {
	cfg Config
}

// NewLauncher validates cfg and returns a Launcher.
func NewLauncher(cfg Config) (*Launcher, error) {
	if cfg.MaxTabs < 0 {
		return nil, fmt.Errorf("max tabs must be >= 0")
	}
	return &Launcher{cfg: cfg.withDefaults()}, nil
}

func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if l.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(l.cfg.WindowWidth, l.cfg.WindowHeight),
	)
	if l.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

// Launch starts a fresh Chrome process with an empty profile.
func (l *Launcher) Launch(ctx context.Context) (social.Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	timer := time.NewTimer(l.cfg.StartupTimeout)
	defer timer.Stop()
	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("chromedp start: %w", err)
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp start: %w", ctx.Err())
	case <-timer.C:
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp start: timed out after %s", l.cfg.StartupTimeout)
	}

	var limiter chan struct{}
	if l.cfg.MaxTabs > 0 {
		limiter = make(chan struct{}, l.cfg.MaxTabs)
	}
	return &Browser{
		cfg:           l.cfg,
		ctx:           browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		limiter:       limiter,
	}, nil
}

// Browser is a running Chrome process.
type Browser struct {
	cfg           Config
	ctx           context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	limiter       chan struct{}
	closeOnce     sync.Once
}

// Alive asks the browser for its version over CDP.
func (b *Browser) Alive(ctx context.Context) error {
	if b.ctx.Err() != nil {
		return fmt.Errorf("%w: %w", social.ErrSessionLost, b.ctx.Err())
	}
	c := chromedp.FromContext(b.ctx)
	if c == nil || c.Browser == nil {
		return fmt.Errorf("%w: browser not allocated", social.ErrSessionLost)
	}
	probeCtx, cancel := context.WithTimeout(ctx, b.cfg.ProbeTimeout)
	defer cancel()
	if _, _, _, _, _, err := browser.GetVersion().Do(cdp.WithExecutor(probeCtx, c.Browser)); err != nil {
		return fmt.Errorf("%w: version probe: %w", social.ErrSessionLost, err)
	}
	return nil
}

// NewPage opens a tab. Close must be called to release it.
func (b *Browser) NewPage(ctx context.Context) (social.Page, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(b.ctx)
	if err := chromedp.Run(tabCtx, b.networkSetupAction()); err != nil {
		tabCancel()
		b.release()
		return nil, b.wrap("open tab", err)
	}
	return &Page{browser: b, ctx: tabCtx, cancel: tabCancel}, nil
}

// Close terminates the Chrome process. It is idempotent.
func (b *Browser) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.ctx.Err() == nil {
			if cancelErr := chromedp.Cancel(b.ctx); cancelErr != nil && !errors.Is(cancelErr, context.Canceled) {
				err = fmt.Errorf("close browser: %w", cancelErr)
			}
		}
		b.browserCancel()
		b.allocCancel()
	})
	return err
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tab slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

// wrap tags err as a lost session when the browser itself has gone away.
func (b *Browser) wrap(op string, err error) error {
	if b.ctx.Err() != nil {
		return fmt.Errorf("%s: %w: %w", op, social.ErrSessionLost, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
