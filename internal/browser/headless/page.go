package headless

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/JakeFAU/analytica/internal/social"
)

// Page is one browser tab.
type Page struct {
	browser   *Browser
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (b *Browser) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// run executes actions on the tab, bounded by the op timeout and by ctx.
func (p *Page) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(p.ctx, p.browser.cfg.OpTimeout)
	defer cancel()
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return p.browser.wrap(op, err)
	}
	return nil
}

// Navigate loads url and waits for the body to be ready.
func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, "navigate",
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Present reports whether selector currently matches at least one node.
func (p *Page) Present(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, "query "+selector,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

// Fill waits for selector to be visible, types value and optionally presses Enter.
func (p *Page) Fill(ctx context.Context, selector, value string, submit bool) error {
	actions := []chromedp.Action{
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	}
	if submit {
		actions = append(actions, chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery))
	}
	return p.run(ctx, "fill "+selector, actions...)
}

// Cards returns the nodes currently matching selector, in document order.
func (p *Page) Cards(ctx context.Context, selector string) ([]social.Card, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, "list "+selector,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	); err != nil {
		return nil, err
	}
	cards := make([]social.Card, 0, len(nodes))
	for _, n := range nodes {
		cards = append(cards, &Card{page: p, backendID: n.BackendNodeID})
	}
	return cards, nil
}

// ScrollBy scrolls the window vertically by px.
func (p *Page) ScrollBy(ctx context.Context, px int) error {
	return p.run(ctx, "scroll",
		chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", px), nil),
	)
}

// ScrollHeight returns document.body.scrollHeight.
func (p *Page) ScrollHeight(ctx context.Context) (int64, error) {
	var height float64
	if err := p.run(ctx, "scroll height",
		chromedp.Evaluate("document.body ? document.body.scrollHeight : 0", &height),
	); err != nil {
		return 0, err
	}
	return int64(height), nil
}

// Close closes the tab and frees its slot. It is idempotent.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		p.browser.release()
	})
	return nil
}

// Card is a node handle that can go stale when the feed re-renders.
type Card struct {
	page      *Page
	backendID cdp.BackendNodeID
}

// HTML returns the node's outer HTML.
func (c *Card) HTML(ctx context.Context) (string, error) {
	var html string
	err := c.page.run(ctx, "outer html", chromedp.ActionFunc(func(ctx context.Context) error {
		out, err := dom.GetOuterHTML().WithBackendNodeID(c.backendID).Do(ctx)
		if err != nil {
			return fmt.Errorf("get outer html: %w", err)
		}
		html = out
		return nil
	}))
	if err != nil {
		return "", err
	}
	return html, nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
