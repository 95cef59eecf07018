// Package socialtest provides scriptable in-memory browsers for tests.
package socialtest

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sync"

	"github.com/JakeFAU/analytica/internal/social"
)

// Fill records one Page.Fill call.
type Fill struct {
	Selector string
	Value    string
	Submit   bool
}

// Page is a fake tab. Visible drives Present and Fill; Feed drives Cards
// and scrolling, revealing PageSize more cards per scroll.
type Page struct {
	mu sync.Mutex

	Visible   map[string]bool
	AfterFill func(p *Page, f Fill)

	Feed     []social.Card
	PageSize int
	// FeedSelector limits Cards to one selector when set.
	FeedSelector string

	NavigateErr error
	CardsErr    error
	ScrollErr   error

	navigated []string
	fills     []Fill
	shown     int
	scrolls   int
	closed    bool
}

// NewPage returns a page with nothing visible.
func NewPage() *Page {
	return &Page{Visible: map[string]bool{}}
}

// Show marks selector as visible (or not).
func (p *Page) Show(selector string, visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.showLocked(selector, visible)
}

func (p *Page) showLocked(selector string, visible bool) {
	if p.Visible == nil {
		p.Visible = map[string]bool{}
	}
	p.Visible[selector] = visible
}

// Navigate implements social.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.shown = p.PageSize
	if p.shown <= 0 || p.shown > len(p.Feed) {
		p.shown = len(p.Feed)
	}
	return nil
}

// Present implements social.Page.
func (p *Page) Present(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Visible[selector], nil
}

// Fill implements social.Page. Filling a hidden selector fails the way a
// visibility wait would time out.
func (p *Page) Fill(ctx context.Context, selector, value string, submit bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if !p.Visible[selector] {
		p.mu.Unlock()
		return fmt.Errorf("wait visible %s: timeout", selector)
	}
	f := Fill{Selector: selector, Value: value, Submit: submit}
	p.fills = append(p.fills, f)
	hook := p.AfterFill
	p.mu.Unlock()
	if hook != nil {
		hook(p, f)
	}
	return nil
}

// Cards implements social.Page.
func (p *Page) Cards(ctx context.Context, selector string) ([]social.Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CardsErr != nil {
		return nil, p.CardsErr
	}
	if p.FeedSelector != "" && selector != p.FeedSelector {
		return nil, nil
	}
	out := make([]social.Card, p.shown)
	copy(out, p.Feed[:p.shown])
	return out, nil
}

// ScrollBy implements social.Page.
func (p *Page) ScrollBy(ctx context.Context, _ int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ScrollErr != nil {
		return p.ScrollErr
	}
	p.scrolls++
	step := p.PageSize
	if step <= 0 {
		step = len(p.Feed)
	}
	p.shown = min(p.shown+step, len(p.Feed))
	return nil
}

// ScrollHeight implements social.Page. Height tracks revealed cards.
func (p *Page) ScrollHeight(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return int64(p.shown) * 100, nil
}

// Close implements social.Page.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Navigated returns every URL passed to Navigate.
func (p *Page) Navigated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigated...)
}

// Fills returns every Fill call.
func (p *Page) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Fill(nil), p.fills...)
}

// Scrolls counts ScrollBy calls.
func (p *Page) Scrolls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrolls
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Card is a fake candidate node.
type Card struct {
	Markup string
	Err    error
}

// HTML implements social.Card.
func (c *Card) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.Err != nil {
		return "", c.Err
	}
	return c.Markup, nil
}

// StaleCard fails extraction the way a detached node does.
func StaleCard() *Card {
	return &Card{Err: errors.New("node is detached from document")}
}

// PostCard renders markup shaped like a platform post card.
func PostCard(id, handle, text, timestamp string) *Card {
	return &Card{Markup: PostHTML(id, handle, text, timestamp)}
}

// PostHTML returns the outer HTML of a post card.
func PostHTML(id, handle, text, timestamp string) string {
	user := html.EscapeString(handle)
	if len(user) > 0 && user[0] == '@' {
		user = user[1:]
	}
	return fmt.Sprintf(`<article data-testid="tweet">
<div data-testid="User-Name"><span>Display Name</span><span>%s</span></div>
<a href="/%s/status/%s"><time datetime="%s">1h</time></a>
<div data-testid="tweetText"><span>%s</span></div>
</article>`, html.EscapeString(handle), user, id, timestamp, html.EscapeString(text))
}

// Browser is a fake browser process handing out Pages.
type Browser struct {
	mu sync.Mutex

	// PageFactory builds each new tab; NewPage is used when nil.
	PageFactory func() *Page
	NewPageErr  error
	AliveErr    error
	CloseErr    error

	pages  []*Page
	closed bool
	probes int
}

// NewPage implements social.Browser.
func (b *Browser) NewPage(ctx context.Context) (social.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("new page: %w", social.ErrSessionLost)
	}
	if b.NewPageErr != nil {
		return nil, b.NewPageErr
	}
	var p *Page
	if b.PageFactory != nil {
		p = b.PageFactory()
	} else {
		p = NewPage()
	}
	b.pages = append(b.pages, p)
	return p, nil
}

// Alive implements social.Browser.
func (b *Browser) Alive(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probes++
	if b.closed {
		return fmt.Errorf("alive: %w", social.ErrSessionLost)
	}
	return b.AliveErr
}

// Kill makes the browser stop answering.
func (b *Browser) Kill() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.AliveErr = fmt.Errorf("alive: %w", social.ErrSessionLost)
}

// Close implements social.Browser.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.CloseErr
}

// Closed reports whether Close was called.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Pages returns every tab opened so far.
func (b *Browser) Pages() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Page(nil), b.pages...)
}

// Launcher hands out Browsers built by Factory.
type Launcher struct {
	mu sync.Mutex

	Factory func(n int) *Browser
	Err     error

	launched []*Browser
}

// Launch implements social.Launcher.
func (l *Launcher) Launch(ctx context.Context) (social.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	var b *Browser
	if l.Factory != nil {
		b = l.Factory(len(l.launched))
	} else {
		b = &Browser{}
	}
	l.launched = append(l.launched, b)
	return b, nil
}

// Launched returns every browser started so far.
func (l *Launcher) Launched() []*Browser {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Browser(nil), l.launched...)
}
