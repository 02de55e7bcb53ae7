// internal/browser/session/page.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/internal/browser"
)

const loadPollInterval = 250 * time.Millisecond

// Page is a browser.Page backed by a chromedp tab.
type Page struct {
	id             string
	ctx            context.Context
	cancel         context.CancelFunc
	logger         *zap.Logger
	defaultTimeout time.Duration
	onClose        func(*Page)

	mu     sync.Mutex
	closed bool
}

var _ browser.Page = (*Page)(nil)

func newPage(ctx context.Context, cancel context.CancelFunc, defaultTimeout time.Duration, logger *zap.Logger) *Page {
	id := uuid.NewString()
	return &Page{
		id:             id,
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger.With(zap.String("page_id", id)),
		defaultTimeout: defaultTimeout,
	}
}

// ID identifies the tab in logs.
func (p *Page) ID() string { return p.id }

// run executes actions against the tab. The operation ends when the tab
// closes, when ctx ends, or after the default timeout if ctx has no deadline.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancelOp := WithDefaultTimeout(ctx, p.defaultTimeout)
	defer cancelOp()

	runCtx, cancel := CombineContext(p.ctx, opCtx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if opCtx.Err() != nil {
			return fmt.Errorf("%w: %w", err, opCtx.Err())
		}
		return err
	}
	return nil
}

func queryOptions(loc browser.Locator) []chromedp.QueryOption {
	if loc.IsXPath() {
		return []chromedp.QueryOption{chromedp.BySearch}
	}
	return []chromedp.QueryOption{chromedp.ByQuery}
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s: %w", browser.ErrNavigationTimeout, url, err)
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *Page) WaitLoaded(ctx context.Context) error {
	var ready bool
	err := p.run(ctx, chromedp.Poll(`document.readyState === "complete"`, &ready,
		chromedp.WithPollingInterval(loadPollInterval)))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: page never finished loading: %w", browser.ErrNavigationTimeout, err)
		}
		return fmt.Errorf("failed waiting for page load: %w", err)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read page URL: %w", err)
	}
	return url, nil
}

func (p *Page) WaitVisible(ctx context.Context, loc browser.Locator) error {
	if err := p.run(ctx, chromedp.WaitVisible(loc.Query(), queryOptions(loc)...)); err != nil {
		return fmt.Errorf("%s never became visible: %w", loc, err)
	}
	return nil
}

func (p *Page) WaitEnabled(ctx context.Context, loc browser.Locator) error {
	if err := p.run(ctx, chromedp.WaitEnabled(loc.Query(), queryOptions(loc)...)); err != nil {
		return fmt.Errorf("%s never became enabled: %w", loc, err)
	}
	return nil
}

func (p *Page) ScrollIntoView(ctx context.Context, loc browser.Locator) error {
	if err := p.run(ctx, chromedp.ScrollIntoView(loc.Query(), queryOptions(loc)...)); err != nil {
		return fmt.Errorf("failed to scroll %s into view: %w", loc, err)
	}
	return nil
}

func (p *Page) Click(ctx context.Context, loc browser.Locator) error {
	opts := append(queryOptions(loc), chromedp.NodeVisible)
	if err := p.run(ctx, chromedp.Click(loc.Query(), opts...)); err != nil {
		return fmt.Errorf("failed to click %s: %w", loc, err)
	}
	return nil
}

func (p *Page) SendKeys(ctx context.Context, loc browser.Locator, keys string) error {
	opts := append(queryOptions(loc), chromedp.NodeVisible)
	if err := p.run(ctx, chromedp.SendKeys(loc.Query(), keys, opts...)); err != nil {
		return fmt.Errorf("failed to type into %s: %w", loc, err)
	}
	return nil
}

func (p *Page) ScrollBy(ctx context.Context, dy int) error {
	script := fmt.Sprintf("window.scrollBy(0, %d)", dy)
	if err := p.run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("failed to scroll by %d: %w", dy, err)
	}
	return nil
}

// Screenshot captures the full page. Quality 100 makes chromedp emit PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// Close closes the tab. It is safe to call more than once.
func (p *Page) Close(context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.logger.Debug("Closing page.")
	if p.cancel != nil {
		p.cancel()
	}
	if p.onClose != nil {
		p.onClose(p)
	}
	return nil
}
