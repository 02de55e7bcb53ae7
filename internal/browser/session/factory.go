// internal/browser/session/factory.go
package session

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/internal/browser"
	"github.com/xkilldash9x/autoapply/internal/browser/stealth"
	"github.com/xkilldash9x/autoapply/internal/config"
)

const (
	launchTimeout   = 60 * time.Second
	pageOpenTimeout = 30 * time.Second
)

// containerFlags keep headless Chromium stable inside containers.
var containerFlags = []string{
	"no-sandbox",
	"disable-setuid-sandbox",
	"disable-dev-shm-usage",
	"disable-gpu",
	"disable-software-rasterizer",
	"disable-extensions",
	"disable-background-networking",
	"disable-background-timer-throttling",
	"disable-backgrounding-occluded-windows",
	"disable-renderer-backgrounding",
}

// Factory launches stealth-configured Chromium instances.
type Factory struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

var _ browser.Launcher = (*Factory)(nil)

// NewFactory creates a Factory.
func NewFactory(cfg config.BrowserConfig, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger.Named("browser_factory"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// AllocatorOptions assembles the Chromium flags: chromedp defaults without the
// automation switch, the configured headless mode, container stability flags
// when headless, and any user supplied args.
func (f *Factory) AllocatorOptions(p stealth.Persona) []chromedp.ExecAllocatorOption {
	// Later flags override earlier ones, so the defaults' automation and
	// headless switches are replaced rather than filtered out.
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", f.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if p.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(p.UserAgent))
	}

	if f.cfg.Headless {
		for _, name := range containerFlags {
			opts = append(opts, chromedp.Flag(name, true))
		}
		opts = append(opts, chromedp.Flag("hide-scrollbars", true), chromedp.Flag("mute-audio", true))
	}
	if f.cfg.Debug {
		opts = append(opts, chromedp.Flag("start-maximized", true))
	} else if p.Width > 0 && p.Height > 0 {
		opts = append(opts, chromedp.WindowSize(p.Width, p.Height))
	}

	if f.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ExecPath))
	}

	for _, arg := range f.cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

func (f *Factory) persona() stealth.Persona {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := stealth.NewPersona(f.cfg, f.rng)
	if f.cfg.Debug {
		// A visible debugging window keeps its natural size.
		p.Width, p.Height = 0, 0
	}
	return p
}

// Launch starts Chromium and opens the first page. The browser outlives ctx;
// ctx only bounds how long startup may take.
func (f *Factory) Launch(ctx context.Context) (browser.Browser, browser.Page, error) {
	persona := f.persona()
	f.logger.Info("Launching browser.",
		zap.Bool("headless", f.cfg.Headless),
		zap.String("user_agent", persona.UserAgent))

	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), f.AllocatorOptions(persona)...)
	rootCtx, rootCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(f.logger.Sugar().Debugf),
		chromedp.WithErrorf(f.logger.Sugar().Debugf))

	b := &Browser{
		rootCtx:        rootCtx,
		rootCancel:     rootCancel,
		allocCancel:    allocCancel,
		persona:        persona,
		defaultTimeout: f.cfg.DefaultTimeout,
		logger:         f.logger,
		pages:          make(map[string]*Page),
	}

	// 1. Start the process. The first Run on a chromedp context allocates the
	// browser, so it must not carry a timeout of its own.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(rootCtx) }()

	startCtx, cancel := context.WithTimeout(ctx, launchTimeout)
	defer cancel()
	select {
	case err := <-started:
		if err != nil {
			b.shutdown()
			return nil, nil, fmt.Errorf("%w: %w", browser.ErrLaunch, err)
		}
	case <-startCtx.Done():
		b.shutdown()
		return nil, nil, fmt.Errorf("%w: browser did not start: %w", browser.ErrLaunch, startCtx.Err())
	}

	// 2. Open the working tab. Closing it must not close the browser, so it is
	// a sibling of the root tab rather than the root itself.
	page, err := b.NewPage(ctx)
	if err != nil {
		b.shutdown()
		return nil, nil, fmt.Errorf("%w: %w", browser.ErrLaunch, err)
	}

	f.logger.Info("Browser launched.")
	return b, page, nil
}

// Browser is a running Chromium process.
type Browser struct {
	rootCtx        context.Context
	rootCancel     context.CancelFunc
	allocCancel    context.CancelFunc
	persona        stealth.Persona
	defaultTimeout time.Duration
	logger         *zap.Logger

	mu     sync.Mutex
	pages  map[string]*Page
	closed bool
}

var _ browser.Browser = (*Browser)(nil)

// NewPage opens a new tab sharing cookies with every other tab, with the
// browser's persona applied.
func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("browser is closed")
	}
	b.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(b.rootCtx)
	p := newPage(tabCtx, tabCancel, b.defaultTimeout, b.logger)

	openCtx, cancel := WithDefaultTimeout(ctx, pageOpenTimeout)
	defer cancel()
	// The target is created on the first Run against tabCtx.
	runCtx, cancelRun := CombineContext(tabCtx, openCtx)
	defer cancelRun()
	if err := chromedp.Run(runCtx, stealth.Apply(b.persona, p.logger)); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	p.onClose = b.forget
	b.mu.Lock()
	b.pages[p.id] = p
	b.mu.Unlock()
	return p, nil
}

func (b *Browser) forget(p *Page) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pages, p.id)
}

// Close closes every tab and terminates the process. Idempotent.
func (b *Browser) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pages := make([]*Page, 0, len(b.pages))
	for _, p := range b.pages {
		pages = append(pages, p)
	}
	b.mu.Unlock()

	for _, p := range pages {
		_ = p.Close(ctx)
	}

	// Give Chromium a chance to exit cleanly before the allocator kills it.
	done := make(chan struct{})
	go func() {
		_ = chromedp.Cancel(b.rootCtx)
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("Browser did not close in time; killing it.", zap.Error(ctx.Err()))
	}

	b.shutdown()
	b.logger.Info("Browser closed.")
	return nil
}

func (b *Browser) shutdown() {
	b.rootCancel()
	b.allocCancel()
}
