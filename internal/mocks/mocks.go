// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/autoapply/internal/browser"
)

// ErrNotVisible is returned by FakePage when a waited-on selector is not on
// the scripted page.
var ErrNotVisible = errors.New("fake page: element not visible")

// ErrPageClosed is returned by operations on a closed FakePage.
var ErrPageClosed = errors.New("fake page: closed")

// PNG is the minimal payload FakePage returns as a screenshot.
var PNG = []byte("\x89PNG\r\n\x1a\n")

// -- Fake Page --

// FakePage is a scripted browser.Page. Selectors listed in Visible exist on
// the page; those also listed in Disabled never become enabled. Waits on
// missing selectors fail immediately rather than blocking until the deadline.
type FakePage struct {
	mu sync.Mutex

	Visible  map[string]bool
	Disabled map[string]bool
	// Redirects maps a clicked selector to the URL the page moves to.
	Redirects map[string]string
	// Matches lists the visibility of every node an XPath expression finds,
	// in document order. A wait passes only when every returned node is
	// visible, and a positional query "(expr)[n]" returns just the nth node.
	Matches map[string][]bool

	NavigateErr   error
	LoadErr       error
	ClickErr      map[string]error
	ScrollErr     error
	ScreenshotErr error

	currentURL string
	calls      []string
	typed      map[string]string
	scrolls    []int
	clicks     []string
	closed     bool
}

var _ browser.Page = (*FakePage)(nil)

// NewFakePage returns a page on which every selector in visible can be found.
func NewFakePage(visible ...string) *FakePage {
	p := &FakePage{
		Visible:   make(map[string]bool),
		Disabled:  make(map[string]bool),
		Redirects: make(map[string]string),
		Matches:   make(map[string][]bool),
		ClickErr:  make(map[string]error),
		typed:     make(map[string]string),
	}
	for _, s := range visible {
		p.Visible[s] = true
	}
	return p
}

// Show makes selectors present.
func (p *FakePage) Show(selectors ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		p.Visible[s] = true
	}
}

// Hide removes selectors.
func (p *FakePage) Hide(selectors ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		delete(p.Visible, s)
	}
}

var positional = regexp.MustCompile(`^\((.*)\)\[(\d+)\]$`)

// nodes returns the visibility of the nodes query would return, and false
// when the query is not scripted through Matches.
func (p *FakePage) nodes(query string) ([]bool, bool) {
	if m := positional.FindStringSubmatch(query); m != nil {
		if all, ok := p.Matches[m[1]]; ok {
			n, _ := strconv.Atoi(m[2])
			if n < 1 || n > len(all) {
				return nil, true
			}
			return all[n-1 : n], true
		}
	}
	all, ok := p.Matches[query]
	return all, ok
}

// visible must be called with p.mu held.
func (p *FakePage) visible(loc browser.Locator) bool {
	found, ok := p.nodes(loc.Query())
	if !ok {
		return p.Visible[loc.Selector]
	}
	if len(found) == 0 {
		return false
	}
	for _, v := range found {
		if !v {
			return false
		}
	}
	return true
}

func (p *FakePage) record(op string, arg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, op+":"+arg)
	if p.closed {
		return ErrPageClosed
	}
	return nil
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := p.record("Navigate", url); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.currentURL = url
	return nil
}

func (p *FakePage) WaitLoaded(ctx context.Context) error {
	if err := p.record("WaitLoaded", ""); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.LoadErr
}

func (p *FakePage) URL(context.Context) (string, error) {
	if err := p.record("URL", ""); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentURL, nil
}

// SetURL moves the page without recording a navigation.
func (p *FakePage) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentURL = url
}

func (p *FakePage) WaitVisible(ctx context.Context, loc browser.Locator) error {
	if err := p.record("WaitVisible", loc.Selector); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible(loc) {
		return fmt.Errorf("%w: %s", ErrNotVisible, loc.Selector)
	}
	return nil
}

func (p *FakePage) WaitEnabled(ctx context.Context, loc browser.Locator) error {
	if err := p.record("WaitEnabled", loc.Selector); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible(loc) || p.Disabled[loc.Selector] {
		return fmt.Errorf("fake page: %s not enabled", loc.Selector)
	}
	return nil
}

func (p *FakePage) ScrollIntoView(_ context.Context, loc browser.Locator) error {
	return p.record("ScrollIntoView", loc.Selector)
}

func (p *FakePage) Click(ctx context.Context, loc browser.Locator) error {
	if err := p.record("Click", loc.Selector); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ClickErr[loc.Selector]; err != nil {
		return err
	}
	if !p.visible(loc) {
		return fmt.Errorf("%w: %s", ErrNotVisible, loc.Selector)
	}
	p.clicks = append(p.clicks, loc.Selector)
	if to, ok := p.Redirects[loc.Selector]; ok {
		p.currentURL = to
	}
	return nil
}

func (p *FakePage) SendKeys(_ context.Context, loc browser.Locator, keys string) error {
	if err := p.record("SendKeys", loc.Selector); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed[loc.Selector] += keys
	return nil
}

func (p *FakePage) ScrollBy(_ context.Context, dy int) error {
	if err := p.record("ScrollBy", fmt.Sprint(dy)); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ScrollErr != nil {
		return p.ScrollErr
	}
	p.scrolls = append(p.scrolls, dy)
	return nil
}

func (p *FakePage) Screenshot(context.Context) ([]byte, error) {
	if err := p.record("Screenshot", ""); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	return PNG, nil
}

func (p *FakePage) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "Close:")
	p.closed = true
	return nil
}

// Calls returns every recorded operation as "Op:arg".
func (p *FakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// CallsTo returns the args of every call to op, in order.
func (p *FakePage) CallsTo(op string) []string {
	var out []string
	for _, c := range p.Calls() {
		if len(c) > len(op) && c[:len(op)+1] == op+":" {
			out = append(out, c[len(op)+1:])
		}
	}
	return out
}

// Typed returns the text sent to selector.
func (p *FakePage) Typed(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typed[selector]
}

// Clicks returns the selectors that were clicked successfully.
func (p *FakePage) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Scrolls returns every ScrollBy delta.
func (p *FakePage) Scrolls() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.scrolls...)
}

// Closed reports whether Close was called.
func (p *FakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// -- Fake Browser --

// FakeBrowser hands out pages produced by PageFactory.
type FakeBrowser struct {
	mu sync.Mutex

	PageFactory func() *FakePage
	NewPageErr  error

	pages  []*FakePage
	closed bool
}

var _ browser.Browser = (*FakeBrowser)(nil)

// NewFakeBrowser creates a browser whose pages all come from factory.
func NewFakeBrowser(factory func() *FakePage) *FakeBrowser {
	return &FakeBrowser{PageFactory: factory}
}

func (b *FakeBrowser) NewPage(context.Context) (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("fake browser: closed")
	}
	if b.NewPageErr != nil {
		return nil, b.NewPageErr
	}
	p := b.PageFactory()
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *FakeBrowser) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, p := range b.pages {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
	}
	return nil
}

// Pages returns every page opened so far, including the launch page.
func (b *FakeBrowser) Pages() []*FakePage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*FakePage(nil), b.pages...)
}

// Closed reports whether the browser was closed.
func (b *FakeBrowser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// -- Fake Launcher --

// FakeLauncher launches FakeBrowsers sharing one page factory.
type FakeLauncher struct {
	mu sync.Mutex

	PageFactory func() *FakePage
	LaunchErr   error

	browsers []*FakeBrowser
}

var _ browser.Launcher = (*FakeLauncher)(nil)

// NewFakeLauncher creates a launcher whose pages come from factory.
func NewFakeLauncher(factory func() *FakePage) *FakeLauncher {
	return &FakeLauncher{PageFactory: factory}
}

func (l *FakeLauncher) Launch(ctx context.Context) (browser.Browser, browser.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.LaunchErr != nil {
		return nil, nil, fmt.Errorf("%w: %v", browser.ErrLaunch, l.LaunchErr)
	}
	b := NewFakeBrowser(l.PageFactory)
	l.browsers = append(l.browsers, b)
	p, err := b.NewPage(ctx)
	if err != nil {
		return nil, nil, err
	}
	return b, p, nil
}

// Launches returns how many browsers were started.
func (l *FakeLauncher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.browsers)
}

// Browsers returns every browser launched so far.
func (l *FakeLauncher) Browsers() []*FakeBrowser {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*FakeBrowser(nil), l.browsers...)
}

// -- Authenticator Mock --

// MockAuthenticator mocks lifecycle.Authenticator.
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Login(ctx context.Context, page browser.Page) error {
	args := m.Called(ctx, page)
	return args.Error(0)
}
