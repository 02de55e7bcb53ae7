// internal/browser/page.go
package browser

import (
	"context"
)

// Page is a single browser tab. Every element operation takes a Locator and
// honors the deadline carried by ctx; when ctx has none, implementations apply
// their own default operation timeout.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitLoaded blocks until the document has finished loading.
	WaitLoaded(ctx context.Context) error
	URL(ctx context.Context) (string, error)

	WaitVisible(ctx context.Context, loc Locator) error
	WaitEnabled(ctx context.Context, loc Locator) error
	ScrollIntoView(ctx context.Context, loc Locator) error
	Click(ctx context.Context, loc Locator) error
	// SendKeys types keys into the element matched by loc.
	SendKeys(ctx context.Context, loc Locator, keys string) error
	// ScrollBy scrolls the window vertically by dy pixels.
	ScrollBy(ctx context.Context, dy int) error
	// Screenshot returns a full-page PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	Close(ctx context.Context) error
}

// Browser is a running browser process whose pages share cookies and storage.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Launcher starts a browser and returns it along with its first page.
type Launcher interface {
	Launch(ctx context.Context) (Browser, Page, error)
}
