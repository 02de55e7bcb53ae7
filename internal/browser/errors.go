// internal/browser/errors.go
package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrLaunch indicates the browser process could not be started.
	ErrLaunch = errors.New("browser launch failed")
	// ErrNavigationTimeout indicates a page did not finish loading in time.
	ErrNavigationTimeout = errors.New("navigation timed out")
	// ErrElementNotFound indicates no locator matched a usable element in time.
	ErrElementNotFound = errors.New("element not found")
)

// ElementNotFoundError reports that every candidate locator for an element
// was exhausted.
type ElementNotFoundError struct {
	What       string
	Tried      []Locator
	Screenshot string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("%s not found with any selector", e.What)
}

// Is lets errors.Is match the sentinel.
func (e *ElementNotFoundError) Is(target error) bool {
	return target == ErrElementNotFound
}

// ScreenshotOf returns the diagnostic screenshot path attached to err, if any.
func ScreenshotOf(err error) string {
	var nf *ElementNotFoundError
	if errors.As(err, &nf) {
		return nf.Screenshot
	}
	return ""
}
