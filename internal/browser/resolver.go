// internal/browser/resolver.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply/internal/humanoid"
)

// noticeDelay is how long a person takes to register an element after it
// scrolls into view.
const noticeDelay = time.Second

// Element is a resolved, visible, enabled element.
type Element struct {
	Locator Locator
	// Attempt is the 1-based index of the candidate that matched.
	Attempt int
}

// Resolver finds the first usable element from an ordered list of candidate
// locators.
type Resolver struct {
	humanoid  *humanoid.Humanoid
	artifacts *Artifacts
	logger    *zap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(h *humanoid.Humanoid, artifacts *Artifacts, logger *zap.Logger) *Resolver {
	return &Resolver{
		humanoid:  h,
		artifacts: artifacts,
		logger:    logger.Named("resolver"),
	}
}

// Resolve tries each candidate in order: wait until visible (bounded by
// visibleTimeout), wait until enabled (bounded by enabledTimeout), scroll it
// into view, then pause briefly. The first candidate to pass every stage wins
// and later candidates are never tried. When all fail, a screenshot is taken
// and an *ElementNotFoundError is returned.
func (r *Resolver) Resolve(
	ctx context.Context,
	page Page,
	what string,
	candidates []Locator,
	visibleTimeout, enabledTimeout time.Duration,
) (*Element, error) {
	log := r.logger.With(zap.String("element", what))
	tried := make([]Locator, 0, len(candidates))

	for i, loc := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tried = append(tried, loc)
		log.Info("Trying locator.", zap.Stringer("locator", loc))

		if err := r.try(ctx, page, loc, visibleTimeout, enabledTimeout); err != nil {
			// A canceled parent means nothing later can succeed either.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Debug("Locator did not match.", zap.Stringer("locator", loc), zap.Error(err))
			continue
		}

		if err := r.humanoid.Pause(ctx, humanoid.Fixed(noticeDelay)); err != nil {
			return nil, err
		}
		log.Info("Found element.", zap.Stringer("locator", loc))
		return &Element{Locator: loc, Attempt: i + 1}, nil
	}

	shot := r.artifacts.Capture(ctx, page, "no_"+snakeCase(what))
	return nil, &ElementNotFoundError{What: what, Tried: tried, Screenshot: shot}
}

func (r *Resolver) try(ctx context.Context, page Page, loc Locator, visibleTimeout, enabledTimeout time.Duration) error {
	// 1. Visible.
	vctx, cancel := context.WithTimeout(ctx, visibleTimeout)
	err := page.WaitVisible(vctx, loc)
	cancel()
	if err != nil {
		return fmt.Errorf("not visible: %w", err)
	}

	// 2. Enabled.
	ectx, cancel := context.WithTimeout(ctx, enabledTimeout)
	err = page.WaitEnabled(ectx, loc)
	cancel()
	if err != nil {
		return fmt.Errorf("not enabled: %w", err)
	}

	// 3. In view.
	if err := page.ScrollIntoView(ctx, loc); err != nil {
		return fmt.Errorf("could not scroll into view: %w", err)
	}
	return nil
}

func snakeCase(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), "_"))
}
