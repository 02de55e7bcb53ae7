package humanoid

import (
	"context"

	"go.uber.org/zap"
)

// Scroller scrolls the viewport vertically by dy pixels.
type Scroller interface {
	ScrollBy(ctx context.Context, dy int) error
}

// Skim simulates a person glancing over a page: scroll down a little, pause,
// scroll back up by half, pause again. Scroll failures are logged and never
// returned; only context cancellation is.
func (h *Humanoid) Skim(ctx context.Context, s Scroller) error {
	down := h.Intn(200, 600)

	if err := s.ScrollBy(ctx, down); err != nil {
		h.logger.Warn("Reading scroll failed.", zap.Error(err))
		return ctx.Err()
	}
	if err := h.Pause(ctx, Seconds(0.5, 1.5)); err != nil {
		return err
	}

	if err := s.ScrollBy(ctx, -(down / 2)); err != nil {
		h.logger.Warn("Reading scroll failed.", zap.Error(err))
		return ctx.Err()
	}
	if err := h.Pause(ctx, Seconds(0.3, 0.8)); err != nil {
		return err
	}

	h.logger.Debug("Simulated reading.", zap.Int("scroll_px", down))
	return nil
}
