package humanoid

import (
	"context"
	"fmt"
)

// KeySink delivers keystrokes to the focused element.
type KeySink func(ctx context.Context, keys string) error

// Type sends text one character at a time, pausing for a duration drawn from
// gap between characters.
func (h *Humanoid) Type(ctx context.Context, sink KeySink, text string, gap Range) error {
	runes := []rune(text)
	for i, r := range runes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sink(ctx, string(r)); err != nil {
			return fmt.Errorf("humanoid: failed to send key %d of %d: %w", i+1, len(runes), err)
		}
		if i < len(runes)-1 {
			if err := h.Pause(ctx, gap); err != nil {
				return err
			}
		}
	}
	return nil
}
