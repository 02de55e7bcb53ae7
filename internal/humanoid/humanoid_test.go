package humanoid

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/autoapply/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestHumanoid(t *testing.T, clock clockwork.Clock) *Humanoid {
	t.Helper()
	return New(config.HumanoidConfig{Enabled: true, Scale: 1}, zap.NewNop(),
		WithClock(clock), WithRand(rand.New(rand.NewSource(42))))
}

func TestSample_StaysWithinRange(t *testing.T) {
	h := newTestHumanoid(t, clockwork.NewFakeClock())

	ranges := []Range{
		Seconds(0.5, 1.5),
		Seconds(2, 4),
		Between(50*time.Millisecond, 150*time.Millisecond),
		Fixed(3 * time.Second),
		Between(0, 0),
	}
	for _, r := range ranges {
		for i := 0; i < 1000; i++ {
			d := h.Sample(r)
			require.GreaterOrEqual(t, d, r.Min)
			require.LessOrEqual(t, d, r.Max)
		}
	}
}

func TestSample_InvertedRangeIsNormalized(t *testing.T) {
	h := newTestHumanoid(t, clockwork.NewFakeClock())
	for i := 0; i < 200; i++ {
		d := h.Sample(Range{Min: 2 * time.Second, Max: time.Second})
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 2*time.Second)
	}
}

func TestSample_AppliesScale(t *testing.T) {
	r := Seconds(1, 3)

	t.Run("tiny scale keeps draws at the minimum", func(t *testing.T) {
		h := New(config.HumanoidConfig{Enabled: true, Scale: 0.001}, zap.NewNop())
		for i := 0; i < 100; i++ {
			d := h.Sample(r)
			require.GreaterOrEqual(t, d, time.Second)
			require.LessOrEqual(t, d, time.Second+2*time.Millisecond)
		}
	})

	t.Run("fractional scale stays in the lower part of the range", func(t *testing.T) {
		h := New(config.HumanoidConfig{Enabled: true, Scale: 0.5}, zap.NewNop())
		for i := 0; i < 1000; i++ {
			d := h.Sample(r)
			require.GreaterOrEqual(t, d, time.Second)
			require.LessOrEqual(t, d, 2*time.Second)
		}
	})

	t.Run("large scale never exceeds the maximum", func(t *testing.T) {
		h := New(config.HumanoidConfig{Enabled: true, Scale: 10}, zap.NewNop())
		for i := 0; i < 1000; i++ {
			d := h.Sample(r)
			require.GreaterOrEqual(t, d, time.Second)
			require.LessOrEqual(t, d, 3*time.Second)
		}
	})

	t.Run("fixed range ignores scale", func(t *testing.T) {
		h := New(config.HumanoidConfig{Enabled: true, Scale: 0.5}, zap.NewNop())
		assert.Equal(t, time.Second, h.Sample(Fixed(time.Second)))
	})
}

func TestPause(t *testing.T) {
	t.Run("sleeps on the injected clock", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		h := newTestHumanoid(t, clock)

		done := make(chan error, 1)
		go func() { done <- h.Pause(context.Background(), Fixed(2*time.Second)) }()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, clock.BlockUntilContext(ctx, 1))

		select {
		case <-done:
			t.Fatal("pause returned before the clock advanced")
		default:
		}

		clock.Advance(2 * time.Second)
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("pause did not return after the clock advanced")
		}
	})

	t.Run("returns context error on cancellation", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		h := newTestHumanoid(t, clock)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- h.Pause(ctx, Fixed(time.Minute)) }()

		waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer waitCancel()
		require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("pause ignored cancellation")
		}
	})

	t.Run("disabled humanoid never sleeps", func(t *testing.T) {
		h := NewDisabled()
		assert.False(t, h.Enabled())
		assert.NoError(t, h.Pause(context.Background(), Fixed(time.Hour)))
	})
}

func TestType(t *testing.T) {
	t.Run("sends one character per call", func(t *testing.T) {
		h := NewDisabled()
		var sent []string
		sink := func(_ context.Context, keys string) error {
			sent = append(sent, keys)
			return nil
		}

		require.NoError(t, h.Type(context.Background(), sink, "hé@x", Between(50*time.Millisecond, 150*time.Millisecond)))
		assert.Equal(t, []string{"h", "é", "@", "x"}, sent)
	})

	t.Run("stops at the first failed key", func(t *testing.T) {
		h := NewDisabled()
		calls := 0
		boom := errors.New("detached")
		sink := func(context.Context, string) error {
			calls++
			if calls == 2 {
				return boom
			}
			return nil
		}

		err := h.Type(context.Background(), sink, "abc", Fixed(0))
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 2, calls)
	})
}

type scrollRecorder struct {
	deltas []int
	err    error
}

func (s *scrollRecorder) ScrollBy(_ context.Context, dy int) error {
	s.deltas = append(s.deltas, dy)
	return s.err
}

func TestSkim(t *testing.T) {
	t.Run("scrolls down then back up by half", func(t *testing.T) {
		h := New(config.HumanoidConfig{Enabled: false}, zap.NewNop(), WithRand(rand.New(rand.NewSource(7))))
		rec := &scrollRecorder{}

		require.NoError(t, h.Skim(context.Background(), rec))
		require.Len(t, rec.deltas, 2)
		assert.GreaterOrEqual(t, rec.deltas[0], 200)
		assert.LessOrEqual(t, rec.deltas[0], 600)
		assert.Equal(t, -(rec.deltas[0] / 2), rec.deltas[1])
	})

	t.Run("scroll failures are logged not returned", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		h := New(config.HumanoidConfig{Enabled: false}, zap.New(core))
		rec := &scrollRecorder{err: errors.New("evaluate failed")}

		assert.NoError(t, h.Skim(context.Background(), rec))
		assert.Equal(t, 1, logs.FilterMessage("Reading scroll failed.").Len())
	})
}
