package utils

import (
	"context"
	"math/rand/v2"
	"time"
)

// Band is a randomized wait range. Fixed or instant timings trip bot defenses,
// so every wait in a browser run is drawn from one.
type Band struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// NewBand builds a band from milliseconds.
func NewBand(minMs, maxMs int) Band {
	return Band{Min: time.Duration(minMs) * time.Millisecond, Max: time.Duration(maxMs) * time.Millisecond}
}

// Draw picks a duration uniformly in [Min, Max].
func (b Band) Draw() time.Duration {
	if b.Max <= b.Min {
		return b.Min
	}
	return b.Min + time.Duration(rand.Int64N(int64(b.Max-b.Min)+1))
}

// Scale stretches the band, used to slow visible runs down.
func (b Band) Scale(factor float64) Band {
	if factor <= 0 {
		return b
	}
	return Band{
		Min: time.Duration(float64(b.Min) * factor),
		Max: time.Duration(float64(b.Max) * factor),
	}
}

// RandomDelay pauses for a random time in the band, returning early with the
// context's error if it is cancelled.
func RandomDelay(ctx context.Context, b Band) error {
	return Sleep(ctx, b.Draw())
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Jitter returns a random offset in [-max, max].
func Jitter(max float64) float64 {
	if max <= 0 {
		return 0
	}
	return (rand.Float64()*2 - 1) * max
}
