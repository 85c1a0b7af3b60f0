package timectrl

import (
	"context"
	"sync"
	"time"
)

// Pacer spaces out simulation rounds. Wait blocks until the next round
// may start or ctx is done.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Mode describes how a RoundController releases rounds.
type Mode int

const (
	// RealTime releases one round per Interval of wall-clock time.
	RealTime Mode = iota
	// Accelerated releases rounds as fast as the caller asks.
	Accelerated
)

// RoundController paces drill rounds so that metric scrapers and operators
// can observe each fault before the grid is restored.
type RoundController struct {
	mu       sync.Mutex
	Interval time.Duration
	Mode     Mode

	ticker *time.Ticker
	rounds int
	last   time.Time
}

// NewRoundController constructs a controller. A non-positive interval
// behaves like Accelerated.
func NewRoundController(interval time.Duration, mode Mode) *RoundController {
	return &RoundController{Interval: interval, Mode: mode}
}

// Wait implements Pacer.
func (rc *RoundController) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rc.mu.Lock()
	if rc.Mode == Accelerated || rc.Interval <= 0 {
		rc.release(time.Now())
		rc.mu.Unlock()
		return nil
	}
	if rc.ticker == nil {
		rc.ticker = time.NewTicker(rc.Interval)
	}
	tick := rc.ticker.C
	rc.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case now := <-tick:
		rc.mu.Lock()
		rc.release(now)
		rc.mu.Unlock()
		return nil
	}
}

func (rc *RoundController) release(now time.Time) {
	rc.rounds++
	rc.last = now
}

// Rounds returns how many rounds have been released.
func (rc *RoundController) Rounds() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.rounds
}

// LastRelease returns the time of the most recent release.
func (rc *RoundController) LastRelease() time.Time {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.last
}

// Stop releases the underlying ticker.
func (rc *RoundController) Stop() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.ticker != nil {
		rc.ticker.Stop()
		rc.ticker = nil
	}
}
