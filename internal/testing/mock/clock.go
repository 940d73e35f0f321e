package mock

import (
	"sync"
	"time"
)

// Clock is a manually driven time source. Pass Clock.Now to the OAuth server
// and to auth.WithClock so that issued tokens and the client's expiry margin
// see the same time.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at start, or at the current time when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = time.Now()
	}
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// EnterMargin moves the clock to the first instant at which a token expiring
// at expiresAt is no longer presented under margin.
func (c *Clock) EnterMargin(expiresAt time.Time, margin time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = expiresAt.Add(-margin)
}
