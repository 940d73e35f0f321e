package mock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_Advance(t *testing.T) {
	start := time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)
	clock := NewClock(start)
	assert.True(t, clock.Now().Equal(start))

	got := clock.Advance(90 * time.Minute)
	assert.True(t, got.Equal(start.Add(90*time.Minute)))
	assert.True(t, clock.Now().Equal(got))
}

func TestClock_ZeroStartUsesWallTime(t *testing.T) {
	before := time.Now()
	clock := NewClock(time.Time{})
	after := time.Now()

	assert.False(t, clock.Now().Before(before))
	assert.False(t, clock.Now().After(after))
}

func TestClock_EnterMargin(t *testing.T) {
	issued := time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)
	expiresAt := issued.Add(time.Hour)
	clock := NewClock(issued)

	clock.EnterMargin(expiresAt, time.Minute)
	assert.True(t, clock.Now().Equal(issued.Add(59*time.Minute)))
}
