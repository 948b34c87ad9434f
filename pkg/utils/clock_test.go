package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockClock(t *testing.T) {
	start := time.Unix(1000, 0)
	clock := NewMockClock(start)

	assert.Equal(t, start, clock.Now())

	clock.Advance(5 * time.Second)
	assert.Equal(t, start.Add(5*time.Second), clock.Now())
	assert.Equal(t, 5*time.Second, clock.Since(start))

	t.Run("SleepAdvances", func(t *testing.T) {
		before := time.Now()
		clock.Sleep(time.Hour)
		assert.Equal(t, start.Add(5*time.Second+time.Hour), clock.Now())
		assert.Less(t, time.Since(before), time.Second, "mock Sleep must not block")
	})
}

func TestStopwatch(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	sw := StartStopwatch(clock)

	assert.Equal(t, time.Duration(0), sw.Elapsed())
	clock.Advance(42 * time.Millisecond)
	assert.Equal(t, 42*time.Millisecond, sw.Elapsed())
}

func TestRealClock(t *testing.T) {
	clock := NewRealClock()
	before := clock.Now()
	assert.GreaterOrEqual(t, clock.Since(before), time.Duration(0))
}
