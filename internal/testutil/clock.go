package testutil

import "time"

// Clock provides deterministic, monotonically increasing millisecond
// timestamps, matching the shape of the `func() int64` clock the document
// store accepts via Options.Clock.
type Clock struct {
	current time.Time
	step    time.Duration
}

// NewClock returns a clock initialized to a fixed UTC start time.
func NewClock() *Clock {
	return &Clock{
		current: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		step:    time.Millisecond,
	}
}

// Next advances the clock by one step and returns the new timestamp as Unix
// milliseconds. Its method value (c.Next) is directly assignable to
// Options.Clock.
func (c *Clock) Next() int64 {
	c.current = c.current.Add(c.step)

	return c.current.UnixMilli()
}
