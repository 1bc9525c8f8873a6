package core

import "time"

type Clock struct {
	start   time.Time
	last    time.Time
	elapsed time.Duration
	delta   time.Duration
	now     func() time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Update advances the clock. Has no effect on non-started clocks.
func (c *Clock) Update() {
	if c.start.IsZero() {
		return
	}
	t := c.now()
	c.delta = t.Sub(c.last)
	c.last = t
	c.elapsed = t.Sub(c.start)
}

// Start resets elapsed time.
func (c *Clock) Start() {
	c.start = c.now()
	c.last = c.start
	c.elapsed = 0
	c.delta = 0
}

// Stop does not reset elapsed time.
func (c *Clock) Stop() {
	c.start = time.Time{}
}

func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}

// Delta is the time between the last two updates.
func (c *Clock) Delta() time.Duration {
	return c.delta
}
