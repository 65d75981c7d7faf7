package engine

import (
	"math"
	"time"
)

// decisionClock debounces re-planning to a fixed interval
type decisionClock struct {
	interval time.Duration
	last     time.Time
	decided  bool
}

// isDue reports whether a new decision may be made at now and, when it may not,
// the whole seconds remaining until it may. A clock that has gone backwards past the
// last decision releases the lock rather than holding it until time catches up.
func (c *decisionClock) isDue(now time.Time) (bool, int) {
	if !c.decided {
		return true, 0
	}
	elapsed := now.Sub(c.last)
	if elapsed < 0 || elapsed >= c.interval {
		return true, 0
	}
	return false, int(math.Ceil((c.interval - elapsed).Seconds()))
}

func (c *decisionClock) mark(now time.Time) {
	c.last = now
	c.decided = true
}

func (c *decisionClock) reset() {
	c.last = time.Time{}
	c.decided = false
}
