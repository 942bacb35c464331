package executor

import (
	"sync"
	"time"
)

// Cooldown lets a key through at most once per interval. It is safe for
// concurrent use.
type Cooldown struct {
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewCooldown creates a gate with the given interval.
func NewCooldown(interval time.Duration) *Cooldown {
	return &Cooldown{
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// Allow reports whether key may pass at now. A passing key is recorded, so
// the next call within interval is refused.
func (c *Cooldown) Allow(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.last[key]; ok && now.Sub(last) < c.interval {
		return false
	}
	c.last[key] = now
	return true
}

// Cleanup drops entries older than interval.
func (c *Cooldown) Cleanup(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, ts := range c.last {
		if now.Sub(ts) >= c.interval {
			delete(c.last, key)
		}
	}
}

// Len returns the number of tracked keys.
func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}
