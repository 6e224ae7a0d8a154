package core

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func NewRealClock() Clock {
	return &realClock{}
}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func (c *realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (c *realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

type FakeClock struct {
	mu       sync.RWMutex
	now      time.Time
	waiters  []waiter
	advanced chan struct{}
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{
		now:      start,
		advanced: make(chan struct{}, 100),
	}
}

func (c *FakeClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}

	c.waiters = append(c.waiters, waiter{
		deadline: c.now.Add(d),
		ch:       ch,
	})
	return ch
}

func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.advanceTo(c.now.Add(d))
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceTo(t)
}

func (c *FakeClock) advanceTo(target time.Time) {
	for {
		earliest := c.findEarliestWaiter()

		if earliest == nil || earliest.After(target) {
			c.now = target
			break
		}

		c.now = *earliest
		c.fireWaiters()
	}

	select {
	case c.advanced <- struct{}{}:
	default:
	}
}

func (c *FakeClock) findEarliestWaiter() *time.Time {
	var earliest *time.Time

	for _, w := range c.waiters {
		if earliest == nil || w.deadline.Before(*earliest) {
			d := w.deadline
			earliest = &d
		}
	}

	return earliest
}

func (c *FakeClock) fireWaiters() {
	remaining := make([]waiter, 0, len(c.waiters))
	for _, w := range c.waiters {
		if !w.deadline.After(c.now) {
			select {
			case w.ch <- c.now:
			default:
			}
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
}

func (c *FakeClock) WaitForAdvance() {
	<-c.advanced
}

// WaiterCount reports how many sleeps are currently blocked on the clock.
func (c *FakeClock) WaiterCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.waiters)
}
