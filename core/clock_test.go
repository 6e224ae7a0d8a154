package core

import (
	"time"

	. "gopkg.in/check.v1"
)

type ClockSuite struct{}

var _ = Suite(&ClockSuite{})

var clockStart = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

func (s *ClockSuite) TestNow(c *C) {
	clk := NewFakeClock(clockStart)
	c.Assert(clk.Now(), Equals, clockStart)

	clk.Advance(time.Hour)
	c.Assert(clk.Now(), Equals, clockStart.Add(time.Hour))

	clk.Set(clockStart.Add(5 * time.Hour))
	c.Assert(clk.Now(), Equals, clockStart.Add(5*time.Hour))
}

func (s *ClockSuite) TestAfterFires(c *C) {
	clk := NewFakeClock(clockStart)
	ch := clk.After(time.Minute)

	select {
	case <-ch:
		c.Fatal("fired before the deadline")
	default:
	}

	clk.Advance(time.Minute)
	select {
	case fired := <-ch:
		c.Assert(fired, Equals, clockStart.Add(time.Minute))
	default:
		c.Fatal("did not fire at the deadline")
	}
}

func (s *ClockSuite) TestAfterNonPositive(c *C) {
	clk := NewFakeClock(clockStart)
	select {
	case <-clk.After(0):
	default:
		c.Fatal("zero duration should fire immediately")
	}
}

func (s *ClockSuite) TestAdvancePassesIntermediateDeadlines(c *C) {
	clk := NewFakeClock(clockStart)
	first := clk.After(time.Minute)
	second := clk.After(30 * time.Minute)

	clk.Advance(time.Hour)

	c.Assert((<-first).Equal(clockStart.Add(time.Minute)), Equals, true)
	c.Assert((<-second).Equal(clockStart.Add(30*time.Minute)), Equals, true)
	c.Assert(clk.Now(), Equals, clockStart.Add(time.Hour))
	c.Assert(clk.WaiterCount(), Equals, 0)
}

func (s *ClockSuite) TestRealClock(c *C) {
	clk := NewRealClock()
	before := time.Now()
	now := clk.Now()
	c.Assert(now.Before(before), Equals, false)

	select {
	case <-clk.After(time.Millisecond):
	case <-time.After(time.Second):
		c.Fatal("After never fired")
	}
}
