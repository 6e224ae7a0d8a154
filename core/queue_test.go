package core

import (
	"container/heap"
	"time"

	. "gopkg.in/check.v1"
)

type QueueSuite struct{}

var _ = Suite(&QueueSuite{})

func (s *QueueSuite) TestOrderByDueTime(c *C) {
	base := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	var q entryQueue
	heap.Push(&q, &ScheduledEntry{DueTime: base.Add(2 * time.Hour), Job: &Job{Name: "late"}, seq: 1})
	heap.Push(&q, &ScheduledEntry{DueTime: base, Job: &Job{Name: "early"}, seq: 2})
	heap.Push(&q, &ScheduledEntry{DueTime: base.Add(time.Hour), Job: &Job{Name: "middle"}, seq: 3})

	var names []string
	for q.Len() > 0 {
		names = append(names, heap.Pop(&q).(*ScheduledEntry).Job.Name)
	}
	c.Assert(names, DeepEquals, []string{"early", "middle", "late"})
}

func (s *QueueSuite) TestTiesBreakByInsertionOrder(c *C) {
	due := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	var q entryQueue
	for i, name := range []string{"first", "second", "third"} {
		heap.Push(&q, &ScheduledEntry{DueTime: due, Job: &Job{Name: name}, seq: int64(i)})
	}

	var names []string
	for q.Len() > 0 {
		names = append(names, heap.Pop(&q).(*ScheduledEntry).Job.Name)
	}
	c.Assert(names, DeepEquals, []string{"first", "second", "third"})
}

func (s *QueueSuite) TestPeek(c *C) {
	var q entryQueue
	c.Assert(q.peek(), IsNil)

	due := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	heap.Push(&q, &ScheduledEntry{DueTime: due.Add(time.Hour), Job: &Job{Name: "b"}, seq: 1})
	heap.Push(&q, &ScheduledEntry{DueTime: due, Job: &Job{Name: "a"}, seq: 2})

	c.Assert(q.peek().Job.Name, Equals, "a")
	c.Assert(q.Len(), Equals, 2)
}
