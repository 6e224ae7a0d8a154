package core

import "container/heap"

// entryQueue is a min-heap of ScheduledEntry keyed by due time, ties broken
// by insertion sequence. Mutated only by the scheduler's controller
// goroutine, so it needs no locking.
type entryQueue []*ScheduledEntry

var _ heap.Interface = (*entryQueue)(nil)

func (q entryQueue) Len() int { return len(q) }

func (q entryQueue) Less(i, j int) bool {
	if !q[i].DueTime.Equal(q[j].DueTime) {
		return q[i].DueTime.Before(q[j].DueTime)
	}
	return q[i].seq < q[j].seq
}

func (q entryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *entryQueue) Push(x any) {
	e := x.(*ScheduledEntry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *entryQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

func (q entryQueue) peek() *ScheduledEntry {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}
