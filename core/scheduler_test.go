package core

import (
	"container/heap"
	"strings"
	"time"

	. "gopkg.in/check.v1"
)

type SchedulerSuite struct{}

var _ = Suite(&SchedulerSuite{})

var schedStart = time.Date(2024, 3, 15, 9, 0, 0, 0, time.Local)

func newTestScheduler(config SchedulerConfig, clk Clock, runner Runner, alerter Alerter) (*Scheduler, *memoryLogger) {
	logger := &memoryLogger{}
	return NewScheduler(config, logger, clk, runner, alerter), logger
}

// runScheduler drives Run on its own goroutine and fails the test if it does
// not come back within a wall-clock timeout.
func runScheduler(c *C, s *Scheduler, during func()) {
	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()
	if during != nil {
		during()
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		c.Fatal("scheduler did not finish")
	}
}

func waitForSleeper(c *C, clk *FakeClock) {
	for i := 0; i < 1000; i++ {
		if clk.WaiterCount() > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	c.Fatal("scheduler never went to sleep")
}

func (s *SchedulerSuite) TestRunsDueJobs(c *C) {
	clk := NewFakeClock(schedStart)
	runner := newStubRunner(nil)
	alerter := &stubAlerter{}

	sched, logger := newTestScheduler(SchedulerConfig{}, clk, runner, alerter)
	sched.Enqueue(&Job{Name: "a", DueTime: schedStart.Add(-time.Hour)})
	sched.Enqueue(&Job{Name: "b", DueTime: schedStart.Add(-time.Minute)})

	runScheduler(c, sched, nil)

	c.Assert(runner.count("a"), Equals, 1)
	c.Assert(runner.count("b"), Equals, 1)
	c.Assert(alerter.count(), Equals, 0)
	c.Assert(sched.Completed(), Equals, 2)
	c.Assert(sched.Pending(), Equals, 0)

	out := logger.joined()
	c.Assert(strings.Contains(out, "job [a] is due. launched."), Equals, true)
	c.Assert(strings.Contains(out, "job [a] returned. status: OK."), Equals, true)
	c.Assert(strings.Contains(out, "monitor start ..."), Equals, true)
	c.Assert(strings.Contains(out, "monitor exit."), Equals, true)
}

func (s *SchedulerSuite) TestWaitsForDueTime(c *C) {
	clk := NewFakeClock(schedStart)
	runner := newStubRunner(nil)

	sched, logger := newTestScheduler(SchedulerConfig{}, clk, runner, &stubAlerter{})
	sched.Enqueue(&Job{Name: "later", DueTime: schedStart.Add(time.Hour)})

	runScheduler(c, sched, func() {
		waitForSleeper(c, clk)
		c.Assert(runner.count("later"), Equals, 0)
		clk.Advance(time.Hour)
	})

	c.Assert(runner.count("later"), Equals, 1)
	c.Assert(strings.Contains(logger.joined(),
		"sleeping until the most recent job [later] due at"), Equals, true)
}

func (s *SchedulerSuite) TestForceIgnoresDueTime(c *C) {
	clk := NewFakeClock(schedStart)
	runner := newStubRunner(nil)

	sched, _ := newTestScheduler(SchedulerConfig{Force: true}, clk, runner, &stubAlerter{})
	sched.Enqueue(&Job{Name: "tomorrow", DueTime: schedStart.Add(24 * time.Hour)})

	runScheduler(c, sched, nil)
	c.Assert(runner.count("tomorrow"), Equals, 1)
}

func (s *SchedulerSuite) TestAlarmAndRetry(c *C) {
	clk := NewFakeClock(schedStart)
	runner := newStubRunner(func(job *Job, attempt int) (bool, *AlarmInfo, error) {
		return false, &AlarmInfo{Kind: KindDefault, Content: int64(0)}, nil
	})
	alerter := &stubAlerter{}

	sched, logger := newTestScheduler(SchedulerConfig{}, clk, runner, alerter)
	sched.Enqueue(&Job{Name: "flaky", DueTime: schedStart, RetryTimes: 2})

	runScheduler(c, sched, nil)

	// initial run plus two retries, each one alerted
	c.Assert(runner.count("flaky"), Equals, 3)
	c.Assert(alerter.count(), Equals, 3)
	c.Assert(sched.Completed(), Equals, 3)

	out := logger.joined()
	c.Assert(strings.Contains(out, "job [flaky] returned. status: =====> ALARM <====="), Equals, true)
	c.Assert(strings.Contains(out, "job [flaky] retrying. times left: 1."), Equals, true)
	c.Assert(strings.Contains(out, "job [flaky] retrying. times left: 0."), Equals, true)
}

func (s *SchedulerSuite) TestRetryReenqueuesAtNowPlusInterval(c *C) {
	clk := NewFakeClock(schedStart)
	sched, _ := newTestScheduler(SchedulerConfig{}, clk, newStubRunner(nil), &stubAlerter{})

	// the retry due time is computed from the failure moment, not the
	// original schedule
	clk.Advance(10 * time.Minute)
	job := &Job{Name: "flaky", DueTime: schedStart, RetryTimes: 1, RetryInterval: 30 * time.Second}
	sched.finish(completion{job: job, ok: false, info: &AlarmInfo{Kind: KindDefault}}, true)

	head := sched.queue.peek()
	c.Assert(head, NotNil)
	c.Assert(head.DueTime, Equals, schedStart.Add(10*time.Minute+30*time.Second))
	c.Assert(job.RetryTimes, Equals, 0)

	// a second failure with the budget spent does not re-enqueue
	heap.Pop(&sched.queue)
	sched.finish(completion{job: job, ok: false, info: &AlarmInfo{Kind: KindDefault}}, true)
	c.Assert(sched.queue.peek(), IsNil)
}

func (s *SchedulerSuite) TestRetryStopsAfterSuccess(c *C) {
	clk := NewFakeClock(schedStart)
	runner := newStubRunner(func(job *Job, attempt int) (bool, *AlarmInfo, error) {
		if attempt < 2 {
			return false, &AlarmInfo{Kind: KindDefault, Content: "bad"}, nil
		}
		return true, nil, nil
	})
	alerter := &stubAlerter{}

	sched, _ := newTestScheduler(SchedulerConfig{}, clk, runner, alerter)
	sched.Enqueue(&Job{Name: "flaky", DueTime: schedStart, RetryTimes: 5})

	runScheduler(c, sched, nil)

	c.Assert(runner.count("flaky"), Equals, 2)
	c.Assert(alerter.count(), Equals, 1)
}

func (s *SchedulerSuite) TestRunnerErrorBecomesExceptionAlarm(c *C) {
	clk := NewFakeClock(schedStart)
	runner := newStubRunner(func(job *Job, attempt int) (bool, *AlarmInfo, error) {
		return false, nil, &ProbeError{Datasource: "shop", Err: ErrRegistryClosed}
	})
	alerter := &stubAlerter{}

	sched, logger := newTestScheduler(SchedulerConfig{}, clk, runner, alerter)
	sched.Enqueue(&Job{Name: "broken", DueTime: schedStart})

	runScheduler(c, sched, nil)

	c.Assert(alerter.kinds(), DeepEquals, []AlarmKind{KindException})
	c.Assert(strings.Contains(logger.joined(), "job [broken] raised an exception"), Equals, true)
}

func (s *SchedulerSuite) TestPanicBecomesExceptionAlarm(c *C) {
	clk := NewFakeClock(schedStart)
	runner := newStubRunner(func(job *Job, attempt int) (bool, *AlarmInfo, error) {
		panic("boom")
	})
	alerter := &stubAlerter{}

	sched, _ := newTestScheduler(SchedulerConfig{}, clk, runner, alerter)
	sched.Enqueue(&Job{Name: "panicky", DueTime: schedStart})

	runScheduler(c, sched, nil)

	kinds := alerter.kinds()
	c.Assert(kinds, DeepEquals, []AlarmKind{KindException})

	alerter.mu.Lock()
	content := alerter.alerts[0].Content.(string)
	alerter.mu.Unlock()
	c.Assert(strings.Contains(content, "boom"), Equals, true)
}

func (s *SchedulerSuite) TestStopAbandonsPending(c *C) {
	clk := NewFakeClock(schedStart)
	runner := newStubRunner(nil)

	sched, _ := newTestScheduler(SchedulerConfig{}, clk, runner, &stubAlerter{})
	sched.Enqueue(&Job{Name: "never", DueTime: schedStart.Add(time.Hour)})

	runScheduler(c, sched, func() {
		waitForSleeper(c, clk)
		sched.Stop()
	})

	c.Assert(runner.count("never"), Equals, 0)
	c.Assert(sched.Pending(), Equals, 1)

	// stopping twice is safe
	sched.Stop()
}

func (s *SchedulerSuite) TestManyJobsThroughBoundedPool(c *C) {
	clk := NewFakeClock(schedStart)
	runner := newStubRunner(nil)

	sched, _ := newTestScheduler(SchedulerConfig{PoolSize: 4}, clk, runner, &stubAlerter{})
	for i := 0; i < 100; i++ {
		sched.Enqueue(&Job{Name: jobName(i), DueTime: schedStart})
	}

	runScheduler(c, sched, nil)
	c.Assert(sched.Completed(), Equals, 100)
}

func jobName(i int) string {
	return "job" + string(rune('a'+i/10)) + string(rune('0'+i%10))
}

func (s *SchedulerSuite) TestDefaults(c *C) {
	sched, _ := newTestScheduler(SchedulerConfig{}, NewFakeClock(schedStart), newStubRunner(nil), nil)
	c.Assert(sched.config.PoolSize, Equals, 16)
	c.Assert(sched.config.PollInterval, Equals, 5*time.Second)
}
