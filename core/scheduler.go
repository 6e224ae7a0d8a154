package core

import (
	"container/heap"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/creasty/defaults"
)

// Runner executes one job: probe plus validator. A false ok comes with the
// AlarmInfo explaining the failure; an error means the run itself faulted
// and is converted to an exception alarm at the worker boundary.
type Runner interface {
	Run(job *Job) (ok bool, info *AlarmInfo, err error)
}

// Alerter dispatches the alerts of one failed job. Delivery failures are the
// alerter's to log; they never propagate back into scheduling.
type Alerter interface {
	Alert(job *Job, info *AlarmInfo)
}

type SchedulerConfig struct {
	PoolSize     int           `default:"16"`
	PollInterval time.Duration `default:"5s"`
	Force        bool
}

// Scheduler dispatches jobs by due time through a bounded worker pool. A
// single controller goroutine owns the queue and the in-flight map; workers
// only execute and report back.
type Scheduler struct {
	Logger  Logger
	Clock   Clock
	Runner  Runner
	Alerter Alerter

	config SchedulerConfig

	queue    entryQueue
	seq      int64
	inflight map[string]*Job

	tasks       chan *Job
	completions chan completion
	stop        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	completed int
}

type completion struct {
	job  *Job
	ok   bool
	info *AlarmInfo
}

func NewScheduler(config SchedulerConfig, logger Logger, clock Clock, runner Runner, alerter Alerter) *Scheduler {
	if err := defaults.Set(&config); err != nil {
		panic(err)
	}
	if clock == nil {
		clock = NewRealClock()
	}
	return &Scheduler{
		Logger:      logger,
		Clock:       clock,
		Runner:      runner,
		Alerter:     alerter,
		config:      config,
		inflight:    make(map[string]*Job),
		tasks:       make(chan *Job),
		completions: make(chan completion, config.PoolSize),
		stop:        make(chan struct{}),
	}
}

// Enqueue adds a job at its due time. Must be called before Run starts.
func (s *Scheduler) Enqueue(j *Job) {
	s.enqueueAt(j, j.DueTime)
}

func (s *Scheduler) enqueueAt(j *Job, due time.Time) {
	s.seq++
	heap.Push(&s.queue, &ScheduledEntry{DueTime: due, Job: j, seq: s.seq})
}

// Pending returns the number of queued jobs.
func (s *Scheduler) Pending() int { return s.queue.Len() }

// Completed returns the number of finished executions so far.
func (s *Scheduler) Completed() int { return s.completed }

// Stop wakes the controller's wait and makes the main loop exit after the
// current iteration. In-flight workers are not interrupted; Run waits for
// them before returning. Safe to call more than once and from any goroutine.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Run drives the main loop until the queue is empty and nothing is in
// flight, or until Stop is called. It blocks the calling goroutine.
func (s *Scheduler) Run() {
	for i := 0; i < s.config.PoolSize; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	s.Logger.Noticef("monitor start ...")
	s.Logger.Noticef(strings.Repeat("=", 60))
	s.Logger.Noticef("****** total jobs: %d ...", s.queue.Len())

loop:
	for {
		select {
		case <-s.stop:
			break loop
		default:
		}

		s.collectReady()

		if s.queue.Len() == 0 && len(s.inflight) == 0 {
			break
		}

		s.Logger.Debugf("****** pending: %d, running: %d, completed: %d ******",
			s.queue.Len(), len(s.inflight), s.completed)

		head := s.queue.peek()
		if head != nil {
			now := s.Clock.Now()
			if s.config.Force || !now.Before(head.DueTime) {
				s.submit(heap.Pop(&s.queue).(*ScheduledEntry))
				continue
			}

			wait := s.config.PollInterval
			if len(s.inflight) == 0 {
				wait = head.DueTime.Sub(now)
				s.Logger.Noticef("sleeping until the most recent job [%s] due at (%s) ...",
					head.Job.Name, head.DueTime.Format("2006-01-02 15:04:05"))
			}
			if stopped := s.wait(wait); stopped {
				break loop
			}
			continue
		}

		// queue drained but jobs still running
		if stopped := s.wait(s.config.PollInterval); stopped {
			break loop
		}
	}

	s.shutdown()
	s.Logger.Noticef("****** pending: %d, running: %d, completed: %d ******",
		s.queue.Len(), len(s.inflight), s.completed)
	s.Logger.Noticef(strings.Repeat("=", 60))
	s.Logger.Noticef("monitor exit.")
}

// collectReady handles every completion that is already waiting, without
// blocking.
func (s *Scheduler) collectReady() {
	for {
		select {
		case c := <-s.completions:
			s.finish(c, true)
		default:
			return
		}
	}
}

// wait sleeps until d elapses, a completion arrives, or Stop is called.
func (s *Scheduler) wait(d time.Duration) (stopped bool) {
	select {
	case <-s.stop:
		return true
	case c := <-s.completions:
		s.finish(c, true)
	case <-s.Clock.After(d):
	}
	return false
}

// submit hands a due entry to the worker pool. If every worker is busy the
// controller keeps consuming completions instead of blocking, so workers can
// always report back.
func (s *Scheduler) submit(e *ScheduledEntry) {
	for {
		select {
		case s.tasks <- e.Job:
			s.inflight[e.Job.Name] = e.Job
			s.Logger.Noticef("job [%s] is due. launched.", e.Job.Name)
			return
		case c := <-s.completions:
			s.finish(c, true)
		case <-s.stop:
			heap.Push(&s.queue, e)
			return
		}
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for job := range s.tasks {
		s.completions <- s.execute(job)
	}
}

// execute runs one job, converting errors and panics into exception alarms
// so the controller always sees a uniform completion shape.
func (s *Scheduler) execute(job *Job) (c completion) {
	defer func() {
		if r := recover(); r != nil {
			c = completion{
				job:  job,
				info: &AlarmInfo{Kind: KindException, Content: fmt.Sprintf("%v\n\n%s", r, debug.Stack())},
			}
		}
	}()

	ok, info, err := s.Runner.Run(job)
	if err != nil {
		s.Logger.Errorf("job [%s] raised an exception: %v", job.Name, err)
		return completion{job: job, info: &AlarmInfo{Kind: KindException, Content: err.Error()}}
	}
	return completion{job: job, ok: ok, info: info}
}

func (s *Scheduler) finish(c completion, allowRetry bool) {
	delete(s.inflight, c.job.Name)
	s.completed++

	if c.ok {
		s.Logger.Noticef("job [%s] returned. status: OK.", c.job.Name)
		return
	}

	s.Logger.Errorf("job [%s] returned. status: =====> ALARM <=====", c.job.Name)
	if s.Alerter != nil {
		s.Alerter.Alert(c.job, c.info)
	}

	if allowRetry && c.job.RetryTimes > 0 {
		c.job.RetryTimes--
		s.Logger.Noticef("job [%s] retrying. times left: %d.", c.job.Name, c.job.RetryTimes)
		s.enqueueAt(c.job, s.Clock.Now().Add(c.job.RetryInterval))
	}
}

// shutdown closes the pool and waits for in-flight jobs, consuming their
// completions so no worker blocks on the way out. Pending queue entries are
// abandoned; completions collected here still alert but never re-enqueue.
func (s *Scheduler) shutdown() {
	close(s.tasks)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	for {
		select {
		case c := <-s.completions:
			s.finish(c, false)
		case <-done:
			for {
				select {
				case c := <-s.completions:
					s.finish(c, false)
				default:
					return
				}
			}
		}
	}
}
