package daemon

import (
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var (
	leadDuration     = 5 * time.Minute // announce an upcoming run this long before it
	preCheckMaxTimes = 30
	preCheckInterval = 10 * time.Second
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// TaskFunc represents a runnable task.
type TaskFunc func() error

// Scheduler runs a task on a cron schedule. Before each run it announces the
// run and retries a pre-check until it passes or gives up.
type Scheduler struct {
	OnUpcoming func(runAt time.Time)
	OnError    func(err error)
	Task       TaskFunc
	PreCheck   TaskFunc

	mu       sync.Mutex
	schedule cron.Schedule
	nextRun  time.Time
	running  bool

	controlCh chan controlMsg
	stopCh    chan struct{}
}

type controlKind int

const (
	ctrlRecalculate controlKind = iota // schedule replaced
	ctrlClear                          // schedule removed
	ctrlPostpone                       // next run moved later
	ctrlSkip                           // next run dropped
)

type controlMsg struct {
	kind controlKind
	data any
}

func NewScheduler(task, preCheck TaskFunc, onUpcoming func(time.Time), onError func(error)) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}
	return &Scheduler{
		OnUpcoming: onUpcoming,
		OnError:    onError,
		Task:       task,
		PreCheck:   preCheck,
		controlCh:  make(chan controlMsg, 4),
		stopCh:     make(chan struct{}),
	}
}

// NextRuns returns the next n activations of cronExpr after now.
func NextRuns(cronExpr string, n int) ([]time.Time, error) {
	sh, err := cronParser.Parse(cronExpr)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid cron expression %q", cronExpr)
	}
	runs := make([]time.Time, 0, n)
	t := time.Now()
	for i := 0; i < n; i++ {
		t = sh.Next(t)
		runs = append(runs, t)
	}
	return runs, nil
}

// Stop ends the scheduler goroutine for good.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.runScheduled()
}

// Schedule replaces the schedule.
func (s *Scheduler) Schedule(cronExpr string) error {
	sh, err := cronParser.Parse(cronExpr)
	if err != nil {
		return pkgerrors.Wrapf(err, "invalid cron expression %q", cronExpr)
	}

	s.mu.Lock()
	running := s.running
	if !running {
		s.schedule = sh
		s.nextRun = sh.Next(time.Now())
	}
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlRecalculate, sh)
	}
	return nil
}

// Clear removes the schedule. The scheduler keeps running and picks up the
// next Schedule call.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	running := s.running
	s.schedule = nil
	s.nextRun = time.Time{}
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlClear, nil)
	}
}

// Postpone postpones the next scheduled run by d. The postponed run must
// still come before the one after it.
func (s *Scheduler) Postpone(d time.Duration) error {
	if d <= 0 {
		return pkgerrors.New("postpone duration must be positive")
	}

	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() || !s.running {
		s.mu.Unlock()
		return pkgerrors.New("no active schedule to postpone")
	}
	orig := s.nextRun
	following := s.schedule.Next(orig).Truncate(time.Second)
	s.mu.Unlock()

	pp := orig.Add(d).Truncate(time.Second)
	if !pp.Before(following) {
		return pkgerrors.New("postpone duration too long")
	}

	s.trySendControl(ctrlPostpone, pp)
	return nil
}

// Skip skips the next scheduled run.
func (s *Scheduler) Skip() error {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return pkgerrors.New("no active schedule to skip")
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	running := s.running
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlSkip, nil)
	}
	return nil
}

func (s *Scheduler) Status() (nextRun time.Time, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun, s.running
}

func (s *Scheduler) runScheduled() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logrus.Debug("scheduler stopped")
	}()

	logrus.Debug("scheduler started")

	for {
		leading := true
		attempts := 0
		var precheckErr error

		schedule, nextRun := s.snapshot()
		idle := schedule == nil || nextRun.IsZero()
		wait := time.Duration(1<<63 - 1)
		if !idle {
			wait = time.Until(nextRun) - leadDuration
			if wait < 0 {
				wait = 0
			}
		}
		timer := time.NewTimer(wait)

	loop:
		for {
			select {
			case <-timer.C:
				if idle {
					break loop
				}

				if leading {
					logrus.WithField("runAt", nextRun.Format(time.DateTime)).Debug("scheduled start is coming up")
					leading = false
					timer.Reset(max(time.Until(nextRun), 0))
					s.notifyUpcoming(nextRun)
					continue
				}

				if s.PreCheck != nil {
					if err := s.PreCheck(); err != nil {
						if precheckErr == nil || err.Error() != precheckErr.Error() {
							precheckErr = err
							s.notifyError(pkgerrors.Wrap(err, "precheck failed"))
						}

						attempts++
						if attempts <= preCheckMaxTimes {
							logrus.Debugf("precheck failed (%d/%d): %v; retrying in %s", attempts, preCheckMaxTimes, err, preCheckInterval)
							timer.Reset(preCheckInterval)
							continue
						}

						s.advanceNextRun()
						break loop
					}
				}

				logrus.WithField("runAt", nextRun.Format(time.DateTime)).Info("running scheduled start")
				go func() {
					if err := s.Task(); err != nil {
						s.notifyError(pkgerrors.Wrap(err, "scheduled start failed"))
					}
				}()
				s.advanceNextRun()
				break loop
			case <-s.stopCh:
				timer.Stop()
				return
			case msg := <-s.controlCh:
				logrus.WithFields(logrus.Fields{
					"kind": msg.kind,
					"data": msg.data,
				}).Debug("received control msg")

				switch msg.kind {
				case ctrlRecalculate:
					sh := msg.data.(cron.Schedule)
					s.mu.Lock()
					s.schedule = sh
					s.nextRun = sh.Next(time.Now())
					s.mu.Unlock()
				case ctrlPostpone:
					pp := msg.data.(time.Time)
					nextRun, leading = pp, false
					timer.Reset(time.Until(pp))
					continue
				}
				timer.Stop()
				break loop
			}
		}
	}
}

func (s *Scheduler) snapshot() (cron.Schedule, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule, s.nextRun
}

func (s *Scheduler) advanceNextRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return
	}
	s.nextRun = s.schedule.Next(s.nextRun)
}

func (s *Scheduler) notifyUpcoming(runAt time.Time) {
	if s.OnUpcoming != nil {
		go s.OnUpcoming(runAt)
	}
}

func (s *Scheduler) notifyError(err error) {
	if s.OnError != nil {
		go s.OnError(err)
	}
}

func (s *Scheduler) trySendControl(kind controlKind, data any) {
	select {
	case s.controlCh <- controlMsg{kind: kind, data: data}:
	default:
	}
}
