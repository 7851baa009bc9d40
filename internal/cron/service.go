package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// RunFunc executes a cron-triggered agent turn and returns the text result to
// report back (§4.8: "invoke the registered callback (an agent turn via
// process_direct(payload.message, session_key=\"cron:<id>\"))").
type RunFunc func(ctx context.Context, message, sessionKey string) (string, error)

// DeliverFunc publishes a job's result as an outbound message when
// payload.deliver is set.
type DeliverFunc func(channel, to, result string)

// Service owns the job store and a single soonest-next-wake timer. Each tick
// runs on the timer's goroutine and processes its due jobs one after another.
type Service struct {
	store    *Store
	run      RunFunc
	deliver  DeliverFunc
	gron     gronx.Gronx
	mu       sync.Mutex
	timer    *time.Timer
	stopped  bool
	stopOnce sync.Once
}

func NewService(store *Store, run RunFunc, deliver DeliverFunc) *Service {
	return &Service{store: store, run: run, deliver: deliver, gron: gronx.New()}
}

// Start arms the timer for the first time, normally called once at startup
// after any persisted jobs have been loaded.
func (s *Service) Start(ctx context.Context) {
	s.rearm(ctx)
}

// Stop cancels the pending timer. Safe to call more than once.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stopped = true
		if s.timer != nil {
			s.timer.Stop()
		}
	})
}

// Add registers a new job and returns its assigned id (§4.8).
func (s *Service) Add(ctx context.Context, name string, kind Kind, atMs, everySeconds int64, cronExpr, message string, deliver bool, channel, to string) (string, error) {
	return s.AddWithTZ(ctx, name, kind, atMs, everySeconds, cronExpr, "", message, deliver, channel, to)
}

// AddWithTZ is Add with an optional IANA timezone for a `cron` schedule
// (§3 "cron(expr, tz?)").
func (s *Service) AddWithTZ(ctx context.Context, name string, kind Kind, atMs, everySeconds int64, cronExpr, cronTZ, message string, deliver bool, channel, to string) (string, error) {
	now := nowMs()
	j := &Job{
		Name:           name,
		Kind:           kind,
		Message:        message,
		AtMs:           atMs,
		EverySeconds:   everySeconds,
		CronExpr:       cronExpr,
		CronTZ:         cronTZ,
		Deliver:        deliver,
		Channel:        channel,
		To:             to,
		Enabled:        true,
		DeleteAfterRun: kind == KindAt,
	}
	j.touch(now)

	next, err := s.computeNextRun(j, now)
	if err != nil {
		return "", err
	}
	j.NextRunMs = next

	s.store.add(j)
	if err := s.store.save(); err != nil {
		return "", err
	}
	s.rearm(ctx)
	return j.ID, nil
}

// List returns every job, soonest-next-run first.
func (s *Service) List() []*Job {
	jobs := s.store.list()
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].NextRunMs < jobs[j].NextRunMs })
	return jobs
}

// Remove deletes a job by id.
func (s *Service) Remove(ctx context.Context, id string) error {
	if !s.store.remove(id) {
		return fmt.Errorf("cron job %q not found", id)
	}
	if err := s.store.save(); err != nil {
		return err
	}
	s.rearm(ctx)
	return nil
}

// computeNextRun derives next_run_ms from a job's schedule kind (§4.8).
func (s *Service) computeNextRun(j *Job, from int64) (int64, error) {
	switch j.Kind {
	case KindAt:
		if j.AtMs <= from {
			return 0, nil // in the past: never fires
		}
		return j.AtMs, nil
	case KindEvery:
		if j.EverySeconds <= 0 {
			return 0, fmt.Errorf("every_seconds must be > 0")
		}
		return from + j.EverySeconds*1000, nil
	case KindCron:
		if j.CronExpr == "" {
			return 0, fmt.Errorf("cron_expr must be non-empty")
		}
		expr := j.CronExpr
		if j.CronTZ != "" {
			// gronx resolves a leading "TZ=<iana-name>" prefix against the
			// named location instead of server-local time (§3 "cron(expr, tz?)").
			expr = "TZ=" + j.CronTZ + " " + expr
		}
		next, err := gronx.NextTick(expr, false)
		if err != nil {
			return 0, fmt.Errorf("invalid cron_expr: %w", err)
		}
		return next.UnixMilli(), nil
	default:
		return 0, fmt.Errorf("unknown schedule kind %q", j.Kind)
	}
}

// rearm (re)schedules the timer against the soonest next_run_ms across every
// enabled job.
func (s *Service) rearm(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}

	soonest := s.store.soonestWake()
	if soonest == 0 {
		s.timer = nil
		return
	}

	delay := time.Duration(soonest-nowMs()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	s.timer = time.AfterFunc(delay, func() { s.tick(ctx) })
}

// tick processes every due job sequentially, in next_run_ms ascending order
// (§5 "Cron: one tick processes due jobs sequentially by next_run_ms
// ascending"), then rearms the timer.
func (s *Service) tick(ctx context.Context) {
	due := s.store.dueJobs(nowMs())
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunMs < due[j].NextRunMs })

	for _, j := range due {
		s.runOne(ctx, j)
	}

	if len(due) > 0 {
		if err := s.store.save(); err != nil {
			slog.Error("cron: failed to persist after tick", "error", err)
		}
	}
	s.rearm(ctx)
}

// runOne executes a single due job. A job that fails sets last_status=error
// and does not abort the batch (§4.8 "Concurrency").
func (s *Service) runOne(ctx context.Context, j *Job) {
	now := nowMs()
	j.LastRunMs = now
	j.touch(now)

	result, err := s.run(ctx, j.Message, j.SessionKey())
	if err != nil {
		j.LastStatus = "error"
		j.LastError = err.Error()
	} else {
		j.LastStatus = "ok"
		j.LastError = ""
		if j.Deliver && s.deliver != nil {
			s.deliver(j.Channel, j.To, result)
		}
	}

	if j.Kind == KindEvery || j.Kind == KindCron {
		if next, nerr := s.computeNextRun(j, now); nerr == nil {
			j.NextRunMs = next
		} else {
			slog.Error("cron: failed to recompute next run", "job", j.ID, "error", nerr)
			j.NextRunMs = 0
		}
	}

	if j.DeleteAfterRun {
		s.store.remove(j.ID)
	}
}
