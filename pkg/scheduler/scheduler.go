// Package scheduler runs the reminder cadences: an hourly window poll, the
// morning digest, the per-marker day-ahead summaries and the multi-day
// lookahead. Each cadence is its own worker; they share only the ledger and
// read access to the event stores.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dotsetgreg/planbot/pkg/channels"
	"github.com/dotsetgreg/planbot/pkg/config"
	"github.com/dotsetgreg/planbot/pkg/ledger"
	"github.com/dotsetgreg/planbot/pkg/logger"
	"github.com/dotsetgreg/planbot/pkg/metrics"
	"github.com/dotsetgreg/planbot/pkg/planner"
)

// clockPoll is how often the clock cadences check whether they are due.
const clockPoll = 30 * time.Second

const (
	CadenceHourly    = "hourly"
	CadenceDigest    = "digest"
	CadenceLookahead = "lookahead"
	dayAheadPrefix   = "day_ahead_"
)

// UserLister yields every user the scheduler should scan.
type UserLister interface {
	Users() []string
}

type Options struct {
	Config  config.SchedulerConfig
	Users   UserLister
	Events  *planner.LineStore
	Ledger  ledger.Ledger
	Sender  channels.Sender
	Metrics *metrics.Collector
	// Now defaults to time.Now.
	Now func() time.Time
}

type Scheduler struct {
	cfg     config.SchedulerConfig
	users   UserLister
	events  *planner.LineStore
	ledger  ledger.Ledger
	sender  channels.Sender
	metrics *metrics.Collector
	now     func() time.Time

	mu   sync.Mutex
	jobs []*clockJob
}

// clockJob is a cadence fired by a cron expression, at most once per day.
type clockJob struct {
	name      string
	expr      string
	run       func(ctx context.Context, now time.Time)
	lastFired string
}

func New(opts Options) (*Scheduler, error) {
	switch {
	case opts.Users == nil:
		return nil, errors.New("scheduler: user source is required")
	case opts.Events == nil:
		return nil, errors.New("scheduler: event store is required")
	case opts.Ledger == nil:
		return nil, errors.New("scheduler: ledger is required")
	case opts.Sender == nil:
		return nil, errors.New("scheduler: sender is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Scheduler{
		cfg:     opts.Config,
		users:   opts.Users,
		events:  opts.Events,
		ledger:  opts.Ledger,
		sender:  opts.Sender,
		metrics: opts.Metrics,
		now:     opts.Now,
	}

	gx := gronx.New()
	add := func(name, expr string, run func(context.Context, time.Time)) error {
		if !gx.IsValid(expr) {
			return fmt.Errorf("scheduler: %s: invalid cron expression %q", name, expr)
		}
		s.jobs = append(s.jobs, &clockJob{name: name, expr: expr, run: run})
		return nil
	}

	if err := add(CadenceDigest, s.cfg.DigestCron, func(ctx context.Context, now time.Time) {
		s.CleanupLedger(ctx, now)
		s.DigestPass(ctx, now)
	}); err != nil {
		return nil, err
	}
	for _, da := range s.cfg.DayAhead {
		da := da
		if err := add(dayAheadPrefix+da.Marker, da.Cron, func(ctx context.Context, now time.Time) {
			s.DayAheadPass(ctx, now, da)
		}); err != nil {
			return nil, err
		}
	}
	if err := add(CadenceLookahead, s.cfg.LookaheadCron, s.LookaheadPass); err != nil {
		return nil, err
	}
	return s, nil
}

// Run starts every cadence worker and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	hourlyEvery := time.Duration(s.cfg.HourlyPollSeconds) * time.Second
	if hourlyEvery <= 0 {
		hourlyEvery = time.Minute
	}
	g.Go(func() error {
		s.loop(ctx, CadenceHourly, hourlyEvery, func(ctx context.Context) {
			s.HourlyPass(ctx, s.now())
		})
		return nil
	})

	for _, job := range s.jobs {
		job := job
		g.Go(func() error {
			s.loop(ctx, job.name, clockPoll, func(ctx context.Context) {
				now := s.now()
				if s.due(job, now) {
					job.run(ctx, now)
				}
			})
			return nil
		})
	}

	logger.InfoCF("scheduler", "Scheduler started", map[string]interface{}{
		"workers": len(s.jobs) + 1,
	})
	err := g.Wait()
	logger.InfoC("scheduler", "Scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	s.safeTick(ctx, name, tick)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.safeTick(ctx, name, tick)
		}
	}
}

// safeTick keeps a panicking pass from killing its worker; the cadence
// retries on the next tick.
func (s *Scheduler) safeTick(ctx context.Context, name string, tick func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("scheduler", "Worker pass panicked", map[string]interface{}{
				"cadence": name,
				"panic":   fmt.Sprint(r),
			})
		}
	}()
	tick(ctx)
}

// due reports whether job's cron minute passed less than the fire window
// ago and the job has not fired yet today. A true result records the firing.
func (s *Scheduler) due(job *clockJob, now time.Time) bool {
	prev, err := gronx.PrevTickBefore(job.expr, now, true)
	if err != nil {
		logger.WarnCF("scheduler", "Cannot evaluate cron expression", map[string]interface{}{
			"cadence": job.name,
			"expr":    job.expr,
			"error":   err.Error(),
		})
		return false
	}
	window := time.Duration(s.cfg.FireWindowMinutes) * time.Minute
	if window <= 0 {
		window = 2 * time.Minute
	}
	if now.Before(prev) || now.Sub(prev) >= window {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	today := now.Format(planner.DateLayout)
	if job.lastFired == today {
		return false
	}
	job.lastFired = today
	return true
}

// pass is one scan of every user for a cadence, tagged with a run id.
type pass struct {
	s       *Scheduler
	ctx     context.Context
	cadence string
	id      string
	now     time.Time
	sent    int
	failed  int
}

func (s *Scheduler) newPass(ctx context.Context, cadence string, now time.Time) *pass {
	if s.metrics != nil {
		s.metrics.SchedulerPasses.WithLabelValues(cadence).Inc()
	}
	return &pass{s: s, ctx: ctx, cadence: cadence, id: "run-" + uuid.NewString(), now: now}
}

// eachUser runs fn over every user's parsed events; one user's failure or
// panic is logged and the scan continues.
func (p *pass) eachUser(fn func(user string, events []planner.Event)) {
	for _, user := range p.s.users.Users() {
		if p.ctx.Err() != nil {
			return
		}
		p.scanUser(user, fn)
	}
	logger.DebugCF("scheduler", "Pass finished", map[string]interface{}{
		"run_id":  p.id,
		"cadence": p.cadence,
		"sent":    p.sent,
		"failed":  p.failed,
	})
}

func (p *pass) scanUser(user string, fn func(user string, events []planner.Event)) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("scheduler", "User scan panicked", map[string]interface{}{
				"run_id":  p.id,
				"cadence": p.cadence,
				"user_id": user,
				"panic":   fmt.Sprint(r),
			})
		}
	}()

	events, _, err := p.s.events.Events(user)
	if err != nil {
		logger.ErrorCF("scheduler", "Cannot read planner", map[string]interface{}{
			"run_id":  p.id,
			"cadence": p.cadence,
			"user_id": user,
			"error":   err.Error(),
		})
		return
	}
	fn(user, events)
}

// send delivers one reminder. Failures are logged and counted, never
// returned: the caller moves on to the next reminder.
func (p *pass) send(user, content string) bool {
	err := p.s.sender.Send(p.ctx, newReminder(user, content))
	result := "ok"
	if err != nil {
		result = "error"
		p.failed++
		logger.ErrorCF("scheduler", "Reminder send failed", map[string]interface{}{
			"run_id":  p.id,
			"cadence": p.cadence,
			"user_id": user,
			"error":   err.Error(),
		})
	} else {
		p.sent++
	}
	if p.s.metrics != nil {
		p.s.metrics.RemindersSent.WithLabelValues(p.cadence, result).Inc()
	}
	return err == nil
}

// sendOnce sends a ledger-guarded reminder: skipped when key is present and
// recorded only after a successful send.
func (p *pass) sendOnce(user, key string, occursAt time.Time, content string) {
	seen, err := p.s.ledger.Has(p.ctx, key)
	if err != nil {
		p.ledgerError(user, key, err)
		return
	}
	if seen || !p.send(user, content) {
		return
	}
	if err := p.s.ledger.Mark(p.ctx, key, occursAt, p.now); err != nil {
		p.ledgerError(user, key, err)
	}
}

func (p *pass) ledgerError(user, key string, err error) {
	logger.ErrorCF("scheduler", "Ledger access failed", map[string]interface{}{
		"run_id":  p.id,
		"cadence": p.cadence,
		"user_id": user,
		"key":     key,
		"error":   err.Error(),
	})
}
