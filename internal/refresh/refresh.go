// Package refresh triggers the periodic price-refresh tool call on a cron
// schedule, outside the chat loop. The refresh workflow itself — actually
// re-querying flight/hotel prices — lives in the registered tool handler;
// this package only owns the schedule and the dispatch.
package refresh

import (
	"context"
	"errors"
	"time"

	cronparser "github.com/robfig/cron/v3"

	"github.com/haasonsaas/chatcore/internal/observability"
	"github.com/haasonsaas/chatcore/internal/tools"
)

// RefreshTool is the name of the tool Scheduler dispatches on each tick. A
// handler of this name is expected to be registered for the scheduler to
// have any effect; an unregistered tool is logged as a non-fatal error
// each tick.
const RefreshTool = "refresh_all_trip_prices"

// systemUser is the synthetic owner recorded on a cron-triggered call. The
// refresh handler fans out to every user's trips itself; the Tool Router
// still requires a userID for its audit trail, so cron-initiated calls are
// attributed to this sentinel rather than any real account.
const systemUser = "system:cron"

var cronParser = cronparser.NewParser(
	cronparser.Minute | cronparser.Hour | cronparser.Dom | cronparser.Month | cronparser.Dow | cronparser.Descriptor,
)

// Scheduler fires RefreshTool through a Router on a fixed cron schedule.
type Scheduler struct {
	router   *tools.Router
	schedule cronparser.Schedule
	log      *observability.Logger
	now      func() time.Time
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler parses cronExpr (standard five-field cron syntax, or a
// descriptor like "@hourly") and builds a Scheduler that will dispatch
// RefreshTool through router at each occurrence.
func NewScheduler(router *tools.Router, cronExpr string, log *observability.Logger) (*Scheduler, error) {
	if router == nil {
		return nil, errors.New("refresh: router is required")
	}
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		router:   router,
		schedule: schedule,
		log:      log,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Run blocks, firing RefreshTool at each scheduled occurrence, until ctx is
// cancelled or Stop is called. It is meant to be run in its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)
	for {
		next := s.schedule.Next(s.now())
		wait := next.Sub(s.now())
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
			s.fire(ctx)
		}
	}
}

// Stop signals Run to return after its current wait, without waiting for
// any in-flight dispatch to complete. Callers that need to know Run has
// actually exited should instead cancel the context passed to Run.
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) fire(ctx context.Context) {
	result := s.router.Execute(ctx, RefreshTool, map[string]any{}, systemUser)
	if !result.Success && s.log != nil {
		s.log.Error(ctx, "scheduled price refresh failed", "tool", RefreshTool, "error", result.Error)
	}
}
