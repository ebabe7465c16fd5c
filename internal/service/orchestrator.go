package service

import (
	"context"
	"time"

	"dailypost/internal/core/domain"
	"dailypost/internal/core/ports"
	"dailypost/internal/logging"
)

// JobRunner runs the pipeline once.
type JobRunner interface {
	RunOnce(ctx context.Context, prompt string, captions ports.CaptionPolicy, trigger string) domain.JobRun
}

// Orchestrator ties the executor to the daily schedule.
type Orchestrator struct {
	runner       JobRunner
	scheduler    *DailyScheduler
	captions     ports.CaptionPolicy
	prompt       string
	pollInterval time.Duration
	logger       *logging.Logger
	now          func() time.Time

	succeeded int
	failed    int
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	runner JobRunner,
	scheduler *DailyScheduler,
	captions ports.CaptionPolicy,
	prompt string,
	pollInterval time.Duration,
	logger *logging.Logger,
) *Orchestrator {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Orchestrator{
		runner:       runner,
		scheduler:    scheduler,
		captions:     captions,
		prompt:       prompt,
		pollInterval: pollInterval,
		logger:       logger,
		now:          time.Now,
	}
}

// Run performs one immediate run, then polls the schedule until ctx is cancelled.
// The daemon has no other exit: job failures are recorded and the loop continues.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Infof("starting immediate run")
	o.RunStartup(ctx)

	o.scheduler.EnsureTodaySlots(o.now())
	o.logNext(o.now())

	o.logger.Infof("entering schedule loop (poll every %s)", o.pollInterval)
	for {
		timer := time.NewTimer(o.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			o.logger.Infof("schedule loop stopped: %d succeeded, %d failed", o.succeeded, o.failed)
			return nil
		case <-timer.C:
		}
		o.Tick(ctx, o.now())
	}
}

// RunStartup executes the run that happens once at process start, independent of any slot.
func (o *Orchestrator) RunStartup(ctx context.Context) domain.JobRun {
	return o.execute(ctx, domain.TriggerStartup)
}

// Tick polls the scheduler once at now and runs a job for every slot that fires.
func (o *Orchestrator) Tick(ctx context.Context, now time.Time) int {
	n := o.scheduler.PollAndFire(now, func(slot domain.ScheduleSlot) {
		o.execute(ctx, "slot "+slot.String())
	})
	if n > 0 {
		o.logNext(o.now())
	}
	return n
}

// execute runs one job to completion. Cancelling ctx stops the loop between jobs, never a
// job in flight; stage budgets bound how long that takes.
func (o *Orchestrator) execute(ctx context.Context, trigger string) domain.JobRun {
	run := o.runner.RunOnce(context.WithoutCancel(ctx), o.prompt, o.captions, trigger)
	if run.Succeeded() {
		o.succeeded++
	} else {
		o.failed++
	}
	return run
}

func (o *Orchestrator) logNext(now time.Time) {
	if slot, at, ok := o.scheduler.NextFire(now); ok {
		o.logger.Logf(logging.KindSched, "next slot %s at %s", slot, at.Format(time.RFC3339))
		return
	}
	o.logger.Logf(logging.KindSched, "no slots left today; a new schedule is drawn after midnight")
}
