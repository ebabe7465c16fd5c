package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dailypost/internal/core/domain"
	"dailypost/internal/core/ports"
)

type recordingRunner struct {
	triggers []string
	fail     map[int]bool
	onRun    func(call int)
	ctxErrs  []error
}

func (r *recordingRunner) RunOnce(ctx context.Context, prompt string, captions ports.CaptionPolicy, trigger string) domain.JobRun {
	call := len(r.triggers)
	r.triggers = append(r.triggers, trigger)
	if r.onRun != nil {
		r.onRun(call)
	}
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	run := domain.JobRun{Trigger: trigger, Prompt: prompt, Caption: captions.Caption(), Status: domain.RunStatusSuccess}
	if r.fail[call] {
		run.Status = domain.RunStatusFailed
		run.FailedStage = domain.StageAcquire
		run.Kind = "AcquireTimeout"
	}
	return run
}

func newTestOrchestrator(t *testing.T, runner JobRunner) (*Orchestrator, *DailyScheduler) {
	t.Helper()
	sched := newTestScheduler(t, 3, 6, 23, 0)
	o := NewOrchestrator(runner, sched, FixedCaption("#liminalspace"), "empty hallway", 10*time.Millisecond, nil)
	return o, sched
}

func TestOrchestratorSimulatedDay(t *testing.T) {
	runner := &recordingRunner{}
	o, sched := newTestOrchestrator(t, runner)
	ctx := context.Background()

	clock := day(5).Add(2 * time.Hour)
	o.now = func() time.Time { return clock }

	o.RunStartup(ctx)
	slots := sched.EnsureTodaySlots(clock)

	for ; clock.Before(day(6)); clock = clock.Add(30 * time.Second) {
		o.Tick(ctx, clock)
	}

	want := []string{domain.TriggerStartup}
	for _, slot := range slots {
		want = append(want, "slot "+slot.String())
	}
	assert.Equal(t, want, runner.triggers)
	assert.Equal(t, 4, o.succeeded)
	assert.Equal(t, 0, o.failed)
}

func TestOrchestratorFailedRunDoesNotBlockLaterSlots(t *testing.T) {
	runner := &recordingRunner{fail: map[int]bool{0: true, 1: true}}
	o, sched := newTestOrchestrator(t, runner)
	ctx := context.Background()

	run := o.RunStartup(ctx)
	assert.False(t, run.Succeeded())

	slots := sched.EnsureTodaySlots(day(5))
	for _, slot := range slots {
		assert.Equal(t, 1, o.Tick(ctx, at(slot, 5)))
	}

	assert.Len(t, runner.triggers, 4)
	assert.Equal(t, 2, o.failed)
	assert.Equal(t, 2, o.succeeded)
}

func TestOrchestratorRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &recordingRunner{onRun: func(int) { cancel() }}
	o, sched := newTestOrchestrator(t, runner)

	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, []string{domain.TriggerStartup}, runner.triggers)
	assert.Equal(t, []error{nil}, runner.ctxErrs, "in-flight job must not see the cancellation")
	assert.Equal(t, StateArmed, sched.State(time.Now()))
}
