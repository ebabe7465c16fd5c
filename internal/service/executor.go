package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dailypost/internal/adapters/generation"
	"dailypost/internal/core/domain"
	"dailypost/internal/core/ports"
	"dailypost/internal/logging"
)

const publishAssetName = "publish.jpg"

// ExecutorOptions holds the per-run settings that never change between runs.
type ExecutorOptions struct {
	Credentials     domain.Credentials
	Constraints     domain.Constraints
	WaitBudget      time.Duration
	AcquireDeadline time.Duration
	KeepArtifacts   bool
}

// JobExecutor runs the acquire → normalize → publish pipeline once per call.
type JobExecutor struct {
	generator  ports.GenerationService
	normalizer ports.Normalizer
	publisher  ports.Publisher
	sessions   *SessionStore
	storage    ports.Storage
	logger     *logging.Logger
	opts       ExecutorOptions
	now        func() time.Time
}

// NewJobExecutor creates a new JobExecutor.
func NewJobExecutor(
	generator ports.GenerationService,
	normalizer ports.Normalizer,
	publisher ports.Publisher,
	sessions *SessionStore,
	storage ports.Storage,
	logger *logging.Logger,
	opts ExecutorOptions,
) *JobExecutor {
	if opts.WaitBudget <= 0 {
		opts.WaitBudget = 2 * time.Minute
	}
	if opts.AcquireDeadline <= 0 {
		opts.AcquireDeadline = opts.WaitBudget + 30*time.Second
	}
	return &JobExecutor{
		generator:  generator,
		normalizer: normalizer,
		publisher:  publisher,
		sessions:   sessions,
		storage:    storage,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
	}
}

// RunOnce executes the pipeline. Every failure, including panics, is contained in the
// returned JobRun; nothing escapes to the caller.
func (e *JobExecutor) RunOnce(ctx context.Context, prompt string, captions ports.CaptionPolicy, trigger string) domain.JobRun {
	run := domain.JobRun{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		Prompt:    prompt,
		StartedAt: e.now().UTC(),
		Status:    domain.RunStatusFailed,
	}
	e.logger.Logf(logging.KindJob, "[JOB %s] Starting run (trigger: %s)", run.ID, trigger)

	var rawName string
	err := e.stage(ctx, &run, domain.StageAcquire, func(ctx context.Context) error {
		if err := e.storage.InitRun(ctx, run.ID); err != nil {
			return err
		}
		raw, err := e.acquire(ctx, prompt)
		if err != nil {
			return err
		}
		rawName = "raw" + generation.Extension(raw.MIMEType)
		e.logger.Logf(logging.KindStage, "[JOB %s] acquired %s asset %dx%d (%d bytes)", run.ID, raw.MIMEType, raw.Width, raw.Height, len(raw.Data))
		return e.storage.SaveAsset(ctx, run.ID, rawName, raw.Data)
	})
	if err != nil {
		return e.finish(ctx, run, err)
	}

	var asset domain.PublishableAsset
	err = e.stage(ctx, &run, domain.StageNormalize, func(ctx context.Context) error {
		data, err := e.storage.LoadAsset(ctx, run.ID, rawName)
		if err != nil {
			return err
		}
		asset, err = e.normalizer.Normalize(domain.RawAsset{Data: data}, e.opts.Constraints)
		if err != nil {
			return err
		}
		if err := e.opts.Constraints.Check(asset); err != nil {
			return err
		}
		return e.storage.SaveAsset(ctx, run.ID, publishAssetName, asset.Data)
	})
	if err != nil {
		return e.finish(ctx, run, err)
	}

	err = e.stage(ctx, &run, domain.StagePublish, func(ctx context.Context) error {
		sess, err := e.sessions.GetOrCreate(ctx, e.opts.Credentials)
		if err != nil {
			return err
		}
		run.Caption = captions.Caption()
		ack, err := e.publisher.Publish(ctx, asset, run.Caption, sess)
		if err != nil {
			if errors.Is(err, domain.ErrAuth) {
				e.logger.Warnf("[JOB %s] publish rejected the session, next run will log in again", run.ID)
				e.sessions.Invalidate(ctx)
			}
			return err
		}
		run.Ack = &ack
		return nil
	})
	return e.finish(ctx, run, err)
}

// stage runs fn, records its duration and converts panics into errors tagged with the stage.
func (e *JobExecutor) stage(ctx context.Context, run *domain.JobRun, stage domain.Stage, fn func(context.Context) error) (err error) {
	start := e.now()
	e.logger.Logf(logging.KindStage, "[JOB %s] %s: started", run.ID, stage)

	defer func() {
		if r := recover(); r != nil {
			err = domain.StagePanicError{Stage: stage, Value: r}
		}
		report := domain.StageReport{Stage: stage, Duration: e.now().Sub(start)}
		if err != nil {
			report.Error = err.Error()
			err = &domain.StageError{Stage: stage, Err: err}
			e.logger.Errorf("[JOB %s] %s: failed after %s: %v", run.ID, stage, report.Duration.Round(time.Millisecond), report.Error)
		} else {
			e.logger.Logf(logging.KindStage, "[JOB %s] %s: done in %s", run.ID, stage, report.Duration.Round(time.Millisecond))
		}
		run.Stages = append(run.Stages, report)
	}()

	return fn(ctx)
}

// acquire enforces the overall stage deadline on top of the generator's own wait budget.
func (e *JobExecutor) acquire(ctx context.Context, prompt string) (domain.RawAsset, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.AcquireDeadline)
	defer cancel()

	type result struct {
		asset domain.RawAsset
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: domain.StagePanicError{Stage: domain.StageAcquire, Value: r}}
			}
		}()
		asset, err := e.generator.Acquire(ctx, prompt, e.opts.WaitBudget)
		done <- result{asset: asset, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(r.err, domain.ErrAcquireTimeout) {
			return domain.RawAsset{}, fmt.Errorf("%w: %v", domain.ErrAcquireTimeout, r.err)
		}
		return r.asset, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.RawAsset{}, fmt.Errorf("%w: no asset within %s", domain.ErrAcquireTimeout, e.opts.AcquireDeadline)
		}
		return domain.RawAsset{}, ctx.Err()
	}
}

func (e *JobExecutor) finish(ctx context.Context, run domain.JobRun, err error) domain.JobRun {
	run.FinishedAt = e.now().UTC()
	if err == nil {
		run.Status = domain.RunStatusSuccess
		e.logger.Logf(logging.KindJob, "[JOB %s] Run completed successfully (media %s)", run.ID, run.Ack.MediaID)
	} else {
		run.Status = domain.RunStatusFailed
		var se *domain.StageError
		if errors.As(err, &se) {
			run.FailedStage = se.Stage
			err = se.Err
		}
		run.Kind = domain.Classify(err)
		run.Reason = err.Error()
		e.logger.Errorf("[JOB %s] Run failed in %s (%s): %s", run.ID, run.FailedStage, run.Kind, run.Reason)
	}

	// Run records are written even when ctx is already cancelled.
	bg := context.WithoutCancel(ctx)
	if err := e.storage.SaveRun(bg, run); err != nil {
		e.logger.Warnf("[JOB %s] failed to save run record: %v", run.ID, err)
	}
	if !e.opts.KeepArtifacts {
		if err := e.storage.Cleanup(bg, run.ID); err != nil {
			e.logger.Warnf("[JOB %s] failed to clean scratch assets: %v", run.ID, err)
		}
	}
	return run
}
