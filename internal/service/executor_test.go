package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dailypost/internal/adapters/imaging"
	"dailypost/internal/adapters/localstorage"
	"dailypost/internal/core/domain"
	"dailypost/internal/core/ports"
)

var testConstraints = domain.Constraints{StripBottomPx: 10, TargetSide: 64, MaxBytes: 1 << 20, MIMEType: "image/jpeg"}

type executorFixture struct {
	gen     *fakeGenerator
	norm    ports.Normalizer
	pub     *fakePublisher
	cache   *memCache
	storage *localstorage.LocalStorage
	exec    *JobExecutor
}

func newExecutorFixture(t *testing.T, norm ports.Normalizer, mutate func(*ExecutorOptions)) *executorFixture {
	t.Helper()
	f := &executorFixture{
		gen:     &fakeGenerator{asset: pngAsset(t, 120, 90)},
		norm:    norm,
		pub:     newFakePublisher(),
		cache:   &memCache{},
		storage: localstorage.NewLocalStorage(t.TempDir()),
	}
	if f.norm == nil {
		f.norm = imaging.NewNormalizer(90)
	}
	opts := ExecutorOptions{
		Credentials:     creds,
		Constraints:     testConstraints,
		WaitBudget:      time.Second,
		AcquireDeadline: 2 * time.Second,
	}
	if mutate != nil {
		mutate(&opts)
	}
	sessions := NewSessionStore(f.cache, f.pub, nil)
	f.exec = NewJobExecutor(f.gen, f.norm, f.pub, sessions, f.storage, nil, opts)
	return f
}

func TestRunOnceSuccess(t *testing.T) {
	f := newExecutorFixture(t, nil, nil)

	run := f.exec.RunOnce(context.Background(), "hallway", FixedCaption("#liminalspace"), domain.TriggerStartup)

	require.True(t, run.Succeeded(), "run failed: %s", run.Reason)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, domain.TriggerStartup, run.Trigger)
	assert.Empty(t, run.FailedStage)
	require.NotNil(t, run.Ack)
	assert.Equal(t, "media-1", run.Ack.MediaID)
	assert.Equal(t, "#liminalspace", run.Caption)
	assert.Equal(t, []string{"#liminalspace"}, f.pub.captions)

	require.Len(t, run.Stages, 3)
	assert.Equal(t, domain.StageAcquire, run.Stages[0].Stage)
	assert.Equal(t, domain.StageNormalize, run.Stages[1].Stage)
	assert.Equal(t, domain.StagePublish, run.Stages[2].Stage)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))

	dir := f.storage.GetRunPath(run.ID)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "scratch assets should be removed")
	assert.Equal(t, "run.json", entries[0].Name())
}

func TestRunOnceKeepsArtifactsWhenAsked(t *testing.T) {
	f := newExecutorFixture(t, nil, func(o *ExecutorOptions) { o.KeepArtifacts = true })

	run := f.exec.RunOnce(context.Background(), "hallway", FixedCaption("c"), "slot 07:14")
	require.True(t, run.Succeeded())

	for _, name := range []string{"raw.png", "publish.jpg", "run.json"} {
		_, err := os.Stat(filepath.Join(f.storage.GetRunPath(run.ID), name))
		assert.NoError(t, err, name)
	}
}

func TestRunOnceContainsStageFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *executorFixture)
		norm      *fakeNormalizer
		wantStage domain.Stage
		wantKind  string
		stages    int
	}{
		{
			name:      "acquire ui drift",
			setup:     func(f *executorFixture) { f.gen.err = domain.ErrAcquireUI },
			wantStage: domain.StageAcquire,
			wantKind:  "AcquireUIError",
			stages:    1,
		},
		{
			name:      "acquire session expired",
			setup:     func(f *executorFixture) { f.gen.err = domain.ErrSessionExpired },
			wantStage: domain.StageAcquire,
			wantKind:  "SessionExpired",
			stages:    1,
		},
		{
			name:      "normalize decode",
			norm:      &fakeNormalizer{err: domain.ErrDecode},
			wantStage: domain.StageNormalize,
			wantKind:  "DecodeError",
			stages:    2,
		},
		{
			name:      "normalize panic",
			norm:      &fakeNormalizer{panic: "index out of range"},
			wantStage: domain.StageNormalize,
			wantKind:  "Panic",
			stages:    2,
		},
		{
			name:      "publish rate limited",
			setup:     func(f *executorFixture) { f.pub.publishErr = domain.ErrRateLimited },
			wantStage: domain.StagePublish,
			wantKind:  "RateLimited",
			stages:    3,
		},
		{
			name:      "publish login rejected",
			setup:     func(f *executorFixture) { f.pub.loginErr = domain.ErrAuth },
			wantStage: domain.StagePublish,
			wantKind:  "AuthError",
			stages:    3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var norm ports.Normalizer
			if tt.norm != nil {
				norm = tt.norm
			}
			f := newExecutorFixture(t, norm, nil)
			if tt.setup != nil {
				tt.setup(f)
			}

			var run domain.JobRun
			require.NotPanics(t, func() {
				run = f.exec.RunOnce(context.Background(), "hallway", FixedCaption("c"), "slot 12:55")
			})

			assert.Equal(t, domain.RunStatusFailed, run.Status)
			assert.Equal(t, tt.wantStage, run.FailedStage)
			assert.Equal(t, tt.wantKind, run.Kind)
			assert.NotEmpty(t, run.Reason)
			require.Len(t, run.Stages, tt.stages)
			assert.NotEmpty(t, run.Stages[tt.stages-1].Error)
			assert.Nil(t, run.Ack)

			_, err := os.Stat(filepath.Join(f.storage.GetRunPath(run.ID), "run.json"))
			assert.NoError(t, err)
		})
	}
}

func TestRunOnceAcquireDeadline(t *testing.T) {
	f := newExecutorFixture(t, nil, func(o *ExecutorOptions) { o.AcquireDeadline = 30 * time.Millisecond })
	f.gen.sleep = 300 * time.Millisecond

	start := time.Now()
	run := f.exec.RunOnce(context.Background(), "hallway", FixedCaption("c"), "slot 20:02")

	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, domain.StageAcquire, run.FailedStage)
	assert.Equal(t, "AcquireTimeout", run.Kind)
}

func TestRunOnceAcquirePanic(t *testing.T) {
	f := newExecutorFixture(t, nil, nil)
	f.gen.panic = errors.New("driver crashed")

	run := f.exec.RunOnce(context.Background(), "hallway", FixedCaption("c"), "slot 20:02")
	assert.Equal(t, domain.StageAcquire, run.FailedStage)
	assert.Equal(t, "Panic", run.Kind)
}

func TestRunOnceWatermarkTooTall(t *testing.T) {
	f := newExecutorFixture(t, nil, nil)
	f.gen.asset = pngAsset(t, 50, 8)

	run := f.exec.RunOnce(context.Background(), "hallway", FixedCaption("c"), "slot 20:02")
	assert.Equal(t, domain.StageNormalize, run.FailedStage)
	assert.Equal(t, "BoundingRegionUnavailable", run.Kind)
}

func TestRunOnceAuthErrorInvalidatesSession(t *testing.T) {
	f := newExecutorFixture(t, nil, nil)
	ctx := context.Background()

	first := f.exec.RunOnce(ctx, "hallway", FixedCaption("c"), "slot 07:14")
	require.True(t, first.Succeeded())
	assert.Equal(t, 1, f.pub.loginCalls)

	// The token is revoked after the probe: upload is rejected.
	f.pub.publishErr = fmt.Errorf("%w: upload 401", domain.ErrAuth)

	second := f.exec.RunOnce(ctx, "hallway", FixedCaption("c"), "slot 12:55")
	assert.Equal(t, domain.StagePublish, second.FailedStage)
	assert.Equal(t, "AuthError", second.Kind)
	assert.False(t, f.cache.present, "session cache should be discarded")

	f.pub.publishErr = nil
	third := f.exec.RunOnce(ctx, "hallway", FixedCaption("c"), "slot 20:02")
	require.True(t, third.Succeeded(), third.Reason)
	assert.Equal(t, 2, f.pub.loginCalls)
}
