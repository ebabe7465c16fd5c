package domain

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleSlot is a wall-clock time of day at which one job run is triggered.
type ScheduleSlot struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// MinuteOfDay returns the slot as minutes since local midnight.
func (s ScheduleSlot) MinuteOfDay() int {
	return s.Hour*60 + s.Minute
}

func (s ScheduleSlot) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// Before reports whether s is earlier in the day than other.
func (s ScheduleSlot) Before(other ScheduleSlot) bool {
	return s.MinuteOfDay() < other.MinuteOfDay()
}

// Next returns the first occurrence of the slot strictly after now, in now's location.
func (s ScheduleSlot) Next(now time.Time) time.Time {
	sched, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", s.Minute, s.Hour))
	if err != nil {
		return time.Time{}
	}
	return sched.Next(now)
}

// SlotAt returns the slot matching t's hour and minute.
func SlotAt(t time.Time) ScheduleSlot {
	return ScheduleSlot{Hour: t.Hour(), Minute: t.Minute()}
}

// Stage names one step of the pipeline.
type Stage string

const (
	StageAcquire   Stage = "acquire"
	StageNormalize Stage = "normalize"
	StagePublish   Stage = "publish"
)

// RunStatus is the terminal outcome of a JobRun.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// TriggerStartup marks the run executed once at process start.
const TriggerStartup = "startup"

// StageReport records how a single stage went.
type StageReport struct {
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// JobRun is one execution attempt of the pipeline.
type JobRun struct {
	ID          string        `json:"run_id"`
	Trigger     string        `json:"trigger"`
	Prompt      string        `json:"prompt"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Status      RunStatus     `json:"status"`
	FailedStage Stage         `json:"failed_stage,omitempty"`
	Kind        string        `json:"kind,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Stages      []StageReport `json:"stages"`
	Caption     string        `json:"caption,omitempty"`
	Ack         *Ack          `json:"ack,omitempty"`
}

// Succeeded reports whether the run completed all stages.
func (r JobRun) Succeeded() bool {
	return r.Status == RunStatusSuccess
}

// StageDuration returns the recorded duration for stage, or zero if it never ran.
func (r JobRun) StageDuration(stage Stage) time.Duration {
	for _, rep := range r.Stages {
		if rep.Stage == stage {
			return rep.Duration
		}
	}
	return 0
}

// Credentials identify the publishing account.
type Credentials struct {
	Username string
	Password string
}

// Session is a reusable authenticated handle to the publishing surface.
// Settings carries opaque token material returned by the publisher.
type Session struct {
	Username    string            `json:"username"`
	UserID      string            `json:"user_id,omitempty"`
	Token       string            `json:"token"`
	Settings    map[string]string `json:"settings,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ValidatedAt time.Time         `json:"validated_at,omitempty"`
}

// Valid reports whether the session carries usable token material.
func (s *Session) Valid() bool {
	return s != nil && s.Token != ""
}

// RawAsset is the artifact produced by the generation service.
type RawAsset struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
	Source   string
}

// PublishableAsset is a normalized asset that satisfies the target Constraints.
type PublishableAsset struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// Constraints describe what the publishing platform accepts.
type Constraints struct {
	StripBottomPx int
	TargetSide    int
	MaxBytes      int
	MIMEType      string
}

// Check enforces the publish precondition on asset.
func (c Constraints) Check(asset PublishableAsset) error {
	if asset.Width != c.TargetSide || asset.Height != c.TargetSide {
		return fmt.Errorf("%w: asset is %dx%d, want %dx%d", ErrConstraintViolation, asset.Width, asset.Height, c.TargetSide, c.TargetSide)
	}
	if c.MaxBytes > 0 && len(asset.Data) > c.MaxBytes {
		return fmt.Errorf("%w: asset is %d bytes, ceiling is %d", ErrConstraintViolation, len(asset.Data), c.MaxBytes)
	}
	if c.MIMEType != "" && asset.MIMEType != c.MIMEType {
		return fmt.Errorf("%w: encoding %q, want %q", ErrConstraintViolation, asset.MIMEType, c.MIMEType)
	}
	return nil
}

// Ack confirms a successful publish.
type Ack struct {
	MediaID     string    `json:"media_id"`
	PublishedAt time.Time `json:"published_at"`
}
