package ports

import (
	"context"
	"time"

	"dailypost/internal/core/domain"
)

// GenerationService defines the contract for producing a media asset from a prompt.
type GenerationService interface {
	// Acquire drives the remote service until an asset materializes or waitBudget runs out.
	// Fails with domain.ErrAcquireTimeout, domain.ErrAcquireUI or domain.ErrSessionExpired.
	Acquire(ctx context.Context, prompt string, waitBudget time.Duration) (domain.RawAsset, error)
}

// Normalizer converts a raw asset into one that satisfies the platform constraints.
type Normalizer interface {
	Normalize(raw domain.RawAsset, c domain.Constraints) (domain.PublishableAsset, error)
}

// Publisher defines the contract for the publishing surface.
type Publisher interface {
	// Login performs a full credential login. Rejected credentials wrap domain.ErrAuth.
	Login(ctx context.Context, creds domain.Credentials) (*domain.Session, error)

	// Probe performs one cheap authenticated call. Auth failures wrap domain.ErrAuth.
	Probe(ctx context.Context, session *domain.Session) error

	// Publish uploads asset with caption. Fails with domain.ErrAuth or domain.ErrRateLimited.
	Publish(ctx context.Context, asset domain.PublishableAsset, caption string, session *domain.Session) (domain.Ack, error)
}

// SessionCache persists one opaque serialized session.
type SessionCache interface {
	// Load returns the stored payload, or os.ErrNotExist when nothing is cached.
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Delete(ctx context.Context) error
}

// Storage defines the contract for per-run scratch artifacts.
type Storage interface {
	// InitRun creates the run directory structure.
	InitRun(ctx context.Context, runID string) error

	// SaveAsset writes an intermediate asset under name.
	SaveAsset(ctx context.Context, runID, name string, data []byte) error

	// LoadAsset reads back an asset written by SaveAsset.
	LoadAsset(ctx context.Context, runID, name string) ([]byte, error)

	// SaveRun writes the run record and appends it to the history.
	SaveRun(ctx context.Context, run domain.JobRun) error

	// Cleanup removes the scratch assets of a run, keeping its record.
	Cleanup(ctx context.Context, runID string) error

	// GetRunPath returns the filesystem path for a given run ID.
	GetRunPath(runID string) string
}

// CaptionPolicy chooses the caption for one publish.
type CaptionPolicy interface {
	Caption() string
}
