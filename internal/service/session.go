package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"time"

	"dailypost/internal/core/domain"
	"dailypost/internal/core/ports"
	"dailypost/internal/logging"
)

// SessionStore owns the single reusable publishing session. It keeps the validated
// session in memory and mirrors it to the SessionCache so restarts can skip login.
type SessionStore struct {
	cache     ports.SessionCache
	publisher ports.Publisher
	logger    *logging.Logger
	now       func() time.Time

	current *domain.Session
}

func NewSessionStore(cache ports.SessionCache, publisher ports.Publisher, logger *logging.Logger) *SessionStore {
	return &SessionStore{
		cache:     cache,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Load reads the persisted session. Absent or corrupt caches report false; a corrupt
// payload is deleted so the next Save starts clean.
func (s *SessionStore) Load(ctx context.Context) (*domain.Session, bool) {
	data, err := s.cache.Load(ctx)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warnf("session cache unreadable, treating as absent: %v", err)
		}
		return nil, false
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil || !sess.Valid() {
		s.logger.Warnf("session cache corrupt, discarding")
		if err := s.cache.Delete(ctx); err != nil {
			s.logger.Warnf("failed to delete corrupt session cache: %v", err)
		}
		return nil, false
	}
	return &sess, true
}

// Validate probes the publisher once. Auth-class failures report false with no error;
// any other failure is returned so the caller can retry later.
func (s *SessionStore) Validate(ctx context.Context, sess *domain.Session) (bool, error) {
	if !sess.Valid() {
		return false, nil
	}
	err := s.publisher.Probe(ctx, sess)
	switch {
	case err == nil:
		sess.ValidatedAt = s.now().UTC()
		return true, nil
	case errors.Is(err, domain.ErrAuth), errors.Is(err, domain.ErrSessionExpired):
		return false, nil
	default:
		return false, err
	}
}

// Acquire performs a full login and persists the new session.
func (s *SessionStore) Acquire(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	s.logger.Infof("logging in to publisher as %s", creds.Username)
	sess, err := s.publisher.Login(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("login as %s: %w", creds.Username, err)
	}
	if sess.Username == "" {
		sess.Username = creds.Username
	}
	if err := s.Save(ctx, sess); err != nil {
		s.logger.Warnf("session obtained but not persisted: %v", err)
	}
	s.current = sess
	return cloneSession(sess), nil
}

// Save persists sess to the cache.
func (s *SessionStore) Save(ctx context.Context, sess *domain.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.cache.Save(ctx, data)
}

// GetOrCreate returns a validated session, logging in only when the held or cached
// session is missing or rejected. The returned value is a copy the caller may not keep.
func (s *SessionStore) GetOrCreate(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	sess := s.current
	if sess == nil {
		if loaded, ok := s.Load(ctx); ok {
			sess = loaded
		}
	}
	if sess != nil && sess.Username != "" && sess.Username != creds.Username {
		s.logger.Warnf("cached session belongs to %s, not %s", sess.Username, creds.Username)
		s.Invalidate(ctx)
		sess = nil
	}
	if sess != nil {
		valid, err := s.Validate(ctx, sess)
		if err != nil {
			return nil, fmt.Errorf("validate session: %w", err)
		}
		if valid {
			s.current = sess
			s.logger.Debugf("reusing session for %s", sess.Username)
			return cloneSession(sess), nil
		}
		s.logger.Warnf("session for %s rejected by probe, discarding", sess.Username)
		s.Invalidate(ctx)
	}
	return s.Acquire(ctx, creds)
}

// Invalidate drops the held session and its persisted copy.
func (s *SessionStore) Invalidate(ctx context.Context) {
	s.current = nil
	if err := s.cache.Delete(ctx); err != nil {
		s.logger.Warnf("failed to delete session cache: %v", err)
	}
}

func cloneSession(sess *domain.Session) *domain.Session {
	out := *sess
	out.Settings = maps.Clone(sess.Settings)
	return &out
}
