package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAcquireTimeout            = errors.New("acquire timeout")
	ErrAcquireUI                 = errors.New("acquire ui error")
	ErrSessionExpired            = errors.New("session expired")
	ErrDecode                    = errors.New("decode error")
	ErrAuth                      = errors.New("auth error")
	ErrRateLimited               = errors.New("rate limited")
	ErrBoundingRegionUnavailable = errors.New("bounding region unavailable")
	ErrConstraintViolation       = errors.New("constraint violation")
)

// StageError tags an error with the pipeline stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StagePanicError wraps a panic recovered while a stage was running.
type StagePanicError struct {
	Stage Stage
	Value any
}

func (e StagePanicError) Error() string {
	return fmt.Sprintf("panic in stage %s: %v", e.Stage, e.Value)
}

var kinds = []struct {
	err  error
	name string
}{
	{ErrAcquireTimeout, "AcquireTimeout"},
	{ErrAcquireUI, "AcquireUIError"},
	{ErrSessionExpired, "SessionExpired"},
	{ErrDecode, "DecodeError"},
	{ErrAuth, "AuthError"},
	{ErrRateLimited, "RateLimited"},
	{ErrBoundingRegionUnavailable, "BoundingRegionUnavailable"},
	{ErrConstraintViolation, "ConstraintViolation"},
}

// Classify maps err onto the failure taxonomy. Unknown errors return "Unknown".
func Classify(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	var p StagePanicError
	if errors.As(err, &p) {
		return "Panic"
	}
	return "Unknown"
}
