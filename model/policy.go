package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPolicy is returned when a ConfidencePolicy has non-positive windows.
var ErrInvalidPolicy = errors.New("invalid confidence policy")

// ConfidencePolicy controls how quickly trust in an estimate decays.
//
// For ages below FullConfidence the estimate is REAL. Confidence then falls
// linearly to zero over Decay. Past MaxStale the entity is FROZEN.
type ConfidencePolicy struct {
	FullConfidence time.Duration
	Decay          time.Duration
	MaxStale       time.Duration
}

// DefaultConfidencePolicy returns 5s full confidence, 10s decay, 15min stale.
func DefaultConfidencePolicy() ConfidencePolicy {
	return ConfidencePolicy{
		FullConfidence: 5 * time.Second,
		Decay:          10 * time.Second,
		MaxStale:       15 * time.Minute,
	}
}

// Validate checks that every window is positive.
func (p ConfidencePolicy) Validate() error {
	if p.FullConfidence <= 0 {
		return fmt.Errorf("%w: full confidence window must be positive, got %s", ErrInvalidPolicy, p.FullConfidence)
	}
	if p.Decay <= 0 {
		return fmt.Errorf("%w: decay window must be positive, got %s", ErrInvalidPolicy, p.Decay)
	}
	if p.MaxStale <= 0 {
		return fmt.Errorf("%w: max stale must be positive, got %s", ErrInvalidPolicy, p.MaxStale)
	}
	return nil
}

// PredictedReachable reports whether the PREDICTED band exists under this
// policy, i.e. MaxStale exceeds the end of the decay window.
func (p ConfidencePolicy) PredictedReachable() bool {
	return p.MaxStale > p.FullConfidence+p.Decay
}
