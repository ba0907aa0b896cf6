package core

import (
	"time"

	"github.com/signalsfoundry/fleet-motion/model"
)

// ConfidenceModel tracks how long it has been since the last observation on
// a virtual clock and turns that age into a confidence and a MotionState.
//
// The clock only moves through Decay, so the model is deterministic and
// independent of wall time.
type ConfidenceModel struct {
	policy     model.ConfidencePolicy
	clock      time.Duration
	lastUpdate time.Duration
}

// NewConfidenceModel constructs a model for the given policy. An invalid
// policy is replaced by model.DefaultConfidencePolicy.
func NewConfidenceModel(policy model.ConfidencePolicy) *ConfidenceModel {
	if policy.Validate() != nil {
		policy = model.DefaultConfidencePolicy()
	}
	return &ConfidenceModel{policy: policy}
}

// Update marks an observation at the current virtual time.
func (c *ConfidenceModel) Update() {
	c.lastUpdate = c.clock
}

// Decay advances the virtual clock. Negative durations are ignored.
func (c *ConfidenceModel) Decay(dt time.Duration) {
	if dt > 0 {
		c.clock += dt
	}
}

// Age is the virtual time elapsed since the last Update.
func (c *ConfidenceModel) Age() time.Duration {
	return c.clock - c.lastUpdate
}

// Policy returns the policy in force.
func (c *ConfidenceModel) Policy() model.ConfidencePolicy { return c.policy }

// Confidence is 1 inside the full-confidence window, falls linearly to 0
// across the decay window, and stays 0 afterwards.
func (c *ConfidenceModel) Confidence() float64 {
	return confidenceAt(c.policy, c.Age())
}

// State classifies the current age into a trust tier.
func (c *ConfidenceModel) State() model.MotionState {
	age := c.Age()
	switch {
	case age < c.policy.FullConfidence:
		return model.StateReal
	case confidenceAt(c.policy, age) > 0:
		return model.StateCoasting
	case age > c.policy.MaxStale:
		return model.StateFrozen
	default:
		return model.StatePredicted
	}
}

func confidenceAt(p model.ConfidencePolicy, age time.Duration) float64 {
	if age < p.FullConfidence {
		return 1
	}
	into := age - p.FullConfidence
	if into >= p.Decay {
		return 0
	}
	return 1 - float64(into)/float64(p.Decay)
}
