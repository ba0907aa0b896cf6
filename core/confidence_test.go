package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/fleet-motion/model"
)

func TestConfidenceBoundsAndMonotonicity(t *testing.T) {
	policy := model.DefaultConfidencePolicy()
	c := NewConfidenceModel(policy)
	c.Update()

	if got := c.Confidence(); got != 1 {
		t.Fatalf("confidence(0) = %v, want 1", got)
	}

	prev := 1.0
	step := 250 * time.Millisecond
	end := policy.FullConfidence + policy.Decay + 5*time.Second
	for age := time.Duration(0); age <= end; age += step {
		got := confidenceAt(policy, age)
		if got < 0 || got > 1 {
			t.Fatalf("confidence(%v) = %v, outside [0,1]", age, got)
		}
		if got > prev {
			t.Fatalf("confidence(%v) = %v increased from %v", age, got, prev)
		}
		if age >= policy.FullConfidence+policy.Decay && got != 0 {
			t.Fatalf("confidence(%v) = %v, want 0 past the decay window", age, got)
		}
		prev = got
	}
}

func TestConfidenceMidDecay(t *testing.T) {
	c := NewConfidenceModel(model.DefaultConfidencePolicy())
	c.Update()
	c.Decay(10 * time.Second)

	if got := c.Confidence(); got != 0.5 {
		t.Fatalf("confidence at 10s = %v, want 0.5", got)
	}
	if got := c.State(); got != model.StateCoasting {
		t.Fatalf("State = %v, want COASTING", got)
	}
}

func TestConfidenceStateLadder(t *testing.T) {
	policy := model.ConfidencePolicy{
		FullConfidence: 100 * time.Millisecond,
		Decay:          100 * time.Millisecond,
		MaxStale:       300 * time.Millisecond,
	}
	cases := []struct {
		age  time.Duration
		want model.MotionState
	}{
		{0, model.StateReal},
		{99 * time.Millisecond, model.StateReal},
		{100 * time.Millisecond, model.StateCoasting},
		{199 * time.Millisecond, model.StateCoasting},
		{200 * time.Millisecond, model.StatePredicted},
		{300 * time.Millisecond, model.StatePredicted},
		{301 * time.Millisecond, model.StateFrozen},
	}
	for _, tc := range cases {
		c := NewConfidenceModel(policy)
		c.Update()
		c.Decay(tc.age)
		if got := c.State(); got != tc.want {
			t.Errorf("State at age %v = %v, want %v", tc.age, got, tc.want)
		}
	}
}

func TestConfidenceUpdateResetsAge(t *testing.T) {
	c := NewConfidenceModel(model.DefaultConfidencePolicy())
	c.Decay(time.Hour)
	if got := c.State(); got != model.StateFrozen {
		t.Fatalf("State after an hour = %v, want FROZEN", got)
	}
	c.Update()
	if c.Age() != 0 || c.State() != model.StateReal {
		t.Fatalf("after Update age=%v state=%v, want 0/REAL", c.Age(), c.State())
	}
}

func TestConfidenceInvalidPolicyFallsBack(t *testing.T) {
	c := NewConfidenceModel(model.ConfidencePolicy{})
	if got := c.Policy(); got != model.DefaultConfidencePolicy() {
		t.Fatalf("Policy = %+v, want default", got)
	}
}
