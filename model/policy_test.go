package model

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfidencePolicy(t *testing.T) {
	p := DefaultConfidencePolicy()
	if p.FullConfidence != 5*time.Second || p.Decay != 10*time.Second || p.MaxStale != 15*time.Minute {
		t.Fatalf("DefaultConfidencePolicy() = %+v, want 5s/10s/15m", p)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() on default policy: %v", err)
	}
	if !p.PredictedReachable() {
		t.Fatalf("PredictedReachable() = false for default policy")
	}
}

func TestConfidencePolicyValidateRejectsNonPositive(t *testing.T) {
	base := DefaultConfidencePolicy()

	cases := map[string]func(*ConfidencePolicy){
		"full":  func(p *ConfidencePolicy) { p.FullConfidence = 0 },
		"decay": func(p *ConfidencePolicy) { p.Decay = -time.Second },
		"stale": func(p *ConfidencePolicy) { p.MaxStale = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := base
			mutate(&p)
			err := p.Validate()
			if !errors.Is(err, ErrInvalidPolicy) {
				t.Fatalf("Validate() = %v, want ErrInvalidPolicy", err)
			}
		})
	}
}

func TestPredictedReachable(t *testing.T) {
	p := ConfidencePolicy{FullConfidence: time.Second, Decay: time.Second, MaxStale: 2 * time.Second}
	if p.PredictedReachable() {
		t.Fatalf("PredictedReachable() = true when MaxStale equals end of decay")
	}
	p.MaxStale = 3 * time.Second
	if !p.PredictedReachable() {
		t.Fatalf("PredictedReachable() = false when MaxStale exceeds end of decay")
	}
}

func TestMotionStateString(t *testing.T) {
	want := []string{"REAL", "COASTING", "PREDICTED", "FROZEN"}
	if len(AllMotionStates) != len(want) {
		t.Fatalf("len(AllMotionStates) = %d, want %d", len(AllMotionStates), len(want))
	}
	for i, s := range AllMotionStates {
		if s.String() != want[i] {
			t.Fatalf("AllMotionStates[%d].String() = %q, want %q", i, s.String(), want[i])
		}
	}
}
