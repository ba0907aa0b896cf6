package core

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/fleet-motion/model"
)

const (
	// DefaultIntentWindow is the number of recent headings considered.
	DefaultIntentWindow = 5

	straightVariance = 0.01
	turnVariance     = 0.1
	ambiguousScore   = 0.5
)

// IntentModel classifies manoeuvres from the stability of recently reported
// headings. Headings wrap at 360°, so dispersion is measured with circular
// variance rather than arithmetic variance.
type IntentModel struct {
	window     int
	headings   []float64 // radians, oldest first
	stationary bool
}

// NewIntentModel constructs a model keeping the last window headings.
func NewIntentModel(window int) *IntentModel {
	if window < 2 {
		window = DefaultIntentWindow
	}
	return &IntentModel{window: window, headings: make([]float64, 0, window)}
}

// Update admits a reported heading. Nil headings are ignored.
func (m *IntentModel) Update(heading *float64) {
	if heading == nil {
		return
	}
	if len(m.headings) == m.window {
		copy(m.headings, m.headings[1:])
		m.headings = m.headings[:m.window-1]
	}
	m.headings = append(m.headings, NormalizeHeading(*heading)*math.Pi/180)
}

// SetStationary records whether the latest report classified the entity as
// stopped.
func (m *IntentModel) SetStationary(stationary bool) { m.stationary = stationary }

// Samples returns the number of headings in the window.
func (m *IntentModel) Samples() int { return len(m.headings) }

// Variance returns the circular variance 1-R̄ of the window: 0 when all
// headings agree, 1 when they cancel out. It is 0 with fewer than 2 samples.
func (m *IntentModel) Variance() float64 {
	n := len(m.headings)
	if n < 2 {
		return 0
	}
	sines := make([]float64, n)
	cosines := make([]float64, n)
	for i, h := range m.headings {
		sines[i], cosines[i] = math.Sincos(h)
	}
	r := math.Hypot(floats.Sum(sines), floats.Sum(cosines))
	v := 1 - r/float64(n)
	// Clamp rounding noise at both ends.
	return math.Min(1, math.Max(0, v))
}

// MeanHeading returns the circular mean of the window in degrees, and false
// when the window is empty.
func (m *IntentModel) MeanHeading() (float64, bool) {
	if len(m.headings) == 0 {
		return 0, false
	}
	return NormalizeHeading(stat.CircularMean(m.headings, nil) * 180 / math.Pi), true
}

// Intent classifies the window and attaches its mean heading.
func (m *IntentModel) Intent() model.Intent {
	in := m.classify()
	if mean, ok := m.MeanHeading(); ok {
		in.MeanHeading = &mean
	}
	return in
}

func (m *IntentModel) classify() model.Intent {
	if m.stationary {
		return model.Intent{Action: model.IntentStop, Confidence: 1}
	}
	if len(m.headings) < 2 {
		return model.Intent{Action: model.IntentUnknown, Confidence: 0}
	}
	v := m.Variance()
	switch {
	case v < straightVariance:
		return model.Intent{Action: model.IntentStraight, Confidence: 1 - v}
	case v > turnVariance:
		return model.Intent{Action: model.IntentTurn, Confidence: v}
	default:
		return model.Intent{Action: model.IntentStraight, Confidence: ambiguousScore}
	}
}
