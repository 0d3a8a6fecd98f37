// Package synth converts sparse flight-path predictions into dense,
// physically plausible telemetry runs ready for timed playback.
package synth

import (
	"errors"
	"math/rand/v2"

	"github.com/ashita-ai/kumo/internal/battery"
	"github.com/ashita-ai/kumo/internal/model"
)

var (
	// ErrDegenerateTrajectory means the input cannot be rescaled: fewer than
	// two samples, a zero time span, or a non-positive duration.
	ErrDegenerateTrajectory = errors.New("synth: degenerate trajectory")
	// ErrEmptyTrajectory means densification produced no points.
	ErrEmptyTrajectory = errors.New("synth: empty trajectory")
)

// Synthesizer builds simulation runs. It holds no per-run state and is safe
// for concurrent use as long as its random source is.
type Synthesizer struct {
	curve   *battery.Curve
	uniform func() float64
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithRandom replaces the uniform [0,1) source used for position jitter and
// humidity noise. Tests pass a constant to make output deterministic.
func WithRandom(f func() float64) Option {
	return func(s *Synthesizer) { s.uniform = f }
}

// New creates a Synthesizer backed by the given discharge curve.
func New(curve *battery.Curve, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		curve:   curve,
		uniform: rand.Float64,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Build densifies samples and synthesizes a run in one step.
func (s *Synthesizer) Build(samples model.Trajectory, durationMinutes float64, runID string, startTime int64) (model.SimulationRun, error) {
	d, err := s.Densify(samples, durationMinutes)
	if err != nil {
		return model.SimulationRun{}, err
	}
	return s.Synthesize(d, runID, startTime)
}
