package synth

import (
	"fmt"
	"math"

	"github.com/ashita-ai/kumo/internal/geo"
	"github.com/ashita-ai/kumo/internal/model"
)

// tickMillis is the coarsest playback interval that densification aims for.
const tickMillis = 250.0

// maxDensityFactor bounds densified output at this many points per playback
// tick, plus one per input sample. Irregular inputs whose first gap dwarfs
// the rest would otherwise multiply every later segment by that gap's steps.
const maxDensityFactor = 4

// Jitter bounds. Perturbations are one-sided: each coordinate only grows.
const (
	jitterAltMetres = 1.0
	jitterDegrees   = 0.001
)

// Densified is a trajectory rescaled to playback time and, when the playback
// interval is coarse, filled in with interpolated points.
type Densified struct {
	// Origin is the first original sample, unjittered. It is the reference
	// for the first velocity estimate.
	Origin         model.TrajectoryPoint
	Positions      []model.TrajectoryPoint
	SimulatedTimes []int64 // unix ms, playback clock
	OriginalTimes  []int64 // unix ms, predicted flight clock
	// Multiple is original span divided by playback span, to one decimal.
	Multiple float64
}

// Len returns the number of emitted points.
func (d Densified) Len() int { return len(d.Positions) }

// Densify rescales samples so the whole trajectory plays in durationMinutes
// and inserts interpolated points when the first playback interval spans more
// than two ticks.
func (s *Synthesizer) Densify(samples model.Trajectory, durationMinutes float64) (Densified, error) {
	if len(samples) < 2 {
		return Densified{}, fmt.Errorf("%w: %d samples", ErrDegenerateTrajectory, len(samples))
	}
	if math.IsNaN(durationMinutes) || durationMinutes <= 0 {
		return Densified{}, fmt.Errorf("%w: duration %v minutes", ErrDegenerateTrajectory, durationMinutes)
	}

	original := make([]int64, len(samples))
	minT, maxT := int64(math.MaxInt64), int64(math.MinInt64)
	for i, smp := range samples {
		t := smp.Time.UnixMilli()
		original[i] = t
		minT = min(minT, t)
		maxT = max(maxT, t)
	}
	if maxT == minT {
		return Densified{}, fmt.Errorf("%w: zero time span", ErrDegenerateTrajectory)
	}

	span := float64(maxT - minT)
	playback := durationMinutes * 60_000
	remap := func(t float64) float64 {
		return float64(minT) + (t-float64(minT))/span*playback
	}

	simulated := make([]float64, len(samples))
	for i, t := range original {
		simulated[i] = remap(float64(t))
	}

	out := Densified{
		Origin:   samples[0].Point,
		Multiple: math.Round(span/playback*10) / 10,
	}

	steps := int(math.Floor((simulated[1] - simulated[0]) / tickMillis))
	if steps <= 2 {
		out.Positions = make([]model.TrajectoryPoint, len(samples))
		out.SimulatedTimes = make([]int64, len(samples))
		out.OriginalTimes = original
		for i, smp := range samples {
			out.Positions[i] = s.jitter(smp.Point)
			out.SimulatedTimes[i] = int64(math.Round(simulated[i]))
		}
		return out, nil
	}

	// Each segment contributes steps-1 points ending exactly on its far
	// sample; the near sample of the first segment is therefore never emitted.
	perSegment := steps - 1
	n := (len(samples) - 1) * perSegment
	if limit := maxDensifiedPoints(playback, len(samples)); n > limit {
		return Densified{}, fmt.Errorf("%w: %d points planned, limit %d", ErrDegenerateTrajectory, n, limit)
	}
	out.Positions = make([]model.TrajectoryPoint, 0, n)
	out.SimulatedTimes = make([]int64, 0, n)
	out.OriginalTimes = make([]int64, 0, n)

	for i := 0; i+1 < len(samples); i++ {
		a, b := samples[i], samples[i+1]
		for k := 1; k <= perSegment; k++ {
			f := float64(k) / float64(perSegment)
			out.Positions = append(out.Positions, s.jitter(geo.Lerp(a.Point, b.Point, f)))
			out.SimulatedTimes = append(out.SimulatedTimes,
				int64(math.Round(simulated[i]+(simulated[i+1]-simulated[i])*f)))
			out.OriginalTimes = append(out.OriginalTimes,
				int64(math.Round(float64(original[i])+float64(original[i+1]-original[i])*f)))
		}
	}
	return out, nil
}

func maxDensifiedPoints(playbackMillis float64, samples int) int {
	return maxDensityFactor*int(math.Ceil(playbackMillis/tickMillis)) + samples
}

func (s *Synthesizer) jitter(p model.TrajectoryPoint) model.TrajectoryPoint {
	p.Alt += s.uniform() * jitterAltMetres
	p.Lat += s.uniform() * jitterDegrees
	p.Lng += s.uniform() * jitterDegrees
	return p
}
