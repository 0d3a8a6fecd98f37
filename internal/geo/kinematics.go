// Package geo provides great-circle distances and finite-difference
// kinematics over trajectory points.
package geo

import (
	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"github.com/ashita-ai/kumo/internal/model"
)

// SmoothingWindow is the number of samples averaged by velocity smoothing.
const SmoothingWindow = 4

// metresPerMile converts landing distances for prediction groups.
const metresPerMile = 1609.344

func toOrb(p model.TrajectoryPoint) orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// HorizontalDistance returns the great-circle distance between a and b in
// metres. Altitude is ignored.
func HorizontalDistance(a, b model.TrajectoryPoint) float64 {
	return orbgeo.DistanceHaversine(toOrb(a), toOrb(b))
}

// HorizontalDistanceMiles is HorizontalDistance in statute miles.
func HorizontalDistanceMiles(a, b model.TrajectoryPoint) float64 {
	return HorizontalDistance(a, b) / metresPerMile
}

// VerticalVelocity returns the climb rate in m/s between prev and cur over
// dtMillis of original flight time. It is zero when dtMillis is not positive
// or the altitude did not change.
func VerticalVelocity(prev, cur model.TrajectoryPoint, dtMillis int64) float64 {
	return rate(cur.Alt-prev.Alt, dtMillis)
}

// HorizontalVelocity returns ground speed in m/s between prev and cur over
// dtMillis of original flight time, with the same zero rules as
// VerticalVelocity.
func HorizontalVelocity(prev, cur model.TrajectoryPoint, dtMillis int64) float64 {
	return rate(HorizontalDistance(prev, cur), dtMillis)
}

func rate(delta float64, dtMillis int64) float64 {
	if dtMillis <= 0 || delta == 0 {
		return 0
	}
	return delta / (float64(dtMillis) / 1000)
}

// Lerp linearly interpolates each coordinate independently. f=0 yields a,
// f=1 yields b.
func Lerp(a, b model.TrajectoryPoint, f float64) model.TrajectoryPoint {
	return model.TrajectoryPoint{
		Lat: a.Lat + (b.Lat-a.Lat)*f,
		Lng: a.Lng + (b.Lng-a.Lng)*f,
		Alt: a.Alt + (b.Alt-a.Alt)*f,
	}
}

// Window is a trailing arithmetic mean over the most recent values.
// Not safe for concurrent use.
type Window struct {
	size int
	buf  []float64
}

// NewWindow returns a window holding at most size values.
func NewWindow(size int) *Window {
	return &Window{size: size, buf: make([]float64, 0, size)}
}

// Push evicts the oldest value if the window is full, appends v, and returns
// the mean of the values now held.
func (w *Window) Push(v float64) float64 {
	if len(w.buf) == w.size {
		copy(w.buf, w.buf[1:])
		w.buf = w.buf[:len(w.buf)-1]
	}
	w.buf = append(w.buf, v)
	return w.Mean()
}

// Mean returns the average of held values, or 0 when empty.
func (w *Window) Mean() float64 {
	if len(w.buf) == 0 {
		return 0
	}
	var sum float64
	for _, v := range w.buf {
		sum += v
	}
	return sum / float64(len(w.buf))
}

// Len returns the number of values currently held.
func (w *Window) Len() int { return len(w.buf) }
