package synth

import (
	"fmt"
	"math"

	"github.com/ashita-ai/kumo/internal/atmosphere"
	"github.com/ashita-ai/kumo/internal/geo"
	"github.com/ashita-ai/kumo/internal/model"
)

// Battery model.
const (
	packCapacity      = 1000.0
	drainPerMilli     = 1.0 / 10_000
	curveCapacityUnit = 500.0
)

// Thermal model: Newtonian cooling toward ambient, per second.
const coolingConstant = 0.0005

// Radio link: free-space path loss in the 433 MHz band.
const (
	carrierHz     = 4.33e8
	speedOfLight  = 299_792_458.0
	txGain        = 2.5
	rxGain        = 8.0
	humidityScale = 3000.0
	humidityNoise = 4.0
)

// Synthesize produces one telemetry sample per densified point. Physics
// (velocity, battery drain, cooling) advances on original flight time; wait
// times follow the playback clock.
func (s *Synthesizer) Synthesize(d Densified, runID string, startTime int64) (model.SimulationRun, error) {
	n := d.Len()
	if n == 0 {
		return model.SimulationRun{}, ErrEmptyTrajectory
	}
	if len(d.SimulatedTimes) != n || len(d.OriginalTimes) != n {
		return model.SimulationRun{}, fmt.Errorf("synth: mismatched series lengths (%d positions, %d simulated, %d original)",
			n, len(d.SimulatedTimes), len(d.OriginalTimes))
	}

	run := model.SimulationRun{
		ID:         runID,
		DataPoints: make([]model.SimDataPoint, n),
		WaitTimes:  make([]int64, n),
		StartTime:  startTime,
		Multiple:   d.Multiple,
	}

	capacityLeft := packCapacity
	internalTemp := atmosphere.GroundTemperature()
	vWindow := geo.NewWindow(geo.SmoothingWindow)
	hWindow := geo.NewWindow(geo.SmoothingWindow)
	launch := d.Positions[0]
	prev := d.Origin

	for i, pos := range d.Positions {
		var wait, originalWait int64
		if i > 0 {
			wait = d.SimulatedTimes[i] - d.SimulatedTimes[i-1]
			originalWait = d.OriginalTimes[i] - d.OriginalTimes[i-1]
		}

		capacityLeft -= float64(originalWait) * drainPerMilli
		voltage := s.curve.Nearest((packCapacity - capacityLeft) / curveCapacityUnit)

		atm := atmosphere.At(pos.Alt)
		atm.RelativeHumidity = atm.Pressure/humidityScale + s.uniform()*humidityNoise

		internalTemp += -coolingConstant * (internalTemp - atm.Temperature) * (float64(originalWait) / 1000)

		vVel := vWindow.Push(geo.VerticalVelocity(prev, pos, originalWait))
		hVel := hWindow.Push(geo.HorizontalVelocity(prev, pos, originalWait))
		prev = pos

		fromLaunch := geo.HorizontalDistance(launch, pos)
		slant := math.Sqrt(fromLaunch*fromLaunch + pos.Alt*pos.Alt)

		run.WaitTimes[i] = wait
		run.DataPoints[i] = model.SimDataPoint{
			RunID:              runID,
			Time:               d.SimulatedTimes[i],
			OriginalTime:       d.OriginalTimes[i],
			Position:           pos,
			Atmosphere:         atm,
			VerticalVelocity:   vVel,
			HorizontalVelocity: hVel,
			InternalTemp:       internalTemp,
			RSSI:               RSSI(slant),
			Voltage:            voltage,
		}
	}
	return run, nil
}

// RSSI returns received signal strength in dB over a free-space link of
// distance metres. A zero distance reports 0.
func RSSI(distance float64) float64 {
	if distance == 0 {
		return 0
	}
	wavelength := speedOfLight / carrierHz
	pathLoss := math.Pow(4*math.Pi*distance/wavelength, 2)
	return 10 * math.Log10(txGain*rxGain/pathLoss)
}
