package atmosphere_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/kumo/internal/atmosphere"
)

func TestAt_SeaLevel(t *testing.T) {
	a := atmosphere.At(0)
	assert.InDelta(t, 288.15, a.Temperature, 1e-9)
	assert.InDelta(t, 101325, a.Pressure, 1e-6)
	assert.InDelta(t, 1.225, a.Density, 1e-3)
	assert.InDelta(t, 340.29, a.SpeedOfSound, 0.01)
	assert.InDelta(t, 1.789e-5, a.Viscosity, 1e-8)
	assert.Zero(t, a.RelativeHumidity)
}

func TestAt_Tropopause(t *testing.T) {
	// 11 km geopotential is ~11019 m geometric.
	a := atmosphere.At(11019.1)
	assert.InDelta(t, 216.65, a.Temperature, 0.01)
	assert.InDelta(t, 22632, a.Pressure, 5)
}

func TestAt_Stratosphere(t *testing.T) {
	a := atmosphere.At(30000)
	assert.InDelta(t, 226.5, a.Temperature, 0.1)
	assert.InDelta(t, 1197, a.Pressure, 2)
}

func TestAt_PressureDecreasesWithAltitude(t *testing.T) {
	prev := atmosphere.At(0).Pressure
	for z := 500.0; z <= atmosphere.MaxAltitude; z += 500 {
		p := atmosphere.At(z).Pressure
		if !assert.Less(t, p, prev, "pressure at %.0f m", z) {
			return
		}
		prev = p
	}
}

func TestAt_ClampsOutOfRange(t *testing.T) {
	assert.Equal(t, atmosphere.At(atmosphere.MaxAltitude), atmosphere.At(200000))
	assert.Equal(t, atmosphere.At(atmosphere.MinAltitude), atmosphere.At(-20000))
}

func TestGroundTemperature(t *testing.T) {
	assert.InDelta(t, 288.15, atmosphere.GroundTemperature(), 1e-9)
}
