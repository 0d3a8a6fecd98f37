// Package atmosphere implements the U.S. Standard Atmosphere (1976) for the
// lower seven layers, from sea level to 86 km geometric altitude.
//
// Inputs are geometric altitude in metres. Altitudes outside the modelled
// range are clamped to its bounds, so the function is total.
package atmosphere

import (
	"math"

	"github.com/ashita-ai/kumo/internal/model"
)

// Physical constants as tabulated by the 1976 standard.
const (
	g0         = 9.80665   // m/s²
	rStar      = 8.31432   // N·m/(mol·K)
	molarMass  = 0.0289644 // kg/mol
	earthR     = 6356766.0 // m, effective radius used for geopotential
	gamma      = 1.4       // ratio of specific heats for air
	beta       = 1.458e-6  // Sutherland constant, kg/(s·m·K^½)
	sutherland = 110.4     // K
	seaLevelP  = 101325.0  // Pa
	seaLevelT  = 288.15    // K
	gasAir     = rStar / molarMass

	// MinAltitude and MaxAltitude bound the modelled range in metres.
	MinAltitude = -5000.0
	MaxAltitude = 86000.0
)

type layer struct {
	base  float64 // geopotential base height, m'
	temp  float64 // base temperature, K
	lapse float64 // K per m'
	press float64 // base pressure, Pa; derived in init
}

var layers = []layer{
	{base: 0, lapse: -0.0065},
	{base: 11000, lapse: 0},
	{base: 20000, lapse: 0.001},
	{base: 32000, lapse: 0.0028},
	{base: 47000, lapse: 0},
	{base: 51000, lapse: -0.0028},
	{base: 71000, lapse: -0.002},
}

func init() {
	layers[0].temp = seaLevelT
	layers[0].press = seaLevelP
	for i := 1; i < len(layers); i++ {
		prev := layers[i-1]
		dh := layers[i].base - prev.base
		layers[i].temp = prev.temp + prev.lapse*dh
		layers[i].press = pressureIn(prev, dh)
	}
}

// pressureIn returns the pressure dh geopotential metres above l's base.
func pressureIn(l layer, dh float64) float64 {
	if l.lapse == 0 {
		return l.press * math.Exp(-g0*molarMass*dh/(rStar*l.temp))
	}
	t := l.temp + l.lapse*dh
	return l.press * math.Pow(l.temp/t, g0*molarMass/(rStar*l.lapse))
}

// geopotential converts geometric altitude to geopotential height.
func geopotential(z float64) float64 {
	return earthR * z / (earthR + z)
}

// At returns the standard-atmosphere state at geometric altitude z metres.
// RelativeHumidity is left zero; the model is dry air.
func At(z float64) model.Atmosphere {
	z = math.Max(MinAltitude, math.Min(MaxAltitude, z))
	h := geopotential(z)

	l := layers[0]
	for _, candidate := range layers[1:] {
		if h < candidate.base {
			break
		}
		l = candidate
	}

	dh := h - l.base
	t := l.temp + l.lapse*dh
	p := pressureIn(l, dh)

	return model.Atmosphere{
		Temperature:  t,
		Pressure:     p,
		Density:      p / (gasAir * t),
		Viscosity:    beta * math.Pow(t, 1.5) / (t + sutherland),
		SpeedOfSound: math.Sqrt(gamma * gasAir * t),
	}
}

// GroundTemperature is the model temperature at sea level, in Kelvin.
func GroundTemperature() float64 {
	return At(0).Temperature
}
