package model

// Atmosphere is a snapshot of ambient conditions at one altitude.
// Temperature is Kelvin, Pressure Pascal, Density kg/m³, Viscosity Pa·s,
// SpeedOfSound m/s. RelativeHumidity is illustrative only (see synth).
type Atmosphere struct {
	Temperature      float64 `json:"temperature" msgpack:"temperature"`
	Pressure         float64 `json:"pressure" msgpack:"pressure"`
	Density          float64 `json:"density" msgpack:"density"`
	Viscosity        float64 `json:"viscosity" msgpack:"viscosity"`
	SpeedOfSound     float64 `json:"ssound" msgpack:"ssound"`
	RelativeHumidity float64 `json:"rh" msgpack:"rh"`
}

// SimDataPoint is one synthesized telemetry sample. Times are unix milliseconds.
type SimDataPoint struct {
	RunID              string          `json:"id" msgpack:"id"`
	Time               int64           `json:"time" msgpack:"time"`
	OriginalTime       int64           `json:"old_time" msgpack:"old_time"`
	Position           TrajectoryPoint `json:"position" msgpack:"position"`
	Atmosphere         Atmosphere      `json:"atmosphere" msgpack:"atmosphere"`
	VerticalVelocity   float64         `json:"velocity" msgpack:"velocity"`
	HorizontalVelocity float64         `json:"h_velocity" msgpack:"h_velocity"`
	InternalTemp       float64         `json:"internal_temp" msgpack:"internal_temp"`
	RSSI               float64         `json:"rssi" msgpack:"rssi"`
	Voltage            float64         `json:"voltage" msgpack:"voltage"`
}

// SimulationRun is a fully synthesized playback. WaitTimes[i] is the delay in
// milliseconds before DataPoints[i] is emitted; WaitTimes[0] is always 0.
type SimulationRun struct {
	ID         string         `json:"id"`
	DataPoints []SimDataPoint `json:"data_points"`
	WaitTimes  []int64        `json:"wait_times"`
	StartTime  int64          `json:"start_time"`
	Multiple   float64        `json:"multiple"`
}

// Header returns the persisted form of the run.
func (r SimulationRun) Header() RunHeader {
	return RunHeader{
		ID:        r.ID,
		StartTime: r.StartTime,
		Multiple:  r.Multiple,
		Samples:   len(r.DataPoints),
		Source:    RunSourceSimulation,
	}
}

// RunSource identifies which producer created a run.
type RunSource string

const (
	RunSourceSimulation RunSource = "simulation"
	RunSourceSerial     RunSource = "serial"
)

// RunHeader is the durable record of a run, stored without its samples.
type RunHeader struct {
	ID        string    `json:"id" msgpack:"id"`
	StartTime int64     `json:"start_time" msgpack:"start_time"`
	Multiple  float64   `json:"multiple" msgpack:"multiple"`
	Samples   int       `json:"samples" msgpack:"samples"`
	Source    RunSource `json:"source" msgpack:"source"`
}
