package model

// kelvinOffset converts Kelvin to Celsius.
const kelvinOffset = 273.15

// TelemetryRecord is the flat sensor record the dashboard consumes. The
// serial producer emits it directly; simulated samples are projected onto it
// with Flatten. Temperatures are Celsius.
type TelemetryRecord struct {
	ID            string  `json:"id" msgpack:"id"`
	Humidity      float64 `json:"humidity" msgpack:"humidity"`
	TempExtAht    float64 `json:"temp_ext_aht" msgpack:"temp_ext_aht"`
	TempExtDallas float64 `json:"temp_ext_dallas" msgpack:"temp_ext_dallas"`
	TempIntDallas float64 `json:"temp_int_dallas" msgpack:"temp_int_dallas"`
	TempIntBmp    float64 `json:"temp_int_bmp" msgpack:"temp_int_bmp"`
	Pressure      float64 `json:"pressure" msgpack:"pressure"`
	PressureAlt   float64 `json:"pressure_alt" msgpack:"pressure_alt"`
	Voltage       float64 `json:"voltage" msgpack:"voltage"`
	Sats          int     `json:"sats" msgpack:"sats"`
	Lat           float64 `json:"lat" msgpack:"lat"`
	Lng           float64 `json:"lng" msgpack:"lng"`
	GPSAlt        float64 `json:"gps_alt" msgpack:"gps_alt"`
	Time          int64   `json:"time" msgpack:"time"`
	HVelocity     float64 `json:"h_velocity" msgpack:"h_velocity"`
	VVelocity     float64 `json:"v_velocity" msgpack:"v_velocity"`
}

// Flatten projects a simulated sample onto the sensor record shape. Both
// external thermometers read ambient temperature and both internal sensors
// read the modelled payload temperature.
func Flatten(p SimDataPoint) TelemetryRecord {
	ambient := p.Atmosphere.Temperature - kelvinOffset
	internal := p.InternalTemp - kelvinOffset
	return TelemetryRecord{
		ID:            p.RunID,
		Humidity:      p.Atmosphere.RelativeHumidity,
		TempExtAht:    ambient,
		TempExtDallas: ambient,
		TempIntDallas: internal,
		TempIntBmp:    internal,
		Pressure:      p.Atmosphere.Pressure,
		PressureAlt:   p.Position.Alt,
		Voltage:       p.Voltage,
		Lat:           p.Position.Lat,
		Lng:           p.Position.Lng,
		GPSAlt:        p.Position.Alt,
		Time:          p.Time,
		HVelocity:     p.HorizontalVelocity,
		VVelocity:     p.VerticalVelocity,
	}
}

// GroundPosition is the ground station's own fix, reported over serial.
type GroundPosition struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Alt float64 `json:"alt"`
}
