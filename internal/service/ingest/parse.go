package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/kumo/internal/model"
)

// Line prefixes emitted by the ground station radio.
const (
	dataPrefix   = "Data:"
	groundPrefix = "GS"
	photoPrefix  = "Photo:"
)

// dataFields is the number of space-separated values on a Data: line:
// voltage pressure pressureAlt tempIntBmp tempIntDallas tempExtDallas
// tempExtAht humidity lat lng gpsAlt isoTime.
const dataFields = 12

var (
	// ErrMalformed means a recognised line could not be parsed.
	ErrMalformed = errors.New("ingest: malformed line")
	// errIgnored marks lines that are skipped without a warning.
	errIgnored = errors.New("ingest: ignored line")
)

// reading is one parsed Data: line. GPSTime is the fix time reported by the
// payload; it drives velocity estimation.
type reading struct {
	record  model.TelemetryRecord
	gpsTime time.Time
}

// parseData parses the body of a Data: line.
func parseData(body string) (reading, error) {
	parts := strings.Fields(body)
	if len(parts) != dataFields {
		return reading{}, fmt.Errorf("%w: data line has %d fields, want %d", ErrMalformed, len(parts), dataFields)
	}
	var vals [dataFields - 1]float64
	for i := range vals {
		v, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return reading{}, fmt.Errorf("%w: field %d %q: %v", ErrMalformed, i, parts[i], err)
		}
		vals[i] = v
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[11])
	if err != nil {
		return reading{}, fmt.Errorf("%w: time %q: %v", ErrMalformed, parts[11], err)
	}
	return reading{
		record: model.TelemetryRecord{
			Voltage:       vals[0],
			Pressure:      vals[1],
			PressureAlt:   vals[2],
			TempIntBmp:    vals[3],
			TempIntDallas: vals[4],
			TempExtDallas: vals[5],
			TempExtAht:    vals[6],
			Humidity:      vals[7],
			Lat:           vals[8],
			Lng:           vals[9],
			GPSAlt:        vals[10],
		},
		gpsTime: ts,
	}, nil
}

// parseGround parses the body of a GS line: lat lng alt.
func parseGround(body string) (model.GroundPosition, error) {
	parts := strings.Fields(body)
	if len(parts) != 3 {
		return model.GroundPosition{}, fmt.Errorf("%w: ground line has %d fields, want 3", ErrMalformed, len(parts))
	}
	var vals [3]float64
	for i, s := range parts {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.GroundPosition{}, fmt.Errorf("%w: ground field %d %q: %v", ErrMalformed, i, s, err)
		}
		vals[i] = v
	}
	return model.GroundPosition{Lat: vals[0], Lng: vals[1], Alt: vals[2]}, nil
}
