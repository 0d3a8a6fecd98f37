// Package battery models payload battery voltage as a function of consumed
// capacity using a tabulated discharge curve.
package battery

import (
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

//go:embed batterycurve.csv
var defaultCurve string

// Row is one point on the discharge curve.
type Row struct {
	Capacity float64 // consumed capacity, in pack units
	Voltage  float64 // volts
}

// Curve is an immutable discharge table. Safe for concurrent use.
type Curve struct {
	rows []Row
}

// ErrEmptyCurve is returned when a source yields no data rows.
var ErrEmptyCurve = errors.New("battery: discharge curve has no rows")

// Default returns the curve bundled with the binary.
func Default() *Curve {
	c, err := Parse(strings.NewReader(defaultCurve))
	if err != nil {
		panic(fmt.Sprintf("battery: embedded curve is invalid: %v", err))
	}
	return c
}

// Load reads a curve from a CSV file. An empty path returns Default.
func Load(path string) (*Curve, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("battery: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse reads CSV rows of "voltage,capacity" after a single header line.
// Rows are kept in file order; Nearest relies on it for tie-breaking.
func Parse(r io.Reader) (*Curve, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyCurve
		}
		return nil, fmt.Errorf("battery: read header: %w", err)
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("battery: read row %d: %w", len(rows)+1, err)
		}
		v, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("battery: row %d voltage: %w", len(rows)+1, err)
		}
		c, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("battery: row %d capacity: %w", len(rows)+1, err)
		}
		rows = append(rows, Row{Capacity: c, Voltage: v})
	}
	if len(rows) == 0 {
		return nil, ErrEmptyCurve
	}
	return &Curve{rows: rows}, nil
}

// Nearest returns the voltage of the row whose capacity is closest to
// consumed. Ties go to the earlier row. No interpolation is performed.
func (c *Curve) Nearest(consumed float64) float64 {
	best := c.rows[0]
	bestDiff := math.Abs(best.Capacity - consumed)
	for _, row := range c.rows[1:] {
		if d := math.Abs(row.Capacity - consumed); d < bestDiff {
			best, bestDiff = row, d
		}
	}
	return best.Voltage
}

// Len returns the number of rows.
func (c *Curve) Len() int { return len(c.rows) }
