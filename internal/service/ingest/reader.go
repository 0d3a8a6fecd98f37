// Package ingest reads live telemetry from the ground station radio. Each
// session becomes a serial run whose records share the key layout and event
// stream of simulated runs.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kumo/internal/geo"
	"github.com/ashita-ai/kumo/internal/model"
	"github.com/ashita-ai/kumo/internal/telemetry"
)

// RunIDPrefix marks serial run ids.
const RunIDPrefix = "Serial-"

// maxLineBytes bounds one radio line.
const maxLineBytes = 64 * 1024

// Publisher receives telemetry, ground_position and lifecycle events.
type Publisher interface {
	Publish(e model.Event)
}

// RecordStore is the persistence the reader writes through. *storage.Store
// satisfies it.
type RecordStore interface {
	PutRunHeader(ctx context.Context, h model.RunHeader) error
	PutRecord(ctx context.Context, runID string, index int, r model.TelemetryRecord) error
}

// Reader turns a line-oriented radio stream into persisted records and
// events.
type Reader struct {
	store     RecordStore
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time

	records   metric.Int64Counter
	malformed metric.Int64Counter
}

// Option configures a Reader.
type Option func(*Reader)

// WithClock overrides the receive-time clock.
func WithClock(now func() time.Time) Option {
	return func(r *Reader) { r.now = now }
}

// New creates a Reader.
func New(store RecordStore, publisher Publisher, logger *slog.Logger, opts ...Option) *Reader {
	meter := telemetry.Meter("kumo/ingest")
	records, _ := meter.Int64Counter("kumo.serial.records",
		metric.WithDescription("Telemetry records received over serial"),
	)
	malformed, _ := meter.Int64Counter("kumo.serial.malformed",
		metric.WithDescription("Serial lines that failed to parse"),
	)
	r := &Reader{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		records:   records,
		malformed: malformed,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// session is the per-stream state of one serial run.
type session struct {
	header model.RunHeader
	count  int
	prev   *reading
}

// Run consumes src until EOF or ctx is cancelled. If src is an io.Closer it
// is closed on cancellation to unblock a pending read. A failure to persist
// the run header is returned before any line is read; read errors after
// cancellation are not errors.
func (r *Reader) Run(ctx context.Context, src io.Reader) (model.RunHeader, error) {
	s := &session{header: model.RunHeader{
		ID:        RunIDPrefix + uuid.NewString(),
		StartTime: r.now().UnixMilli(),
		Multiple:  1,
		Source:    model.RunSourceSerial,
	}}
	if err := r.store.PutRunHeader(ctx, s.header); err != nil {
		return s.header, fmt.Errorf("ingest: persist run %s: %w", s.header.ID, err)
	}
	r.publisher.Publish(model.Event{Type: model.EventRunStarted, RunID: s.header.ID, Data: s.header})
	r.logger.Info("ingest: listening for telemetry", "run_id", s.header.ID)

	if c, ok := src.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer stop()
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 4096), maxLineBytes)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		r.handleLine(ctx, s, scanner.Text())
	}
	err := scanner.Err()
	if ctx.Err() != nil {
		err = nil
	}

	// The final header carries the record count.
	s.header.Samples = s.count
	if perr := r.store.PutRunHeader(context.WithoutCancel(ctx), s.header); perr != nil {
		r.logger.Warn("ingest: update run header failed", "run_id", s.header.ID, "error", perr)
	}
	r.publisher.Publish(model.Event{Type: model.EventRunEnded, RunID: s.header.ID})
	r.logger.Info("ingest: stream closed", "run_id", s.header.ID, "records", s.count)

	if err != nil {
		return s.header, fmt.Errorf("ingest: read: %w", err)
	}
	return s.header, nil
}

func (r *Reader) handleLine(ctx context.Context, s *session, line string) {
	line = strings.TrimSpace(line)
	var err error
	switch {
	case line == "":
		return
	case strings.HasPrefix(line, dataPrefix):
		err = r.handleData(ctx, s, line[len(dataPrefix):])
	case strings.HasPrefix(line, photoPrefix):
		// SSDV image fragments need an external decoder.
		err = errIgnored
	case strings.HasPrefix(line, groundPrefix):
		var gp model.GroundPosition
		if gp, err = parseGround(line[len(groundPrefix):]); err == nil {
			r.publisher.Publish(model.Event{Type: model.EventGroundPosition, Data: gp})
		}
	default:
		err = errIgnored
	}

	switch {
	case err == nil:
	case errors.Is(err, errIgnored):
		r.logger.Debug("ingest: line ignored", "line", truncate(line, 32))
	default:
		r.malformed.Add(ctx, 1)
		r.logger.Warn("ingest: skipping line", "error", err)
	}
}

func (r *Reader) handleData(ctx context.Context, s *session, body string) error {
	cur, err := parseData(body)
	if err != nil {
		return err
	}

	if s.prev != nil {
		dt := cur.gpsTime.Sub(s.prev.gpsTime).Milliseconds()
		prevPos := model.TrajectoryPoint{Lat: s.prev.record.Lat, Lng: s.prev.record.Lng, Alt: s.prev.record.GPSAlt}
		curPos := model.TrajectoryPoint{Lat: cur.record.Lat, Lng: cur.record.Lng, Alt: cur.record.GPSAlt}
		cur.record.VVelocity = geo.VerticalVelocity(prevPos, curPos, dt)
		cur.record.HVelocity = geo.HorizontalVelocity(prevPos, curPos, dt)
	}
	cur.record.ID = s.header.ID
	cur.record.Time = r.now().UnixMilli()

	index := s.count
	s.count++
	s.prev = &cur

	r.records.Add(ctx, 1)
	r.publisher.Publish(model.Event{Type: model.EventTelemetry, RunID: s.header.ID, Data: cur.record})
	if err := r.store.PutRecord(ctx, s.header.ID, index, cur.record); err != nil {
		r.logger.Warn("ingest: persist record failed", "run_id", s.header.ID, "index", index, "error", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
