package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ashita-ai/kumo/internal/model"
)

// Key layout. Sample indexes are zero-padded so that bytewise key order is
// emission order.
const (
	runPrefix    = "simRun/"
	samplePrefix = "dataPoint/"
	groupPrefix  = "pGroup/"
)

func runKey(id string) string { return runPrefix + id }

func sampleRange(runID string) string { return samplePrefix + runID + "_" }

func sampleKey(runID string, index int) string {
	return fmt.Sprintf("%s%08d", sampleRange(runID), index)
}

func groupKey(id string) string { return groupPrefix + id }

// ErrInvalidRunID is returned for run ids that cannot be laid out as keys.
var ErrInvalidRunID = errors.New("storage: invalid run id")

// ValidateRunID rejects ids that would make one run's sample range cover
// another's: "_" separates the id from the sample index, and "/" the prefix
// from the id.
func ValidateRunID(id string) error {
	if id == "" || strings.ContainsAny(id, "_/") {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, id)
	}
	return nil
}

// Store persists run headers, per-sample records and prediction groups on
// top of an ordered KV backend.
type Store struct {
	kv     KV
	logger *slog.Logger
}

// New wraps kv.
func New(kv KV, logger *slog.Logger) *Store {
	return &Store{kv: kv, logger: logger}
}

// KV returns the underlying backend.
func (s *Store) KV() KV { return s.kv }

// Backend names the underlying backend.
func (s *Store) Backend() string { return s.kv.Backend() }

// Ping checks backend connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.kv.Ping(ctx) }

// Close releases the backend.
func (s *Store) Close(ctx context.Context) { s.kv.Close(ctx) }

func (s *Store) put(ctx context.Context, key string, v any) error {
	b, err := encode(key, v)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, key, b)
}

func (s *Store) get(ctx context.Context, key string, v any) error {
	b, err := s.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	return decode(key, b, v)
}

// PutRunHeader writes the header for a run.
func (s *Store) PutRunHeader(ctx context.Context, h model.RunHeader) error {
	if err := ValidateRunID(h.ID); err != nil {
		return err
	}
	return s.put(ctx, runKey(h.ID), h)
}

// GetRunHeader returns the header for id, or ErrNotFound.
func (s *Store) GetRunHeader(ctx context.Context, id string) (model.RunHeader, error) {
	var h model.RunHeader
	if err := s.get(ctx, runKey(id), &h); err != nil {
		return model.RunHeader{}, err
	}
	return h, nil
}

// ListRunHeaders returns every persisted run header in key order.
func (s *Store) ListRunHeaders(ctx context.Context) ([]model.RunHeader, error) {
	entries, err := s.kv.Scan(ctx, runPrefix, prefixEnd(runPrefix), 0)
	if err != nil {
		return nil, err
	}
	headers := make([]model.RunHeader, 0, len(entries))
	for _, e := range entries {
		var h model.RunHeader
		if err := decode(e.Key, e.Value, &h); err != nil {
			s.logger.Warn("storage: skipping undecodable run header", "key", e.Key, "error", err)
			continue
		}
		headers = append(headers, h)
	}
	return headers, nil
}

// PutSample writes the i-th simulated sample of a run.
func (s *Store) PutSample(ctx context.Context, runID string, index int, p model.SimDataPoint) error {
	if err := ValidateRunID(runID); err != nil {
		return err
	}
	return s.put(ctx, sampleKey(runID, index), p)
}

// PutRecord writes the i-th sensor record of a serial run.
func (s *Store) PutRecord(ctx context.Context, runID string, index int, r model.TelemetryRecord) error {
	if err := ValidateRunID(runID); err != nil {
		return err
	}
	return s.put(ctx, sampleKey(runID, index), r)
}

// ListSamples returns every persisted simulated sample of a run in
// emission order.
func (s *Store) ListSamples(ctx context.Context, runID string) ([]model.SimDataPoint, error) {
	start := sampleRange(runID)
	entries, err := s.kv.Scan(ctx, start, prefixEnd(start), 0)
	if err != nil {
		return nil, err
	}
	points := make([]model.SimDataPoint, 0, len(entries))
	for _, e := range entries {
		var p model.SimDataPoint
		if err := decode(e.Key, e.Value, &p); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

// RecordPage returns up to limit records of run h with index >= from,
// projected onto the flat record shape, and the index to resume from.
// next is -1 when the range is exhausted.
func (s *Store) RecordPage(ctx context.Context, h model.RunHeader, from, limit int) (records []model.TelemetryRecord, next int, err error) {
	end := prefixEnd(sampleRange(h.ID))
	entries, err := s.kv.Scan(ctx, sampleKey(h.ID, from), end, limit)
	if err != nil {
		return nil, -1, err
	}
	records = make([]model.TelemetryRecord, 0, len(entries))
	for _, e := range entries {
		var r model.TelemetryRecord
		switch h.Source {
		case model.RunSourceSerial:
			err = decode(e.Key, e.Value, &r)
		default:
			var p model.SimDataPoint
			if err = decode(e.Key, e.Value, &p); err == nil {
				r = model.Flatten(p)
			}
		}
		if err != nil {
			return nil, -1, err
		}
		records = append(records, r)
	}
	next = -1
	if limit > 0 && len(entries) == limit {
		// Indexes can have gaps where a write failed during playback.
		last, perr := sampleIndex(entries[len(entries)-1].Key)
		if perr != nil {
			return nil, -1, perr
		}
		next = last + 1
	}
	return records, next, nil
}

func sampleIndex(key string) (int, error) {
	i := strings.LastIndexByte(key, '_')
	if i < 0 {
		return 0, fmt.Errorf("storage: malformed sample key %q", key)
	}
	n, err := strconv.Atoi(key[i+1:])
	if err != nil {
		return 0, fmt.Errorf("storage: malformed sample key %q: %w", key, err)
	}
	return n, nil
}

// DeleteRun removes a run's full sample range and then its header. It
// returns ErrNotFound when no header exists.
func (s *Store) DeleteRun(ctx context.Context, id string) (int64, error) {
	if _, err := s.kv.Get(ctx, runKey(id)); err != nil {
		return 0, err
	}
	start := sampleRange(id)
	n, err := s.kv.DeleteRange(ctx, start, prefixEnd(start))
	if err != nil {
		return 0, fmt.Errorf("storage: delete samples of %s: %w", id, err)
	}
	if err := s.kv.Delete(ctx, runKey(id)); err != nil {
		return n, fmt.Errorf("storage: delete run %s: %w", id, err)
	}
	s.logger.Info("storage: run deleted", "run_id", id, "samples", n)
	return n, nil
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
