package storage

import (
	"context"

	"github.com/ashita-ai/kumo/internal/model"
)

// PutPredictionGroup writes (or replaces) a prediction group.
func (s *Store) PutPredictionGroup(ctx context.Context, g model.PredictionGroup) error {
	return s.put(ctx, groupKey(g.ID), g)
}

// GetPredictionGroup returns the group with id, or ErrNotFound.
func (s *Store) GetPredictionGroup(ctx context.Context, id string) (model.PredictionGroup, error) {
	var g model.PredictionGroup
	if err := s.get(ctx, groupKey(id), &g); err != nil {
		return model.PredictionGroup{}, err
	}
	return g, nil
}

// ListPredictionGroups returns every stored group in key order.
func (s *Store) ListPredictionGroups(ctx context.Context) ([]model.PredictionGroup, error) {
	entries, err := s.kv.Scan(ctx, groupPrefix, prefixEnd(groupPrefix), 0)
	if err != nil {
		return nil, err
	}
	groups := make([]model.PredictionGroup, 0, len(entries))
	for _, e := range entries {
		var g model.PredictionGroup
		if err := decode(e.Key, e.Value, &g); err != nil {
			s.logger.Warn("storage: skipping undecodable prediction group", "key", e.Key, "error", err)
			continue
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// DeletePredictionGroup removes a group. It returns ErrNotFound when the
// group does not exist.
func (s *Store) DeletePredictionGroup(ctx context.Context, id string) error {
	key := groupKey(id)
	if _, err := s.kv.Get(ctx, key); err != nil {
		return err
	}
	return s.kv.Delete(ctx, key)
}
