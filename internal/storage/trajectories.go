package storage

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/kumo/internal/model"
)

// DefaultTrajectoryCacheSize is used when NewTrajectoryStore is given a
// non-positive size.
const DefaultTrajectoryCacheSize = 128

// TrajectoryStore resolves a prediction group id to the trajectory of its
// first prediction, trimmed of the trailing ground point. Results are kept
// in an LRU; concurrent misses for the same id share one load.
type TrajectoryStore struct {
	store *Store
	cache *lru.Cache[string, model.Trajectory]
	group singleflight.Group
}

// NewTrajectoryStore returns a cached trajectory lookup over store.
func NewTrajectoryStore(store *Store, size int) (*TrajectoryStore, error) {
	if size <= 0 {
		size = DefaultTrajectoryCacheSize
	}
	cache, err := lru.New[string, model.Trajectory](size)
	if err != nil {
		return nil, fmt.Errorf("storage: trajectory cache: %w", err)
	}
	return &TrajectoryStore{store: store, cache: cache}, nil
}

// Get returns the trajectory for a prediction group, or an error wrapping
// ErrNotFound when the group does not exist or has no predictions.
// Callers must not modify the returned slice.
func (t *TrajectoryStore) Get(ctx context.Context, groupID string) (model.Trajectory, error) {
	if traj, ok := t.cache.Get(groupID); ok {
		return traj, nil
	}
	v, err, _ := t.group.Do(groupID, func() (any, error) {
		g, err := t.store.GetPredictionGroup(ctx, groupID)
		if err != nil {
			return nil, err
		}
		if len(g.Predictions) == 0 {
			return nil, fmt.Errorf("storage: prediction group %s is empty: %w", groupID, ErrNotFound)
		}
		traj, err := g.Predictions[0].Trajectory()
		if err != nil {
			return nil, err
		}
		t.cache.Add(groupID, traj)
		return traj, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(model.Trajectory), nil
}

// Invalidate drops a cached trajectory. Call after a group is replaced or
// deleted.
func (t *TrajectoryStore) Invalidate(groupID string) {
	t.cache.Remove(groupID)
}

// Len reports the number of cached trajectories.
func (t *TrajectoryStore) Len() int { return t.cache.Len() }
