// Package predict manages stored flight-path prediction groups: importing
// raw predictor responses, listing, and deletion. HTTP and MCP handlers share
// it.
package predict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/kumo/internal/geo"
	"github.com/ashita-ai/kumo/internal/model"
	"github.com/ashita-ai/kumo/internal/storage"
)

// ErrInvalidPrediction means an import body cannot be turned into a group.
var ErrInvalidPrediction = errors.New("predict: invalid prediction")

// lngOffset converts the predictor's [0, 360) longitudes to [-180, 180).
const lngOffset = 360

// Publisher receives prediction_added events.
type Publisher interface {
	Publish(e model.Event)
}

// Invalidator drops cached trajectories for a group.
type Invalidator interface {
	Invalidate(groupID string)
}

// Service stores and retrieves prediction groups.
type Service struct {
	store     *storage.Store
	cache     Invalidator
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a prediction Service. cache and publisher may be nil.
func New(store *storage.Store, cache Invalidator, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, publisher: publisher, logger: logger, now: time.Now}
}

// Import stores a group given either directly or as raw predictor
// responses, and announces it to subscribers.
func (s *Service) Import(ctx context.Context, req model.ImportPredictionsRequest) (model.PredictionGroup, error) {
	var (
		g   model.PredictionGroup
		err error
	)
	switch {
	case req.Group != nil && len(req.Responses) > 0:
		return g, fmt.Errorf("%w: set exactly one of group or responses", ErrInvalidPrediction)
	case req.Group != nil:
		g, err = normalize(*req.Group, s.now())
	case len(req.Responses) > 0:
		g, err = FromResponses(req.Responses, s.now())
	default:
		return g, fmt.Errorf("%w: group or responses is required", ErrInvalidPrediction)
	}
	if err != nil {
		return model.PredictionGroup{}, err
	}

	if err := s.store.PutPredictionGroup(ctx, g); err != nil {
		return model.PredictionGroup{}, fmt.Errorf("predict: store group %s: %w", g.ID, err)
	}
	if s.cache != nil {
		s.cache.Invalidate(g.ID)
	}
	if s.publisher != nil {
		s.publisher.Publish(model.Event{Type: model.EventPredictionAdded, Data: g})
	}
	s.logger.Info("predict: group stored", "group_id", g.ID, "predictions", len(g.Predictions),
		"min_distance_mi", g.MinDistance, "max_distance_mi", g.MaxDistance)
	return g, nil
}

// List returns every stored group.
func (s *Service) List(ctx context.Context) ([]model.PredictionGroup, error) {
	return s.store.ListPredictionGroups(ctx)
}

// Get returns one group, or an error wrapping storage.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (model.PredictionGroup, error) {
	return s.store.GetPredictionGroup(ctx, id)
}

// Delete removes a group and its cached trajectory.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeletePredictionGroup(ctx, id); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(id)
	}
	s.logger.Info("predict: group deleted", "group_id", id)
	return nil
}

// FromResponses converts raw predictor responses into a group. Stages are
// concatenated in order, longitudes are shifted into [-180, 180), and the
// landing point is forced to ground level and repeated once more, so each
// prediction has one more point than it has times.
func FromResponses(responses []model.PredictionRequestResponse, now time.Time) (model.PredictionGroup, error) {
	if len(responses) > model.MaxPredictionsPerGroup {
		return model.PredictionGroup{}, fmt.Errorf("%w: %d responses exceeds limit of %d",
			ErrInvalidPrediction, len(responses), model.MaxPredictionsPerGroup)
	}

	g := model.PredictionGroup{
		ID:          uuid.NewString(),
		Predictions: make([]model.Prediction, 0, len(responses)),
		CreatedAt:   now.UTC(),
	}
	for i, rr := range responses {
		var (
			points []model.TrajectoryPoint
			times  []time.Time
		)
		for _, stage := range rr.Response.Prediction {
			for _, p := range stage.Trajectory {
				points = append(points, model.TrajectoryPoint{
					Lat: p.Latitude,
					Lng: p.Longitude - lngOffset,
					Alt: p.Altitude,
				})
				times = append(times, p.Datetime)
			}
		}
		if len(points) < 2 {
			return model.PredictionGroup{}, fmt.Errorf("%w: response %d has %d trajectory points",
				ErrInvalidPrediction, i, len(points))
		}

		points[len(points)-1].Alt = 0
		points = append(points, points[len(points)-1])

		g.Predictions = append(g.Predictions, model.Prediction{
			ID:         uuid.NewString(),
			Request:    rr.Request,
			Points:     points,
			Times:      times,
			StartPoint: points[0],
			EndPoint:   points[len(points)-1],
		})
	}
	g.MinDistance, g.MaxDistance = distanceRange(g.Predictions)
	return g, nil
}

// normalize validates a group supplied directly and fills in derived fields.
func normalize(g model.PredictionGroup, now time.Time) (model.PredictionGroup, error) {
	if len(g.Predictions) == 0 {
		return g, fmt.Errorf("%w: group has no predictions", ErrInvalidPrediction)
	}
	if len(g.Predictions) > model.MaxPredictionsPerGroup {
		return g, fmt.Errorf("%w: %d predictions exceeds limit of %d",
			ErrInvalidPrediction, len(g.Predictions), model.MaxPredictionsPerGroup)
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now.UTC()
	}
	for i := range g.Predictions {
		p := &g.Predictions[i]
		if len(p.Points) == 0 {
			return g, fmt.Errorf("%w: prediction %d has no points", ErrInvalidPrediction, i)
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.StartPoint = p.Points[0]
		p.EndPoint = p.Points[len(p.Points)-1]
	}
	g.MinDistance, g.MaxDistance = distanceRange(g.Predictions)
	return g, nil
}

// distanceRange returns the smallest and largest launch-to-landing distance
// in miles across predictions.
func distanceRange(preds []model.Prediction) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, p := range preds {
		d := geo.HorizontalDistanceMiles(p.StartPoint, p.EndPoint)
		lo = min(lo, d)
		hi = max(hi, d)
	}
	if len(preds) == 0 {
		return 0, 0
	}
	return lo, hi
}
