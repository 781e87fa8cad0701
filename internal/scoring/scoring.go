package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"newsgraph/internal/content"
	"newsgraph/internal/knowledge"
	"newsgraph/internal/logging"
	"newsgraph/internal/services"
	"newsgraph/internal/similarity"
	"newsgraph/internal/stage"
)

const stageName = "scoring"

// TrendSource loads the contextual trend record for a day.
type TrendSource interface {
	TrendForDate(ctx context.Context, day time.Time) (knowledge.Trend, error)
}

// Scorer is Phase 4.5: final importance per fact.
type Scorer struct {
	trends       TrendSource
	model        Model
	defaultScore int
	logger       *slog.Logger
}

// New constructs the Phase 4.5 handler.
func New(trends TrendSource, model Model, defaultScore int, logger *slog.Logger) *Scorer {
	if model == nil {
		model = HeuristicModel{}
	}
	s := &Scorer{trends: trends, model: model, defaultScore: Clamp(float64(defaultScore))}
	s.SetLogger(logger)
	return s
}

func (s *Scorer) loadTrend(ctx context.Context, day time.Time) (knowledge.Trend, error) {
	if s.trends == nil {
		return knowledge.Trend{}, errors.New("no trend source configured")
	}
	return s.trends.TrendForDate(ctx, day)
}

// SetLogger swaps the handler logger.
func (s *Scorer) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	s.logger = logging.NewComponentLogger(logger, stageName)
}

// Execute scores every fact. Model or trend failures never fail the item:
// facts fall back to their preliminary importance or the default score and
// the item is annotated scoring_unavailable.
func (s *Scorer) Execute(ctx context.Context, work *content.Work) error {
	if len(work.Facts) == 0 {
		return nil
	}
	logger := logging.WithContext(ctx, s.logger)

	trend, err := s.loadTrend(ctx, work.Item.ReferenceDate())
	if err != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrInterrupted, stageName, "trend", "cancelled", ctx.Err())
		}
		s.degrade(logger, work, fmt.Errorf("trend lookup: %w", err))
		for i := range work.Facts {
			work.Facts[i].Importance = s.fallback(work.Facts[i])
		}
		return nil
	}

	var firstErr error
	fallbacks := 0
	for i := range work.Facts {
		fact := &work.Facts[i]
		score, err := s.model.Score(ctx, BuildFeatures(work, *fact, trend))
		if err != nil {
			if ctx.Err() != nil {
				return services.Wrap(services.ErrInterrupted, stageName, "score", "cancelled", ctx.Err())
			}
			if firstErr == nil {
				firstErr = err
			}
			fallbacks++
			fact.Importance = s.fallback(*fact)
			continue
		}
		fact.Importance = Clamp(score)
	}
	if firstErr != nil {
		s.degrade(logger, work, fmt.Errorf("%d of %d facts: %w", fallbacks, len(work.Facts), firstErr))
		return nil
	}
	logger.Info("facts scored",
		logging.String(logging.FieldEventType, "scoring_complete"),
		logging.String("model_version", s.model.Version()),
		logging.Int("facts", len(work.Facts)),
	)
	return nil
}

func (s *Scorer) degrade(logger *slog.Logger, work *content.Work, err error) {
	logging.WarnWithContext(logger, "importance scoring unavailable", "scoring_unavailable",
		logging.String(logging.FieldErrorHint, "check scoring.model_url service"),
		logging.String(logging.FieldImpact, "facts use preliminary or default importance"),
		logging.Error(err),
	)
	work.Annotate(services.ClassScoringUnavailable, stageName, err.Error())
}

func (s *Scorer) fallback(fact content.Fact) int {
	if fact.PreliminaryImportance != nil {
		return Clamp(float64(*fact.PreliminaryImportance))
	}
	return s.defaultScore
}

// BuildFeatures derives the model input for one fact.
func BuildFeatures(work *content.Work, fact content.Fact, trend knowledge.Trend) Features {
	f := Features{
		FactType:              fact.Type,
		EntityCount:           len(fact.EntityRefs),
		PreliminaryImportance: fact.PreliminaryImportance,
		TopicHeat:             trend.TopicHeat[similarity.Fold(fact.Type)],
	}
	if strings.TrimSpace(fact.Location) != "" {
		f.LocationCount++
	}
	haystack := []string{similarity.Fold(fact.Description)}
	for _, ref := range fact.EntityRefs {
		entity, ok := work.Entity(ref)
		if !ok {
			continue
		}
		folded := similarity.Fold(entity.Name)
		haystack = append(haystack, folded)
		if entity.Type == "location" || entity.Type == "place" {
			f.LocationCount++
		}
		if trend.Entities[folded] > 0 {
			f.TrendingEntityHits++
		}
	}
	text := strings.Join(haystack, " ")
	for _, thread := range trend.Threads {
		if !thread.Active {
			continue
		}
		for _, keyword := range thread.Keywords {
			keyword = similarity.Fold(keyword)
			if keyword != "" && strings.Contains(text, keyword) {
				f.ThreadMatches++
				break
			}
		}
	}
	return f
}

// Clamp rounds a score into the 1..10 importance scale.
func Clamp(score float64) int {
	if math.IsNaN(score) {
		return 1
	}
	rounded := int(math.Round(score))
	switch {
	case rounded < 1:
		return 1
	case rounded > 10:
		return 10
	}
	return rounded
}

// HealthCheck reports readiness.
func (s *Scorer) HealthCheck(context.Context) stage.Health {
	if s.trends == nil {
		return stage.Unhealthy(stageName, "trend source not configured")
	}
	health := stage.Healthy(stageName)
	health.Detail = "model " + s.model.Version()
	return health
}
