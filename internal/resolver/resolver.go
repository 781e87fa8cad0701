package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"newsgraph/internal/knowledge"
	"newsgraph/internal/logging"
	"newsgraph/internal/similarity"
)

// Searcher performs the durable similarity lookup behind a cache miss.
type Searcher interface {
	SimilarEntities(ctx context.Context, q knowledge.EntityQuery) ([]knowledge.Candidate, error)
}

// Options tunes matching.
type Options struct {
	Threshold      float64
	Weights        similarity.Weights
	CandidateLimit int
	// TTL bounds how long a cached match is trusted. Zero keeps entries
	// until they are overwritten.
	TTL time.Duration
}

// Decision is the outcome of resolving one entity.
type Decision struct {
	DurableID int64
	IsNew     bool
	Score     float64
	Cached    bool
	Matched   string
}

type cacheEntry struct {
	id      int64
	name    string
	score   float64
	expires time.Time
}

// Resolver links extracted entities to durable ones. The cache is shared by
// all workers with relaxed consistency: the last writer for a key wins.
type Resolver struct {
	searcher Searcher
	opts     Options
	logger   *slog.Logger
	cache    sync.Map
	now      func() time.Time
}

// New constructs a resolver backed by searcher.
func New(searcher Searcher, opts Options, logger *slog.Logger) *Resolver {
	if opts.Threshold <= 0 {
		opts.Threshold = 0.85
	}
	if opts.Weights.Text == 0 && opts.Weights.Vector == 0 {
		opts.Weights = similarity.DefaultWeights
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{
		searcher: searcher,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "resolver"),
		now:      time.Now,
	}
}

// Resolve decides whether name/type matches a durable entity. Only matches
// are cached, so a "new" decision is recomputed against the store each time.
func (r *Resolver) Resolve(ctx context.Context, name, entityType string, embedding []float32) (Decision, error) {
	if strings.TrimSpace(name) == "" {
		return Decision{IsNew: true}, nil
	}
	key := similarity.Key(name, entityType)
	if entry, ok := r.lookup(key); ok {
		return Decision{DurableID: entry.id, Score: entry.score, Cached: true, Matched: entry.name}, nil
	}

	candidates, err := r.searcher.SimilarEntities(ctx, knowledge.EntityQuery{
		Name:      name,
		Type:      entityType,
		Embedding: embedding,
		Threshold: r.opts.Threshold,
		Limit:     r.opts.CandidateLimit,
		Weights:   r.opts.Weights,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("similar entities for %q: %w", name, err)
	}
	if len(candidates) == 0 {
		r.logger.Debug("entity resolved as new",
			logging.Args(append(logging.DecisionAttrs("entity_resolution", "new", "no candidate at or above threshold"),
				logging.String("entity_name", name),
				logging.String("entity_type", entityType),
			)...)...,
		)
		return Decision{IsNew: true}, nil
	}

	best := candidates[0]
	if best.Score < r.opts.Threshold {
		return Decision{IsNew: true}, nil
	}
	r.store(key, cacheEntry{id: best.ID, name: best.Name, score: best.Score})
	r.logger.Debug("entity linked",
		logging.Args(append(logging.DecisionAttrs("entity_resolution", "linked", "best candidate at or above threshold"),
			logging.String("entity_name", name),
			logging.String("entity_type", entityType),
			logging.Int64("durable_id", best.ID),
			logging.Float64("score", best.Score),
			logging.Int("candidates", len(candidates)),
		)...)...,
	)
	return Decision{DurableID: best.ID, Score: best.Score, Matched: best.Name}, nil
}

// Register records a durable id for name/type, typically right after a new
// entity is persisted.
func (r *Resolver) Register(name, entityType string, id int64) {
	if id <= 0 || strings.TrimSpace(name) == "" {
		return
	}
	r.store(similarity.Key(name, entityType), cacheEntry{id: id, name: name, score: 1})
}

// Len reports the number of live cache entries.
func (r *Resolver) Len() int {
	count := 0
	now := r.now()
	r.cache.Range(func(_, value any) bool {
		entry := value.(cacheEntry)
		if entry.expires.IsZero() || now.Before(entry.expires) {
			count++
		}
		return true
	})
	return count
}

func (r *Resolver) lookup(key string) (cacheEntry, bool) {
	value, ok := r.cache.Load(key)
	if !ok {
		return cacheEntry{}, false
	}
	entry := value.(cacheEntry)
	if !entry.expires.IsZero() && !r.now().Before(entry.expires) {
		r.cache.CompareAndDelete(key, value)
		return cacheEntry{}, false
	}
	return entry, true
}

func (r *Resolver) store(key string, entry cacheEntry) {
	if r.opts.TTL > 0 {
		entry.expires = r.now().Add(r.opts.TTL)
	}
	r.cache.Store(key, entry)
}
