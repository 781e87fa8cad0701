package linking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"newsgraph/internal/content"
	"newsgraph/internal/logging"
	"newsgraph/internal/prompts"
	"newsgraph/internal/quotes"
	"newsgraph/internal/resolver"
	"newsgraph/internal/services"
	"newsgraph/internal/services/embed"
	"newsgraph/internal/services/llm"
	"newsgraph/internal/stage"
)

const (
	stageName            = "linking"
	embeddingParallelism = 4
)

// EntityResolver decides whether an extracted entity already exists.
type EntityResolver interface {
	Resolve(ctx context.Context, name, entityType string, embedding []float32) (resolver.Decision, error)
}

// Config holds the Phase 4 policy knobs.
type Config struct {
	// RelationEscalation turns the Nth consecutive relation failure,
	// counted across items, into a hard failure. Zero never escalates.
	RelationEscalation int
}

// Linker is Phase 4: entity resolution, temporal normalization and
// relationship extraction.
type Linker struct {
	invoker  llm.Invoker
	resolver EntityResolver
	embedder embed.Embedder
	cfg      Config
	logger   *slog.Logger

	mu                  sync.Mutex
	consecutiveFailures int
}

// New constructs the Phase 4 handler. embedder may be nil.
func New(invoker llm.Invoker, res EntityResolver, embedder embed.Embedder, cfg Config, logger *slog.Logger) *Linker {
	l := &Linker{invoker: invoker, resolver: res, embedder: embedder, cfg: cfg}
	l.SetLogger(logger)
	return l
}

// SetLogger swaps the handler logger.
func (l *Linker) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	l.logger = logging.NewComponentLogger(logger, stageName)
}

// Execute runs Phase 4.
func (l *Linker) Execute(ctx context.Context, work *content.Work) error {
	logger := logging.WithContext(ctx, l.logger)

	l.embed(ctx, work)
	if err := l.resolveEntities(ctx, work); err != nil {
		return err
	}
	l.normalizeTimes(work)
	if err := l.extractRelations(ctx, work); err != nil {
		return err
	}

	matched := 0
	for _, entity := range work.Entities {
		if !entity.IsNew {
			matched++
		}
	}
	logger.Info("linking complete",
		logging.String(logging.FieldEventType, "linking_complete"),
		logging.Int("entities", len(work.Entities)),
		logging.Int("matched", matched),
		logging.Int("relationships", len(work.Relationships)),
	)
	return nil
}

// embed fills entity embeddings in parallel. Failures leave the entity
// without a vector so resolution falls back to the textual score.
func (l *Linker) embed(ctx context.Context, work *content.Work) {
	if l.embedder == nil || len(work.Entities) == 0 {
		return
	}
	vectors := make([][]float32, len(work.Entities))
	errs := make([]error, len(work.Entities))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(embeddingParallelism)
	for i := range work.Entities {
		text := work.Entities[i].Name
		group.Go(func() error {
			vector, err := l.embedder.Embed(groupCtx, text)
			vectors[i], errs[i] = vector, err
			return nil
		})
	}
	_ = group.Wait()

	failed := 0
	for i := range work.Entities {
		if errs[i] != nil {
			failed++
			continue
		}
		work.Entities[i].Embedding = vectors[i]
	}
	if failed > 0 {
		logging.WarnWithContext(logging.WithContext(ctx, l.logger), "entity embeddings unavailable", "embedding_failed",
			logging.String(logging.FieldErrorHint, "check embeddings endpoint"),
			logging.String(logging.FieldImpact, "entities resolved by name only"),
			logging.Int("failed", failed),
			logging.Int("entities", len(work.Entities)),
		)
		work.Annotate(services.ClassNone, stageName, fmt.Sprintf("%d entity embeddings unavailable", failed))
	}
}

func (l *Linker) resolveEntities(ctx context.Context, work *content.Work) error {
	for i := range work.Entities {
		entity := &work.Entities[i]
		decision, err := l.resolver.Resolve(ctx, entity.Name, entity.Type, entity.Embedding)
		if err != nil {
			if ctx.Err() != nil {
				return services.Wrap(services.ErrInterrupted, stageName, "resolve", entity.TempID, err)
			}
			return services.Wrap(services.ErrTransient, stageName, "resolve", entity.TempID, err)
		}
		entity.Resolved = true
		entity.IsNew = decision.IsNew
		entity.DurableID = decision.DurableID
		entity.Similarity = decision.Score
	}
	return nil
}

func (l *Linker) normalizeTimes(work *content.Work) {
	for i := range work.Facts {
		fact := &work.Facts[i]
		normalized, err := NormalizeRange(fact.OccurredAt.Raw)
		if err != nil {
			work.Annotate(services.ClassNone, stageName, fmt.Sprintf("%s: %v", fact.TempID, err))
		}
		fact.OccurredAt = normalized
	}
}

// extractRelations runs the relations prompt. Failure is soft unless the
// escalation policy trips.
func (l *Linker) extractRelations(ctx context.Context, work *content.Work) error {
	if len(work.Facts) == 0 {
		return nil
	}
	raw, err := l.invoker.Invoke(ctx, prompts.PhaseRelations, map[string]any{
		"Facts":    quotes.ListFacts(work.Facts),
		"Entities": quotes.ListEntities(work.Entities),
		"Quotes":   listQuotes(work.Quotes),
	})
	if err == nil {
		var resp relationsResponse
		if err = llm.DecodeLLMJSON(raw, &resp); err == nil && resp.empty() {
			err = fmt.Errorf("response has no relation lists")
		}
		if err == nil {
			applyRelations(work, resp)
			l.recordRelationOutcome(true)
			return nil
		}
	}
	if ctx.Err() != nil {
		return services.Wrap(services.ErrInterrupted, stageName, "relations", "cancelled", ctx.Err())
	}

	streak := l.recordRelationOutcome(false)
	if l.cfg.RelationEscalation > 0 && streak >= l.cfg.RelationEscalation {
		return services.Wrap(services.ErrRelations, stageName, "relations",
			fmt.Sprintf("%d consecutive relation failures", streak), err)
	}
	logging.WarnWithContext(logging.WithContext(ctx, l.logger), "relation extraction degraded", "relations_degraded",
		logging.String(logging.FieldErrorHint, "inspect relations prompt output"),
		logging.String(logging.FieldImpact, "item persisted without relationships"),
		logging.Int("consecutive_failures", streak),
		logging.Error(err),
	)
	work.Annotate(services.ClassRelationDegraded, stageName, err.Error())
	return nil
}

func (l *Linker) recordRelationOutcome(ok bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ok {
		l.consecutiveFailures = 0
	} else {
		l.consecutiveFailures++
	}
	return l.consecutiveFailures
}

// HealthCheck reports readiness.
func (l *Linker) HealthCheck(context.Context) stage.Health {
	switch {
	case l.invoker == nil:
		return stage.Unhealthy(stageName, "llm invoker not configured")
	case l.resolver == nil:
		return stage.Unhealthy(stageName, "entity resolver not configured")
	}
	return stage.Healthy(stageName)
}
