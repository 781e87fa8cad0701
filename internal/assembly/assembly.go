package assembly

import (
	"context"
	"encoding/json"
	"log/slog"

	"newsgraph/internal/content"
	"newsgraph/internal/knowledge"
	"newsgraph/internal/logging"
	"newsgraph/internal/services"
	"newsgraph/internal/stage"
)

const stageName = "assembly"

// Store is the durable side of Phase 5.
type Store interface {
	Persist(ctx context.Context, p knowledge.Payload) (knowledge.Commit, error)
	RecordFailure(ctx context.Context, rec knowledge.FailureRecord) (int64, error)
}

// Registrar learns durable ids for newly created entities.
type Registrar interface {
	Register(name, entityType string, id int64)
}

// Assembler is Phase 5: payload assembly and atomic persistence.
type Assembler struct {
	store     Store
	registrar Registrar
	logger    *slog.Logger
}

// New constructs the Phase 5 handler. registrar may be nil.
func New(store Store, registrar Registrar, logger *slog.Logger) *Assembler {
	a := &Assembler{store: store, registrar: registrar}
	a.SetLogger(logger)
	return a
}

// SetLogger swaps the handler logger.
func (a *Assembler) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	a.logger = logging.NewComponentLogger(logger, stageName)
}

// Execute assembles and commits the item graph. A failed commit leaves no
// rows behind and the item lands in the persistent-error store.
func (a *Assembler) Execute(ctx context.Context, work *content.Work) error {
	logger := logging.WithContext(ctx, a.logger)
	payload, warnings := BuildPayload(work)
	for _, warning := range warnings {
		work.Annotate(services.ClassNone, stageName, warning)
	}

	commit, err := a.store.Persist(ctx, payload)
	if err != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrInterrupted, stageName, "persist", "cancelled before commit", err)
		}
		wrapped := services.Wrap(services.ErrPersistence, stageName, "persist", "atomic commit failed", err)
		a.recordFailure(ctx, logger, work, wrapped)
		return wrapped
	}

	receipt := &content.Receipt{
		DocumentID:    payload.DocumentID,
		FragmentID:    payload.FragmentID,
		FactIDs:       make(map[string]int64, len(commit.FactIDs)),
		EntityIDs:     make(map[string]int64, len(commit.EntityIDs)),
		Quotes:        commit.Quotes,
		Data:          commit.Data,
		Relationships: commit.Relationships,
		CommittedAt:   commit.CommittedAt,
	}
	seenFacts := make(map[string]bool)
	idx := 0
	for _, fact := range work.Facts {
		if seenFacts[fact.TempID] {
			continue
		}
		seenFacts[fact.TempID] = true
		if idx < len(commit.FactIDs) {
			receipt.FactIDs[fact.TempID] = commit.FactIDs[idx]
		}
		idx++
	}
	seenEntities := make(map[string]bool)
	idx = 0
	for i := range work.Entities {
		entity := &work.Entities[i]
		if seenEntities[entity.TempID] {
			continue
		}
		seenEntities[entity.TempID] = true
		if idx < len(commit.EntityIDs) {
			id := commit.EntityIDs[idx]
			receipt.EntityIDs[entity.TempID] = id
			if entity.IsNew && a.registrar != nil {
				a.registrar.Register(entity.Name, entity.Type, id)
			}
			entity.DurableID = id
		}
		idx++
	}
	work.Receipt = receipt

	for temp, id := range receipt.FactIDs {
		_ = work.Arena.Resolve(temp, id)
	}
	for temp, id := range receipt.EntityIDs {
		_ = work.Arena.Resolve(temp, id)
	}
	pending := len(work.Arena.Pending())
	work.Arena.Close()

	logger.Info("item persisted",
		logging.String(logging.FieldEventType, "persist_complete"),
		logging.String("document_id", receipt.DocumentID),
		logging.Int("facts", len(receipt.FactIDs)),
		logging.Int("entities", len(receipt.EntityIDs)),
		logging.Int("quotes", receipt.Quotes),
		logging.Int("data", receipt.Data),
		logging.Int("relationships", receipt.Relationships),
		logging.Int("unresolved_temp_ids", pending),
	)
	return nil
}

type diagnostic struct {
	Payload     knowledge.Payload    `json:"payload"`
	Annotations []content.Annotation `json:"annotations,omitempty"`
}

func (a *Assembler) recordFailure(ctx context.Context, logger *slog.Logger, work *content.Work, cause error) {
	itemJSON, err := json.Marshal(work.Item)
	if err != nil {
		itemJSON = []byte("{}")
	}
	payload, _ := BuildPayload(work)
	diag, err := json.Marshal(diagnostic{Payload: payload, Annotations: work.Annotations})
	if err != nil {
		diag = []byte("{}")
	}
	id, err := a.store.RecordFailure(ctx, knowledge.FailureRecord{
		ItemID:         work.Item.ID,
		DocumentID:     work.Item.DocumentID(),
		Classification: string(services.ClassPersistence),
		ErrorMessage:   cause.Error(),
		ItemJSON:       string(itemJSON),
		CleanedText:    work.Text,
		DiagnosticJSON: string(diag),
	})
	if err != nil {
		logging.ErrorWithContext(logger, "persistent error store unavailable", "failure_record_failed",
			logging.String(logging.FieldErrorHint, "check knowledge database permissions"),
			logging.Error(err),
			logging.String("cause", cause.Error()),
		)
		return
	}
	logging.ErrorWithContext(logger, "item persistence failed", "persist_failed",
		logging.String(logging.FieldErrorHint, "retry with newsgraph failures retry"),
		logging.Int64("failure_id", id),
		logging.Error(cause),
	)
}

// HealthCheck reports readiness.
func (a *Assembler) HealthCheck(context.Context) stage.Health {
	if a.store == nil {
		return stage.Unhealthy(stageName, "knowledge store not configured")
	}
	return stage.Healthy(stageName)
}
