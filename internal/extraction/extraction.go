package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"newsgraph/internal/content"
	"newsgraph/internal/logging"
	"newsgraph/internal/prompts"
	"newsgraph/internal/services"
	"newsgraph/internal/services/llm"
	"newsgraph/internal/similarity"
	"newsgraph/internal/stage"
)

const stageName = "extraction"

// Extractor is Phase 2: facts and entities from cleaned text.
type Extractor struct {
	invoker llm.Invoker
	logger  *slog.Logger
}

// New constructs the Phase 2 handler.
func New(invoker llm.Invoker, logger *slog.Logger) *Extractor {
	e := &Extractor{invoker: invoker}
	e.SetLogger(logger)
	return e
}

// SetLogger swaps the handler logger.
func (e *Extractor) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	e.logger = logging.NewComponentLogger(logger, stageName)
}

type rawFact struct {
	ID          llm.FlexString   `json:"id"`
	Description string           `json:"description"`
	Date        llm.FlexString   `json:"date"`
	DateEnd     llm.FlexString   `json:"date_end"`
	Location    string           `json:"location"`
	Type        string           `json:"type"`
	Importance  llm.FlexFloat    `json:"importance"`
	Context     string           `json:"context"`
	Entities    []llm.FlexString `json:"entities"`
}

type rawEntity struct {
	ID       llm.FlexString `json:"id"`
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Subtype  string         `json:"subtype"`
	Metadata map[string]any `json:"metadata"`
}

type extractionResponse struct {
	Facts    *[]rawFact   `json:"facts"`
	Entities *[]rawEntity `json:"entities"`
}

// Execute runs Phase 2. Model-supplied ids are remapped to fresh arena ids.
func (e *Extractor) Execute(ctx context.Context, work *content.Work) error {
	item := work.Item
	published := ""
	if item.Source.PublishedAt != nil {
		published = item.Source.PublishedAt.UTC().Format("2006-01-02")
	}
	raw, err := e.invoker.Invoke(ctx, prompts.PhaseExtraction, map[string]any{
		"Headline":    item.Headline,
		"PublishedAt": published,
		"Language":    work.Language,
		"Text":        work.Text,
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "invoke", "llm call failed", err)
	}
	var resp extractionResponse
	if err := llm.DecodeLLMJSON(raw, &resp); err != nil {
		return services.Wrap(services.ErrExtractionParse, stageName, "decode", "response could not be repaired", err)
	}
	if resp.Facts == nil && resp.Entities == nil {
		return services.Wrap(services.ErrExtractionParse, stageName, "decode", "response has neither facts nor entities", nil)
	}

	var facts []rawFact
	if resp.Facts != nil {
		facts = *resp.Facts
	}
	var entities []rawEntity
	if resp.Entities != nil {
		entities = *resp.Entities
	}
	e.apply(ctx, work, facts, entities)
	return nil
}

func (e *Extractor) apply(ctx context.Context, work *content.Work, facts []rawFact, entities []rawEntity) {
	byRawID := make(map[string]string)
	byKey := make(map[string]string)
	byName := make(map[string]string)

	for _, raw := range entities {
		name := strings.TrimSpace(raw.Name)
		if name == "" {
			work.Annotate(services.ClassNone, stageName, fmt.Sprintf("entity %q dropped: empty name", raw.ID))
			continue
		}
		entityType := strings.ToLower(strings.TrimSpace(raw.Type))
		if entityType == "" {
			entityType = "concept"
		}
		key := similarity.Key(name, entityType)
		tempID, dup := byKey[key]
		if !dup {
			tempID = work.Arena.NewEntity()
			byKey[key] = tempID
			work.Entities = append(work.Entities, content.Entity{
				TempID:   tempID,
				Name:     name,
				Type:     entityType,
				Subtype:  strings.TrimSpace(raw.Subtype),
				Metadata: flattenMetadata(raw.Metadata),
			})
		}
		if id := raw.ID.String(); id != "" {
			byRawID[id] = tempID
		}
		if folded := similarity.Fold(name); folded != "" {
			if _, ok := byName[folded]; !ok {
				byName[folded] = tempID
			}
		}
	}

	for _, raw := range facts {
		description := strings.TrimSpace(raw.Description)
		if description == "" {
			work.Annotate(services.ClassNone, stageName, fmt.Sprintf("fact %q dropped: empty description", raw.ID))
			continue
		}
		fact := content.Fact{
			TempID:      work.Arena.NewFact(),
			Description: description,
			OccurredAt:  content.TimeRange{Raw: joinRange(raw.Date.String(), raw.DateEnd.String())},
			Location:    strings.TrimSpace(raw.Location),
			Type:        strings.ToLower(strings.TrimSpace(raw.Type)),
			Context:     strings.TrimSpace(raw.Context),
		}
		if raw.Importance.Set {
			score := clampScore(raw.Importance.Value)
			fact.PreliminaryImportance = &score
		}
		seen := make(map[string]struct{})
		for _, ref := range raw.Entities {
			value := ref.String()
			tempID, ok := byRawID[value]
			if !ok {
				tempID, ok = byName[similarity.Fold(value)]
			}
			if !ok {
				work.Annotate(services.ClassNone, stageName,
					fmt.Sprintf("fact %s: unknown entity reference %q dropped", fact.TempID, value))
				continue
			}
			if _, dup := seen[tempID]; dup {
				continue
			}
			seen[tempID] = struct{}{}
			fact.EntityRefs = append(fact.EntityRefs, tempID)
		}
		work.Facts = append(work.Facts, fact)
	}

	logging.WithContext(ctx, e.logger).Info("extraction complete",
		logging.String(logging.FieldEventType, "extraction_complete"),
		logging.Int("facts", len(work.Facts)),
		logging.Int("entities", len(work.Entities)),
		logging.Int("raw_entities", len(entities)),
	)
}

// HealthCheck reports readiness.
func (e *Extractor) HealthCheck(context.Context) stage.Health {
	if e.invoker == nil {
		return stage.Unhealthy(stageName, "llm invoker not configured")
	}
	return stage.Healthy(stageName)
}

func joinRange(start, end string) string {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if end == "" || end == start {
		return start
	}
	return start + "/" + end
}

func clampScore(value float64) int {
	score := int(math.Round(value))
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}

func flattenMetadata(meta map[string]any) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for key, value := range meta {
		if value == nil {
			continue
		}
		if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
			out[key] = text
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
