package assembly

import (
	"fmt"

	"newsgraph/internal/content"
	"newsgraph/internal/knowledge"
)

// positions maps temp ids to payload indexes.
type positions struct {
	facts    map[string]int
	entities map[string]int
}

func (p positions) fact(id string) *int {
	if idx, ok := p.facts[id]; ok {
		return &idx
	}
	return nil
}

func (p positions) entity(id string) *int {
	if idx, ok := p.entities[id]; ok {
		return &idx
	}
	return nil
}

// BuildPayload converts the item graph into a persistence payload. Temp ids
// become payload positions; references that cannot be resolved are dropped
// and reported in the returned warnings.
func BuildPayload(work *content.Work) (knowledge.Payload, []string) {
	item := work.Item
	var warnings []string
	drop := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	payload := knowledge.Payload{
		ItemID:     item.ID,
		DocumentID: item.DocumentID(),
		FragmentID: item.FragmentID(),
		Document: knowledge.DocumentRecord{
			Kind:        string(item.Kind),
			Headline:    item.Headline,
			URL:         item.Source.URL,
			Outlet:      item.Source.Outlet,
			Country:     item.Source.Country,
			MediaType:   item.Source.MediaType,
			Language:    work.Language,
			PublishedAt: item.Source.PublishedAt,
		},
		ReferenceDay: item.ReferenceDate(),
	}
	if item.IsFragment() && item.Fragment != nil {
		payload.Fragment = &knowledge.FragmentRecord{Sequence: item.Fragment.Sequence, Total: item.Fragment.Total}
	}

	pos := positions{facts: make(map[string]int), entities: make(map[string]int)}
	for _, entity := range work.Entities {
		if _, dup := pos.entities[entity.TempID]; dup {
			continue
		}
		record := knowledge.EntityRecord{
			Name:      entity.Name,
			Type:      entity.Type,
			Subtype:   entity.Subtype,
			Metadata:  entity.Metadata,
			Embedding: entity.Embedding,
		}
		if !entity.IsNew && entity.DurableID > 0 {
			record.ExistingID = entity.DurableID
		}
		pos.entities[entity.TempID] = len(payload.Entities)
		payload.Entities = append(payload.Entities, record)
	}

	mentions := make(map[[2]int]int)
	addMention := func(fact, entity int, role string) {
		key := [2]int{fact, entity}
		if idx, ok := mentions[key]; ok {
			if role != "" {
				payload.Mentions[idx].Role = role
			}
			return
		}
		mentions[key] = len(payload.Mentions)
		payload.Mentions = append(payload.Mentions, knowledge.MentionRecord{Fact: fact, Entity: entity, Role: role})
	}

	for _, fact := range work.Facts {
		if _, dup := pos.facts[fact.TempID]; dup {
			continue
		}
		pos.facts[fact.TempID] = len(payload.Facts)
		payload.Facts = append(payload.Facts, knowledge.FactRecord{
			Description:           fact.Description,
			Start:                 fact.OccurredAt.Start,
			End:                   fact.OccurredAt.End,
			RawTime:               fact.OccurredAt.Raw,
			Location:              fact.Location,
			Type:                  fact.Type,
			Importance:            fact.Importance,
			PreliminaryImportance: fact.PreliminaryImportance,
			Context:               fact.Context,
		})
	}
	for _, fact := range work.Facts {
		factIdx := pos.facts[fact.TempID]
		for _, ref := range fact.EntityRefs {
			entityIdx := pos.entity(ref)
			if entityIdx == nil {
				drop("fact %s: entity reference %s dropped", fact.TempID, ref)
				continue
			}
			addMention(factIdx, *entityIdx, "")
		}
	}

	for _, quote := range work.Quotes {
		record := knowledge.QuoteRecord{Text: quote.Text, Role: quote.Role, Date: quote.Date}
		if quote.SpeakerRef != "" {
			if record.Speaker = pos.entity(quote.SpeakerRef); record.Speaker == nil {
				drop("quote speaker reference %s dropped", quote.SpeakerRef)
			}
		}
		if quote.FactRef != "" {
			if record.Fact = pos.fact(quote.FactRef); record.Fact == nil {
				drop("quote fact reference %s dropped", quote.FactRef)
			}
		}
		payload.Quotes = append(payload.Quotes, record)
	}

	for _, datum := range work.Data {
		record := knowledge.DatumRecord{
			Value:   datum.Value,
			Numeric: datum.Numeric,
			Unit:    datum.Unit,
			Date:    datum.Date,
			Source:  datum.Source,
		}
		if datum.FactRef != "" {
			if record.Fact = pos.fact(datum.FactRef); record.Fact == nil {
				drop("datum fact reference %s dropped", datum.FactRef)
			}
		}
		payload.Data = append(payload.Data, record)
	}

	for _, rel := range work.Relationships {
		switch rel.Kind {
		case content.RelationFactEntity:
			fact, entity := pos.fact(rel.From), pos.entity(rel.To)
			if fact == nil || entity == nil {
				drop("%s edge %s -> %s dropped", rel.Kind, rel.From, rel.To)
				continue
			}
			addMention(*fact, *entity, rel.Type)
		case content.RelationFactFact, content.RelationContradiction:
			from, to := pos.fact(rel.From), pos.fact(rel.To)
			if from == nil || to == nil {
				drop("%s edge %s -> %s dropped", rel.Kind, rel.From, rel.To)
				continue
			}
			payload.Relationships = append(payload.Relationships, knowledge.RelationRecord{
				Kind: string(rel.Kind), FromFact: from, ToFact: to,
				Type: rel.Type, Strength: rel.Strength, Description: rel.Description,
			})
		case content.RelationEntityEntity:
			from, to := pos.entity(rel.From), pos.entity(rel.To)
			if from == nil || to == nil {
				drop("%s edge %s -> %s dropped", rel.Kind, rel.From, rel.To)
				continue
			}
			payload.Relationships = append(payload.Relationships, knowledge.RelationRecord{
				Kind: string(rel.Kind), FromEntity: from, ToEntity: to,
				Type: rel.Type, Strength: rel.Strength, Description: rel.Description,
			})
		default:
			drop("relationship of unknown kind %q dropped", rel.Kind)
		}
	}
	return payload, warnings
}
