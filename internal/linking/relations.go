package linking

import (
	"fmt"
	"strings"

	"newsgraph/internal/content"
	"newsgraph/internal/services"
	"newsgraph/internal/services/llm"
	"newsgraph/internal/tempid"
)

type rawEdge struct {
	Fact        llm.FlexString `json:"fact"`
	Entity      llm.FlexString `json:"entity"`
	Role        string         `json:"role"`
	From        llm.FlexString `json:"from"`
	To          llm.FlexString `json:"to"`
	Type        string         `json:"type"`
	Strength    llm.FlexFloat  `json:"strength"`
	Description string         `json:"description"`
}

type relationsResponse struct {
	FactEntity     *[]rawEdge `json:"fact_entity"`
	FactFact       *[]rawEdge `json:"fact_fact"`
	EntityEntity   *[]rawEdge `json:"entity_entity"`
	Contradictions *[]rawEdge `json:"contradictions"`
}

func (r relationsResponse) empty() bool {
	return r.FactEntity == nil && r.FactFact == nil && r.EntityEntity == nil && r.Contradictions == nil
}

// applyRelations converts decoded edges into relationships, dropping any
// edge whose endpoints are not ids of the expected kind in the arena.
func applyRelations(work *content.Work, resp relationsResponse) {
	add := func(kind content.RelationKind, from, to string, fromKind, toKind tempid.Kind, edge rawEdge, label string) {
		if !refIs(work, from, fromKind) || !refIs(work, to, toKind) {
			work.Annotate(services.ClassNone, stageName,
				fmt.Sprintf("%s edge %q -> %q dropped: dangling reference", kind, from, to))
			return
		}
		if from == to {
			return
		}
		work.Relationships = append(work.Relationships, content.Relationship{
			Kind:        kind,
			From:        from,
			To:          to,
			Type:        strings.TrimSpace(label),
			Strength:    clampStrength(edge.Strength),
			Description: strings.TrimSpace(edge.Description),
		})
	}
	if resp.FactEntity != nil {
		for _, edge := range *resp.FactEntity {
			add(content.RelationFactEntity, edge.Fact.String(), edge.Entity.String(), tempid.KindFact, tempid.KindEntity, edge, edge.Role)
		}
	}
	if resp.FactFact != nil {
		for _, edge := range *resp.FactFact {
			add(content.RelationFactFact, edge.From.String(), edge.To.String(), tempid.KindFact, tempid.KindFact, edge, edge.Type)
		}
	}
	if resp.EntityEntity != nil {
		for _, edge := range *resp.EntityEntity {
			add(content.RelationEntityEntity, edge.From.String(), edge.To.String(), tempid.KindEntity, tempid.KindEntity, edge, edge.Type)
		}
	}
	if resp.Contradictions != nil {
		for _, edge := range *resp.Contradictions {
			add(content.RelationContradiction, edge.From.String(), edge.To.String(), tempid.KindFact, tempid.KindFact, edge, "contradicts")
		}
	}
}

func refIs(work *content.Work, id string, want tempid.Kind) bool {
	if id == "" {
		return false
	}
	kind, ok := work.Arena.KindOf(id)
	if !ok || kind != want {
		return false
	}
	if want == tempid.KindFact {
		_, ok = work.Fact(id)
	} else {
		_, ok = work.Entity(id)
	}
	return ok
}

func clampStrength(value llm.FlexFloat) float64 {
	if !value.Set {
		return 0.5
	}
	switch {
	case value.Value < 0:
		return 0
	case value.Value > 1:
		return 1
	}
	return value.Value
}

func listQuotes(quotes []content.Quote) string {
	var b strings.Builder
	for _, quote := range quotes {
		fmt.Fprintf(&b, "%q", quote.Text)
		if quote.SpeakerRef != "" {
			fmt.Fprintf(&b, " (speaker %s)", quote.SpeakerRef)
		}
		if quote.FactRef != "" {
			fmt.Fprintf(&b, " [fact %s]", quote.FactRef)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
