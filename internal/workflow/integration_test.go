package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"newsgraph/internal/content"
	"newsgraph/internal/prompts"
	"newsgraph/internal/queue"
	"newsgraph/internal/scoring"
	"newsgraph/internal/services"
)

func TestArticleEndToEnd(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.start(t)
	ctx := context.Background()

	if err := h.manager.Enqueue(ctx, article("a-1", "Central bank raises rate to 5%")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	result := h.await(t, "a-1")
	if result.Status != content.StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}

	if len(result.Facts) != 1 || result.Facts[0].TempID != "h1" || result.Facts[0].Description != "rate hike to 5%" {
		t.Fatalf("unexpected facts: %+v", result.Facts)
	}
	if len(result.Entities) != 1 || result.Entities[0].TempID != "e1" || result.Entities[0].Name != "Central Bank" ||
		result.Entities[0].Type != "organization" {
		t.Fatalf("unexpected entities: %+v", result.Entities)
	}
	if len(result.Data) != 1 || result.Data[0].FactRef != "h1" || result.Data[0].Unit != "%" ||
		result.Data[0].Numeric == nil || *result.Data[0].Numeric != 5 {
		t.Fatalf("unexpected data: %+v", result.Data)
	}
	if !result.Entities[0].Resolved || !result.Entities[0].IsNew {
		t.Fatalf("first sighting should create the entity: %+v", result.Entities[0])
	}

	receipt := result.Receipt
	if receipt == nil || receipt.FactIDs["h1"] == 0 || receipt.EntityIDs["e1"] == 0 || receipt.Data != 1 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	facts, err := h.knowledge.DocumentFacts(ctx, "a-1")
	if err != nil || len(facts) != 1 || facts[0].ID != receipt.FactIDs["h1"] {
		t.Fatalf("DocumentFacts: %v %+v", err, facts)
	}
	if facts[0].Importance < 1 || facts[0].Importance > 10 {
		t.Fatalf("importance out of range: %d", facts[0].Importance)
	}
	entities, err := h.knowledge.DocumentEntities(ctx, "a-1")
	if err != nil || len(entities) != 1 || entities[0] != receipt.EntityIDs["e1"] {
		t.Fatalf("DocumentEntities: %v %v", err, entities)
	}

	record := h.status(t, "a-1")
	if record.Status != queue.StatusCompleted || record.StartedAt == nil || record.FinishedAt == nil {
		t.Fatalf("unexpected status record: %+v", record)
	}

	// The same organization in a later article links to the stored row.
	if err := h.manager.Enqueue(ctx, article("a-2", "Central bank holds rate")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	second := h.await(t, "a-2")
	if second.Status != content.StatusSuccess {
		t.Fatalf("expected success, got %+v", second)
	}
	if second.Entities[0].IsNew || second.Receipt.EntityIDs["e1"] != receipt.EntityIDs["e1"] {
		t.Fatalf("expected link to entity %d, got %+v", receipt.EntityIDs["e1"], second.Entities[0])
	}
	if count, _ := h.knowledge.EntityCount(ctx, "organization"); count != 1 {
		t.Fatalf("expected one organization, got %d", count)
	}
}

func TestFragmentLinksToDocumentAndFragment(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.start(t)
	ctx := context.Background()

	if err := h.manager.Enqueue(ctx, fragment("frag-2", "doc-9", "doc-9#2", 2, 5)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	result := h.await(t, "frag-2")
	if result.Status != content.StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if h.invoker.CallCount(prompts.PhaseTriage) != 0 {
		t.Fatal("fragments must not go through relevance triage")
	}
	if result.Receipt.DocumentID != "doc-9" || result.Receipt.FragmentID != "doc-9#2" {
		t.Fatalf("unexpected receipt: %+v", result.Receipt)
	}

	facts, err := h.knowledge.DocumentFacts(ctx, "doc-9")
	if err != nil || len(facts) != 1 {
		t.Fatalf("DocumentFacts: %v %+v", err, facts)
	}
	if facts[0].DocumentID != "doc-9" || facts[0].FragmentID != "doc-9#2" || facts[0].ItemID != "frag-2" {
		t.Fatalf("fact not linked to document and fragment: %+v", facts[0])
	}
	entities, err := h.knowledge.DocumentEntities(ctx, "doc-9")
	if err != nil || len(entities) != 1 {
		t.Fatalf("DocumentEntities: %v %v", err, entities)
	}
	record := h.status(t, "frag-2")
	if record.DocumentID != "doc-9" || record.Kind != "fragment" {
		t.Fatalf("unexpected status record: %+v", record)
	}
}

func TestIrrelevantArticleIsDiscarded(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.invoker.Reply(prompts.PhaseTriage, irrelevantReply)
	h.start(t)

	if err := h.manager.Enqueue(context.Background(), article("ad-1", "Buy two, get one free")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	result := h.await(t, "ad-1")
	if result.Status != content.StatusDiscarded {
		t.Fatalf("expected discarded, got %+v", result)
	}
	for _, phase := range []string{prompts.PhaseExtraction, prompts.PhaseQuotes, prompts.PhaseRelations} {
		if h.invoker.CallCount(phase) != 0 {
			t.Fatalf("phase %s ran for a discarded item", phase)
		}
	}
	record := h.status(t, "ad-1")
	if record.Status != queue.StatusDiscarded || record.ErrorMessage != "advertising" {
		t.Fatalf("unexpected status record: %+v", record)
	}
	if exists, _ := h.knowledge.DocumentExists(context.Background(), "ad-1"); exists {
		t.Fatal("discarded items must not be persisted")
	}
}

func TestRelationOutageIsSoft(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.invoker.Fail(prompts.PhaseRelations, services.Wrap(services.ErrTransient, "llm", "complete", "503 after retries", nil))
	h.start(t)

	if err := h.manager.Enqueue(context.Background(), article("a-1", "Central bank raises rate to 5%")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	result := h.await(t, "a-1")
	if result.Status != content.StatusSuccess || result.Receipt == nil {
		t.Fatalf("relation outage must not fail the item: %+v", result)
	}
	record := h.status(t, "a-1")
	if record.Status != queue.StatusCompleted || record.Classification != "" {
		t.Fatalf("unexpected status record: %+v", record)
	}
	if !hasWarning(record.Warnings, string(services.ClassRelationDegraded)) {
		t.Fatalf("expected relation warning, got %v", record.Warnings)
	}
	if facts, _ := h.knowledge.DocumentFacts(context.Background(), "a-1"); len(facts) != 1 {
		t.Fatalf("facts must still be persisted, got %+v", facts)
	}
	if got := h.manager.Health().PhaseErrors["linking"]; got.Soft != 1 || got.Hard != 0 {
		t.Fatalf("unexpected linking counters: %+v", got)
	}
}

type downModel struct{}

func (downModel) Score(context.Context, scoring.Features) (float64, error) {
	return 0, errors.New("connection refused")
}

func (downModel) Version() string { return "down" }

func TestScoringOutageIsSoft(t *testing.T) {
	h := newHarness(t, harnessOptions{model: downModel{}})
	h.start(t)

	if err := h.manager.Enqueue(context.Background(), article("a-1", "Central bank raises rate to 5%")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	result := h.await(t, "a-1")
	if result.Status != content.StatusSuccess {
		t.Fatalf("scoring outage must not fail the item: %+v", result)
	}
	facts, _ := h.knowledge.DocumentFacts(context.Background(), "a-1")
	if len(facts) != 1 || facts[0].Importance != 7 {
		t.Fatalf("expected preliminary importance 7 to be kept, got %+v", facts)
	}
	if !hasWarning(h.status(t, "a-1").Warnings, string(services.ClassScoringUnavailable)) {
		t.Fatal("expected scoring_unavailable warning")
	}
}

func TestHardFailureStopsItem(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.invoker.Reply(prompts.PhaseExtraction, "I could not find any facts, sorry.")
	h.start(t)

	if err := h.manager.Enqueue(context.Background(), article("a-1", "Central bank raises rate to 5%")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	result := h.await(t, "a-1")
	if result.Status != content.StatusFailed || result.Classification != services.ClassExtractionParse {
		t.Fatalf("expected extraction_parse_error, got %+v", result)
	}
	if h.invoker.CallCount(prompts.PhaseQuotes) != 0 {
		t.Fatal("later phases must not run after a hard failure")
	}
	record := h.status(t, "a-1")
	if record.Status != queue.StatusFailed || record.Classification != "extraction_parse_error" {
		t.Fatalf("unexpected status record: %+v", record)
	}
	if got := h.manager.Health().PhaseErrors["extraction"]; got.Hard != 1 {
		t.Fatalf("unexpected extraction counters: %+v", got)
	}
}

func hasWarning(warnings []string, fragment string) bool {
	for _, w := range warnings {
		if strings.Contains(w, fragment) {
			return true
		}
	}
	return false
}
