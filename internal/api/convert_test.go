package api

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"newsgraph/internal/content"
	"newsgraph/internal/knowledge"
	"newsgraph/internal/queue"
)

func TestArticleRequestGeneratesID(t *testing.T) {
	item := ArticleRequest{Text: "body", Source: Source{URL: " https://example.com/a "}}.Item()
	if _, err := uuid.Parse(item.ID); err != nil {
		t.Fatalf("expected generated uuid, got %q", item.ID)
	}
	if item.Kind != content.KindArticle || item.Source.URL != "https://example.com/a" {
		t.Fatalf("unexpected item: %+v", item)
	}
	if err := item.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestFragmentRequestDefaultsIDToFragmentID(t *testing.T) {
	item := FragmentRequest{ParentID: "doc-9", FragmentID: "doc-9#2", Sequence: 2, Total: 5, Text: "body"}.Item()
	if item.ID != "doc-9#2" || item.Kind != content.KindFragment {
		t.Fatalf("unexpected item: %+v", item)
	}
	if item.DocumentID() != "doc-9" || item.FragmentID() != "doc-9#2" {
		t.Fatalf("unexpected document linkage: %s %s", item.DocumentID(), item.FragmentID())
	}
}

func TestFromQueueItemFormatsTimes(t *testing.T) {
	created := time.Date(2026, 10, 19, 8, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	finished := created.Add(90 * time.Second)
	got := FromQueueItem(&queue.Item{
		ID:             "a-1",
		Kind:           "article",
		Status:         queue.StatusCompleted,
		Warnings:       []string{"linking: relation_extraction_degraded: timeout"},
		CreatedAt:      created,
		FinishedAt:     &finished,
		Classification: "",
	})
	if got.CreatedAt != "2026-10-19T06:30:00.000Z" || got.FinishedAt != "2026-10-19T06:31:30.000Z" {
		t.Fatalf("unexpected timestamps: %+v", got)
	}
	if got.StartedAt != "" || got.UpdatedAt != "" {
		t.Fatalf("zero times must be omitted: %+v", got)
	}
	if got.Status != "completed" || len(got.Warnings) != 1 {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestFromFailureOmitsBody(t *testing.T) {
	got := FromFailure(knowledge.FailureRecord{ID: 4, ItemID: "a-1", ItemJSON: `{"id":"a-1"}`, Classification: "persistence_error"})
	if got.ID != 4 || got.ItemID != "a-1" || got.Classification != "persistence_error" {
		t.Fatalf("unexpected failure: %+v", got)
	}
}
