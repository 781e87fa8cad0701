package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"newsgraph/internal/queue"
	"newsgraph/internal/testsupport"
)

func TestInsertAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	item := &queue.Item{ID: "a-1", Kind: "article", DocumentID: "a-1", ItemJSON: `{"id":"a-1"}`, RequestID: "req-1"}
	if err := store.Insert(ctx, item); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	fetched, err := store.Get(ctx, "a-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched == nil || fetched.Status != queue.StatusQueued || fetched.RequestID != "req-1" {
		t.Fatalf("unexpected fetched item: %#v", fetched)
	}
	if fetched.StartedAt != nil || fetched.FinishedAt != nil {
		t.Fatalf("queued item should have no start/finish stamps: %#v", fetched)
	}

	missing, err := store.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown id, got %#v %v", missing, err)
	}
}

func TestInsertRejectsInFlightDuplicate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	testsupport.MustInsert(t, store, "dup")
	err := store.Insert(ctx, &queue.Item{ID: "dup", Kind: "article", DocumentID: "dup", ItemJSON: "{}"})
	if !errors.Is(err, queue.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	if err := store.Finish(ctx, "dup", queue.Outcome{Status: queue.StatusCompleted}); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if err := store.Insert(ctx, &queue.Item{ID: "dup", Kind: "article", DocumentID: "dup", ItemJSON: "{}"}); err != nil {
		t.Fatalf("finished item should be replaceable: %v", err)
	}
	fetched, _ := store.Get(ctx, "dup")
	if fetched.Status != queue.StatusQueued || fetched.FinishedAt != nil {
		t.Fatalf("expected fresh queued record, got %#v", fetched)
	}
}

func TestStatusTransitionsAndFinish(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()
	testsupport.MustInsert(t, store, "item")

	for _, status := range []queue.Status{queue.StatusProcessing, queue.StatusPhase1, queue.StatusPhase45} {
		if err := store.SetStatus(ctx, "item", status); err != nil {
			t.Fatalf("SetStatus(%s) failed: %v", status, err)
		}
	}
	mid, _ := store.Get(ctx, "item")
	if mid.Status != queue.StatusPhase45 || mid.StartedAt == nil {
		t.Fatalf("unexpected in-flight record: %#v", mid)
	}

	if err := store.Finish(ctx, "item", queue.Outcome{Status: queue.StatusPhase5}); err == nil {
		t.Fatal("expected Finish to reject non-terminal status")
	}
	outcome := queue.Outcome{
		Status:   queue.StatusCompleted,
		Warnings: []string{"relation_extraction_degraded: upstream 503"},
	}
	if err := store.Finish(ctx, "item", outcome); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	done, _ := store.Get(ctx, "item")
	if done.Status != queue.StatusCompleted || done.FinishedAt == nil {
		t.Fatalf("unexpected finished record: %#v", done)
	}
	if len(done.Warnings) != 1 || done.Warnings[0] != outcome.Warnings[0] {
		t.Fatalf("warnings not stored: %#v", done.Warnings)
	}

	if err := store.SetStatus(ctx, "missing", queue.StatusPhase1); err == nil {
		t.Fatal("expected error for unknown item")
	}
	if err := store.SetStatus(ctx, "item", queue.Status("bogus")); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	testsupport.MustInsert(t, store, "waiting")
	for _, id := range []string{"p2", "p45"} {
		testsupport.MustInsert(t, store, id)
	}
	if err := store.SetStatus(ctx, "p2", queue.StatusPhase2); err != nil {
		t.Fatal(err)
	}
	if err := store.SetStatus(ctx, "p45", queue.StatusPhase45); err != nil {
		t.Fatal(err)
	}

	count, err := store.ResetStuckProcessing(ctx, "shutdown_interrupted")
	if err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 items reset, got %d", count)
	}
	for _, id := range []string{"p2", "p45"} {
		item, _ := store.Get(ctx, id)
		if item.Status != queue.StatusFailed || item.Classification != "shutdown_interrupted" {
			t.Fatalf("%s: unexpected record %#v", id, item)
		}
	}
	waiting, _ := store.Get(ctx, "waiting")
	if waiting.Status != queue.StatusQueued {
		t.Fatalf("queued item should be untouched, got %s", waiting.Status)
	}
}

func TestListSupportsStatusFilterAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		testsupport.MustInsert(t, store, id)
	}
	if err := store.Finish(ctx, "b", queue.Outcome{Status: queue.StatusDiscarded}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetStatus(ctx, "c", queue.StatusPhase3); err != nil {
		t.Fatal(err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 items, got %d", len(all))
	}
	discarded, err := store.List(ctx, queue.StatusDiscarded)
	if err != nil {
		t.Fatalf("List filtered failed: %v", err)
	}
	if len(discarded) != 1 || discarded[0].ID != "b" {
		t.Fatalf("unexpected filtered list: %#v", discarded)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	want := queue.HealthSummary{Total: 3, Queued: 1, Processing: 1, Discarded: 1}
	if health != want {
		t.Fatalf("health = %#v, want %#v", health, want)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if gone, _ := store.Get(ctx, "a"); gone != nil {
		t.Fatalf("expected deleted item to be gone")
	}
}

func TestCheckHealthReportsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	testsupport.MustInsert(t, store, "x")

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %#v", health)
	}
	if len(health.MissingColumns) != 0 || health.TotalItems != 1 {
		t.Fatalf("unexpected schema health: %#v", health)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := queue.ParseStatus("phase-4.5"); !ok || status != queue.StatusPhase45 {
		t.Fatalf("ParseStatus(phase-4.5) = %q %v", status, ok)
	}
	if _, ok := queue.ParseStatus("ripping"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
	if !queue.StatusPhase5.IsProcessing() || queue.StatusQueued.IsProcessing() {
		t.Fatal("unexpected IsProcessing classification")
	}
}

func TestConcurrentInsertsAndTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	const producers = 24
	errs := make(chan error, producers*2)
	var wg sync.WaitGroup
	for i := range producers {
		wg.Add(2)
		id := fmt.Sprintf("c-%d", i)
		go func() {
			defer wg.Done()
			if err := store.Insert(ctx, &queue.Item{ID: id, Kind: "article", DocumentID: id, ItemJSON: "{}"}); err != nil {
				errs <- fmt.Errorf("insert %s: %w", id, err)
			}
		}()
		go func() {
			defer wg.Done()
			seed := fmt.Sprintf("s-%d", i)
			if err := store.Insert(ctx, &queue.Item{ID: seed, Kind: "article", DocumentID: seed, ItemJSON: "{}"}); err != nil {
				errs <- fmt.Errorf("insert %s: %w", seed, err)
				return
			}
			if err := store.SetStatus(ctx, seed, queue.StatusProcessing); err != nil {
				errs <- fmt.Errorf("set status %s: %w", seed, err)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent write failed: %v", err)
	}

	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != producers*2 {
		t.Fatalf("expected %d items, got %d", producers*2, len(items))
	}
}
