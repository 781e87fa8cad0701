package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"newsgraph/internal/content"
	"newsgraph/internal/prompts"
	"newsgraph/internal/queue"
	"newsgraph/internal/services"
	"newsgraph/internal/testsupport"
	"newsgraph/internal/workflow"
)

func TestEnqueueRejectsWhenQueueIsFull(t *testing.T) {
	h := newHarness(t, harnessOptions{config: []testsupport.ConfigOption{
		testsupport.WithWorkers(1),
		testsupport.WithQueueCapacity(1),
	}})
	g := newGate()
	h.invoker.On(prompts.PhaseTriage, g.responder(relevantReply))
	h.start(t)
	ctx := context.Background()

	if err := h.manager.Enqueue(ctx, article("a-1", "first")); err != nil {
		t.Fatalf("Enqueue a-1: %v", err)
	}
	g.waitEntered(t)
	if err := h.manager.Enqueue(ctx, article("a-2", "second")); err != nil {
		t.Fatalf("Enqueue a-2: %v", err)
	}

	err := h.manager.Enqueue(ctx, article("a-3", "third"))
	if !errors.Is(err, services.ErrBackpressure) {
		t.Fatalf("expected backpressure, got %v", err)
	}
	if services.Classify(err) != services.ClassBackpressure {
		t.Fatalf("unexpected classification %q", services.Classify(err))
	}
	if record := h.status(t, "a-3"); record != nil {
		t.Fatalf("rejected item must not be recorded, got %+v", record)
	}

	health := h.manager.Health()
	if health.QueueDepth != 1 || health.WorkersBusy != 1 || health.Utilization != 1 {
		t.Fatalf("unexpected health under load: %+v", health)
	}

	close(g.release)
	for _, id := range []string{"a-1", "a-2"} {
		if result := h.await(t, id); result.Status != content.StatusSuccess {
			t.Fatalf("%s: expected success, got %+v", id, result)
		}
	}
	if err := h.manager.Enqueue(ctx, article("a-3", "third")); err != nil {
		t.Fatalf("retry after backpressure: %v", err)
	}
	h.await(t, "a-3")
}

func TestEnqueueRejectsDuplicateInFlight(t *testing.T) {
	h := newHarness(t, harnessOptions{config: []testsupport.ConfigOption{testsupport.WithWorkers(1)}})
	g := newGate()
	h.invoker.On(prompts.PhaseTriage, g.responder(relevantReply))
	h.start(t)

	if err := h.manager.Enqueue(context.Background(), article("a-1", "first")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	g.waitEntered(t)
	if err := h.manager.Enqueue(context.Background(), article("a-1", "again")); !errors.Is(err, queue.ErrDuplicate) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	close(g.release)
	h.await(t, "a-1")
}

func TestEnqueueValidatesItems(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.start(t)

	cases := map[string]*content.Item{
		"missing id":   {Kind: content.KindArticle, Text: "body"},
		"empty text":   {ID: "x-1", Kind: content.KindArticle},
		"bad kind":     {ID: "x-2", Kind: "podcast", Text: "body"},
		"orphan piece": {ID: "x-3", Kind: content.KindFragment, Text: "body"},
		"relative url": {ID: "x-4", Kind: content.KindArticle, Text: "body", Source: content.Source{URL: "/news/1"}},
	}
	for name, item := range cases {
		t.Run(name, func(t *testing.T) {
			err := h.manager.Enqueue(context.Background(), item)
			if services.Classify(err) != services.ClassValidation {
				t.Fatalf("expected validation_error, got %v", err)
			}
		})
	}
	items, err := h.manager.List(context.Background())
	if err != nil || len(items) != 0 {
		t.Fatalf("rejected items must not be recorded: %v %d", err, len(items))
	}
}

func TestShutdownInterruptsInFlightAndKeepsQueued(t *testing.T) {
	h := newHarness(t, harnessOptions{
		config:  []testsupport.ConfigOption{testsupport.WithWorkers(1), testsupport.WithQueueCapacity(4)},
		manager: []workflow.ManagerOption{workflow.WithDrainTimeout(100 * time.Millisecond)},
	})
	g := newGate()
	h.invoker.On(prompts.PhaseTriage, g.responder(relevantReply))
	h.start(t)
	ctx := context.Background()

	if err := h.manager.Enqueue(ctx, article("a-1", "first")); err != nil {
		t.Fatalf("Enqueue a-1: %v", err)
	}
	g.waitEntered(t)
	if err := h.manager.Enqueue(ctx, article("a-2", "second")); err != nil {
		t.Fatalf("Enqueue a-2: %v", err)
	}

	summary := h.manager.Shutdown(ctx)
	if !summary.TimedOut || summary.Interrupted != 1 || summary.Abandoned != 1 || summary.Completed != 0 {
		t.Fatalf("unexpected drain summary: %+v", summary)
	}

	interrupted := h.await(t, "a-1")
	if interrupted.Classification != services.ClassShutdownInterrupted {
		t.Fatalf("expected shutdown_interrupted, got %+v", interrupted)
	}
	if record := h.status(t, "a-1"); record.Status != queue.StatusFailed || record.Classification != "shutdown_interrupted" {
		t.Fatalf("unexpected a-1 record: %+v", record)
	}
	if record := h.status(t, "a-2"); record.Status != queue.StatusQueued {
		t.Fatalf("unstarted item should stay queued: %+v", record)
	}

	err := h.manager.Enqueue(ctx, article("a-3", "late"))
	if !errors.Is(err, services.ErrShuttingDown) {
		t.Fatalf("expected shutting down rejection, got %v", err)
	}
	if health := h.manager.Health(); health.Accepting || health.Running || health.Interrupted != 1 {
		t.Fatalf("unexpected health after shutdown: %+v", health)
	}

	// A fresh controller over the same stores picks the queued item up.
	restarted := newHarness(t, harnessOptions{cfg: h.cfg})
	restarted.start(t)
	if result := restarted.await(t, "a-2"); result.Status != content.StatusSuccess {
		t.Fatalf("replayed item: expected success, got %+v", result)
	}
}

func TestShutdownDrainsCompletedWork(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.start(t)
	ctx := context.Background()

	for i := range 3 {
		if err := h.manager.Enqueue(ctx, article(fmt.Sprintf("a-%d", i), "headline")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	summary := h.manager.Shutdown(ctx)
	if summary.TimedOut || summary.Interrupted != 0 || summary.Abandoned != 0 {
		t.Fatalf("unexpected drain summary: %+v", summary)
	}
	if got := h.manager.Health().Totals["success"]; got != 3 {
		t.Fatalf("expected 3 completed items, got %d", got)
	}
}

func TestStartFailsItemsLeftProcessing(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	testsupport.MustInsert(t, h.queue, "stuck-1")
	if err := h.queue.SetStatus(ctx, "stuck-1", queue.StatusPhase3); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	h.start(t)
	record := h.status(t, "stuck-1")
	if record.Status != queue.StatusFailed || record.Classification != "shutdown_interrupted" {
		t.Fatalf("expected stuck item to be failed, got %+v", record)
	}
}

func TestReplaySkipsUndecodableRecords(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	if err := h.queue.Insert(context.Background(), &queue.Item{ID: "broken", Kind: "article", DocumentID: "broken", ItemJSON: "{"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	h.start(t)
	record := h.status(t, "broken")
	if record.Status != queue.StatusFailed || record.Classification != "validation_error" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestReplayDeliversMoreItemsThanQueueCapacity(t *testing.T) {
	h := newHarness(t, harnessOptions{config: []testsupport.ConfigOption{
		testsupport.WithWorkers(1),
		testsupport.WithQueueCapacity(2),
	}})
	const total = 7
	for i := range total {
		item := article(fmt.Sprintf("r-%d", i), "headline")
		encoded, err := json.Marshal(item)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		record := &queue.Item{ID: item.ID, Kind: string(item.Kind), DocumentID: item.DocumentID(), ItemJSON: string(encoded)}
		if err := h.queue.Insert(context.Background(), record); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	h.start(t)

	seen := make(map[string]bool)
	deadline := time.After(15 * time.Second)
	for len(seen) < total {
		select {
		case result := <-h.results:
			if result.Status != content.StatusSuccess {
				t.Fatalf("unexpected result: %+v", result)
			}
			seen[result.ItemID] = true
		case <-deadline:
			t.Fatalf("only %d of %d replayed items finished", len(seen), total)
		}
	}
	if items, _ := h.manager.List(context.Background(), queue.StatusQueued); len(items) != 0 {
		t.Fatalf("expected no items left queued, got %d", len(items))
	}
}

func TestStartRequiresStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	manager := workflow.NewManager(cfg, testsupport.MustOpenQueue(t, cfg), nil)
	if err := manager.Start(context.Background()); err == nil {
		t.Fatal("expected error without stages")
	}
}

func TestConcurrentEnqueue(t *testing.T) {
	h := newHarness(t, harnessOptions{config: []testsupport.ConfigOption{
		testsupport.WithWorkers(4),
		testsupport.WithQueueCapacity(32),
	}})
	h.start(t)

	const total = 12
	var wg sync.WaitGroup
	errs := make(chan error, total)
	for i := range total {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- h.manager.Enqueue(context.Background(), article(fmt.Sprintf("c-%d", i), "headline"))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	seen := make(map[string]bool)
	deadline := time.After(15 * time.Second)
	for len(seen) < total {
		select {
		case result := <-h.results:
			if result.Status != content.StatusSuccess {
				t.Fatalf("unexpected result: %+v", result)
			}
			seen[result.ItemID] = true
		case <-deadline:
			t.Fatalf("only %d of %d items finished", len(seen), total)
		}
	}
	if items, _ := h.manager.List(context.Background(), queue.StatusCompleted); len(items) != total {
		t.Fatalf("expected %d completed records, got %d", total, len(items))
	}
}
