package testsupport

import (
	"context"
	"testing"

	"newsgraph/internal/config"
	"newsgraph/internal/knowledge"
	"newsgraph/internal/queue"
)

// MustOpenQueue opens a queue.Store for tests and registers cleanup.
func MustOpenQueue(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenKnowledge opens a knowledge.Store for tests and registers cleanup.
func MustOpenKnowledge(t testing.TB, cfg *config.Config) *knowledge.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store, err := knowledge.Open(context.Background(), cfg.KnowledgeDBPath())
	if err != nil {
		t.Fatalf("knowledge.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustInsert queues an item record for tests.
func MustInsert(t testing.TB, store *queue.Store, id string) *queue.Item {
	t.Helper()

	item := &queue.Item{ID: id, Kind: "article", DocumentID: id, ItemJSON: `{"id":"` + id + `"}`}
	if err := store.Insert(context.Background(), item); err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return item
}
