package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"newsgraph/internal/content"
	"newsgraph/internal/knowledge"
	"newsgraph/internal/services"
	"newsgraph/internal/testsupport"
)

var referenceDay = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func scoringWork() *content.Work {
	published := referenceDay
	work := content.NewWork(&content.Item{
		ID:     "a-1",
		Kind:   content.KindArticle,
		Text:   "t",
		Source: content.Source{PublishedAt: &published},
	})
	h1, h2 := work.Arena.NewFact(), work.Arena.NewFact()
	e1, e2 := work.Arena.NewEntity(), work.Arena.NewEntity()
	six := 6
	work.Facts = []content.Fact{
		{TempID: h1, Description: "El Banco Central subió los tipos", Type: "economy", Location: "Madrid",
			PreliminaryImportance: &six, EntityRefs: []string{e1, e2}},
		{TempID: h2, Description: "Local team won", Type: "sports"},
	}
	work.Entities = []content.Entity{
		{TempID: e1, Name: "Banco Central", Type: "organization"},
		{TempID: e2, Name: "Madrid", Type: "location"},
	}
	return work
}

func seedTrend(t *testing.T) *knowledge.Store {
	t.Helper()
	store := testsupport.MustOpenKnowledge(t, testsupport.NewConfig(t))
	ctx := context.Background()
	if err := store.UpsertTrend(ctx, knowledge.Trend{
		Day:       referenceDay,
		TopicHeat: map[string]float64{"economy": 3},
		Entities:  map[string]int{"Banco Central": 5},
	}); err != nil {
		t.Fatalf("UpsertTrend: %v", err)
	}
	started := referenceDay.AddDate(0, 0, -7)
	if _, err := store.UpsertThread(ctx, knowledge.Thread{Title: "Interest rates", Keywords: []string{"Tipos"}, Active: true}, &started); err != nil {
		t.Fatalf("UpsertThread: %v", err)
	}
	return store
}

func TestHeuristicScoringUsesDailyTrend(t *testing.T) {
	store := seedTrend(t)
	work := scoringWork()

	trend, err := store.TrendForDate(context.Background(), referenceDay)
	if err != nil {
		t.Fatalf("TrendForDate: %v", err)
	}
	features := BuildFeatures(work, work.Facts[0], trend)
	if features.EntityCount != 2 || features.LocationCount != 2 || features.TopicHeat != 3 ||
		features.TrendingEntityHits != 1 || features.ThreadMatches != 1 {
		t.Fatalf("unexpected features: %+v", features)
	}

	if err := New(store, nil, 5, nil).Execute(context.Background(), work); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if work.Facts[0].Importance != 9 {
		t.Fatalf("expected importance 9, got %d", work.Facts[0].Importance)
	}
	if work.Facts[1].Importance != 4 {
		t.Fatalf("expected importance 4, got %d", work.Facts[1].Importance)
	}
	if len(work.Annotations) != 0 {
		t.Fatalf("unexpected annotations: %+v", work.Annotations)
	}
}

func TestHTTPModelScoresAndClamps(t *testing.T) {
	var seen []Features
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var f Features
		if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		seen = append(seen, f)
		_, _ = w.Write([]byte(`{"score": 12.4, "version": "gbm-2026-09"}`))
	}))
	defer server.Close()

	model := NewHTTPModel(server.URL, "secret", time.Second)
	work := scoringWork()
	if err := New(seedTrend(t), model, 5, nil).Execute(context.Background(), work); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(seen) != 2 || seen[0].FactType != "economy" {
		t.Fatalf("unexpected requests: %+v", seen)
	}
	if work.Facts[0].Importance != 10 || work.Facts[1].Importance != 10 {
		t.Fatalf("expected clamped scores, got %+v", work.Facts)
	}
	if model.Version() != "gbm-2026-09" {
		t.Fatalf("unexpected version %q", model.Version())
	}
}

func TestModelFailureFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	work := scoringWork()
	err := New(seedTrend(t), NewHTTPModel(server.URL, "", time.Second), 5, nil).Execute(context.Background(), work)
	if err != nil {
		t.Fatalf("scoring failure must be soft, got %v", err)
	}
	if work.Facts[0].Importance != 6 || work.Facts[1].Importance != 5 {
		t.Fatalf("expected preliminary then default, got %+v", work.Facts)
	}
	if !work.HasAnnotation(services.ClassScoringUnavailable) {
		t.Fatalf("expected scoring_unavailable annotation, got %+v", work.Annotations)
	}
}

type failingTrends struct{}

func (failingTrends) TrendForDate(context.Context, time.Time) (knowledge.Trend, error) {
	return knowledge.Trend{}, errors.New("disk I/O error")
}

func TestTrendFailureFallsBack(t *testing.T) {
	work := scoringWork()
	if err := New(failingTrends{}, nil, 3, nil).Execute(context.Background(), work); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if work.Facts[0].Importance != 6 || work.Facts[1].Importance != 3 {
		t.Fatalf("unexpected fallback scores: %+v", work.Facts)
	}
	if !work.HasAnnotation(services.ClassScoringUnavailable) {
		t.Fatal("expected scoring_unavailable annotation")
	}
}

func TestMissingTrendSourceFallsBack(t *testing.T) {
	work := scoringWork()
	if err := New(nil, nil, 4, nil).Execute(context.Background(), work); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if work.Facts[0].Importance != 6 || work.Facts[1].Importance != 4 {
		t.Fatalf("unexpected fallback scores: %+v", work.Facts)
	}
	if !work.HasAnnotation(services.ClassScoringUnavailable) {
		t.Fatal("expected scoring_unavailable annotation")
	}
}

func TestClamp(t *testing.T) {
	cases := map[float64]int{-3: 1, 0.4: 1, 1.5: 2, 7.49: 7, 9.6: 10, 42: 10}
	for in, want := range cases {
		if got := Clamp(in); got != want {
			t.Fatalf("Clamp(%v) = %d, want %d", in, got, want)
		}
	}
}
