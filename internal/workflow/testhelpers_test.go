package workflow_test

import (
	"context"
	"testing"
	"time"

	"newsgraph/internal/assembly"
	"newsgraph/internal/config"
	"newsgraph/internal/content"
	"newsgraph/internal/extraction"
	"newsgraph/internal/knowledge"
	"newsgraph/internal/linking"
	"newsgraph/internal/prompts"
	"newsgraph/internal/queue"
	"newsgraph/internal/quotes"
	"newsgraph/internal/resolver"
	"newsgraph/internal/scoring"
	"newsgraph/internal/similarity"
	"newsgraph/internal/testsupport"
	"newsgraph/internal/triage"
	"newsgraph/internal/workflow"
)

const (
	relevantReply   = `{"relevant": true, "relevance": "high", "language": "en", "reason": "monetary policy"}`
	irrelevantReply = `{"relevant": false, "relevance": "low", "language": "en", "reason": "advertising"}`
	extractionReply = `{"facts": [{"id": "h1", "description": "rate hike to 5%", "date": "2026-10", "type": "economy", "importance": 7, "entities": ["e1"]}],
"entities": [{"id": "e1", "name": "Central Bank", "type": "organization"}]}`
	quotesReply    = `{"quotes": [], "data": [{"value": "5", "unit": "%", "fact": "h1"}]}`
	relationsReply = `{"fact_entity": [{"fact": "h1", "entity": "e1", "role": "actor"}], "fact_fact": [], "entity_entity": [], "contradictions": []}`
)

type harness struct {
	cfg       *config.Config
	queue     *queue.Store
	knowledge *knowledge.Store
	invoker   *testsupport.FakeInvoker
	resolver  *resolver.Resolver
	manager   *workflow.Manager
	results   chan content.Result
}

type harnessOptions struct {
	config  []testsupport.ConfigOption
	model   scoring.Model
	manager []workflow.ManagerOption
	cfg     *config.Config
}

// newHarness wires the real phases against fake LLM replies for the happy
// path of scenario 1. Tests override individual phases on h.invoker.
func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	cfg := opts.cfg
	if cfg == nil {
		cfg = testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithWorkingLanguage("en")}, opts.config...)...)
	}
	h := &harness{
		cfg:       cfg,
		queue:     testsupport.MustOpenQueue(t, cfg),
		knowledge: testsupport.MustOpenKnowledge(t, cfg),
		invoker: testsupport.NewFakeInvoker().
			Reply(prompts.PhaseTriage, relevantReply).
			Reply(prompts.PhaseExtraction, extractionReply).
			Reply(prompts.PhaseQuotes, quotesReply).
			Reply(prompts.PhaseRelations, relationsReply),
		results: make(chan content.Result, 64),
	}
	h.resolver = resolver.New(h.knowledge, resolver.Options{
		Threshold: cfg.Resolver.SimilarityThreshold,
		Weights:   similarity.Weights{Text: cfg.Resolver.TextWeight, Vector: cfg.Resolver.VectorWeight},
	}, nil)

	managerOpts := append([]workflow.ManagerOption{
		workflow.WithResultListener(func(_ context.Context, result content.Result) {
			h.results <- result
		}),
	}, opts.manager...)
	h.manager = workflow.NewManager(cfg, h.queue, nil, managerOpts...)
	h.manager.ConfigureStages(workflow.StageSet{
		Triage:     triage.New(h.invoker, triage.Config{WorkingLanguage: cfg.Pipeline.WorkingLanguage, MinTextLength: cfg.Pipeline.MinTextLength}, nil),
		Extraction: extraction.New(h.invoker, nil),
		Quotes:     quotes.New(h.invoker, nil),
		Linking:    linking.New(h.invoker, h.resolver, nil, linking.Config{RelationEscalation: cfg.Pipeline.RelationFailureEscalation}, nil),
		Scoring:    scoring.New(h.knowledge, opts.model, cfg.Scoring.DefaultScore, nil),
		Assembly:   assembly.New(h.knowledge, h.resolver, nil),
	})
	t.Cleanup(func() {
		h.manager.Shutdown(context.Background())
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func (h *harness) await(t *testing.T, id string) content.Result {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case result := <-h.results:
			if result.ItemID == id {
				return result
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", id)
		}
	}
}

func (h *harness) status(t *testing.T, id string) *queue.Item {
	t.Helper()
	item, err := h.manager.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("Status(%s): %v", id, err)
	}
	return item
}

func article(id, headline string) *content.Item {
	return &content.Item{
		ID:       id,
		Kind:     content.KindArticle,
		Headline: headline,
		Text:     headline + ". The central bank raised its policy rate to 5% on Tuesday.",
		Source:   content.Source{Outlet: "Wire", Country: "US"},
	}
}

func fragment(id, parent, fragmentID string, sequence, total int) *content.Item {
	return &content.Item{
		ID:   id,
		Kind: content.KindFragment,
		Text: "Section two. The central bank raised its policy rate to 5%.",
		Source: content.Source{
			Outlet:   "Gazette",
			Language: "en",
		},
		Fragment: &content.Fragment{ParentID: parent, FragmentID: fragmentID, Sequence: sequence, Total: total},
	}
}

// gate blocks a phase until released or the call's context ends.
type gate struct {
	entered chan string
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan string, 16), release: make(chan struct{})}
}

func (g *gate) responder(reply string) testsupport.Responder {
	return func(ctx context.Context, vars map[string]any) (string, error) {
		g.entered <- "entered"
		select {
		case <-g.release:
			return reply, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (g *gate) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("phase was never entered")
	}
}
