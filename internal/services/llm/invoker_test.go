package llm

import (
	"context"
	"errors"
	"testing"

	"newsgraph/internal/prompts"
	"newsgraph/internal/services"
)

type stubResolver map[string]prompts.Prompt

func (s stubResolver) Resolve(phase string) (prompts.Prompt, error) {
	p, ok := s[phase]
	if !ok {
		return prompts.Prompt{}, services.Wrap(services.ErrPromptMissing, "prompts", phase, "no prompt defined", nil)
	}
	return p, nil
}

type recordingCompleter struct {
	req     Request
	content string
	err     error
}

func (r *recordingCompleter) Complete(_ context.Context, req Request) (string, error) {
	r.req = req
	return r.content, r.err
}

func TestPromptClientRendersAndCompletes(t *testing.T) {
	completer := &recordingCompleter{content: `{"ok":true}`}
	client := NewPromptClient(stubResolver{
		"triage": {Name: "triage", System: "be brief", User: "Headline: {{.Headline}}"},
	}, completer, nil)

	out, err := client.Invoke(context.Background(), "triage", map[string]any{"Headline": "Rates rise"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("unexpected output %q", out)
	}
	if completer.req.User != "Headline: Rates rise" || completer.req.System != "be brief" {
		t.Fatalf("unexpected rendered prompt %q / %q", completer.req.System, completer.req.User)
	}
	if completer.req.Phase != "triage" {
		t.Fatalf("request phase = %q, want triage", completer.req.Phase)
	}
}

func TestPromptClientMissingPromptFailsInvocationOnly(t *testing.T) {
	client := NewPromptClient(stubResolver{}, &recordingCompleter{}, nil)
	_, err := client.Invoke(context.Background(), "relations", nil)
	if services.Classify(err) != services.ClassPromptUnavailable {
		t.Fatalf("expected prompt_unavailable, got %v", err)
	}
}

func TestPromptClientRenderFailure(t *testing.T) {
	client := NewPromptClient(stubResolver{
		"quotes": {Name: "quotes", User: "{{.Facts}}"},
	}, &recordingCompleter{}, nil)
	_, err := client.Invoke(context.Background(), "quotes", map[string]any{})
	if !errors.Is(err, services.ErrPromptMissing) {
		t.Fatalf("expected ErrPromptMissing, got %v", err)
	}
}

func TestPromptClientClassifiesCompletionFailures(t *testing.T) {
	client := NewPromptClient(stubResolver{
		"triage": {Name: "triage", User: "x"},
	}, &recordingCompleter{err: errors.New("llm complete: failed after 4 attempts")}, nil)
	_, err := client.Invoke(context.Background(), "triage", nil)
	if services.Classify(err) != services.ClassTransient {
		t.Fatalf("expected transient classification, got %v", err)
	}
}
