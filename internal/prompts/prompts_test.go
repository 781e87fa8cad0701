package prompts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"newsgraph/internal/services"
)

func TestBuiltinPromptsCoverEveryPhase(t *testing.T) {
	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for _, phase := range []string{PhaseTriage, PhaseLanguage, PhaseTranslation, PhaseExtraction, PhaseQuotes, PhaseRelations} {
		prompt, err := store.Resolve(phase)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", phase, err)
		}
		if prompt.Source != "builtin" {
			t.Fatalf("expected builtin source for %s, got %q", phase, prompt.Source)
		}
	}
}

func TestResolveMissingPhase(t *testing.T) {
	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_, err = store.Resolve("summaries")
	if !errors.Is(err, services.ErrPromptMissing) {
		t.Fatalf("expected ErrPromptMissing, got %v", err)
	}
	if services.Classify(err) != services.ClassPromptUnavailable {
		t.Fatalf("unexpected classification %q", services.Classify(err))
	}
}

func TestRenderRejectsMissingVariable(t *testing.T) {
	prompt := Prompt{Name: "x", System: "sys", User: "Hello {{.Name}}"}
	if _, _, err := prompt.Render(map[string]any{}); err == nil {
		t.Fatal("expected missing key error")
	}
	system, user, err := prompt.Render(map[string]any{"Name": "world"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if system != "sys" || user != "Hello world" {
		t.Fatalf("unexpected render %q / %q", system, user)
	}
}

func writePromptFile(t *testing.T, path, body string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write prompt file: %v", err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestHotReloadAndMalformedFileKeepsLastGood(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	base := time.Now().Add(-time.Hour)
	writePromptFile(t, path, "prompts:\n  triage:\n    system: v1\n    user: \"{{.Text}}\"\n", base)

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	prompt, err := store.Resolve(PhaseTriage)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if prompt.System != "v1" {
		t.Fatalf("expected file override, got %q", prompt.System)
	}
	// Phases absent from the file fall through to built-ins.
	if _, err := store.Resolve(PhaseExtraction); err != nil {
		t.Fatalf("Resolve extraction: %v", err)
	}

	writePromptFile(t, path, "prompts:\n  triage:\n    system: v2\n    user: \"{{.Text}}\"\n", base.Add(time.Minute))
	prompt, err = store.Resolve(PhaseTriage)
	if err != nil {
		t.Fatalf("Resolve after edit: %v", err)
	}
	if prompt.System != "v2" {
		t.Fatalf("expected reloaded prompt, got %q", prompt.System)
	}

	writePromptFile(t, path, "prompts:\n  triage: [unterminated\n", base.Add(2*time.Minute))
	prompt, err = store.Resolve(PhaseTriage)
	if err != nil {
		t.Fatalf("Resolve with malformed file: %v", err)
	}
	if prompt.System != "v2" {
		t.Fatalf("expected last good prompt, got %q", prompt.System)
	}
	if store.LastError() == nil {
		t.Fatal("expected load error to be recorded")
	}
}

func TestMalformedFileWithoutGoodSetFailsInvocation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	writePromptFile(t, path, "prompts:\n  triage:\n    user: \"{{.Text\"\n", time.Now())

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_, err = store.Resolve(PhaseTriage)
	if !errors.Is(err, services.ErrPromptMissing) {
		t.Fatalf("expected ErrPromptMissing, got %v", err)
	}
	if !strings.Contains(err.Error(), "triage") {
		t.Fatalf("expected phase in error, got %v", err)
	}
}

func TestPhasesListsBuiltinsAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	writePromptFile(t, path, "prompts:\n  summaries:\n    user: \"{{.Text}}\"\n", time.Now())
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	phases := store.Phases()
	if len(phases) != 7 {
		t.Fatalf("expected 7 phases, got %v", phases)
	}
}
