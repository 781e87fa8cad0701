package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"newsgraph/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "extraction", "complete", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"extraction", "complete", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestClassifyPrefersPhaseMarker(t *testing.T) {
	transient := services.Wrap(services.ErrTransient, "llm", "complete", "retries exhausted", nil)
	triage := services.Wrap(services.ErrTriage, "triage", "relevance", "", transient)

	cases := []struct {
		name string
		err  error
		want services.Classification
	}{
		{"nil", nil, services.ClassNone},
		{"triage wins over transient", triage, services.ClassTriage},
		{"transient", transient, services.ClassTransient},
		{"validation", services.Wrap(services.ErrValidation, "submit", "", "text required", nil), services.ClassValidation},
		{"extraction", services.Wrap(services.ErrExtractionParse, "extraction", "decode", "", errors.New("bad json")), services.ClassExtractionParse},
		{"persistence", fmt.Errorf("phase 5: %w", services.ErrPersistence), services.ClassPersistence},
		{"prompt", services.Wrap(services.ErrPromptMissing, "quotes", "", "", nil), services.ClassPromptUnavailable},
		{"unknown", errors.New("mystery"), services.ClassInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Classify(tc.err); got != tc.want {
				t.Fatalf("Classify = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassificationHardness(t *testing.T) {
	for _, soft := range []services.Classification{services.ClassRelationDegraded, services.ClassScoringUnavailable} {
		if soft.IsHard() {
			t.Fatalf("expected %s to be soft", soft)
		}
	}
	for _, hard := range []services.Classification{services.ClassTriage, services.ClassExtractionParse, services.ClassValidation, services.ClassPersistence} {
		if !hard.IsHard() {
			t.Fatalf("expected %s to be hard", hard)
		}
	}
}
