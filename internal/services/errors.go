package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool    = errors.New("external service error")
	ErrValidation      = errors.New("validation error")
	ErrConfiguration   = errors.New("configuration error")
	ErrNotFound        = errors.New("not found")
	ErrTimeout         = errors.New("timeout")
	ErrTransient       = errors.New("transient failure")
	ErrMalformedOutput = errors.New("malformed llm output")
	ErrTriage          = errors.New("triage failure")
	ErrExtractionParse = errors.New("extraction parse failure")
	ErrRelations       = errors.New("relation extraction failure")
	ErrScoring         = errors.New("scoring unavailable")
	ErrPersistence     = errors.New("persistence failure")
	ErrPromptMissing   = errors.New("prompt unavailable")
	ErrBackpressure    = errors.New("queue full")
	ErrShuttingDown    = errors.New("pipeline shutting down")
	ErrInterrupted     = errors.New("interrupted by shutdown")
)

// Classification is the failure taxonomy recorded against items and annotations.
type Classification string

const (
	ClassNone                Classification = ""
	ClassTransient           Classification = "transient_external_error"
	ClassMalformedOutput     Classification = "malformed_llm_output"
	ClassValidation          Classification = "validation_error"
	ClassRelationDegraded    Classification = "relation_extraction_degraded"
	ClassScoringUnavailable  Classification = "scoring_unavailable"
	ClassPersistence         Classification = "persistence_error"
	ClassTriage              Classification = "triage_error"
	ClassExtractionParse     Classification = "extraction_parse_error"
	ClassPromptUnavailable   Classification = "prompt_unavailable"
	ClassBackpressure        Classification = "backpressure"
	ClassShutdownInterrupted Classification = "shutdown_interrupted"
	ClassInternal            Classification = "internal_error"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to the failure taxonomy. Phase markers win over the
// underlying cause so a triage failure caused by an exhausted LLM is still a
// triage_error.
func Classify(err error) Classification {
	if err == nil {
		return ClassNone
	}
	switch {
	case errors.Is(err, ErrValidation):
		return ClassValidation
	case errors.Is(err, ErrInterrupted):
		return ClassShutdownInterrupted
	case errors.Is(err, ErrTriage):
		return ClassTriage
	case errors.Is(err, ErrExtractionParse):
		return ClassExtractionParse
	case errors.Is(err, ErrPersistence):
		return ClassPersistence
	case errors.Is(err, ErrRelations):
		return ClassRelationDegraded
	case errors.Is(err, ErrScoring):
		return ClassScoringUnavailable
	case errors.Is(err, ErrPromptMissing):
		return ClassPromptUnavailable
	case errors.Is(err, ErrMalformedOutput):
		return ClassMalformedOutput
	case errors.Is(err, ErrBackpressure):
		return ClassBackpressure
	case errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout), errors.Is(err, ErrExternalTool):
		return ClassTransient
	default:
		return ClassInternal
	}
}

// IsHard reports whether a classification stops the item.
func (c Classification) IsHard() bool {
	switch c {
	case ClassNone, ClassRelationDegraded, ClassScoringUnavailable:
		return false
	default:
		return true
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
