package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"newsgraph/internal/content"
	"newsgraph/internal/language"
	"newsgraph/internal/logging"
	"newsgraph/internal/prompts"
	"newsgraph/internal/services"
	"newsgraph/internal/services/llm"
	"newsgraph/internal/stage"
)

const stageName = "triage"

// Config controls preprocessing policy.
type Config struct {
	WorkingLanguage string
	MinTextLength   int
}

// Triager is Phase 1: text cleanup, relevance triage, language detection and
// translation into the working language.
type Triager struct {
	invoker llm.Invoker
	cfg     Config
	logger  *slog.Logger
}

// New constructs the Phase 1 handler.
func New(invoker llm.Invoker, cfg Config, logger *slog.Logger) *Triager {
	if strings.TrimSpace(cfg.WorkingLanguage) == "" {
		cfg.WorkingLanguage = "es"
	}
	t := &Triager{invoker: invoker, cfg: cfg}
	t.SetLogger(logger)
	return t
}

// SetLogger swaps the handler logger.
func (t *Triager) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	t.logger = logging.NewComponentLogger(logger, stageName)
}

type triageResponse struct {
	Relevant  *bool  `json:"relevant"`
	Relevance string `json:"relevance"`
	Language  string `json:"language"`
	Reason    string `json:"reason"`
}

type languageResponse struct {
	Language string `json:"language"`
}

type translationResponse struct {
	Text string `json:"text"`
}

// Execute runs Phase 1 against work. Any failure is a triage_error.
func (t *Triager) Execute(ctx context.Context, work *content.Work) error {
	item := work.Item
	cleaned, err := CleanText(item.Text, item.Markup)
	if err != nil {
		return services.Wrap(services.ErrTriage, stageName, "clean", "markup could not be parsed", err)
	}
	if cleaned == "" {
		return services.Wrap(services.ErrTriage, stageName, "clean", "no text after cleanup", nil)
	}
	work.Text = cleaned
	hint := language.ToISO2(item.Source.Language)

	if item.IsFragment() {
		// Fragments always continue.
		work.Relevance = "inherited"
		lang := hint
		if lang == "" {
			lang, err = t.detectLanguage(ctx, cleaned)
			if err != nil {
				return err
			}
		}
		return t.ensureWorkingLanguage(ctx, work, lang)
	}

	if t.cfg.MinTextLength > 0 && utf8.RuneCountInString(cleaned) < t.cfg.MinTextLength {
		work.Discard = true
		work.Relevance = "none"
		work.Reason = fmt.Sprintf("text shorter than %d characters", t.cfg.MinTextLength)
		t.logDiscard(ctx, work)
		return nil
	}

	raw, err := t.invoker.Invoke(ctx, prompts.PhaseTriage, map[string]any{
		"Outlet":   item.Source.Outlet,
		"Country":  item.Source.Country,
		"Headline": item.Headline,
		"Text":     cleaned,
	})
	if err != nil {
		return services.Wrap(services.ErrTriage, stageName, "relevance", "llm call failed", err)
	}
	var resp triageResponse
	if err := llm.DecodeLLMJSON(raw, &resp); err != nil {
		return services.Wrap(services.ErrTriage, stageName, "relevance", "unparseable triage response", err)
	}
	if resp.Relevant == nil {
		return services.Wrap(services.ErrTriage, stageName, "relevance", "triage response missing relevant flag", nil)
	}
	work.Relevance = strings.ToLower(strings.TrimSpace(resp.Relevance))
	work.Reason = strings.TrimSpace(resp.Reason)
	if !*resp.Relevant {
		work.Discard = true
		t.logDiscard(ctx, work)
		return nil
	}

	lang := hint
	if lang == "" {
		lang = language.ToISO2(resp.Language)
	}
	if lang == "" {
		lang, err = t.detectLanguage(ctx, cleaned)
		if err != nil {
			return err
		}
	}
	return t.ensureWorkingLanguage(ctx, work, lang)
}

func (t *Triager) detectLanguage(ctx context.Context, text string) (string, error) {
	raw, err := t.invoker.Invoke(ctx, prompts.PhaseLanguage, map[string]any{"Text": text})
	if err != nil {
		return "", services.Wrap(services.ErrTriage, stageName, "language", "llm call failed", err)
	}
	var resp languageResponse
	if err := llm.DecodeLLMJSON(raw, &resp); err != nil {
		return "", services.Wrap(services.ErrTriage, stageName, "language", "unparseable language response", err)
	}
	code := language.ToISO2(resp.Language)
	if code == "" {
		return "", services.Wrap(services.ErrTriage, stageName, "language",
			fmt.Sprintf("unrecognized language %q", resp.Language), nil)
	}
	return code, nil
}

func (t *Triager) ensureWorkingLanguage(ctx context.Context, work *content.Work, lang string) error {
	target := language.ToISO2(t.cfg.WorkingLanguage)
	work.Language = lang
	if lang == "" || language.Same(lang, target) {
		work.Language = target
		return nil
	}

	raw, err := t.invoker.Invoke(ctx, prompts.PhaseTranslation, map[string]any{
		"SourceLanguage": language.DisplayName(lang),
		"TargetLanguage": language.DisplayName(target),
		"Text":           work.Text,
	})
	if err != nil {
		return services.Wrap(services.ErrTriage, stageName, "translate", "llm call failed", err)
	}
	var resp translationResponse
	if err := llm.DecodeLLMJSON(raw, &resp); err != nil {
		return services.Wrap(services.ErrTriage, stageName, "translate", "unparseable translation response", err)
	}
	translated := NormalizeWhitespace(resp.Text)
	if translated == "" {
		return services.Wrap(services.ErrTriage, stageName, "translate", "empty translation", nil)
	}
	logging.WithContext(ctx, t.logger).Info("text translated",
		logging.String("source_language", lang),
		logging.String("target_language", target),
		logging.Int("source_chars", utf8.RuneCountInString(work.Text)),
		logging.Int("translated_chars", utf8.RuneCountInString(translated)),
	)
	work.Text = translated
	work.Language = target
	work.Translated = true
	return nil
}

func (t *Triager) logDiscard(ctx context.Context, work *content.Work) {
	logging.WithContext(ctx, t.logger).Info("item discarded",
		logging.Args(append(logging.DecisionAttrs("triage", "discard", work.Reason),
			logging.String("relevance", work.Relevance),
		)...)...,
	)
}

// HealthCheck reports readiness.
func (t *Triager) HealthCheck(context.Context) stage.Health {
	if t.invoker == nil {
		return stage.Unhealthy(stageName, "llm invoker not configured")
	}
	return stage.Healthy(stageName)
}
