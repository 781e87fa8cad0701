package quotes

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"newsgraph/internal/content"
	"newsgraph/internal/logging"
	"newsgraph/internal/prompts"
	"newsgraph/internal/services"
	"newsgraph/internal/services/llm"
	"newsgraph/internal/similarity"
	"newsgraph/internal/stage"
	"newsgraph/internal/tempid"
)

const stageName = "quotes"

// Extractor is Phase 3: verbatim quotes and quantitative data.
type Extractor struct {
	invoker llm.Invoker
	logger  *slog.Logger
}

// New constructs the Phase 3 handler.
func New(invoker llm.Invoker, logger *slog.Logger) *Extractor {
	e := &Extractor{invoker: invoker}
	e.SetLogger(logger)
	return e
}

// SetLogger swaps the handler logger.
func (e *Extractor) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	e.logger = logging.NewComponentLogger(logger, stageName)
}

type rawQuote struct {
	Text    string         `json:"text"`
	Speaker llm.FlexString `json:"speaker"`
	Role    string         `json:"role"`
	Date    llm.FlexString `json:"date"`
	Fact    llm.FlexString `json:"fact"`
}

type rawDatum struct {
	Value  llm.FlexString `json:"value"`
	Unit   string         `json:"unit"`
	Date   llm.FlexString `json:"date"`
	Source string         `json:"source"`
	Fact   llm.FlexString `json:"fact"`
}

type quotesResponse struct {
	Quotes *[]rawQuote `json:"quotes"`
	Data   *[]rawDatum `json:"data"`
}

// Execute runs Phase 3. Malformed output is a hard malformed_llm_output
// failure; dangling fact references are dropped with a warning.
func (e *Extractor) Execute(ctx context.Context, work *content.Work) error {
	raw, err := e.invoker.Invoke(ctx, prompts.PhaseQuotes, map[string]any{
		"Facts":    ListFacts(work.Facts),
		"Entities": ListEntities(work.Entities),
		"Text":     work.Text,
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "invoke", "llm call failed", err)
	}
	var resp quotesResponse
	if err := llm.DecodeLLMJSON(raw, &resp); err != nil {
		return services.Wrap(services.ErrMalformedOutput, stageName, "decode", "response could not be repaired", err)
	}
	if resp.Quotes == nil && resp.Data == nil {
		return services.Wrap(services.ErrMalformedOutput, stageName, "decode", "response has neither quotes nor data", nil)
	}

	if resp.Quotes != nil {
		for _, rq := range *resp.Quotes {
			text := strings.TrimSpace(rq.Text)
			if text == "" {
				continue
			}
			quote := content.Quote{
				Text:    text,
				Role:    strings.TrimSpace(rq.Role),
				Date:    rq.Date.String(),
				FactRef: e.factRef(work, rq.Fact.String(), "quote"),
			}
			quote.SpeakerRef = speakerRef(work, rq.Speaker.String(), quote.Role)
			work.Quotes = append(work.Quotes, quote)
		}
	}
	if resp.Data != nil {
		for _, rd := range *resp.Data {
			value := rd.Value.String()
			if value == "" {
				continue
			}
			datum := content.Datum{
				Value:   value,
				Numeric: ParseNumber(value),
				Unit:    strings.TrimSpace(rd.Unit),
				Date:    rd.Date.String(),
				Source:  strings.TrimSpace(rd.Source),
				FactRef: e.factRef(work, rd.Fact.String(), "datum"),
			}
			work.Data = append(work.Data, datum)
		}
	}

	logging.WithContext(ctx, e.logger).Info("quotes and data extracted",
		logging.String(logging.FieldEventType, "quotes_complete"),
		logging.Int("quotes", len(work.Quotes)),
		logging.Int("data", len(work.Data)),
		logging.Int("entities", len(work.Entities)),
	)
	return nil
}

func (e *Extractor) factRef(work *content.Work, ref, element string) string {
	if ref == "" {
		return ""
	}
	if kind, ok := work.Arena.KindOf(ref); ok && kind == tempid.KindFact {
		return ref
	}
	work.Annotate(services.ClassNone, stageName, fmt.Sprintf("%s: unknown fact reference %q dropped", element, ref))
	return ""
}

// speakerRef matches a speaker to an entity id or name; an unknown speaker
// becomes a new person entity in the arena.
func speakerRef(work *content.Work, speaker, role string) string {
	if speaker == "" {
		return ""
	}
	if kind, ok := work.Arena.KindOf(speaker); ok && kind == tempid.KindEntity {
		return speaker
	}
	folded := similarity.Fold(speaker)
	for _, entity := range work.Entities {
		if similarity.Fold(entity.Name) == folded {
			return entity.TempID
		}
	}
	if tempid.LooksTemporary(speaker) {
		work.Annotate(services.ClassNone, stageName, fmt.Sprintf("quote: unknown speaker reference %q dropped", speaker))
		return ""
	}
	entity := content.Entity{
		TempID: work.Arena.NewEntity(),
		Name:   speaker,
		Type:   "person",
	}
	if role != "" {
		entity.Metadata = map[string]string{"role": role}
	}
	work.Entities = append(work.Entities, entity)
	return entity.TempID
}

// ListFacts renders facts for prompt variables, one per line.
func ListFacts(facts []content.Fact) string {
	var b strings.Builder
	for _, fact := range facts {
		fmt.Fprintf(&b, "%s: %s", fact.TempID, fact.Description)
		if len(fact.EntityRefs) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(fact.EntityRefs, ", "))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// ListEntities renders entities for prompt variables, one per line.
func ListEntities(entities []content.Entity) string {
	var b strings.Builder
	for _, entity := range entities {
		fmt.Fprintf(&b, "%s: %s (%s)\n", entity.TempID, entity.Name, entity.Type)
	}
	return strings.TrimRight(b.String(), "\n")
}

var numberPattern = regexp.MustCompile(`-?\d[\d.,\s]*`)

// ParseNumber extracts the first number from a value such as "3,5 %",
// "1.200 millones" or "$2,400.50". Both decimal conventions are accepted.
func ParseNumber(value string) *float64 {
	match := strings.TrimSpace(numberPattern.FindString(value))
	if match == "" {
		return nil
	}
	match = strings.ReplaceAll(match, " ", "")
	lastDot := strings.LastIndex(match, ".")
	lastComma := strings.LastIndex(match, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			match = strings.ReplaceAll(match, ".", "")
			match = strings.Replace(match, ",", ".", 1)
		} else {
			match = strings.ReplaceAll(match, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(match, ",") == 1 && len(match)-lastComma-1 != 3 {
			match = strings.Replace(match, ",", ".", 1)
		} else {
			match = strings.ReplaceAll(match, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(match, ".") > 1 || len(match)-lastDot-1 == 3 {
			match = strings.ReplaceAll(match, ".", "")
		}
	}
	match = strings.TrimRight(match, ".")
	parsed, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	return &parsed
}

// HealthCheck reports readiness.
func (e *Extractor) HealthCheck(context.Context) stage.Health {
	if e.invoker == nil {
		return stage.Unhealthy(stageName, "llm invoker not configured")
	}
	return stage.Healthy(stageName)
}
