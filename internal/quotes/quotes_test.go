package quotes

import (
	"context"
	"testing"

	"newsgraph/internal/content"
	"newsgraph/internal/prompts"
	"newsgraph/internal/services"
	"newsgraph/internal/testsupport"
)

func seededWork() *content.Work {
	work := content.NewWork(&content.Item{ID: "a-1", Kind: content.KindArticle, Text: "t"})
	work.Text = "texto"
	factID := work.Arena.NewFact()
	entityID := work.Arena.NewEntity()
	work.Facts = []content.Fact{{TempID: factID, Description: "Rates rose", EntityRefs: []string{entityID}}}
	work.Entities = []content.Entity{{TempID: entityID, Name: "Ana Pérez", Type: "person"}}
	return work
}

func TestQuotesResolveReferences(t *testing.T) {
	reply := `{"quotes": [
  {"text": "Inflation is too high", "speaker": "e1", "fact": "h1"},
  {"text": "We will act", "speaker": "ana perez", "fact": "h9"},
  {"text": "Markets are calm", "speaker": "Luis Gómez", "role": "analyst"},
  {"text": "Nothing", "speaker": "e7"},
  {"text": "   "}
],
"data": [
  {"value": "3,5 %", "unit": "%", "fact": "h1"},
  {"value": "1.200 millones", "unit": "EUR", "fact": "e1"},
  {"value": ""}
]}`
	invoker := testsupport.NewFakeInvoker().On(prompts.PhaseQuotes, func(_ context.Context, vars map[string]any) (string, error) {
		if vars["Facts"] != "h1: Rates rose [e1]" || vars["Entities"] != "e1: Ana Pérez (person)" {
			t.Errorf("unexpected listing vars: %v", vars)
		}
		return reply, nil
	})
	work := seededWork()

	if err := New(invoker, nil).Execute(context.Background(), work); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(work.Quotes) != 4 {
		t.Fatalf("expected 4 quotes, got %+v", work.Quotes)
	}
	if work.Quotes[0].SpeakerRef != "e1" || work.Quotes[0].FactRef != "h1" {
		t.Fatalf("unexpected first quote: %+v", work.Quotes[0])
	}
	if work.Quotes[1].SpeakerRef != "e1" || work.Quotes[1].FactRef != "" {
		t.Fatalf("dangling fact ref should be dropped, quote kept: %+v", work.Quotes[1])
	}
	if work.Quotes[2].SpeakerRef != "e2" {
		t.Fatalf("unknown speaker should become a new entity: %+v", work.Quotes[2])
	}
	speaker, ok := work.Entity("e2")
	if !ok || speaker.Type != "person" || speaker.Metadata["role"] != "analyst" {
		t.Fatalf("unexpected speaker entity: %+v", speaker)
	}
	if work.Quotes[3].SpeakerRef != "" {
		t.Fatalf("unknown temp speaker should be dropped: %+v", work.Quotes[3])
	}

	if len(work.Data) != 2 {
		t.Fatalf("expected 2 data, got %+v", work.Data)
	}
	if work.Data[0].Numeric == nil || *work.Data[0].Numeric != 3.5 || work.Data[0].FactRef != "h1" {
		t.Fatalf("unexpected first datum: %+v", work.Data[0])
	}
	if work.Data[1].FactRef != "" || work.Data[1].Numeric == nil || *work.Data[1].Numeric != 1200 {
		t.Fatalf("entity id is not a fact ref: %+v", work.Data[1])
	}
	if len(work.Annotations) != 3 {
		t.Fatalf("expected 3 warnings, got %+v", work.Annotations)
	}
}

func TestQuotesMalformedIsHard(t *testing.T) {
	for _, reply := range []string{"no json here", `{"other": 1}`} {
		invoker := testsupport.NewFakeInvoker().Reply(prompts.PhaseQuotes, reply)
		err := New(invoker, nil).Execute(context.Background(), seededWork())
		if services.Classify(err) != services.ClassMalformedOutput {
			t.Fatalf("reply %q: expected malformed_llm_output, got %v", reply, err)
		}
	}
}

func TestParseNumber(t *testing.T) {
	cases := map[string]float64{
		"3,5 %":          3.5,
		"1.200 millones": 1200,
		"$2,400.50":      2400.5,
		"1.234.567,89":   1234567.89,
		"-4.2 points":    -4.2,
		"12":             12,
		"10,000 people":  10000,
	}
	for input, want := range cases {
		got := ParseNumber(input)
		if got == nil || *got != want {
			t.Fatalf("ParseNumber(%q) = %v, want %v", input, got, want)
		}
	}
	if ParseNumber("many") != nil {
		t.Fatal("expected nil for non-numeric value")
	}
}
