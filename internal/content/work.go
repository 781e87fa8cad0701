package content

import (
	"strings"
	"time"

	"newsgraph/internal/services"
	"newsgraph/internal/tempid"
)

// Status is an item's final outcome.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusDiscarded Status = "discarded"
	StatusFailed    Status = "failed"
)

// Annotation records a soft failure or a dropped element.
type Annotation struct {
	Classification services.Classification `json:"classification,omitempty"`
	Phase          string                  `json:"phase"`
	Message        string                  `json:"message"`
}

// Receipt is returned by the knowledge store after an atomic commit.
type Receipt struct {
	DocumentID    string           `json:"document_id"`
	FragmentID    string           `json:"fragment_id,omitempty"`
	FactIDs       map[string]int64 `json:"fact_ids"`
	EntityIDs     map[string]int64 `json:"entity_ids"`
	Quotes        int              `json:"quotes"`
	Data          int              `json:"data"`
	Relationships int              `json:"relationships"`
	CommittedAt   time.Time        `json:"committed_at"`
}

// Work is the mutable per-item state handed from phase to phase.
type Work struct {
	Item *Item

	Text       string
	Language   string
	Translated bool
	Relevance  string
	Discard    bool
	Reason     string

	Facts         []Fact
	Entities      []Entity
	Quotes        []Quote
	Data          []Datum
	Relationships []Relationship

	Arena       *tempid.Arena
	Annotations []Annotation
	Receipt     *Receipt
}

// NewWork starts processing state for item with a fresh arena.
func NewWork(item *Item) *Work {
	return &Work{Item: item, Arena: tempid.New()}
}

// Annotate appends a warning annotation.
func (w *Work) Annotate(class services.Classification, phase, message string) {
	w.Annotations = append(w.Annotations, Annotation{
		Classification: class,
		Phase:          phase,
		Message:        strings.TrimSpace(message),
	})
}

// HasAnnotation reports whether an annotation with class was recorded.
func (w *Work) HasAnnotation(class services.Classification) bool {
	for _, a := range w.Annotations {
		if a.Classification == class {
			return true
		}
	}
	return false
}

// Fact returns the fact with temp id.
func (w *Work) Fact(id string) (*Fact, bool) {
	for i := range w.Facts {
		if w.Facts[i].TempID == id {
			return &w.Facts[i], true
		}
	}
	return nil, false
}

// Entity returns the entity with temp id.
func (w *Work) Entity(id string) (*Entity, bool) {
	for i := range w.Entities {
		if w.Entities[i].TempID == id {
			return &w.Entities[i], true
		}
	}
	return nil, false
}

// Result is the per-item aggregate reported when processing ends.
type Result struct {
	ItemID         string                  `json:"item_id"`
	Status         Status                  `json:"status"`
	Classification services.Classification `json:"classification,omitempty"`
	Error          string                  `json:"error,omitempty"`
	Facts          []Fact                  `json:"facts,omitempty"`
	Entities       []Entity                `json:"entities,omitempty"`
	Quotes         []Quote                 `json:"quotes,omitempty"`
	Data           []Datum                 `json:"data,omitempty"`
	Relationships  []Relationship          `json:"relationships,omitempty"`
	Annotations    []Annotation            `json:"annotations,omitempty"`
	Receipt        *Receipt                `json:"receipt,omitempty"`
}

// Result summarizes the work. A nil err with Discard set yields discarded.
func (w *Work) Result(err error) Result {
	res := Result{
		ItemID:        w.Item.ID,
		Status:        StatusSuccess,
		Facts:         w.Facts,
		Entities:      w.Entities,
		Quotes:        w.Quotes,
		Data:          w.Data,
		Relationships: w.Relationships,
		Annotations:   w.Annotations,
		Receipt:       w.Receipt,
	}
	switch {
	case err != nil:
		res.Status = StatusFailed
		res.Classification = services.Classify(err)
		res.Error = err.Error()
	case w.Discard:
		res.Status = StatusDiscarded
	}
	return res
}
