package content

import "time"

// TimeRange is an occurrence window. Either bound may be nil (unbounded).
type TimeRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
	Raw   string     `json:"raw,omitempty"`
}

// IsOpen reports whether neither bound is known.
func (r TimeRange) IsOpen() bool {
	return r.Start == nil && r.End == nil
}

// Fact is a discrete extracted event or claim.
type Fact struct {
	TempID                string    `json:"temp_id"`
	Description           string    `json:"description"`
	OccurredAt            TimeRange `json:"occurred_at"`
	Location              string    `json:"location,omitempty"`
	Type                  string    `json:"type,omitempty"`
	PreliminaryImportance *int      `json:"preliminary_importance,omitempty"`
	Importance            int       `json:"importance"`
	Context               string    `json:"context,omitempty"`
	EntityRefs            []string  `json:"entity_refs,omitempty"`
}

// Entity is a named person, organization, place or concept.
type Entity struct {
	TempID     string            `json:"temp_id"`
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Subtype    string            `json:"subtype,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Embedding  []float32         `json:"-"`
	DurableID  int64             `json:"durable_id,omitempty"`
	IsNew      bool              `json:"is_new"`
	Similarity float64           `json:"similarity,omitempty"`
	Resolved   bool              `json:"resolved"`
}

// Quote is verbatim text attributed to an entity.
type Quote struct {
	Text       string `json:"text"`
	SpeakerRef string `json:"speaker_ref,omitempty"`
	Role       string `json:"role,omitempty"`
	Date       string `json:"date,omitempty"`
	FactRef    string `json:"fact_ref,omitempty"`
}

// Datum is a structured quantitative value.
type Datum struct {
	Value   string   `json:"value"`
	Numeric *float64 `json:"numeric,omitempty"`
	Unit    string   `json:"unit,omitempty"`
	Date    string   `json:"date,omitempty"`
	Source  string   `json:"source,omitempty"`
	FactRef string   `json:"fact_ref,omitempty"`
}

// RelationKind enumerates relationship edge families.
type RelationKind string

const (
	RelationFactEntity    RelationKind = "fact_entity"
	RelationFactFact      RelationKind = "fact_fact"
	RelationEntityEntity  RelationKind = "entity_entity"
	RelationContradiction RelationKind = "contradiction"
)

// Relationship is a typed edge between two temp-referenced elements.
type Relationship struct {
	Kind        RelationKind `json:"kind"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Type        string       `json:"type,omitempty"`
	Strength    float64      `json:"strength"`
	Description string       `json:"description,omitempty"`
}
