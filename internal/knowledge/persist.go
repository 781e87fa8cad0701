package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newsgraph/internal/similarity"
	"newsgraph/internal/sqlstore"
)

// Payload is one item's fully assembled graph. Cross references are payload
// positions: FactRef indexes Facts and EntityRef indexes Entities. Entities
// with ExistingID set are linked to that durable row; the rest are created.
type Payload struct {
	ItemID       string
	DocumentID   string
	FragmentID   string
	Document     DocumentRecord
	Fragment     *FragmentRecord
	ReferenceDay time.Time

	Facts         []FactRecord
	Entities      []EntityRecord
	Mentions      []MentionRecord
	Quotes        []QuoteRecord
	Data          []DatumRecord
	Relationships []RelationRecord
}

// DocumentRecord carries document-level provenance.
type DocumentRecord struct {
	Kind        string
	Headline    string
	URL         string
	Outlet      string
	Country     string
	MediaType   string
	Language    string
	PublishedAt *time.Time
}

// FragmentRecord places a fragment within its parent document.
type FragmentRecord struct {
	Sequence int
	Total    int
}

// FactRecord is a fact ready for insertion.
type FactRecord struct {
	Description           string
	Start                 *time.Time
	End                   *time.Time
	RawTime               string
	Location              string
	Type                  string
	Importance            int
	PreliminaryImportance *int
	Context               string
}

// EntityRecord is either a link to an existing entity or a new entity. Name
// is required in both cases since it feeds the daily entity counters.
type EntityRecord struct {
	ExistingID int64
	Name       string
	Type       string
	Subtype    string
	Metadata   map[string]string
	Embedding  []float32
}

// MentionRecord links a fact to an entity with an optional role.
type MentionRecord struct {
	Fact   int
	Entity int
	Role   string
}

// QuoteRecord is a verbatim quote. Nil refs are stored as NULL.
type QuoteRecord struct {
	Text    string
	Speaker *int
	Role    string
	Date    string
	Fact    *int
}

// DatumRecord is a quantitative value.
type DatumRecord struct {
	Value   string
	Numeric *float64
	Unit    string
	Date    string
	Source  string
	Fact    *int
}

// RelationRecord is an edge between two facts or two entities.
type RelationRecord struct {
	Kind        string
	FromFact    *int
	ToFact      *int
	FromEntity  *int
	ToEntity    *int
	Type        string
	Strength    float64
	Description string
}

// Commit reports the durable identifiers assigned by Persist, positionally
// aligned with Payload.Facts and Payload.Entities.
type Commit struct {
	FactIDs       []int64
	EntityIDs     []int64
	Quotes        int
	Data          int
	Relationships int
	CommittedAt   time.Time
}

// ErrInvalidPayload reports a payload whose references do not line up.
var ErrInvalidPayload = errors.New("invalid payload")

// Persist writes the whole payload in a single transaction. Either every
// row for the item is committed, or none is.
func (s *Store) Persist(ctx context.Context, p Payload) (Commit, error) {
	var commit Commit
	if strings.TrimSpace(p.DocumentID) == "" {
		return commit, fmt.Errorf("%w: document id required", ErrInvalidPayload)
	}
	err := sqlstore.RetryOnBusy(ctx, func() error {
		var txErr error
		commit, txErr = s.persistOnce(ctx, p)
		return txErr
	})
	return commit, err
}

func (s *Store) persistOnce(ctx context.Context, p Payload) (Commit, error) {
	commit := Commit{}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return commit, fmt.Errorf("begin persist tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	stamp := sqlstore.FormatTime(now)

	replaced, err := clearItemGraph(ctx, tx, p.ItemID)
	if err != nil {
		return commit, err
	}
	if err := upsertDocument(ctx, tx, p, stamp); err != nil {
		return commit, err
	}
	fragmentID := sqlstore.NullableString(p.FragmentID)

	commit.EntityIDs = make([]int64, len(p.Entities))
	entityKeys := make([]string, 0, len(p.Entities))
	for i, entity := range p.Entities {
		id, err := writeEntity(ctx, tx, entity, stamp)
		if err != nil {
			return commit, fmt.Errorf("entity %d: %w", i, err)
		}
		commit.EntityIDs[i] = id
		entityKeys = append(entityKeys, similarity.Fold(entity.Name))
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entity_occurrences (entity_id, document_id, fragment_id, item_id, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, p.DocumentID, fragmentID, p.ItemID, stamp); err != nil {
			return commit, fmt.Errorf("entity occurrence: %w", err)
		}
	}

	commit.FactIDs = make([]int64, len(p.Facts))
	topics := make([]string, 0, len(p.Facts))
	for i, fact := range p.Facts {
		query, args, err := sq.Insert("facts").
			Columns("document_id", "fragment_id", "item_id", "description", "occurred_start", "occurred_end",
				"occurred_raw", "location", "type", "importance", "preliminary_importance", "context", "created_at").
			Values(p.DocumentID, fragmentID, p.ItemID, fact.Description, sqlstore.NullableTime(fact.Start),
				sqlstore.NullableTime(fact.End), sqlstore.NullableString(fact.RawTime), sqlstore.NullableString(fact.Location),
				sqlstore.NullableString(similarity.Fold(fact.Type)), fact.Importance, nullableInt(fact.PreliminaryImportance),
				sqlstore.NullableString(fact.Context), stamp).
			ToSql()
		if err != nil {
			return commit, err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return commit, fmt.Errorf("insert fact %d: %w", i, err)
		}
		if commit.FactIDs[i], err = res.LastInsertId(); err != nil {
			return commit, fmt.Errorf("fact id: %w", err)
		}
		topics = append(topics, similarity.Fold(fact.Type))
	}

	factID := func(ref *int) (any, error) {
		if ref == nil {
			return nil, nil
		}
		if *ref < 0 || *ref >= len(commit.FactIDs) {
			return nil, fmt.Errorf("%w: fact reference %d out of range", ErrInvalidPayload, *ref)
		}
		return commit.FactIDs[*ref], nil
	}
	entityID := func(ref *int) (any, error) {
		if ref == nil {
			return nil, nil
		}
		if *ref < 0 || *ref >= len(commit.EntityIDs) {
			return nil, fmt.Errorf("%w: entity reference %d out of range", ErrInvalidPayload, *ref)
		}
		return commit.EntityIDs[*ref], nil
	}

	for _, mention := range p.Mentions {
		fid, err := factID(&mention.Fact)
		if err != nil {
			return commit, err
		}
		eid, err := entityID(&mention.Entity)
		if err != nil {
			return commit, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entity_mentions (fact_id, entity_id, role) VALUES (?, ?, ?)
             ON CONFLICT(fact_id, entity_id) DO UPDATE SET role = COALESCE(excluded.role, entity_mentions.role)`,
			fid, eid, sqlstore.NullableString(mention.Role)); err != nil {
			return commit, fmt.Errorf("insert mention: %w", err)
		}
	}

	for _, quote := range p.Quotes {
		fid, err := factID(quote.Fact)
		if err != nil {
			return commit, err
		}
		sid, err := entityID(quote.Speaker)
		if err != nil {
			return commit, err
		}
		query, args, err := sq.Insert("quotes").
			Columns("document_id", "fragment_id", "item_id", "fact_id", "speaker_entity_id", "text", "role", "quoted_on").
			Values(p.DocumentID, fragmentID, p.ItemID, fid, sid, quote.Text, sqlstore.NullableString(quote.Role), sqlstore.NullableString(quote.Date)).
			ToSql()
		if err != nil {
			return commit, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return commit, fmt.Errorf("insert quote: %w", err)
		}
		commit.Quotes++
	}

	for _, datum := range p.Data {
		fid, err := factID(datum.Fact)
		if err != nil {
			return commit, err
		}
		var numeric any
		if datum.Numeric != nil {
			numeric = *datum.Numeric
		}
		query, args, err := sq.Insert("data_points").
			Columns("document_id", "fragment_id", "item_id", "fact_id", "value", "numeric", "unit", "observed_on", "source").
			Values(p.DocumentID, fragmentID, p.ItemID, fid, datum.Value, numeric, sqlstore.NullableString(datum.Unit),
				sqlstore.NullableString(datum.Date), sqlstore.NullableString(datum.Source)).
			ToSql()
		if err != nil {
			return commit, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return commit, fmt.Errorf("insert datum: %w", err)
		}
		commit.Data++
	}

	for _, rel := range p.Relationships {
		fromFact, err := factID(rel.FromFact)
		if err != nil {
			return commit, err
		}
		toFact, err := factID(rel.ToFact)
		if err != nil {
			return commit, err
		}
		fromEntity, err := entityID(rel.FromEntity)
		if err != nil {
			return commit, err
		}
		toEntity, err := entityID(rel.ToEntity)
		if err != nil {
			return commit, err
		}
		query, args, err := sq.Insert("relationships").
			Columns("document_id", "item_id", "kind", "from_fact_id", "to_fact_id", "from_entity_id", "to_entity_id", "type", "strength", "description").
			Values(p.DocumentID, p.ItemID, rel.Kind, fromFact, toFact, fromEntity, toEntity, sqlstore.NullableString(rel.Type),
				rel.Strength, sqlstore.NullableString(rel.Description)).
			ToSql()
		if err != nil {
			return commit, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return commit, fmt.Errorf("insert relationship: %w", err)
		}
		commit.Relationships++
	}

	day := p.ReferenceDay
	if day.IsZero() {
		day = now
	}
	// A resubmitted item already counted toward the trends.
	if !replaced {
		if err := bumpTrends(ctx, tx, Day(day), topics, entityKeys); err != nil {
			return commit, err
		}
	}

	if s.beforeCommit != nil {
		if err := s.beforeCommit(tx); err != nil {
			return commit, err
		}
	}
	if err := tx.Commit(); err != nil {
		return commit, fmt.Errorf("commit persist tx: %w", err)
	}
	commit.CommittedAt = now
	return commit, nil
}

// clearItemGraph removes the rows a previous persist of itemID wrote, so a
// resubmitted item replaces its graph. Entities stay since other items may
// link them.
func clearItemGraph(ctx context.Context, tx *sql.Tx, itemID string) (bool, error) {
	if strings.TrimSpace(itemID) == "" {
		return false, nil
	}
	var prior int
	if err := tx.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM facts WHERE item_id = ?) + (SELECT COUNT(*) FROM entity_occurrences WHERE item_id = ?)`,
		itemID, itemID).Scan(&prior); err != nil {
		return false, fmt.Errorf("count prior item rows: %w", err)
	}
	if prior == 0 {
		return false, nil
	}
	statements := []struct{ name, query string }{
		{"mentions", `DELETE FROM entity_mentions WHERE fact_id IN (SELECT id FROM facts WHERE item_id = ?)`},
		{"quotes", `DELETE FROM quotes WHERE item_id = ?`},
		{"data points", `DELETE FROM data_points WHERE item_id = ?`},
		{"relationships", `DELETE FROM relationships WHERE item_id = ?`},
		{"facts", `DELETE FROM facts WHERE item_id = ?`},
		{"entity occurrences", `DELETE FROM entity_occurrences WHERE item_id = ?`},
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt.query, itemID); err != nil {
			return false, fmt.Errorf("clear prior %s: %w", stmt.name, err)
		}
	}
	return true, nil
}

func upsertDocument(ctx context.Context, tx *sql.Tx, p Payload, stamp string) error {
	doc := p.Document
	kind := doc.Kind
	if kind == "" {
		kind = "article"
	}
	if p.Fragment != nil {
		kind = "document"
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, kind, headline, url, outlet, country, media_type, language, published_at, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO NOTHING`,
		p.DocumentID, kind, sqlstore.NullableString(doc.Headline), sqlstore.NullableString(doc.URL),
		sqlstore.NullableString(doc.Outlet), sqlstore.NullableString(doc.Country), sqlstore.NullableString(doc.MediaType),
		sqlstore.NullableString(doc.Language), sqlstore.NullableTime(doc.PublishedAt), stamp); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	if p.FragmentID == "" {
		return nil
	}
	if p.Fragment == nil {
		return fmt.Errorf("%w: fragment id without fragment record", ErrInvalidPayload)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO fragments (id, document_id, sequence, total, created_at) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(id) DO NOTHING`,
		p.FragmentID, p.DocumentID, p.Fragment.Sequence, p.Fragment.Total, stamp); err != nil {
		return fmt.Errorf("upsert fragment: %w", err)
	}
	return nil
}

func writeEntity(ctx context.Context, tx *sql.Tx, entity EntityRecord, stamp string) (int64, error) {
	if entity.ExistingID > 0 {
		res, err := tx.ExecContext(ctx, `UPDATE entities SET updated_at = ? WHERE id = ?`, stamp, entity.ExistingID)
		if err != nil {
			return 0, fmt.Errorf("touch entity: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return 0, fmt.Errorf("%w: linked entity %d does not exist", ErrInvalidPayload, entity.ExistingID)
		}
		return entity.ExistingID, nil
	}
	name := strings.TrimSpace(entity.Name)
	if name == "" {
		return 0, fmt.Errorf("%w: new entity without name", ErrInvalidPayload)
	}
	var metadata, embedding any
	if len(entity.Metadata) > 0 {
		encoded, err := json.Marshal(entity.Metadata)
		if err != nil {
			return 0, err
		}
		metadata = string(encoded)
	}
	if len(entity.Embedding) > 0 {
		encoded, err := json.Marshal(entity.Embedding)
		if err != nil {
			return 0, err
		}
		embedding = string(encoded)
	}
	query, args, err := sq.Insert("entities").
		Columns("name", "name_key", "type", "subtype", "metadata_json", "embedding_json", "created_at", "updated_at").
		Values(name, similarity.Fold(name), similarity.Fold(entity.Type), sqlstore.NullableString(entity.Subtype), metadata, embedding, stamp, stamp).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert entity: %w", err)
	}
	return res.LastInsertId()
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}
