package knowledge

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"newsgraph/internal/similarity"
)

// StoredFact is a durable fact row as linked to its document.
type StoredFact struct {
	ID          int64  `json:"id"`
	DocumentID  string `json:"document_id"`
	FragmentID  string `json:"fragment_id,omitempty"`
	ItemID      string `json:"item_id"`
	Description string `json:"description"`
	Type        string `json:"type,omitempty"`
	Importance  int    `json:"importance"`
	Start       string `json:"occurred_start,omitempty"`
	End         string `json:"occurred_end,omitempty"`
}

// DocumentFacts lists facts recorded against a document, across all of its
// fragments, in insertion order.
func (s *Store) DocumentFacts(ctx context.Context, documentID string) ([]StoredFact, error) {
	query, args, err := sq.Select("id", "document_id", "fragment_id", "item_id", "description", "type", "importance", "occurred_start", "occurred_end").
		From("facts").
		Where(sq.Eq{"document_id": documentID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("document facts: %w", err)
	}
	defer rows.Close()
	var out []StoredFact
	for rows.Next() {
		var (
			fact                 StoredFact
			fragmentID, factType sql.NullString
			start, end           sql.NullString
		)
		if err := rows.Scan(&fact.ID, &fact.DocumentID, &fragmentID, &fact.ItemID, &fact.Description, &factType, &fact.Importance, &start, &end); err != nil {
			return nil, err
		}
		fact.FragmentID = fragmentID.String
		fact.Type = factType.String
		fact.Start = start.String
		fact.End = end.String
		out = append(out, fact)
	}
	return out, rows.Err()
}

// DocumentEntities returns the distinct entity ids that occur in a document.
func (s *Store) DocumentEntities(ctx context.Context, documentID string) ([]int64, error) {
	query, args, err := sq.Select("DISTINCT entity_id").
		From("entity_occurrences").
		Where(sq.Eq{"document_id": documentID}).
		OrderBy("entity_id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("document entities: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// EntityCount returns how many durable entities share a type.
func (s *Store) EntityCount(ctx context.Context, entityType string) (int, error) {
	builder := sq.Select("COUNT(1)").From("entities")
	if entityType != "" {
		builder = builder.Where(sq.Eq{"type": similarity.Fold(entityType)})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return count, nil
}

// DocumentExists reports whether a document row has been committed.
func (s *Store) DocumentExists(ctx context.Context, documentID string) (bool, error) {
	query, args, err := sq.Select("COUNT(1)").From("documents").Where(sq.Eq{"id": documentID}).ToSql()
	if err != nil {
		return false, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("document exists: %w", err)
	}
	return count > 0, nil
}
