package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"

	"newsgraph/internal/similarity"
	"newsgraph/internal/sqlstore"
)

const defaultCandidateLimit = 200

// EntityQuery describes a similarity lookup against durable entities.
type EntityQuery struct {
	Name      string
	Type      string
	Embedding []float32
	Threshold float64
	Limit     int
	Weights   similarity.Weights
}

// Candidate is a durable entity scored against a query.
type Candidate struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Subtype   string    `json:"subtype,omitempty"`
	Score     float64   `json:"score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StoredEntity is a durable entity row.
type StoredEntity struct {
	ID        int64             `json:"id"`
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Subtype   string            `json:"subtype,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

const entityColumns = "id, name, type, subtype, metadata_json, embedding_json, created_at, updated_at"

// SimilarEntities returns durable entities of the same type whose combined
// similarity to the query is at or above the threshold (inclusive), ranked by
// score and then by most recent update.
func (s *Store) SimilarEntities(ctx context.Context, q EntityQuery) ([]Candidate, error) {
	name := strings.TrimSpace(q.Name)
	entityType := similarity.Fold(q.Type)
	if name == "" {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultCandidateLimit
	}
	weights := q.Weights
	if weights.Text == 0 && weights.Vector == 0 {
		weights = similarity.DefaultWeights
	}

	key := similarity.Fold(name)
	match := sq.Or{sq.Eq{"name_key": key}}
	var overlapTerms []string
	var overlapArgs []any
	for _, token := range strings.Fields(key) {
		if utf8.RuneCountInString(token) < 3 {
			continue
		}
		pattern := "%" + token + "%"
		match = append(match, sq.Like{"name_key": pattern})
		overlapTerms = append(overlapTerms, "(name_key LIKE ?)")
		overlapArgs = append(overlapArgs, pattern)
	}
	if len(q.Embedding) > 0 {
		match = append(match, sq.NotEq{"embedding_json": nil})
	}

	// The window keeps exact keys first, then the rows sharing the most
	// name tokens, so recent unrelated rows cannot push a match out.
	builder := sq.Select(entityColumns).
		From("entities").
		Where(sq.Eq{"type": entityType}).
		Where(match).
		OrderByClause("(name_key = ?) DESC", key)
	if len(overlapTerms) > 0 {
		builder = builder.OrderByClause("("+strings.Join(overlapTerms, " + ")+") DESC", overlapArgs...)
	}
	query, args, err := builder.
		OrderBy("updated_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build similarity query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("similar entities: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		score := similarity.Combined(name, entity.Name, q.Embedding, entity.Embedding, weights)
		if score < q.Threshold {
			continue
		}
		out = append(out, Candidate{
			ID:        entity.ID,
			Name:      entity.Name,
			Type:      entity.Type,
			Subtype:   entity.Subtype,
			Score:     score,
			UpdatedAt: entity.UpdatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	RankCandidates(out)
	return out, nil
}

// RankCandidates orders candidates by score, then most recently updated, then id.
func RankCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID > b.ID
	})
}

// Entity fetches a durable entity by id. Returns nil when absent.
func (s *Store) Entity(ctx context.Context, id int64) (*StoredEntity, error) {
	query, args, err := sq.Select(entityColumns).From("entities").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	entity, err := scanEntity(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	return entity, nil
}

func scanEntity(scanner interface{ Scan(dest ...any) error }) (*StoredEntity, error) {
	var (
		entity     StoredEntity
		subtype    sql.NullString
		metadata   sql.NullString
		embedding  sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&entity.ID, &entity.Name, &entity.Type, &subtype, &metadata, &embedding, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	entity.Subtype = subtype.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &entity.Metadata); err != nil {
			return nil, fmt.Errorf("decode entity %d metadata: %w", entity.ID, err)
		}
	}
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &entity.Embedding); err != nil {
			return nil, fmt.Errorf("decode entity %d embedding: %w", entity.ID, err)
		}
	}
	if created, err := sqlstore.ParseTime(createdRaw); err == nil {
		entity.CreatedAt = created
	}
	if updated, err := sqlstore.ParseTime(updatedRaw); err == nil {
		entity.UpdatedAt = updated
	}
	return &entity, nil
}
