package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newsgraph/internal/similarity"
	"newsgraph/internal/sqlstore"
)

const dayLayout = "2006-01-02"

// Thread is an ongoing narrative the newsroom is following.
type Thread struct {
	ID       int64    `json:"id"`
	Title    string   `json:"title"`
	Keywords []string `json:"keywords"`
	Active   bool     `json:"active"`
}

// Trend is the contextual record for one day: topic heat by fact type,
// mention counts by folded entity name, and active narrative threads.
type Trend struct {
	Day       time.Time          `json:"day"`
	TopicHeat map[string]float64 `json:"topic_heat"`
	Entities  map[string]int     `json:"entities"`
	Threads   []Thread           `json:"threads"`
}

// Day truncates t to its UTC calendar day string.
func Day(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// TrendForDate loads the trend record for the day containing day. Days with
// no activity return an empty record (never an error).
func (s *Store) TrendForDate(ctx context.Context, day time.Time) (Trend, error) {
	key := Day(day)
	parsed, _ := time.Parse(dayLayout, key)
	trend := Trend{Day: parsed, TopicHeat: map[string]float64{}, Entities: map[string]int{}}

	query, args, err := sq.Select("topic", "heat").From("trend_topics").Where(sq.Eq{"day": key}).ToSql()
	if err != nil {
		return trend, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return trend, fmt.Errorf("load topic heat: %w", err)
	}
	for rows.Next() {
		var topic string
		var heat float64
		if err := rows.Scan(&topic, &heat); err != nil {
			rows.Close()
			return trend, err
		}
		trend.TopicHeat[topic] = heat
	}
	rows.Close()

	query, args, err = sq.Select("entity_key", "mentions").From("trend_entities").Where(sq.Eq{"day": key}).ToSql()
	if err != nil {
		return trend, err
	}
	rows, err = s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return trend, fmt.Errorf("load trending entities: %w", err)
	}
	for rows.Next() {
		var entityKey string
		var mentions int
		if err := rows.Scan(&entityKey, &mentions); err != nil {
			rows.Close()
			return trend, err
		}
		trend.Entities[entityKey] = mentions
	}
	rows.Close()

	threads, err := s.activeThreads(ctx, key)
	if err != nil {
		return trend, err
	}
	trend.Threads = threads
	return trend, nil
}

func (s *Store) activeThreads(ctx context.Context, day string) ([]Thread, error) {
	query, args, err := sq.Select("id", "title", "keywords_json", "active").
		From("narrative_threads").
		Where(sq.Eq{"active": 1}).
		Where(sq.Or{sq.Eq{"started_on": nil}, sq.LtOrEq{"started_on": day}}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load narrative threads: %w", err)
	}
	defer rows.Close()
	var threads []Thread
	for rows.Next() {
		var (
			thread   Thread
			keywords string
			active   int
		)
		if err := rows.Scan(&thread.ID, &thread.Title, &keywords, &active); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(keywords), &thread.Keywords); err != nil {
			return nil, fmt.Errorf("decode thread %d keywords: %w", thread.ID, err)
		}
		thread.Active = active != 0
		threads = append(threads, thread)
	}
	return threads, rows.Err()
}

// UpsertThread creates or updates a narrative thread by title.
func (s *Store) UpsertThread(ctx context.Context, thread Thread, startedOn *time.Time) (int64, error) {
	title := strings.TrimSpace(thread.Title)
	if title == "" {
		return 0, fmt.Errorf("thread title required")
	}
	keywords := make([]string, 0, len(thread.Keywords))
	for _, kw := range thread.Keywords {
		if folded := similarity.Fold(kw); folded != "" {
			keywords = append(keywords, folded)
		}
	}
	encoded, err := json.Marshal(keywords)
	if err != nil {
		return 0, err
	}
	var started any
	if startedOn != nil {
		started = Day(*startedOn)
	}
	now := sqlstore.FormatTime(time.Now())
	query, args, err := sq.Insert("narrative_threads").
		Columns("title", "keywords_json", "active", "started_on", "updated_at").
		Values(title, string(encoded), boolToInt(thread.Active), started, now).
		Suffix("ON CONFLICT(title) DO UPDATE SET keywords_json = excluded.keywords_json, active = excluded.active, started_on = excluded.started_on, updated_at = excluded.updated_at RETURNING id").
		ToSql()
	if err != nil {
		return 0, err
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert thread: %w", err)
	}
	return id, nil
}

// UpsertTrend overwrites the topic heat and entity counters for trend.Day.
// Used to seed trend data computed outside the pipeline.
func (s *Store) UpsertTrend(ctx context.Context, trend Trend) error {
	day := Day(trend.Day)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin trend tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for topic, heat := range trend.TopicHeat {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trend_topics (day, topic, heat) VALUES (?, ?, ?)
             ON CONFLICT(day, topic) DO UPDATE SET heat = excluded.heat`,
			day, similarity.Fold(topic), heat); err != nil {
			return fmt.Errorf("upsert topic %q: %w", topic, err)
		}
	}
	for name, mentions := range trend.Entities {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trend_entities (day, entity_key, mentions) VALUES (?, ?, ?)
             ON CONFLICT(day, entity_key) DO UPDATE SET mentions = excluded.mentions`,
			day, similarity.Fold(name), mentions); err != nil {
			return fmt.Errorf("upsert entity trend %q: %w", name, err)
		}
	}
	return tx.Commit()
}

func bumpTrends(ctx context.Context, tx *sql.Tx, day string, topics []string, entityKeys []string) error {
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trend_topics (day, topic, heat) VALUES (?, ?, 1)
             ON CONFLICT(day, topic) DO UPDATE SET heat = heat + 1`,
			day, topic); err != nil {
			return fmt.Errorf("bump topic heat: %w", err)
		}
	}
	for _, key := range entityKeys {
		if key == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trend_entities (day, entity_key, mentions) VALUES (?, ?, 1)
             ON CONFLICT(day, entity_key) DO UPDATE SET mentions = mentions + 1`,
			day, key); err != nil {
			return fmt.Errorf("bump entity mentions: %w", err)
		}
	}
	return nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
