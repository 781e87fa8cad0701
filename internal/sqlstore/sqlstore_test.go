package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestOpenCreatesAndVerifiesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")
	schema := Schema{Name: "test", Version: 1, SQL: `
CREATE TABLE schema_version (version INTEGER NOT NULL);
CREATE TABLE things (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`}

	db, err := Open(context.Background(), path, schema)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := db.Exec("INSERT INTO things (name) VALUES ('a')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_ = db.Close()

	db, err = Open(context.Background(), path, schema)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = db.Close()

	schema.Version = 2
	if _, err := Open(context.Background(), path, schema); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestRetryOnBusy(t *testing.T) {
	calls := 0
	err := RetryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("RetryOnBusy: err=%v calls=%d", err, calls)
	}

	calls = 0
	permanent := errors.New("constraint failed")
	if err := RetryOnBusy(context.Background(), func() error { calls++; return permanent }); !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("non-busy errors should not retry: err=%v calls=%d", err, calls)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 30, 0, 0, time.UTC)
	parsed, err := ParseTime(FormatTime(now))
	if err != nil || !parsed.Equal(now) {
		t.Fatalf("ParseTime: %v %v", parsed, err)
	}
	if NullableTime(nil) != nil || NullableString("") != nil {
		t.Fatal("expected NULL mappings")
	}
}

func TestConcurrentReadThenWriteTransactions(t *testing.T) {
	schema := Schema{Name: "test", Version: 1, SQL: `
CREATE TABLE schema_version (version INTEGER NOT NULL);
CREATE TABLE items (id TEXT PRIMARY KEY, status TEXT NOT NULL);`}
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "contend.db"), schema)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	const writers = 16
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ctx := context.Background()
			for j := range 10 {
				id := fmt.Sprintf("item-%d-%d", n, j)
				tx, err := db.BeginTx(ctx, nil)
				if err != nil {
					errs <- err
					return
				}
				var count int
				if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM items WHERE id = ?`, id).Scan(&count); err != nil {
					_ = tx.Rollback()
					errs <- err
					return
				}
				if _, err := tx.ExecContext(ctx, `INSERT INTO items (id, status) VALUES (?, 'queued')`, id); err != nil {
					_ = tx.Rollback()
					errs <- err
					return
				}
				if err := tx.Commit(); err != nil {
					errs <- err
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("transaction without busy retry failed: %v", err)
	}

	var total int
	if err := db.QueryRow(`SELECT COUNT(1) FROM items`).Scan(&total); err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != writers*10 {
		t.Fatalf("expected %d rows, got %d", writers*10, total)
	}
}
