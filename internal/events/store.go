// Package events persists events and shortened links in the single urls table.
package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/eventbot/core/logger"
	"github.com/m3rciful/eventbot/core/metrics"
	"github.com/m3rciful/eventbot/migrations"
)

var (
	// ErrNotFound is returned when an update targets a row that does not exist.
	ErrNotFound = errors.New("events: not found")
	// ErrUnsupportedDriver is returned by EnsureSchema for drivers without embedded DDL.
	ErrUnsupportedDriver = errors.New("events: unsupported driver")
)

// Event rows always carry a summary; rows created by the shortener do not.
const (
	qInsertEvent = `INSERT INTO urls (long_url, summary, location, description, date_start, date_end)
VALUES (?, ?, ?, ?, ?, ?)`
	qListEvents = `SELECT id, COALESCE(summary, '') AS summary, long_url
FROM urls WHERE summary IS NOT NULL ORDER BY id`
	qIncrementByID = `UPDATE urls SET usage_count = usage_count + 1 WHERE id = ?
RETURNING COALESCE(summary, '') AS summary, long_url`
	qUsageStats = `SELECT COALESCE(summary, '') AS summary, COALESCE(usage_count, 0) AS usage_count
FROM urls WHERE summary IS NOT NULL ORDER BY id`
	qFindHash = `SELECT hash_value FROM urls
WHERE long_url = ? AND COALESCE(hash_value, '') <> '' ORDER BY id LIMIT 1`
	qIncrementByHash = `UPDATE urls SET usage_count = usage_count + 1 WHERE hash_value = ?`
	qInsertURL       = `INSERT INTO urls (long_url) VALUES (?) RETURNING id`
	qAssignHash      = `UPDATE urls SET hash_value = ? WHERE id = ?`
	qListHashed      = `SELECT hash_value, COALESCE(usage_count, 0) AS usage_count
FROM urls WHERE COALESCE(hash_value, '') <> '' ORDER BY id`
)

// Store is the persistence gateway over a pooled *sqlx.DB.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps db. The pool handles connection acquisition per call.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema applies the embedded up scripts for the connected driver.
// Every script is idempotent, so repeated calls are harmless.
func (s *Store) EnsureSchema(ctx context.Context) (err error) {
	defer s.observe(ctx, "ensure_schema", time.Now(), &err)

	driver := s.db.DriverName()
	files, err := fs.Glob(migrations.FS, path.Join(driver, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
	sort.Strings(files)
	for _, name := range files {
		ddl, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("ensure schema: read %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(ddl)); err != nil {
			return fmt.Errorf("ensure schema: exec %s: %w", name, err)
		}
	}
	return nil
}

// InsertEvent stores a confirmed event. usage_count and hash_value keep their defaults.
func (s *Store) InsertEvent(ctx context.Context, e NewEvent) (err error) {
	defer s.observe(ctx, "insert_event", time.Now(), &err)

	_, err = s.db.ExecContext(ctx, s.db.Rebind(qInsertEvent),
		e.LongURL, e.Summary, e.Location, e.Description, e.DateStart, e.DateEnd)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListEvents returns every event ordered by id.
func (s *Store) ListEvents(ctx context.Context) (_ []EventRef, err error) {
	defer s.observe(ctx, "list_events", time.Now(), &err)

	var out []EventRef
	if err := s.db.SelectContext(ctx, &out, qListEvents); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// IncrementUsageByID bumps the usage counter of an event and returns its link.
func (s *Store) IncrementUsageByID(ctx context.Context, id int64) (_ EventLink, err error) {
	defer s.observe(ctx, "increment_usage_by_id", time.Now(), &err)

	var link EventLink
	err = s.db.GetContext(ctx, &link, s.db.Rebind(qIncrementByID), id)
	if errors.Is(err, sql.ErrNoRows) {
		return EventLink{}, fmt.Errorf("increment usage of event %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return EventLink{}, fmt.Errorf("increment usage of event %d: %w", id, err)
	}
	return link, nil
}

// ListUsageStats returns the usage counter of every event.
func (s *Store) ListUsageStats(ctx context.Context) (_ []UsageStat, err error) {
	defer s.observe(ctx, "list_usage_stats", time.Now(), &err)

	var out []UsageStat
	if err := s.db.SelectContext(ctx, &out, qUsageStats); err != nil {
		return nil, fmt.Errorf("list usage stats: %w", err)
	}
	return out, nil
}

// FindHashByLongURL reports the hash already assigned to longURL, if any.
func (s *Store) FindHashByLongURL(ctx context.Context, longURL string) (_ string, _ bool, err error) {
	defer s.observe(ctx, "find_hash", time.Now(), &err)

	var hash string
	err = s.db.GetContext(ctx, &hash, s.db.Rebind(qFindHash), longURL)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find hash: %w", err)
	}
	return hash, true, nil
}

// IncrementUsageByHash bumps the usage counter of a shortened link.
func (s *Store) IncrementUsageByHash(ctx context.Context, hash string) (err error) {
	defer s.observe(ctx, "increment_usage_by_hash", time.Now(), &err)

	res, err := s.db.ExecContext(ctx, s.db.Rebind(qIncrementByHash), hash)
	if err != nil {
		return fmt.Errorf("increment usage of %q: %w", hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment usage of %q: %w", hash, err)
	}
	if n == 0 {
		return fmt.Errorf("increment usage of %q: %w", hash, ErrNotFound)
	}
	return nil
}

// InsertURLAndAssignHash inserts longURL, encodes the new id, and stores the
// hash on the same row. Both statements share one transaction.
func (s *Store) InsertURLAndAssignHash(ctx context.Context, longURL string, enc Encoder) (_ string, err error) {
	defer s.observe(ctx, "insert_url_assign_hash", time.Now(), &err)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("shorten: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id int64
	if err = tx.GetContext(ctx, &id, tx.Rebind(qInsertURL), longURL); err != nil {
		return "", fmt.Errorf("shorten: insert: %w", err)
	}
	hash, err := enc.Encode(id)
	if err != nil {
		return "", fmt.Errorf("shorten: encode id %d: %w", id, err)
	}
	if _, err = tx.ExecContext(ctx, tx.Rebind(qAssignHash), hash, id); err != nil {
		return "", fmt.Errorf("shorten: assign hash: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("shorten: commit: %w", err)
	}
	return hash, nil
}

// ListAllHashed returns every shortened link with its usage counter.
func (s *Store) ListAllHashed(ctx context.Context) (_ []HashedURL, err error) {
	defer s.observe(ctx, "list_all_hashed", time.Now(), &err)

	var out []HashedURL
	if err := s.db.SelectContext(ctx, &out, qListHashed); err != nil {
		return nil, fmt.Errorf("list hashed: %w", err)
	}
	return out, nil
}

func (s *Store) observe(ctx context.Context, op string, start time.Time, errp *error) {
	took := time.Since(start)
	var err error
	if errp != nil {
		err = *errp
	}
	metrics.ObserveStore(op, err, took)

	if err != nil && !errors.Is(err, ErrNotFound) {
		logger.Store.LogAttrs(ctx, slog.LevelWarn, "store op failed",
			slog.String("event", "store."+op),
			slog.String("status", logger.Status(err)),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return
	}
	if logger.ShouldSampleDebug() {
		logger.Store.LogAttrs(ctx, slog.LevelDebug, "store op",
			slog.String("event", "store."+op),
			slog.String("status", "ok"),
			slog.Duration("duration", logger.RoundMS(took)),
		)
	}
}
