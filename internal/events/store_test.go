package events

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s := NewStore(db)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

type prefixEncoder struct{ err error }

func (e prefixEncoder) Encode(id int64) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return fmt.Sprintf("h%d", id), nil
}

var meetup = NewEvent{
	Summary:     "Meetup",
	LongURL:     "http://x.test/e1",
	Location:    "Room 5",
	Description: "desc",
	DateStart:   "2025-01-01 10:00:00",
	DateEnd:     "2025-01-01 12:00:00",
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

type storedRow struct {
	Summary     string `db:"summary"`
	LongURL     string `db:"long_url"`
	Location    string `db:"location"`
	Description string `db:"description"`
	DateStart   string `db:"date_start"`
	DateEnd     string `db:"date_end"`
	HashValue   string `db:"hash_value"`
	UsageCount  int64  `db:"usage_count"`
}

func loadRow(t *testing.T, s *Store, id int64) storedRow {
	t.Helper()
	var row storedRow
	err := s.db.GetContext(context.Background(), &row, s.db.Rebind(
		`SELECT summary, long_url, location, description, date_start, date_end, hash_value, usage_count
		FROM urls WHERE id = ?`), id)
	require.NoError(t, err)
	return row
}

func TestInsertEventStoresDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertEvent(ctx, meetup))

	refs, err := s.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, EventRef{ID: refs[0].ID, Summary: "Meetup", LongURL: "http://x.test/e1"}, refs[0])

	assert.Equal(t, storedRow{
		Summary:     "Meetup",
		LongURL:     "http://x.test/e1",
		Location:    "Room 5",
		Description: "desc",
		DateStart:   "2025-01-01 10:00:00",
		DateEnd:     "2025-01-01 12:00:00",
	}, loadRow(t, s, refs[0].ID))
}

func TestListEventsEmpty(t *testing.T) {
	s := newTestStore(t)
	refs, err := s.ListEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestIncrementUsageByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertEvent(ctx, meetup))
	other := meetup
	other.Summary = "Other"
	require.NoError(t, s.InsertEvent(ctx, other))

	refs, err := s.ListEvents(ctx)
	require.NoError(t, err)
	id := refs[0].ID
	before := loadRow(t, s, id)

	link, err := s.IncrementUsageByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, EventLink{Summary: "Meetup", LongURL: "http://x.test/e1"}, link)
	_, err = s.IncrementUsageByID(ctx, id)
	require.NoError(t, err)

	stats, err := s.ListUsageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []UsageStat{{Summary: "Meetup", UsageCount: 2}, {Summary: "Other", UsageCount: 0}}, stats)

	after := loadRow(t, s, id)
	assert.Equal(t, int64(2), after.UsageCount)
	after.UsageCount = before.UsageCount
	assert.Equal(t, before, after, "only usage_count may change")
	assert.Equal(t, int64(0), loadRow(t, s, refs[1].ID).UsageCount)
}

func TestIncrementUsageByIDNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.IncrementUsageByID(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestShortenerOperations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, found, err := s.FindHashByLongURL(ctx, "https://example.com/long")
	require.NoError(t, err)
	assert.False(t, found)

	hash, err := s.InsertURLAndAssignHash(ctx, "https://example.com/long", prefixEncoder{})
	require.NoError(t, err)
	assert.Equal(t, "h1", hash)

	got, found, err := s.FindHashByLongURL(ctx, "https://example.com/long")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, hash, got)

	require.NoError(t, s.IncrementUsageByHash(ctx, hash))
	require.NoError(t, s.IncrementUsageByHash(ctx, hash))
	assert.ErrorIs(t, s.IncrementUsageByHash(ctx, "missing"), ErrNotFound)

	hashed, err := s.ListAllHashed(ctx)
	require.NoError(t, err)
	assert.Equal(t, []HashedURL{{HashValue: "h1", UsageCount: 2}}, hashed)

	events, err := s.ListEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, events, "shortened links are not events")
}

func TestInsertURLAndAssignHashRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertURLAndAssignHash(ctx, "https://example.com/a", prefixEncoder{err: errors.New("salt missing")})
	require.Error(t, err)

	var n int
	require.NoError(t, s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM urls`))
	assert.Zero(t, n)
}

func TestEnsureSchemaUnsupportedDriver(t *testing.T) {
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	s := NewStore(sqlx.NewDb(db.DB, "oracle"))
	assert.ErrorIs(t, s.EnsureSchema(context.Background()), ErrUnsupportedDriver)
}
