package database

import (
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
)

func TestScanMigrationsKeepsUpScriptsInVersionOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"postgres/000010_add_hash.up.sql":        {Data: []byte("-- up")},
		"postgres/000002_add_index.up.sql":       {Data: []byte("-- up")},
		"postgres/000001_create_events.up.sql":   {Data: []byte("-- up")},
		"postgres/000001_create_events.down.sql": {Data: []byte("-- down")},
		"sqlite/000001_create_events.up.sql":     {Data: []byte("-- up")},
	}

	got := scanMigrations(fsys, "postgres")
	assert.Equal(t, []migrationFile{
		{Name: "000001_create_events.up.sql", Version: 1},
		{Name: "000002_add_index.up.sql", Version: 2},
		{Name: "000010_add_hash.up.sql", Version: 10},
	}, got)
	assert.Nil(t, scanMigrations(fsys, "mysql"))
}

func TestBetween(t *testing.T) {
	files := []migrationFile{{"000001_a.up.sql", 1}, {"000002_b.up.sql", 2}, {"000003_c.up.sql", 3}}

	assert.Equal(t, files[1:], between(files, 1, 3))
	assert.Nil(t, between(files, 3, 3))
	assert.Nil(t, between(files, 3, 1))
	assert.Equal(t, uint64(2), versionOf("000002_b.up.sql"))
	assert.Equal(t, uint64(0), versionOf("garbage"))
}

func TestFileAttrsTruncatesPreview(t *testing.T) {
	var files []migrationFile
	for i := range 8 {
		files = append(files, migrationFile{Name: string(rune('a'+i)) + ".up.sql", Version: uint64(i + 1)})
	}
	attrs := attrMap(fileAttrs("db.migrate.resolve", files))
	assert.Equal(t, "8", attrs["files_total"])
	assert.Equal(t, "a.up.sql, b.up.sql, c.up.sql, d.up.sql, e.up.sql, f.up.sql", attrs["files_preview"])
	assert.Equal(t, "true", attrs["files_truncated"])
}

func TestLogAttrsDependOnDriver(t *testing.T) {
	lite := attrMap(Config{Driver: DriverSQLite, Path: "events.db"}.logAttrs("db.connect"))
	assert.Equal(t, "events.db", lite["db"])
	assert.NotContains(t, lite, "host")

	pg := attrMap(Config{Driver: DriverPostgres, Host: "db", Port: "5432", Name: "events"}.logAttrs("db.connect"))
	assert.Equal(t, "db", pg["host"])
	assert.Equal(t, "events", pg["db"])
	assert.Equal(t, DriverPostgres, pg["db_driver"])
}

func attrMap(args []any) map[string]string {
	out := make(map[string]string, len(args))
	for _, a := range args {
		if attr, ok := a.(slog.Attr); ok {
			out[attr.Key] = attr.Value.String()
		}
	}
	return out
}

func TestConfigNormalize(t *testing.T) {
	t.Run("postgres defaults", func(t *testing.T) {
		cfg := Config{Host: "db", Name: "events", User: "bot", Password: "p@ss word"}
		assert.NoError(t, cfg.Normalize())
		assert.Equal(t, DriverPostgres, cfg.Driver)
		assert.Equal(t, "5432", cfg.Port)
		assert.Equal(t, "disable", cfg.SSLMode)
		assert.Equal(t, SchemaEnsure, cfg.SchemaMode)
		assert.Equal(t, 10, cfg.MaxConnections)
		assert.Equal(t, "postgres://bot:p%40ss%20word@db:5432/events?sslmode=disable", cfg.DSN())
		assert.Equal(t, cfg.DSN(), cfg.MigrateURL())
	})

	t.Run("sqlite forces single connection", func(t *testing.T) {
		cfg := Config{Driver: "SQLite", Path: "data/events.db", MaxConnections: 8, SchemaMode: "migrate"}
		assert.NoError(t, cfg.Normalize())
		assert.Equal(t, DriverSQLite, cfg.Driver)
		assert.Equal(t, 1, cfg.MaxConnections)
		assert.Equal(t, "data/events.db", cfg.DSN())
		assert.Equal(t, "sqlite://data/events.db", cfg.MigrateURL())
	})

	t.Run("rejects unknown values", func(t *testing.T) {
		assert.Error(t, (&Config{Driver: "mysql"}).Normalize())
		assert.Error(t, (&Config{Driver: "postgres"}).Normalize())
		assert.Error(t, (&Config{Driver: "sqlite"}).Normalize())
		assert.Error(t, (&Config{Driver: "sqlite", Path: "x.db", SchemaMode: "drop"}).Normalize())
	})
}
