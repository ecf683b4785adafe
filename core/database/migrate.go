package database

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/eventbot/core/logger"
)

const previewFiles = 6

// migrationFile is an up script named "<version>_<title>.up.sql".
type migrationFile struct {
	Name    string
	Version uint64
}

// RunMigrations applies the up scripts kept under "<driver>/" in fsys.
func RunMigrations(cfg Config, fsys fs.FS) error {
	if fsys == nil {
		return errors.New("migrations: nil source filesystem")
	}
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()
	if err := awaitReady(ctx, cfg); err != nil {
		return err
	}

	dir := cfg.Driver
	files := scanMigrations(fsys, dir)
	logger.MIG.Debug("migrations resolved", fileAttrs("db.migrate.resolve", files,
		slog.String("path", dir),
	)...)

	m, err := newMigrator(cfg, fsys, dir)
	if err != nil {
		logger.MIG.Error("migrate init failed",
			slog.String("event", "db.migrate"),
			slog.String("path", dir),
			slog.String("err", err.Error()),
		)
		return err
	}
	defer func() { _, _ = m.Close() }()

	from := currentVersion(m)
	start := time.Now()
	err = m.Up()
	took := logger.RoundMS(time.Since(start))
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.MIG.Error("migration failed",
			slog.String("event", "db.migrate.apply"),
			slog.Uint64("from_ver", from),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("migrations: apply: %w", err)
	}

	to := currentVersion(m)
	applied := between(files, from, to)
	if len(applied) > 0 {
		logger.MIG.Debug("migrations applied", fileAttrs("db.migrate.apply", applied)...)
	}
	logger.MIG.Info("migrations summary",
		slog.String("event", "db.migrate.summary"),
		slog.Uint64("from_ver", from),
		slog.Uint64("to_ver", to),
		slog.Int("files", len(applied)),
		slog.Duration("duration", took),
	)
	return nil
}

func newMigrator(cfg Config, fsys fs.FS, dir string) (*migrate.Migrate, error) {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: open source %q: %w", dir, err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.MigrateURL())
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("migrations: init: %w", err)
	}
	return m, nil
}

// currentVersion reports 0 for a database that has never been migrated.
func currentVersion(m *migrate.Migrate) uint64 {
	v, _, err := m.Version()
	if err != nil {
		return 0
	}
	return uint64(v)
}

func scanMigrations(fsys fs.FS, dir string) []migrationFile {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil
	}
	var out []migrationFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		out = append(out, migrationFile{Name: name, Version: versionOf(name)})
	}
	slices.SortFunc(out, func(a, b migrationFile) int {
		if a.Version != b.Version {
			return cmp.Compare(a.Version, b.Version)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func versionOf(name string) uint64 {
	head, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(head, 10, 64)
	return v
}

// between keeps the files with from < version <= to.
func between(files []migrationFile, from, to uint64) []migrationFile {
	var out []migrationFile
	for _, f := range files {
		if f.Version > from && f.Version <= to {
			out = append(out, f)
		}
	}
	return out
}

func fileAttrs(event string, files []migrationFile, extra ...any) []any {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	attrs := append([]any{
		slog.String("event", event),
		slog.Int("files_total", len(files)),
	}, extra...)
	preview, truncated := logger.SummarizeStrings(names, previewFiles)
	if preview != "" {
		attrs = append(attrs, slog.String("files_preview", preview))
	}
	if truncated {
		attrs = append(attrs, slog.Bool("files_truncated", true))
	}
	return attrs
}
