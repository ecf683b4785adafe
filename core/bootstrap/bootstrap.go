// Package bootstrap brings up the logger and the database in that order,
// so every later failure is logged with the configured handler.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/eventbot/core/config"
	coredatabase "github.com/m3rciful/eventbot/core/database"
	"github.com/m3rciful/eventbot/core/logger"
)

// Options select the infrastructure to start. LoggerInit and Connect fall
// back to logger.InitLogger and database.Connect.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	// Schema prepares tables on the fresh connection. Nil skips the step.
	Schema func(context.Context, *sqlx.DB) error
}

// Result is the infrastructure started by Run. The caller owns DB.
type Result struct {
	DB *sqlx.DB
}

// Run starts the logger, opens the database and prepares its schema. The
// connection is closed again when the schema step fails.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config")
	}
	initLog := opts.LoggerInit
	if initLog == nil {
		initLog = logger.InitLogger
	}
	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}

	if err := initLog(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger: %w", err)
	}

	start := time.Now()
	db, err := connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database: %w", err)
	}
	if opts.Schema != nil {
		if err := opts.Schema(ctx, db); err != nil {
			return nil, errors.Join(fmt.Errorf("bootstrap: schema: %w", err), db.Close())
		}
	}
	logger.DB.Info("database ready",
		slog.String("event", "db.bootstrap"),
		slog.String("db_driver", opts.Database.Driver),
		slog.String("schema_mode", opts.Database.SchemaMode),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return &Result{DB: db}, nil
}
