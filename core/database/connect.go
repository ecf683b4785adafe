package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/eventbot/core/logger"
)

const (
	readyTimeout = 30 * time.Second
	readyPoll    = 2 * time.Second
	pingTimeout  = 5 * time.Second
)

func init() {
	// sqlx only knows the cgo driver name "sqlite3"
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Connect waits for the server, opens the pool and sizes it from cfg.
func Connect(cfg Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()
	if err := awaitReady(ctx, cfg); err != nil {
		return nil, err
	}

	start := time.Now()
	db, err := open(ctx, cfg)
	took := logger.RoundMS(time.Since(start))
	if err != nil {
		logger.DB.Error("db connect failed", append(cfg.logAttrs("db.connect"),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)...)
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)
	logger.DB.Info("db connected", append(cfg.logAttrs("db.connect"),
		slog.Int("pool_open", cfg.MaxConnections),
		slog.Duration("duration", took),
	)...)
	return db, nil
}

func open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// awaitReady polls a postgres server until it answers or ctx expires.
// SQLite files are created on open and need no wait.
func awaitReady(ctx context.Context, cfg Config) error {
	if cfg.Driver != DriverPostgres {
		return nil
	}
	tick := time.NewTicker(readyPoll)
	defer tick.Stop()

	attempts := 0
	for {
		attempts++
		db, err := open(ctx, cfg)
		if err == nil {
			_ = db.Close()
			if attempts > 1 {
				logger.DB.Info("db ready", append(cfg.logAttrs("db.ready"), slog.Int("attempts", attempts))...)
			}
			return nil
		}
		logger.DB.Debug("db not ready", append(cfg.logAttrs("db.ready"),
			slog.Int("attempts", attempts),
			slog.String("err", err.Error()),
		)...)
		select {
		case <-ctx.Done():
			logger.DB.Error("db not ready", append(cfg.logAttrs("db.ready"),
				slog.Int("attempts", attempts),
				slog.String("err", err.Error()),
			)...)
			return fmt.Errorf("database not ready after %d attempts: %w", attempts, err)
		case <-tick.C:
		}
	}
}

func (c Config) logAttrs(event string) []any {
	attrs := []any{
		slog.String("event", event),
		slog.String("db_driver", c.Driver),
	}
	if c.Driver == DriverSQLite {
		return append(attrs, slog.String("db", c.Path))
	}
	return append(attrs,
		slog.String("host", c.Host),
		slog.String("port", c.Port),
		slog.String("db", c.Name),
	)
}
