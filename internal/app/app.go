// Package app assembles the event bot from its configuration: database,
// dialogue sessions, optional shortener, handlers and the ops listener.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/eventbot/core/bootstrap"
	corecmd "github.com/m3rciful/eventbot/core/cmd"
	coreconfig "github.com/m3rciful/eventbot/core/config"
	"github.com/m3rciful/eventbot/core/database"
	"github.com/m3rciful/eventbot/core/logger"
	"github.com/m3rciful/eventbot/core/ops"
	"github.com/m3rciful/eventbot/core/telegram"
	"github.com/m3rciful/eventbot/core/telegram/router"
	"github.com/m3rciful/eventbot/core/telegram/state"
	"github.com/m3rciful/eventbot/internal/bot"
	"github.com/m3rciful/eventbot/internal/dialogue"
	"github.com/m3rciful/eventbot/internal/events"
	"github.com/m3rciful/eventbot/internal/shortener"
	"github.com/m3rciful/eventbot/migrations"
)

const stopTimeout = 5 * time.Second

// App owns every long-lived resource of a running bot.
type App struct {
	cfg      *Config
	db       *sqlx.DB
	redis    *redis.Client
	store    *events.Store
	sessions state.Manager
	sweeper  *state.Sweeper
	handlers *bot.Handlers
	registry *telegram.Registry
	ops      *ops.Server
}

// Bootstrap builds the App for cmd.Run.
func Bootstrap(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	return New(ctx, cfg, bootstrap.Options{})
}

// New connects the infrastructure described by cfg. Logger and database
// hooks left nil in base fall back to the real ones.
func New(ctx context.Context, cfg *Config, base bootstrap.Options) (*App, error) {
	base.Config = cfg.CoreConfig()
	base.Database = cfg.Database
	base.Schema = schemaStep(cfg.Database)

	res, err := bootstrap.Run(ctx, base)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:   cfg,
		db:    res.DB,
		store: events.NewStore(res.DB),
	}
	if err := a.wire(ctx); err != nil {
		_ = a.close()
		return nil, err
	}
	return a, nil
}

func schemaStep(dbCfg database.Config) func(context.Context, *sqlx.DB) error {
	return func(ctx context.Context, db *sqlx.DB) error {
		if dbCfg.SchemaMode == database.SchemaMigrate {
			return database.RunMigrations(dbCfg, migrations.FS)
		}
		return events.NewStore(db).EnsureSchema(ctx)
	}
}

func (a *App) wire(ctx context.Context) error {
	sc := a.cfg.Sessions
	switch sc.Backend {
	case coreconfig.SessionsRedis:
		client, err := state.NewRedisClient(ctx, sc.RedisURL)
		if err != nil {
			return fmt.Errorf("app: sessions: %w", err)
		}
		a.redis = client
		a.sessions = state.NewRedisManager(client, sc.TTL)
	default:
		a.sessions = state.NewMemoryManager()
		sweeper, err := state.NewSweeper(a.sessions, sc.TTL, sc.SweepSpec)
		if err != nil {
			return fmt.Errorf("app: sessions: %w", err)
		}
		a.sweeper = sweeper
	}

	var svc *shortener.Service
	if sh := a.cfg.Shortener; sh.Enabled {
		hasher, err := shortener.NewHasher(sh.Salt, sh.MinLength)
		if err != nil {
			return fmt.Errorf("app: shortener: %w", err)
		}
		svc = shortener.NewService(a.store, hasher, sh.Domain)
	}

	a.handlers = bot.New(bot.Deps{
		Events:    a.store,
		Sessions:  a.sessions,
		Shortener: svc,
		Dialogue:  a.cfg.Dialogue.options(),
	})
	a.registry = telegram.NewRegistry()
	if err := bot.Register(a.registry, a.handlers); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	logger.TWire.Info("app wired",
		slog.String("event", "app.wire"),
		slog.String("sessions", sc.Backend),
		slog.String("db_driver", a.cfg.Database.Driver),
		slog.Bool("shortener", svc != nil),
	)
	return nil
}

// TelegramRunOptions describes routes, middlewares and lifecycle hooks.
func (a *App) TelegramRunOptions() (telegram.RunOptions, error) {
	routes := router.Routes(a.registry, a.sessions, a.handlers, a.handlers.ReportError)

	return telegram.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    a.registry,
		Middlewares: telegram.DefaultMiddlewares(a.cfg.CoreConfig(), nil),
		Routes:      routes,
		OnStart:     a.start,
		OnStop:      a.stop,
	}, nil
}

// Checks lists the probes served on /healthz.
func (a *App) Checks() []ops.Check {
	checks := []ops.Check{{Name: "database", Ping: a.store.Ping}}
	if a.redis != nil {
		checks = append(checks, ops.Check{Name: "sessions", Ping: func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}})
	}
	return checks
}

func (a *App) start(context.Context, telegram.Runtime) error {
	if a.sweeper != nil {
		a.sweeper.Start()
	}
	if listen := a.cfg.Ops.Listen; listen != "" {
		a.ops = ops.Start(listen, ops.NewRouter(a.Checks()...))
	}
	return nil
}

func (a *App) stop(ctx context.Context, _ telegram.Runtime) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	var errs []error
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.ops != nil {
		if err := a.ops.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ops shutdown: %w", err))
		}
		a.ops = nil
	}
	errs = append(errs, a.close())
	return errors.Join(errs...)
}

func (a *App) close() error {
	var errs []error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
		a.redis = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("db close: %w", err))
		}
		a.db = nil
	}
	return errors.Join(errs...)
}

func (d DialogueConfig) options() dialogue.Options {
	return dialogue.Options{ValidateDates: d.ValidateDates}
}
