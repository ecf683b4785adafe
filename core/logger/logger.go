// Package logger is the structured logging layer of the bot: a slog handler
// with a fixed key order, per-update correlation carried in the context and
// one logger per component.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/eventbot/core/buildinfo"
	coreconfig "github.com/m3rciful/eventbot/core/config"
)

var (
	setupOnce sync.Once
	stopOnce  sync.Once

	out     *asyncWriter
	files   []io.Closer
	level   slog.LevelVar
	debugOK = newSampler(1, 50)

	// L is the root logger. Component loggers derive from it.
	L *slog.Logger

	DB        *slog.Logger // database connections
	MIG       *slog.Logger // schema migrations
	TG        *slog.Logger // Telegram transport
	TWire     *slog.Logger // command and route wiring
	Store     *slog.Logger // event and link queries
	Dialogue  *slog.Logger // add-event form
	Shortener *slog.Logger // link shortening
	Sessions  *slog.Logger // dialogue session storage and eviction
	Ops       *slog.Logger // metrics and health listener
)

// Until InitLogger runs (tests, CLI subcommands) component loggers write
// through the slog default so call sites never see a nil logger.
func init() {
	setRoot(slog.Default())
}

func setRoot(root *slog.Logger) {
	L = root
	DB = Component("db")
	MIG = Component("db.migrate")
	TG = Component("tg")
	TWire = Component("tg.wire")
	Store = Component("store")
	Dialogue = Component("dialogue")
	Shortener = Component("shortener")
	Sessions = Component("tg.sessions")
	Ops = Component("ops")
}

// InitLogger installs the configured handler as the slog default. Only the
// first call has any effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	setupOnce.Do(func() {
		var lc coreconfig.LoggingConfig
		if cfg != nil {
			lc = cfg.Logging
		}
		level.Set(parseLevel(lc.Level))
		debugOK.Set(debugRatio(lc.DebugSample))

		var outputs []io.Writer
		outputs, err = openOutputs(lc)
		if err != nil {
			return
		}
		out = newAsyncWriter(outputs, 0)
		root := slog.New(newHandler(&level, out, pickFormat(lc), parseKeyOrder(lc.KeysOrder)))
		slog.SetDefault(root)
		setRoot(root)

		root.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("event", "startup"),
			slog.String("go_version", runtime.Version()),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", profile(lc)),
		)
	})
	return err
}

// Shutdown flushes queued lines and closes the log file.
func Shutdown() error {
	var errs []error
	stopOnce.Do(func() {
		if out != nil {
			errs = append(errs, out.Flush(), out.Close())
		}
		for _, f := range files {
			errs = append(errs, f.Close())
		}
	})
	return errors.Join(errs...)
}

func openOutputs(lc coreconfig.LoggingConfig) ([]io.Writer, error) {
	outputs := []io.Writer{os.Stdout}
	dir, name := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile)
	if dir == "" || name == "" {
		return outputs, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	files = append(files, f)
	return append(outputs, f), nil
}

func pickFormat(lc coreconfig.LoggingConfig) lineFormat {
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "json":
		return formatJSON
	case "kv", "text", "pretty":
		return formatKV
	}
	switch profile(lc) {
	case "debug", "dev":
		return formatKV
	}
	return formatJSON
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func profile(lc coreconfig.LoggingConfig) string {
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		return p
	}
	return "prod"
}

// debugRatio defaults to one line in fifty.
func debugRatio(spec string) (int, int) {
	if strings.TrimSpace(spec) == "" {
		return 1, 50
	}
	return parseRatio(spec)
}

// ShouldSampleDebug gates high volume debug lines. LOG_TRACE=1 lets all of
// them through.
func ShouldSampleDebug() bool {
	switch strings.ToLower(os.Getenv("LOG_TRACE")) {
	case "1", "true", "on", "yes":
		return true
	}
	return debugOK.Allow()
}

// Background is the context for logs not tied to an update.
func Background() context.Context {
	return context.Background()
}

// Component returns L scoped to name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// LogEvent logs an event line through log, or the logger in ctx when log
// is nil.
func LogEvent(ctx context.Context, log *slog.Logger, lvl slog.Level, event string, attrs ...slog.Attr) {
	if log == nil {
		log = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	log.LogAttrs(ctx, lvl, "", attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelError, event, attrs...)
}
