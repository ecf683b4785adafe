package router

import (
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/eventbot/core/logger"
	"github.com/m3rciful/eventbot/core/metrics"
	tghelpers "github.com/m3rciful/eventbot/core/telegram/helpers"
	"github.com/m3rciful/eventbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// span measures one handler run and writes the handler.handled line for it.
type span struct {
	c     tele.Context
	name  string
	start time.Time
	attrs []slog.Attr
}

func begin(c tele.Context, name string, attrs ...slog.Attr) *span {
	return &span{c: c, name: name, start: time.Now(), attrs: attrs}
}

// run calls fn, logs the result and records the handler metrics.
func (s *span) run(fn tele.HandlerFunc) error {
	tghelpers.WithHandler(s.c, s.name)
	var err error
	if fn != nil {
		err = fn(s.c)
	}
	s.finish(logger.Status(err), err)
	metrics.ObserveHandler(s.name, err, time.Since(s.start))
	return err
}

// skip logs an update nobody handled.
func (s *span) skip() {
	s.finish("skip", nil)
}

// fail logs an error raised before any handler ran.
func (s *span) fail(err error) {
	s.finish("fail", err)
}

func (s *span) finish(status string, err error) {
	ctx := tghelpers.WithHandler(s.c, s.name)
	msgs, kb := middleware.GetCounters(s.c)
	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.String("outcome", logger.Status(err)),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", time.Since(s.start)),
	}, s.attrs...)
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
		)
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "handler.handled", attrs...)
}

// normalizeHandlerName turns a command or state name into a metric label.
func normalizeHandlerName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// deriveErrorCode prefers an error's own Code() and falls back to its type
// name.
func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if c, ok := err.(interface{ Code() string }); ok {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(t.Name())
}
