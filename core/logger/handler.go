package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type lineFormat int

const (
	formatJSON lineFormat = iota
	formatKV
)

const tsLayout = "2006-01-02T15:04:05.000Z07:00"

// lineSink receives one encoded line per record.
type lineSink interface {
	Write(line []byte) error
}

type field struct {
	key string
	val any
}

// record is an insertion ordered set of fields. Setting an existing key
// replaces its value in place.
type record struct {
	fields []field
	index  map[string]int
}

func newRecord(capacity int) *record {
	return &record{
		fields: make([]field, 0, capacity),
		index:  make(map[string]int, capacity),
	}
}

func (r *record) set(key string, val any) {
	if i, ok := r.index[key]; ok {
		r.fields[i].val = val
		return
	}
	r.index[key] = len(r.fields)
	r.fields = append(r.fields, field{key: key, val: val})
}

func (r *record) setDefault(key string, val any) {
	if _, ok := r.index[key]; !ok {
		r.set(key, val)
	}
}

func (r *record) str(key string) string {
	i, ok := r.index[key]
	if !ok {
		return ""
	}
	switch v := r.fields[i].val.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// handler renders records as single JSON or key=value lines with a stable
// key order.
type handler struct {
	level  slog.Leveler
	sink   lineSink
	format lineFormat
	rank   map[string]int
	fixed  []field
	group  string
}

func newHandler(level slog.Leveler, sink lineSink, format lineFormat, order []string) *handler {
	if level == nil {
		level = slog.LevelInfo
	}
	if len(order) == 0 {
		order = defaultKeyOrder
	}
	rank := make(map[string]int, len(order))
	for i, k := range order {
		if _, dup := rank[k]; !dup {
			rank[k] = i
		}
	}
	return &handler{level: level, sink: sink, format: format, rank: rank}
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.fixed = append([]field(nil), h.fixed...)
	for _, a := range attrs {
		clone.fixed = appendAttr(clone.fixed, h.group, a)
	}
	return &clone
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = joinKey(h.group, name)
	return &clone
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	if h.sink == nil {
		return errors.New("logger: no sink")
	}
	rec := newRecord(len(h.fixed) + r.NumAttrs() + 8)
	ts := r.Time.UTC()
	rec.set("ts", ts.Truncate(time.Millisecond).Format(tsLayout))
	rec.set("level", levelName(r.Level.String()))
	if h.format == formatJSON {
		rec.set("ts_unix_nano", ts.UnixNano())
	}
	for _, f := range h.fixed {
		rec.set(f.key, f.val)
	}
	var own []field
	r.Attrs(func(a slog.Attr) bool {
		own = appendAttr(own, h.group, a)
		return true
	})
	for _, f := range own {
		rec.set(f.key, f.val)
	}
	for _, a := range metaFrom(ctx).attrs() {
		rec.setDefault(a.Key, a.Value.Any())
	}
	h.finish(rec, r.Message)

	line, err := h.encode(rec)
	if err != nil {
		return err
	}
	return h.sink.Write(append(line, '\n'))
}

// finish fills the mandatory keys and normalizes enumerated values.
func (h *handler) finish(rec *record, msg string) {
	if rid := rec.str("rid"); rid != "" {
		if short := CompactRID(rid); short != rid {
			if h.format == formatJSON {
				rec.setDefault("rid_full", rid)
			}
			rec.set("rid", short)
		}
	}
	if rec.str("event") == "" {
		if msg == "" {
			msg = "unknown"
		}
		rec.set("event", msg)
	}
	if rec.str("component") == "" {
		rec.set("component", "app")
	}
	if s := strings.ToLower(rec.str("status")); s != "" {
		if _, ok := statusValues[s]; ok {
			rec.set("status", s)
		}
	}
	if o := strings.ToLower(rec.str("outcome")); o != "" {
		if _, ok := outcomeValues[o]; ok {
			rec.set("outcome", o)
		} else {
			rec.set("outcome", nil)
		}
	}
}

func (h *handler) sorted(rec *record) []field {
	out := make([]field, 0, len(rec.fields))
	for _, f := range rec.fields {
		if f.val == nil || f.val == "" {
			continue
		}
		out = append(out, f)
	}
	last := len(h.rank)
	sort.SliceStable(out, func(i, j int) bool {
		ri, ok := h.rank[out[i].key]
		if !ok {
			ri = last
		}
		rj, ok := h.rank[out[j].key]
		if !ok {
			rj = last
		}
		if ri != rj {
			return ri < rj
		}
		return ri == last && out[i].key < out[j].key
	})
	return out
}

func (h *handler) encode(rec *record) ([]byte, error) {
	fields := h.sorted(rec)
	var b bytes.Buffer
	if h.format == formatKV {
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(f.key)
			b.WriteByte('=')
			b.WriteString(kvValue(f.val))
		}
		return b.Bytes(), nil
	}
	b.WriteByte('{')
	for i, f := range fields {
		val, err := json.Marshal(f.val)
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", f.key, err)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(f.key))
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func kvValue(v any) string {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

// appendAttr flattens a into dst, expanding groups into dotted keys.
func appendAttr(dst []field, prefix string, a slog.Attr) []field {
	a.Value = a.Value.Resolve()
	key := joinKey(prefix, a.Key)
	if a.Value.Kind() == slog.KindGroup {
		for _, child := range a.Value.Group() {
			dst = appendAttr(dst, key, child)
		}
		return dst
	}
	if a.Key == "" {
		return dst
	}
	k, v := fieldValue(key, a.Value)
	return append(dst, field{key: k, val: v})
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// fieldValue converts v to a plain JSON value. Durations are logged in
// whole milliseconds under a key ending in _ms.
func fieldValue(key string, v slog.Value) (string, any) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String())
	case slog.KindDuration:
		if !strings.HasSuffix(key, "_ms") {
			key += "_ms"
		}
		return key, RoundMS(v.Duration()).Milliseconds()
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u)
		}
		return key, v.Uint64()
	case slog.KindAny:
		switch x := v.Any().(type) {
		case nil:
			return key, nil
		case error:
			return key, x.Error()
		case fmt.Stringer:
			return key, x.String()
		default:
			return key, fmt.Sprint(x)
		}
	}
	return key, v.Any()
}
