// Package shortener implements the optional URL shortener: Hashids-based
// hashes of row ids and per-link usage counting.
package shortener

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/eventbot/core/logger"
	"github.com/m3rciful/eventbot/internal/events"
)

// Config toggles the shortener and configures its hashes.
type Config struct {
	Enabled   bool   `yaml:"enabled" envconfig:"SHORTENER_ENABLED"`
	Domain    string `yaml:"domain" envconfig:"SHORT_DOMAIN"`
	Salt      string `yaml:"salt" envconfig:"HASHIDS_SALT"`
	MinLength int    `yaml:"min_length" envconfig:"HASHIDS_MIN_LENGTH"`
}

// Normalize validates an enabled shortener. A disabled one is left untouched.
func (c *Config) Normalize() error {
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Domain) == "" {
		return fmt.Errorf("shortener.domain is required when the shortener is enabled")
	}
	if c.MinLength < 0 {
		return fmt.Errorf("shortener.min_length must be >= 0")
	}
	return nil
}

// Store is the slice of the events store the shortener needs.
type Store interface {
	FindHashByLongURL(ctx context.Context, longURL string) (string, bool, error)
	InsertURLAndAssignHash(ctx context.Context, longURL string, enc events.Encoder) (string, error)
	IncrementUsageByHash(ctx context.Context, hash string) error
	ListAllHashed(ctx context.Context) ([]events.HashedURL, error)
}

// ShortLink is the result of a shorten request.
type ShortLink struct {
	LongURL  string
	Hash     string
	ShortURL string
}

// LinkStat is one shortened link with its usage counter.
type LinkStat struct {
	ShortURL   string
	UsageCount int64
}

// Service shortens links and reports their usage.
type Service struct {
	store  Store
	hasher *Hasher
	domain string
}

// NewService wires a Service.
func NewService(store Store, hasher *Hasher, domain string) *Service {
	return &Service{store: store, hasher: hasher, domain: domain}
}

// Shorten returns the short link for longURL, creating it on first use, and
// counts the request as one usage.
func (s *Service) Shorten(ctx context.Context, longURL string) (ShortLink, error) {
	longURL = strings.TrimSpace(longURL)
	hash, found, err := s.store.FindHashByLongURL(ctx, longURL)
	if err != nil {
		return ShortLink{}, err
	}
	if !found {
		hash, err = s.store.InsertURLAndAssignHash(ctx, longURL, s.hasher)
		if err != nil {
			return ShortLink{}, err
		}
		logger.Shortener.LogAttrs(ctx, slog.LevelInfo, "link shortened",
			slog.String("event", "shortener.create"),
			slog.String("hash", hash),
		)
	}
	if err := s.store.IncrementUsageByHash(ctx, hash); err != nil {
		return ShortLink{}, err
	}
	return ShortLink{LongURL: longURL, Hash: hash, ShortURL: s.domain + hash}, nil
}

// Stats lists every shortened link with its usage counter.
func (s *Service) Stats(ctx context.Context) ([]LinkStat, error) {
	rows, err := s.store.ListAllHashed(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]LinkStat, 0, len(rows))
	for _, r := range rows {
		out = append(out, LinkStat{ShortURL: s.domain + r.HashValue, UsageCount: r.UsageCount})
	}
	return out, nil
}
