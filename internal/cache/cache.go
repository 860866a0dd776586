// Package cache keeps finished discovery passes in Redis so repeated runs over
// an unchanged pool skip scoring.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/knot-matcher/internal/discovery"
	"github.com/spigell/knot-matcher/internal/logger"
	"github.com/spigell/knot-matcher/internal/questionnaire"
)

const (
	KeyPrefix  = "knot:matches:"
	DefaultTTL = 10 * time.Minute
)

type Config struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Entry is what gets stored per discovery pass.
type Entry struct {
	Results  []discovery.MatchResult `json:"results"`
	Stats    discovery.Stats         `json:"stats"`
	CachedAt time.Time               `json:"cached_at"`
}

// ResultCache is safe to use when nil or when Redis is unreachable: lookups
// miss and stores are dropped.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	warnedUnavailable atomic.Bool
}

// Connect dials Redis and returns a cache that bypasses itself when the
// server does not answer a ping.
func Connect(ctx context.Context, cfg Config, l *zap.Logger) *ResultCache {
	l = logger.WithFields(l)

	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Addr),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		l.Warn("redis unavailable, bypassing cache", zap.String("addr", cfg.Addr), zap.Error(err))
		_ = client.Close()
		return &ResultCache{logger: l}
	}

	return New(client, cfg.TTL, l)
}

func New(client *redis.Client, ttl time.Duration, l *zap.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{client: client, ttl: ttl, logger: logger.WithFields(l)}
}

func (c *ResultCache) isUnavailable() bool {
	return c == nil || c.client == nil
}

func (c *ResultCache) warnUnavailableOnce(err error) {
	if c.warnedUnavailable.CompareAndSwap(false, true) {
		c.logger.Warn("redis unavailable, bypassing cache", zap.Error(err))
	}
}

// Get returns the entry stored under key. A miss is not an error.
func (c *ResultCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	if c.isUnavailable() {
		return Entry{}, false, nil
	}

	b, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		c.warnUnavailableOnce(err)
		return Entry{}, false, err
	}
	if len(b) == 0 {
		return Entry{}, false, nil
	}

	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decoding cached entry %q: %w", key, err)
	}
	return e, true, nil
}

func (c *ResultCache) Set(ctx context.Context, key string, e Entry) error {
	if c.isUnavailable() {
		return nil
	}
	if e.CachedAt.IsZero() {
		e.CachedAt = time.Now().UTC()
	}

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.warnUnavailableOnce(err)
		return err
	}
	return nil
}

// Invalidate drops every cached pass.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	if c.isUnavailable() {
		return nil
	}

	iter := c.client.Scan(ctx, 0, KeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if err := c.client.Del(ctx, k).Err(); err != nil {
			c.logger.Warn("redis delete failed", zap.String("key", k), zap.Error(err))
		}
	}
	return iter.Err()
}

// Key identifies a discovery pass. engineFingerprint is Engine.Fingerprint and
// poolFingerprint is Fingerprint of the candidate pool. Workers is left out
// because it does not change results.
func Key(subjectID, engineFingerprint string, opts discovery.Options, poolFingerprint string) string {
	exclude := slices.Clone(opts.Exclude)
	slices.Sort(exclude)
	exclude = slices.Compact(exclude)

	raw := fmt.Sprintf("%s|%s|%d|%d|%s|%s", subjectID, engineFingerprint, opts.MinScore, opts.MaxResults, strings.Join(exclude, ","), poolFingerprint)
	sum := sha256.Sum256([]byte(raw))
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// Fingerprint hashes the stored form of responses in id order.
func Fingerprint(responses []questionnaire.Response) (string, error) {
	records := make([]questionnaire.Record, 0, len(responses))
	for _, r := range responses {
		records = append(records, questionnaire.NewRecord(r))
	}
	slices.SortStableFunc(records, func(a, b questionnaire.Record) int {
		return strings.Compare(a.ID, b.ID)
	})

	b, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encoding responses: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
