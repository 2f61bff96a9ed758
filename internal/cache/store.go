// Package cache implements the short-lived client cache that sits in front of
// the finance API. Entries carry two independent expiries: the storage
// backend drops them after StoreExpiry, and Get treats them as stale once
// they are older than TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"finsession/internal/log"
	"finsession/internal/metrics"
	"finsession/internal/storage"
)

// Well-known cache keys.
const (
	KeySummary    = "finance_summary"
	KeyCategories = "finance_categories"
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultStoreExpiry = 24 * time.Hour
	DefaultNamespace   = "cache_"
)

// entry is the persisted envelope. Timestamp is epoch milliseconds.
type entry struct {
	Value     json.RawMessage `json:"value"`
	Timestamp int64           `json:"timestamp"`
}

type Options struct {
	TTL         time.Duration
	StoreExpiry time.Duration
	Namespace   string
	Clock       clockwork.Clock
	Logger      *log.Logger
	Metrics     *metrics.Metrics
}

// Store is a keyed cache over a storage.KV. It holds no locks of its own:
// entries are independently keyed and a Set is a full replacement.
type Store struct {
	kv          storage.KV
	ttl         time.Duration
	storeExpiry time.Duration
	namespace   string
	clock       clockwork.Clock
	logger      *log.Logger
	metrics     *metrics.Metrics
}

func NewStore(kv storage.KV, opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.StoreExpiry <= 0 {
		opts.StoreExpiry = DefaultStoreExpiry
	}
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	return &Store{
		kv:          kv,
		ttl:         opts.TTL,
		storeExpiry: opts.StoreExpiry,
		namespace:   opts.Namespace,
		clock:       opts.Clock,
		logger:      opts.Logger.WithComponent(log.ComponentCache),
		metrics:     opts.Metrics,
	}
}

// TTL returns the logical time-to-live applied at read time.
func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) storageKey(key string) string {
	return s.namespace + key
}

// Set stamps value with the current time and persists it, replacing any
// existing entry.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}
	now := s.clock.Now()
	body, err := json.Marshal(entry{Value: raw, Timestamp: now.UnixMilli()})
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, s.storageKey(key), string(body), now.Add(s.storeExpiry)); err != nil {
		return fmt.Errorf("persist cache entry %s: %w", key, err)
	}
	return nil
}

// Get returns the raw cached value. It never fails: unreadable or stale
// entries are reported as absent, and stale ones are deleted.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	body, ok, err := s.kv.Get(ctx, s.storageKey(key))
	if err != nil {
		s.logger.WarnContext(ctx, "Cache read failed", log.FieldCacheKey, key, log.FieldError, err)
		s.metrics.CacheLookup(key, metrics.CacheMiss)
		return nil, false
	}
	if !ok {
		s.metrics.CacheLookup(key, metrics.CacheMiss)
		return nil, false
	}

	var e entry
	if err := json.Unmarshal([]byte(body), &e); err != nil || e.Value == nil {
		s.logger.WarnContext(ctx, "Discarding unreadable cache entry", log.FieldCacheKey, key, log.FieldError, err)
		s.metrics.CacheLookup(key, metrics.CacheCorrupt)
		return nil, false
	}

	age := s.clock.Now().Sub(time.UnixMilli(e.Timestamp))
	if age > s.ttl {
		if err := s.kv.Delete(ctx, s.storageKey(key)); err != nil {
			s.logger.WarnContext(ctx, "Failed to evict stale cache entry", log.FieldCacheKey, key, log.FieldError, err)
		}
		s.metrics.CacheLookup(key, metrics.CacheStale)
		return nil, false
	}

	s.metrics.CacheLookup(key, metrics.CacheHit)
	return e.Value, true
}

// Remove deletes the entry for key. Removing an absent key is a no-op.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, s.storageKey(key)); err != nil {
		return fmt.Errorf("remove cache entry %s: %w", key, err)
	}
	return nil
}

// Clear deletes every entry under this store's namespace.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.kv.Keys(ctx, s.namespace)
	if err != nil {
		return fmt.Errorf("list cache entries: %w", err)
	}
	for _, k := range keys {
		if err := s.kv.Delete(ctx, k); err != nil {
			return fmt.Errorf("clear cache entry %s: %w", k, err)
		}
	}
	s.logger.DebugContext(ctx, "Cache cleared", log.FieldCount, len(keys))
	return nil
}

// GetJSON decodes the cached value for key into T. A value that does not
// decode into T is treated like a miss.
func GetJSON[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var zero T
	raw, ok := s.Get(ctx, key)
	if !ok {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		s.logger.WarnContext(ctx, "Cached value has unexpected shape", log.FieldCacheKey, key, log.FieldError, err)
		return zero, false
	}
	return v, true
}
