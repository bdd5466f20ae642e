// Package store provides ShardedStore, the reference in-memory
// implementation of tiercache.Store[K, V]: a fixed number of shards, each
// holding its own map and mutex, so that unrelated keys never contend on the
// same lock.
package store

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/sharedcode/tiercache"
	"golang.org/x/sync/errgroup"
)

const defaultShardCount = 256

type entry[V any] struct {
	value    V
	expireAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

type shard[K comparable, V any] struct {
	mu    sync.Mutex
	items map[K]entry[V]
}

// FailureInjector lets tests force a ShardedStore method to report a
// StoreAccessError instead of running normally, so the ResilienceStrategy
// path can be exercised deterministically without a real storage fault.
type FailureInjector func(op string) error

// ShardedStore is the reference Store[K, V]: per-key atomicity is provided
// by locking the one shard a key hashes to, fnv-hashed by default with a
// per-shard sync.Mutex protecting a map[K]entry[V].
type ShardedStore[K comparable, V any] struct {
	shards  []*shard[K, V]
	hash    func(K) uint32
	ttl     time.Duration
	inject  FailureInjector
	workers int
}

// Option configures a ShardedStore at construction time.
type Option[K comparable, V any] func(*ShardedStore[K, V])

// WithShardCount overrides the default shard count (256).
func WithShardCount[K comparable, V any](n int) Option[K, V] {
	return func(s *ShardedStore[K, V]) {
		if n > 0 {
			s.shards = make([]*shard[K, V], n)
		}
	}
}

// WithTTL installs a fixed time-to-live applied to every value this store
// installs; zero (the default) means entries never expire on their own.
func WithTTL[K comparable, V any](ttl time.Duration) Option[K, V] {
	return func(s *ShardedStore[K, V]) { s.ttl = ttl }
}

// WithBulkWorkers caps how many shards BulkCompute/BulkComputeIfAbsent will
// dispatch to concurrently. Default is the shard count (fully concurrent).
func WithBulkWorkers[K comparable, V any](n int) Option[K, V] {
	return func(s *ShardedStore[K, V]) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithFailureInjector installs a hook consulted at the top of every method;
// returning a non-nil error short-circuits the call with that error, for
// driving the CacheEngine's ResilienceStrategy path in tests.
func WithFailureInjector[K comparable, V any](f FailureInjector) Option[K, V] {
	return func(s *ShardedStore[K, V]) { s.inject = f }
}

// New builds a ShardedStore. hash must distribute K reasonably uniformly;
// NewStringStore below covers string keys.
func New[K comparable, V any](hash func(K) uint32, opts ...Option[K, V]) *ShardedStore[K, V] {
	s := &ShardedStore[K, V]{hash: hash}
	for _, opt := range opts {
		opt(s)
	}
	if s.shards == nil {
		s.shards = make([]*shard[K, V], defaultShardCount)
	}
	for i := range s.shards {
		s.shards[i] = &shard[K, V]{items: make(map[K]entry[V])}
	}
	if s.workers <= 0 {
		s.workers = len(s.shards)
	}
	return s
}

// NewStringStore builds a ShardedStore keyed by string, hashed with fnv32a
// the same way cache.shardedMap.getShard does.
func NewStringStore[V any](opts ...Option[string, V]) *ShardedStore[string, V] {
	return New[string, V](func(k string) uint32 {
		h := fnv.New32a()
		h.Write([]byte(k))
		return h.Sum32()
	}, opts...)
}

func (s *ShardedStore[K, V]) shardFor(key K) *shard[K, V] {
	return s.shards[s.hash(key)%uint32(len(s.shards))]
}

func (s *ShardedStore[K, V]) checkInjected(op string) error {
	if s.inject == nil {
		return nil
	}
	return s.inject(op)
}

// Compute implements tiercache.Store.
func (s *ShardedStore[K, V]) Compute(ctx context.Context, key K, fn tiercache.ComputeFunc[K, V], replaceEqual func(a, b V) bool) (tiercache.ValueHolder[V], error) {
	if err := s.checkInjected("compute"); err != nil {
		return tiercache.ValueHolder[V]{}, tiercache.NewStoreAccessError(key, err)
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := time.Now()
	e, present := sh.items[key]
	if present && e.expired(now) {
		delete(sh.items, key)
		present = false
	}

	result := fn(ctx, key, e.value, present)
	if result.LWErr != nil {
		return tiercache.ValueHolder[V]{}, tiercache.WrapLoaderWriterError(result.LWErr, result.LWLoading)
	}
	if !result.Install {
		delete(sh.items, key)
		return tiercache.ValueHolder[V]{Found: false}, nil
	}
	if replaceEqual != nil && present && !replaceEqual(e.value, result.Value) {
		return tiercache.ValueHolder[V]{Value: e.value, Found: true}, nil
	}
	ne := entry[V]{value: result.Value}
	if s.ttl > 0 {
		ne.expireAt = now.Add(s.ttl)
	}
	sh.items[key] = ne
	return tiercache.ValueHolder[V]{Value: result.Value, Found: true, ExpireAt: ne.expireAt}, nil
}

// ComputeIfAbsent implements tiercache.Store.
func (s *ShardedStore[K, V]) ComputeIfAbsent(ctx context.Context, key K, fn tiercache.ComputeFunc[K, V]) (tiercache.ValueHolder[V], error) {
	if err := s.checkInjected("computeIfAbsent"); err != nil {
		return tiercache.ValueHolder[V]{}, tiercache.NewStoreAccessError(key, err)
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := time.Now()
	e, present := sh.items[key]
	if present && e.expired(now) {
		delete(sh.items, key)
		present = false
	}
	if present {
		return tiercache.ValueHolder[V]{Value: e.value, Found: true, ExpireAt: e.expireAt}, nil
	}

	result := fn(ctx, key, e.value, false)
	if result.LWErr != nil {
		return tiercache.ValueHolder[V]{}, tiercache.WrapLoaderWriterError(result.LWErr, result.LWLoading)
	}
	if !result.Install {
		return tiercache.ValueHolder[V]{Found: false}, nil
	}
	ne := entry[V]{value: result.Value}
	if s.ttl > 0 {
		ne.expireAt = now.Add(s.ttl)
	}
	sh.items[key] = ne
	return tiercache.ValueHolder[V]{Value: result.Value, Found: true, ExpireAt: ne.expireAt}, nil
}

// groupByShard partitions keys by the shard they hash to, so each sub-batch
// call below touches exactly one shard's lock.
func (s *ShardedStore[K, V]) groupByShard(keys []K) map[int][]K {
	groups := make(map[int][]K)
	for _, k := range keys {
		idx := int(s.hash(k) % uint32(len(s.shards)))
		groups[idx] = append(groups[idx], k)
	}
	return groups
}

// bulkCompute is shared by BulkCompute and BulkComputeIfAbsent. onlyAbsent
// restricts fn invocation, per sub-batch, to keys currently missing from
// that shard (used by BulkComputeIfAbsent).
func (s *ShardedStore[K, V]) bulkCompute(ctx context.Context, keys []K, fn tiercache.BulkComputeFunc[K, V], onlyAbsent bool) (map[K]tiercache.ValueHolder[V], error) {
	groups := s.groupByShard(keys)

	var mu sync.Mutex
	out := make(map[K]tiercache.ValueHolder[V], len(keys))
	var firstErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for idx, groupKeys := range groups {
		idx, groupKeys := idx, groupKeys
		g.Go(func() error {
			sh := s.shards[idx]
			sh.mu.Lock()
			defer sh.mu.Unlock()

			now := time.Now()
			batch := make(map[K]tiercache.PresentValue[V], len(groupKeys))
			carry := make(map[K]entry[V], len(groupKeys))
			for _, k := range groupKeys {
				e, present := sh.items[k]
				if present && e.expired(now) {
					delete(sh.items, k)
					present = false
				}
				if onlyAbsent && present {
					mu.Lock()
					out[k] = tiercache.ValueHolder[V]{Value: e.value, Found: true, ExpireAt: e.expireAt}
					mu.Unlock()
					continue
				}
				batch[k] = tiercache.PresentValue[V]{Value: e.value, Present: present}
				carry[k] = e
			}
			if len(batch) == 0 {
				return nil
			}

			results := fn(gctx, batch)
			for k, result := range results {
				if result.LWErr != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = tiercache.WrapLoaderWriterError(result.LWErr, result.LWLoading)
					}
					mu.Unlock()
					continue
				}
				if !result.Install {
					delete(sh.items, k)
					mu.Lock()
					out[k] = tiercache.ValueHolder[V]{Found: false}
					mu.Unlock()
					continue
				}
				ne := entry[V]{value: result.Value}
				if s.ttl > 0 {
					ne.expireAt = now.Add(s.ttl)
				}
				sh.items[k] = ne
				mu.Lock()
				out[k] = tiercache.ValueHolder[V]{Value: result.Value, Found: true, ExpireAt: ne.expireAt}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, tiercache.NewStoreAccessError(nil, err)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// BulkCompute implements tiercache.Store. Sub-batches dispatch one per
// shard, concurrently.
func (s *ShardedStore[K, V]) BulkCompute(ctx context.Context, keys []K, fn tiercache.BulkComputeFunc[K, V]) (map[K]tiercache.ValueHolder[V], error) {
	if err := s.checkInjected("bulkCompute"); err != nil {
		return nil, tiercache.NewStoreAccessError(nil, err)
	}
	return s.bulkCompute(ctx, keys, fn, false)
}

// BulkComputeIfAbsent implements tiercache.Store.
func (s *ShardedStore[K, V]) BulkComputeIfAbsent(ctx context.Context, keys []K, fn tiercache.BulkComputeFunc[K, V]) (map[K]tiercache.ValueHolder[V], error) {
	if err := s.checkInjected("bulkComputeIfAbsent"); err != nil {
		return nil, tiercache.NewStoreAccessError(nil, err)
	}
	return s.bulkCompute(ctx, keys, fn, true)
}

// Remove implements tiercache.Store.
func (s *ShardedStore[K, V]) Remove(ctx context.Context, key K) error {
	if err := s.checkInjected("remove"); err != nil {
		return tiercache.NewStoreAccessError(key, err)
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.items, key)
	sh.mu.Unlock()
	return nil
}

// Clear implements tiercache.Store.
func (s *ShardedStore[K, V]) Clear(ctx context.Context) error {
	if err := s.checkInjected("clear"); err != nil {
		return tiercache.NewStoreAccessError(nil, err)
	}
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.items = make(map[K]entry[V])
		sh.mu.Unlock()
	}
	return nil
}

// Len returns the total number of live (unexpired-as-of-now) entries across
// all shards. Intended for metrics/tests, not the hot path.
func (s *ShardedStore[K, V]) Len() int {
	now := time.Now()
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, e := range sh.items {
			if !e.expired(now) {
				total++
			}
		}
		sh.mu.Unlock()
	}
	return total
}
