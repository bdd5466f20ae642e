package tiercache

import (
	"context"
	"errors"
)

// ComputeResult is what a compute closure hands back to the Store: whether
// to install a new value (or remove the mapping) and, when a loader/writer
// was consulted along the way, the outcome of that call. The outcome is recorded
// here as the closure runs rather than being rediscovered by re-invoking
// the closure after a store failure.
type ComputeResult[V any] struct {
	Install bool
	Value   V

	// LWErr is non-nil when the closure consulted the loader or writer and
	// that call failed. LWLoading distinguishes which side failed. A Store
	// implementation that sees LWErr != nil must not install anything and
	// must return the result of WrapLoaderWriterError(LWErr, LWLoading)
	// from Compute/BulkCompute, instead of a StoreAccessError.
	LWErr     error
	LWLoading bool
}

// ComputeFunc is the per-key compute closure the Store invokes under its
// per-key atomicity guarantee. current/present describe the value the Store
// currently holds for key, if any.
type ComputeFunc[K comparable, V any] func(ctx context.Context, key K, current V, present bool) ComputeResult[V]

// BulkComputeFunc is the batch variant: the Store hands it a sub-batch of
// (key, current value, present) entries and receives a replacement map
// covering every key in that sub-batch. The Store may invoke this multiple
// times with disjoint sub-batches of the original key set.
type BulkComputeFunc[K comparable, V any] func(ctx context.Context, batch map[K]PresentValue[V]) map[K]ComputeResult[V]

type PresentValue[V any] struct {
	Value   V
	Present bool
}

// Store is the atomic per-key mapping primitive the CacheEngine delegates
// to. Implementations must linearize concurrent Compute/ComputeIfAbsent
// calls for the same key: closures for one key never run
// concurrently with each other, and each closure observes a consistent
// snapshot of that key's current mapping.
//
// Any method may return a StoreAccessError-flavored error — one for which
// IsStoreAccessError returns true — to signal that the Store itself, not
// the closure, failed. A closure-originated error returned from the
// closure's ComputeResult is instead delivered by Compute/ComputeIfAbsent
// wrapped so the engine can distinguish it from a genuine store failure.
type Store[K comparable, V any] interface {
	// Compute invokes fn under the per-key lock for key and installs or
	// removes the mapping according to the returned ComputeResult.
	// replaceEqual, when non-nil, is consulted before installing a value
	// equal to the current one; returning false suppresses the install
	// (and any observable side effect that would follow from it).
	Compute(ctx context.Context, key K, fn ComputeFunc[K, V], replaceEqual func(a, b V) bool) (ValueHolder[V], error)

	// ComputeIfAbsent invokes fn only when key has no current mapping.
	ComputeIfAbsent(ctx context.Context, key K, fn ComputeFunc[K, V]) (ValueHolder[V], error)

	// BulkCompute invokes fn across the given keys, possibly in several
	// disjoint sub-batch calls, and installs/removes each key per the
	// returned ComputeResult.
	BulkCompute(ctx context.Context, keys []K, fn BulkComputeFunc[K, V]) (map[K]ValueHolder[V], error)

	// BulkComputeIfAbsent is the bulk analogue of ComputeIfAbsent: fn is
	// invoked only for the subset of keys currently absent.
	BulkComputeIfAbsent(ctx context.Context, keys []K, fn BulkComputeFunc[K, V]) (map[K]ValueHolder[V], error)

	// Remove deletes key's mapping, if any. Used by ResilienceStrategy as
	// a best-effort invalidation; failures are non-fatal to the caller.
	Remove(ctx context.Context, key K) error

	// Clear removes every mapping.
	Clear(ctx context.Context) error
}

// LoaderWriter is the external source-of-truth collaborator.
// The cache is a cache of whatever this reads and writes.
type LoaderWriter[K comparable, V any] interface {
	Load(ctx context.Context, key K) (value V, found bool, err error)
	LoadAll(ctx context.Context, keys []K) (values map[K]V, err error)

	Write(ctx context.Context, key K, value V) error
	WriteAll(ctx context.Context, entries map[K]V) error

	Delete(ctx context.Context, key K) error
	DeleteAll(ctx context.Context, keys []K) error
}

// IsStoreAccessError reports whether err represents the Store collaborator
// itself failing, as opposed to a loader/writer error the Store merely
// relayed. Store implementations construct these via NewStoreAccessError.
func IsStoreAccessError(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == StoreAccess
}

// NewStoreAccessError wraps cause as a StoreAccessError for key (nil for
// whole-store operations like clear). Store implementations use this to
// report that the Store itself — not a compute closure — failed.
func NewStoreAccessError(key any, cause error) error {
	return newError(StoreAccess, key, cause)
}

// WrapLoaderWriterError wraps a loader/writer error a compute closure
// recorded in ComputeResult.LWErr so it can be delivered directly through
// Compute/BulkCompute's return value rather than through a
// StoreAccessError. The CacheEngine unwraps it back into a
// LoadingError/WritingError via classifyPassThrough.
func WrapLoaderWriterError(err error, loading bool) error {
	return &passThrough{err: err, loading: loading}
}
