package tiercache

import (
	"context"
	"errors"
	"log/slog"
)

// lwOutcome carries a loader/writer error the CacheEngine already observed
// while the original compute closure ran, before the Store reported a
// StoreAccessError. When non-nil, ResilienceStrategy skips re-contacting
// the loader/writer for that side of the operation and translates the
// known error directly instead of re-contacting the loader/writer.
type lwOutcome struct {
	err     error
	loading bool
}

// ResilienceStrategy is invoked whenever the Store reports a
// StoreAccessError. Its contract: invalidate the possibly-inconsistent
// cached entry on a best-effort basis, then satisfy the caller directly
// from the LoaderWriter, which is authoritative.
type ResilienceStrategy[K comparable, V any] struct {
	store Store[K, V]
	lw    LoaderWriter[K, V]
}

// NewResilienceStrategy builds a ResilienceStrategy over store and lw.
func NewResilienceStrategy[K comparable, V any](store Store[K, V], lw LoaderWriter[K, V]) *ResilienceStrategy[K, V] {
	return &ResilienceStrategy[K, V]{store: store, lw: lw}
}

// invalidate is the best-effort store.remove(key) every entry point runs
// first. Its failure is swallowed — the invalidation is a courtesy, not a
// correctness requirement, since the loader/writer is authoritative anyway.
func (r *ResilienceStrategy[K, V]) invalidate(ctx context.Context, key K) {
	if err := r.store.Remove(ctx, key); err != nil {
		level := slog.LevelDebug
		if isPermanentStoreError(err) {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "resilience: best-effort store invalidation failed", "key", key, "error", err)
	}
}

func (r *ResilienceStrategy[K, V]) invalidateAll(ctx context.Context, keys []K) {
	for _, k := range keys {
		r.invalidate(ctx, k)
	}
}

func (r *ResilienceStrategy[K, V]) clear(ctx context.Context) {
	if err := r.store.Clear(ctx); err != nil {
		level := slog.LevelDebug
		if isPermanentStoreError(err) {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "resilience: best-effort store clear failed", "error", err)
	}
}

func (r *ResilienceStrategy[K, V]) getFailure(ctx context.Context, key K, known *lwOutcome) (V, bool, error) {
	r.invalidate(ctx, key)
	var zero V
	if known != nil && known.err != nil {
		return zero, false, newError(Loading, key, known.err)
	}
	v, found, err := r.lw.Load(ctx, key)
	if err != nil {
		return zero, false, newError(Loading, key, err)
	}
	return v, found, nil
}

func (r *ResilienceStrategy[K, V]) containsKeyFailure(ctx context.Context, key K) (bool, error) {
	r.invalidate(ctx, key)
	return false, nil
}

func (r *ResilienceStrategy[K, V]) putFailure(ctx context.Context, key K, value V, known *lwOutcome) error {
	r.invalidate(ctx, key)
	if known != nil && known.err != nil {
		return newError(Writing, key, known.err)
	}
	if err := r.lw.Write(ctx, key, value); err != nil {
		return newError(Writing, key, err)
	}
	return nil
}

func (r *ResilienceStrategy[K, V]) removeFailure(ctx context.Context, key K, known *lwOutcome) error {
	r.invalidate(ctx, key)
	if known != nil && known.err != nil {
		return newError(Writing, key, known.err)
	}
	if err := r.lw.Delete(ctx, key); err != nil {
		return newError(Writing, key, err)
	}
	return nil
}

func (r *ResilienceStrategy[K, V]) clearFailure(ctx context.Context) error {
	r.clear(ctx)
	return nil
}

func (r *ResilienceStrategy[K, V]) putIfAbsentFailure(ctx context.Context, key K, value V, known *lwOutcome, onPut func(wrote bool)) (V, bool, error) {
	r.invalidate(ctx, key)
	var zero V
	if known != nil {
		if known.err != nil {
			code := Writing
			if known.loading {
				code = Loading
			}
			return zero, false, newError(code, key, known.err)
		}
	}
	loaded, found, err := r.lw.Load(ctx, key)
	if err != nil {
		return zero, false, newError(Loading, key, err)
	}
	if found {
		if onPut != nil {
			onPut(false)
		}
		return loaded, true, nil
	}
	if err := r.lw.Write(ctx, key, value); err != nil {
		return zero, false, newError(Writing, key, err)
	}
	if onPut != nil {
		onPut(true)
	}
	return value, true, nil
}

func (r *ResilienceStrategy[K, V]) removeConditionalFailure(ctx context.Context, key K, expected V, equals func(a, b V) bool, known *lwOutcome) (bool, error) {
	r.invalidate(ctx, key)
	if known != nil && known.err != nil {
		code := Writing
		if known.loading {
			code = Loading
		}
		return false, newError(code, key, known.err)
	}
	loaded, found, err := r.lw.Load(ctx, key)
	if err != nil {
		return false, newError(Loading, key, err)
	}
	if !found || !equals(loaded, expected) {
		return false, nil
	}
	if err := r.lw.Delete(ctx, key); err != nil {
		return false, newError(Writing, key, err)
	}
	return true, nil
}

func (r *ResilienceStrategy[K, V]) replaceFailure(ctx context.Context, key K, newValue V, known *lwOutcome) (V, bool, error) {
	r.invalidate(ctx, key)
	var zero V
	if known != nil && known.err != nil {
		code := Writing
		if known.loading {
			code = Loading
		}
		return zero, false, newError(code, key, known.err)
	}
	loaded, found, err := r.lw.Load(ctx, key)
	if err != nil {
		return zero, false, newError(Loading, key, err)
	}
	if !found {
		return zero, false, nil
	}
	if err := r.lw.Write(ctx, key, newValue); err != nil {
		return zero, false, newError(Writing, key, err)
	}
	return loaded, true, nil
}

func (r *ResilienceStrategy[K, V]) replaceConditionalFailure(ctx context.Context, key K, oldValue, newValue V, equals func(a, b V) bool, known *lwOutcome) (bool, error) {
	r.invalidate(ctx, key)
	if known != nil && known.err != nil {
		code := Writing
		if known.loading {
			code = Loading
		}
		return false, newError(code, key, known.err)
	}
	loaded, found, err := r.lw.Load(ctx, key)
	if err != nil {
		return false, newError(Loading, key, err)
	}
	if !found || !equals(loaded, oldValue) {
		return false, nil
	}
	if err := r.lw.Write(ctx, key, newValue); err != nil {
		return false, newError(Writing, key, err)
	}
	return true, nil
}

func (r *ResilienceStrategy[K, V]) getAllFailure(ctx context.Context, keys []K) (map[K]V, error) {
	r.invalidateAll(ctx, keys)
	values, err := r.lw.LoadAll(ctx, keys)
	if err != nil {
		var be *BulkError[K]
		if errors.As(err, &be) {
			return values, err
		}
		return values, newError(Loading, nil, err)
	}
	return values, nil
}

func (r *ResilienceStrategy[K, V]) putAllFailure(ctx context.Context, entries map[K]V) error {
	keys := make([]K, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	r.invalidateAll(ctx, keys)
	if err := r.lw.WriteAll(ctx, entries); err != nil {
		var be *BulkError[K]
		if errors.As(err, &be) {
			return err
		}
		return newError(Writing, nil, err)
	}
	return nil
}

func (r *ResilienceStrategy[K, V]) removeAllFailure(ctx context.Context, keys []K) error {
	r.invalidateAll(ctx, keys)
	if err := r.lw.DeleteAll(ctx, keys); err != nil {
		var be *BulkError[K]
		if errors.As(err, &be) {
			return err
		}
		return newError(Writing, nil, err)
	}
	return nil
}
