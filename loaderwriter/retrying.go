package loaderwriter

import (
	"context"

	"github.com/sethvargo/go-retry"
	"github.com/sharedcode/tiercache"
)

// RetryingLoaderWriter decorates a tiercache.LoaderWriter, retrying each
// call with tiercache.Retry's Fibonacci backoff before surfacing a failure
// to the CacheEngine. An error for which tiercache.ShouldRetry is false
// (context cancellation/deadline) is returned immediately, unwrapped, so the
// retry loop doesn't spend its budget on a call that can no longer succeed.
type RetryingLoaderWriter[K comparable, V any] struct {
	inner tiercache.LoaderWriter[K, V]
}

// NewRetryingLoaderWriter wraps inner with retry behavior.
func NewRetryingLoaderWriter[K comparable, V any](inner tiercache.LoaderWriter[K, V]) *RetryingLoaderWriter[K, V] {
	return &RetryingLoaderWriter[K, V]{inner: inner}
}

// asRetryable marks err as retryable to go-retry, unless
// tiercache.ShouldRetry says otherwise.
func asRetryable(err error) error {
	if err == nil {
		return nil
	}
	if !tiercache.ShouldRetry(err) {
		return err
	}
	return retry.RetryableError(err)
}

func (r *RetryingLoaderWriter[K, V]) Load(ctx context.Context, key K) (V, bool, error) {
	var value V
	var found bool
	err := tiercache.Retry(ctx, func(ctx context.Context) error {
		v, f, err := r.inner.Load(ctx, key)
		if err != nil {
			return asRetryable(err)
		}
		value, found = v, f
		return nil
	}, nil)
	return value, found, err
}

func (r *RetryingLoaderWriter[K, V]) LoadAll(ctx context.Context, keys []K) (map[K]V, error) {
	var values map[K]V
	err := tiercache.Retry(ctx, func(ctx context.Context) error {
		v, err := r.inner.LoadAll(ctx, keys)
		values = v
		if err != nil {
			return asRetryable(err)
		}
		return nil
	}, nil)
	return values, err
}

func (r *RetryingLoaderWriter[K, V]) Write(ctx context.Context, key K, value V) error {
	return tiercache.Retry(ctx, func(ctx context.Context) error {
		return asRetryable(r.inner.Write(ctx, key, value))
	}, nil)
}

func (r *RetryingLoaderWriter[K, V]) WriteAll(ctx context.Context, entries map[K]V) error {
	return tiercache.Retry(ctx, func(ctx context.Context) error {
		return asRetryable(r.inner.WriteAll(ctx, entries))
	}, nil)
}

func (r *RetryingLoaderWriter[K, V]) Delete(ctx context.Context, key K) error {
	return tiercache.Retry(ctx, func(ctx context.Context) error {
		return asRetryable(r.inner.Delete(ctx, key))
	}, nil)
}

func (r *RetryingLoaderWriter[K, V]) DeleteAll(ctx context.Context, keys []K) error {
	return tiercache.Retry(ctx, func(ctx context.Context) error {
		return asRetryable(r.inner.DeleteAll(ctx, keys))
	}, nil)
}
