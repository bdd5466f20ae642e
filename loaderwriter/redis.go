// Package loaderwriter provides concrete tiercache.LoaderWriter backends:
// Redis, Cassandra, and S3, plus a RetryingLoaderWriter decorator. Each
// backend registers a tiercache.LoaderWriterFactory for its BackendType so
// that tiercache.NewLoaderWriter can build one from a tiercache.Config
// without the root package importing any driver.
package loaderwriter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sharedcode/tiercache"
)

// Codec converts between V and the bytes a backend stores. JSONCodec is the
// default; callers of NewRedisLoaderWriter/NewCassandraLoaderWriter can
// supply their own for a non-JSON wire format.
type Codec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// JSONCodec implements Codec using encoding/json, the default JSON-over-Redis
// convention for SetStruct/GetStruct-style storage.
type JSONCodec[V any] struct{}

func (JSONCodec[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSONCodec[V]) Decode(data []byte) (V, error) {
	var v V
	err := json.Unmarshal(data, &v)
	return v, err
}

// KeyFunc renders a cache key, K, as the string Redis/Cassandra need.
type KeyFunc[K comparable] func(K) string

// RedisLoaderWriter is a tiercache.LoaderWriter backed by a Redis client
// (Set/Get/Delete over *redis.Client), generalized to arbitrary (K, V) via
// Codec/KeyFunc.
type RedisLoaderWriter[K comparable, V any] struct {
	client *redis.Client
	codec  Codec[V]
	keyFn  KeyFunc[K]
	prefix string
}

// NewRedisLoaderWriter builds a RedisLoaderWriter. keyFn renders K as a
// Redis key; codec defaults to JSONCodec[V]{} when nil.
func NewRedisLoaderWriter[K comparable, V any](client *redis.Client, prefix string, keyFn KeyFunc[K], codec Codec[V]) *RedisLoaderWriter[K, V] {
	if codec == nil {
		codec = JSONCodec[V]{}
	}
	return &RedisLoaderWriter[K, V]{client: client, codec: codec, keyFn: keyFn, prefix: prefix}
}

func (r *RedisLoaderWriter[K, V]) key(k K) string {
	return r.prefix + r.keyFn(k)
}

// Load implements tiercache.LoaderWriter.
func (r *RedisLoaderWriter[K, V]) Load(ctx context.Context, key K) (V, bool, error) {
	var zero V
	s, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	v, err := r.codec.Decode([]byte(s))
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// LoadAll implements tiercache.LoaderWriter using MGET, the batch analogue
// of cache.Connection.Get.
func (r *RedisLoaderWriter[K, V]) LoadAll(ctx context.Context, keys []K) (map[K]V, error) {
	if len(keys) == 0 {
		return map[K]V{}, nil
	}
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = r.key(k)
	}
	raw, err := r.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[K]V, len(keys))
	successes := make(map[K]struct{})
	failures := make(map[K]error)
	for i, k := range keys {
		if raw[i] == nil {
			continue
		}
		s, ok := raw[i].(string)
		if !ok {
			failures[k] = fmt.Errorf("unexpected redis MGET value type for key %q", redisKeys[i])
			continue
		}
		v, err := r.codec.Decode([]byte(s))
		if err != nil {
			failures[k] = err
			continue
		}
		out[k] = v
		successes[k] = struct{}{}
	}
	if len(failures) > 0 {
		return out, tiercache.NewBulkError(tiercache.Loading, successes, failures)
	}
	return out, nil
}

// Write implements tiercache.LoaderWriter.
func (r *RedisLoaderWriter[K, V]) Write(ctx context.Context, key K, value V) error {
	data, err := r.codec.Encode(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(key), data, 0).Err()
}

// WriteAll implements tiercache.LoaderWriter using a pipeline, the batch
// write analogue of cache.Connection.SetStruct.
func (r *RedisLoaderWriter[K, V]) WriteAll(ctx context.Context, entries map[K]V) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	cmds := make(map[K]*redis.StatusCmd, len(entries))
	for k, v := range entries {
		data, err := r.codec.Encode(v)
		if err != nil {
			return err
		}
		cmds[k] = pipe.Set(ctx, r.key(k), data, 0)
	}
	_, err := pipe.Exec(ctx)
	if err == nil {
		return nil
	}
	successes := make(map[K]struct{})
	failures := make(map[K]error)
	for k, cmd := range cmds {
		if cmdErr := cmd.Err(); cmdErr != nil {
			failures[k] = cmdErr
		} else {
			successes[k] = struct{}{}
		}
	}
	return tiercache.NewBulkError(tiercache.Writing, successes, failures)
}

// Delete implements tiercache.LoaderWriter.
func (r *RedisLoaderWriter[K, V]) Delete(ctx context.Context, key K) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// DeleteAll implements tiercache.LoaderWriter.
func (r *RedisLoaderWriter[K, V]) DeleteAll(ctx context.Context, keys []K) error {
	if len(keys) == 0 {
		return nil
	}
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = r.key(k)
	}
	return r.client.Del(ctx, redisKeys...).Err()
}

func init() {
	tiercache.RegisterLoaderWriterFactory[string, string](tiercache.RedisBackend, func(cfg tiercache.BackendConfig) (tiercache.LoaderWriter[string, string], error) {
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		return NewRedisLoaderWriter[string, string](client, "tiercache:", func(k string) string { return k }, JSONCodec[string]{}), nil
	})
}
