package loaderwriter

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"github.com/sharedcode/tiercache"
)

// CassandraLoaderWriter is a tiercache.LoaderWriter backed by a single
// Cassandra table with a text primary key and a blob value column,
// backed by a parameterized INSERT/SELECT/DELETE over a *gocql.Session,
// generalized to arbitrary (K, V) via Codec/KeyFunc.
type CassandraLoaderWriter[K comparable, V any] struct {
	session  *gocql.Session
	keyspace string
	table    string
	codec    Codec[V]
	keyFn    KeyFunc[K]
}

// NewCassandraLoaderWriter builds a CassandraLoaderWriter against an
// already-open session. The caller is responsible for having created
// keyspace.table(key text PRIMARY KEY, value blob), mirroring
// cassandra.Connection's auto-create-on-open convention.
func NewCassandraLoaderWriter[K comparable, V any](session *gocql.Session, keyspace, table string, keyFn KeyFunc[K], codec Codec[V]) *CassandraLoaderWriter[K, V] {
	if codec == nil {
		codec = JSONCodec[V]{}
	}
	return &CassandraLoaderWriter[K, V]{session: session, keyspace: keyspace, table: table, codec: codec, keyFn: keyFn}
}

// Load implements tiercache.LoaderWriter.
func (c *CassandraLoaderWriter[K, V]) Load(ctx context.Context, key K) (V, bool, error) {
	var zero V
	stmt := fmt.Sprintf("SELECT value FROM %s.%s WHERE key = ?;", c.keyspace, c.table)
	var data []byte
	if err := c.session.Query(stmt, c.keyFn(key)).WithContext(ctx).Scan(&data); err != nil {
		if err == gocql.ErrNotFound {
			return zero, false, nil
		}
		return zero, false, err
	}
	v, err := c.codec.Decode(data)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// LoadAll implements tiercache.LoaderWriter with a single SELECT ... WHERE
// key IN (...), per-key errors surfaced as a BulkError.
func (c *CassandraLoaderWriter[K, V]) LoadAll(ctx context.Context, keys []K) (map[K]V, error) {
	out := make(map[K]V, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	byRendered := make(map[string]K, len(keys))
	placeholders := make([]any, 0, len(keys))
	for _, k := range keys {
		rk := c.keyFn(k)
		byRendered[rk] = k
		placeholders = append(placeholders, rk)
	}
	stmt := fmt.Sprintf("SELECT key, value FROM %s.%s WHERE key IN ?;", c.keyspace, c.table)
	iter := c.session.Query(stmt, placeholders).WithContext(ctx).Iter()

	failures := make(map[K]error)
	successes := make(map[K]struct{})
	var rk string
	var data []byte
	for iter.Scan(&rk, &data) {
		k, ok := byRendered[rk]
		if !ok {
			continue
		}
		v, err := c.codec.Decode(data)
		if err != nil {
			failures[k] = err
			continue
		}
		out[k] = v
		successes[k] = struct{}{}
	}
	if err := iter.Close(); err != nil {
		return out, err
	}
	if len(failures) > 0 {
		return out, tiercache.NewBulkError(tiercache.Loading, successes, failures)
	}
	return out, nil
}

// Write implements tiercache.LoaderWriter.
func (c *CassandraLoaderWriter[K, V]) Write(ctx context.Context, key K, value V) error {
	data, err := c.codec.Encode(value)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("INSERT INTO %s.%s (key, value) VALUES (?, ?);", c.keyspace, c.table)
	return c.session.Query(stmt, c.keyFn(key), data).WithContext(ctx).Exec()
}

// WriteAll implements tiercache.LoaderWriter, issuing one INSERT per key
// (gocql has no native multi-row bound-statement batch across distinct
// partitions with automatic per-row error isolation, unlike blobStore.Add's
// per-blob-table loop, which this mirrors).
func (c *CassandraLoaderWriter[K, V]) WriteAll(ctx context.Context, entries map[K]V) error {
	successes := make(map[K]struct{})
	failures := make(map[K]error)
	for k, v := range entries {
		if err := c.Write(ctx, k, v); err != nil {
			failures[k] = err
			continue
		}
		successes[k] = struct{}{}
	}
	if len(failures) > 0 {
		return tiercache.NewBulkError(tiercache.Writing, successes, failures)
	}
	return nil
}

// Delete implements tiercache.LoaderWriter.
func (c *CassandraLoaderWriter[K, V]) Delete(ctx context.Context, key K) error {
	stmt := fmt.Sprintf("DELETE FROM %s.%s WHERE key = ?;", c.keyspace, c.table)
	return c.session.Query(stmt, c.keyFn(key)).WithContext(ctx).Exec()
}

// DeleteAll implements tiercache.LoaderWriter.
func (c *CassandraLoaderWriter[K, V]) DeleteAll(ctx context.Context, keys []K) error {
	successes := make(map[K]struct{})
	failures := make(map[K]error)
	for _, k := range keys {
		if err := c.Delete(ctx, k); err != nil {
			failures[k] = err
			continue
		}
		successes[k] = struct{}{}
	}
	if len(failures) > 0 {
		return tiercache.NewBulkError(tiercache.Writing, successes, failures)
	}
	return nil
}

func init() {
	tiercache.RegisterLoaderWriterFactory[string, string](tiercache.CassandraBackend, func(cfg tiercache.BackendConfig) (tiercache.LoaderWriter[string, string], error) {
		cluster := gocql.NewCluster(cfg.Cassandra.Hosts...)
		cluster.Keyspace = cfg.Cassandra.Keyspace
		cluster.Consistency = gocql.LocalQuorum
		session, err := cluster.CreateSession()
		if err != nil {
			return nil, fmt.Errorf("cassandra session: %w", err)
		}
		table := cfg.Cassandra.Table
		if table == "" {
			table = "tiercache_entries"
		}
		return NewCassandraLoaderWriter[string, string](session, cfg.Cassandra.Keyspace, table, func(k string) string { return k }, JSONCodec[string]{}), nil
	})
}
