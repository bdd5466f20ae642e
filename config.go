package tiercache

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// BackendConfig selects and configures the LoaderWriter backend a Config
// wires into the engine.
type BackendConfig struct {
	Type BackendType `yaml:"-"`

	// TypeName is the YAML-facing spelling of Type ("none", "redis",
	// "cassandra", "s3"); LoadConfig resolves it into Type.
	TypeName string `yaml:"type"`

	Redis     RedisBackendConfig     `yaml:"redis"`
	Cassandra CassandraBackendConfig `yaml:"cassandra"`
	S3        S3BackendConfig        `yaml:"s3"`
}

type RedisBackendConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

type CassandraBackendConfig struct {
	Hosts    []string `yaml:"hosts"`
	Keyspace string   `yaml:"keyspace"`
	Table    string   `yaml:"table"`
}

type S3BackendConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// Config holds everything needed to construct a running CacheEngine: the
// reference Store's shard count, whether the loader runs inside the atomic
// store section, and which LoaderWriter backend to build.
type Config struct {
	UseLoaderInAtomics bool          `yaml:"useLoaderInAtomics"`
	StoreShardCount    int           `yaml:"storeShardCount"`
	Backend            BackendConfig `yaml:"backend"`
}

// DefaultConfig returns a Config suitable for running against the reference
// in-memory Store with no external LoaderWriter backend.
func DefaultConfig() Config {
	return Config{
		UseLoaderInAtomics: true,
		StoreShardCount:    defaultShardCount(),
		Backend:            BackendConfig{Type: NoBackend, TypeName: "none"},
	}
}

func defaultShardCount() int {
	n := runtime.NumCPU() * 4
	if n < 16 {
		return 16
	}
	if n > 256 {
		return 256
	}
	return n
}

// LoadConfig reads and validates a Config from a YAML file at path.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, newError(Argument, nil, fmt.Errorf("reading config %q: %w", path, err))
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, newError(Argument, nil, fmt.Errorf("parsing config %q: %w", path, err))
	}

	backendType, err := parseBackendType(cfg.Backend.TypeName)
	if err != nil {
		return Config{}, err
	}
	cfg.Backend.Type = backendType

	if cfg.StoreShardCount <= 0 {
		cfg.StoreShardCount = defaultShardCount()
	}

	return cfg, nil
}

func parseBackendType(name string) (BackendType, error) {
	switch name {
	case "", "none":
		return NoBackend, nil
	case "redis":
		return RedisBackend, nil
	case "cassandra":
		return CassandraBackend, nil
	case "s3":
		return S3Backend, nil
	default:
		return NoBackend, newError(Argument, nil, fmt.Errorf("unknown backend type %q", name))
	}
}

func errUnregisteredBackend(t BackendType) error {
	return fmt.Errorf("no LoaderWriter factory registered for backend type %d; did the adapter package get imported?", t)
}

func errBackendTypeMismatch(t BackendType) error {
	return fmt.Errorf("loaderwriter factory registered for backend type %d does not match the requested (K, V) types", t)
}
