package tiercache

import (
	"errors"
	"testing"
)

func TestNewLoaderWriter_Unregistered(t *testing.T) {
	delete(loaderWriterRegistry, NoBackend)
	_, err := NewLoaderWriter[string, string](BackendConfig{Type: NoBackend})
	if err == nil {
		t.Fatal("expected error for unregistered backend")
	}
	var e *Error
	if !errors.As(err, &e) || e.Code != Argument {
		t.Fatalf("expected Argument error, got %v", err)
	}
}

func TestNewLoaderWriter_TypeMismatch(t *testing.T) {
	RegisterLoaderWriterFactory[int, int](S3Backend, func(BackendConfig) (LoaderWriter[int, int], error) {
		return nil, nil
	})
	defer delete(loaderWriterRegistry, S3Backend)

	_, err := NewLoaderWriter[string, string](BackendConfig{Type: S3Backend})
	if err == nil {
		t.Fatal("expected type-mismatch error")
	}
	var e *Error
	if !errors.As(err, &e) || e.Code != Argument {
		t.Fatalf("expected Argument error, got %v", err)
	}
}

func TestNewLoaderWriter_Registered(t *testing.T) {
	RegisterLoaderWriterFactory[string, string](RedisBackend, func(BackendConfig) (LoaderWriter[string, string], error) {
		return nil, nil
	})
	defer delete(loaderWriterRegistry, RedisBackend)

	lw, err := NewLoaderWriter[string, string](BackendConfig{Type: RedisBackend})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = lw
}
