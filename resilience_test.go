package tiercache

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// memStore is a minimal in-package Store stand-in for exercising
// ResilienceStrategy's unexported methods directly (this file lives in
// package tiercache, unlike the engine-level scenario tests in
// engine_test.go, because ResilienceStrategy's methods are unexported).
type memStore struct {
	mu       sync.Mutex
	removed  []any
	cleared  bool
	removeErr error
}

func (m *memStore) Compute(ctx context.Context, key string, fn ComputeFunc[string, int], replaceEqual func(a, b int) bool) (ValueHolder[int], error) {
	return ValueHolder[int]{}, nil
}
func (m *memStore) ComputeIfAbsent(ctx context.Context, key string, fn ComputeFunc[string, int]) (ValueHolder[int], error) {
	return ValueHolder[int]{}, nil
}
func (m *memStore) BulkCompute(ctx context.Context, keys []string, fn BulkComputeFunc[string, int]) (map[string]ValueHolder[int], error) {
	return nil, nil
}
func (m *memStore) BulkComputeIfAbsent(ctx context.Context, keys []string, fn BulkComputeFunc[string, int]) (map[string]ValueHolder[int], error) {
	return nil, nil
}
func (m *memStore) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, key)
	return m.removeErr
}
func (m *memStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = true
	return nil
}

type memLoaderWriter struct {
	values   map[string]int
	loadErr  error
	writeErr error
}

func (l *memLoaderWriter) Load(ctx context.Context, key string) (int, bool, error) {
	if l.loadErr != nil {
		return 0, false, l.loadErr
	}
	v, ok := l.values[key]
	return v, ok, nil
}
func (l *memLoaderWriter) LoadAll(ctx context.Context, keys []string) (map[string]int, error) {
	return l.values, l.loadErr
}
func (l *memLoaderWriter) Write(ctx context.Context, key string, value int) error {
	if l.writeErr != nil {
		return l.writeErr
	}
	l.values[key] = value
	return nil
}
func (l *memLoaderWriter) WriteAll(ctx context.Context, entries map[string]int) error {
	return l.writeErr
}
func (l *memLoaderWriter) Delete(ctx context.Context, key string) error {
	delete(l.values, key)
	return nil
}
func (l *memLoaderWriter) DeleteAll(ctx context.Context, keys []string) error {
	return nil
}

// Invariant 4: resilience entry points never return without first
// attempting store.remove for the affected key.
func TestResilience_GetFailureAttemptsInvalidateFirst(t *testing.T) {
	ms := &memStore{}
	lw := &memLoaderWriter{values: map[string]int{"k": 5}}
	r := NewResilienceStrategy[string, int](ms, lw)

	v, found, err := r.getFailure(context.Background(), "k", &lwOutcome{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || v != 5 {
		t.Fatalf("expected 5, got %d found=%v", v, found)
	}
	if len(ms.removed) != 1 || ms.removed[0] != "k" {
		t.Fatalf("expected store.Remove(k) attempted, got %v", ms.removed)
	}
}

func TestResilience_GetFailureUsesKnownErrWithoutReloading(t *testing.T) {
	ms := &memStore{}
	lw := &memLoaderWriter{values: map[string]int{}}
	r := NewResilienceStrategy[string, int](ms, lw)

	cause := errors.New("already observed loader failure")
	_, _, err := r.getFailure(context.Background(), "k", &lwOutcome{err: cause})
	if err == nil {
		t.Fatal("expected error")
	}
	var te *Error
	if !errors.As(err, &te) || te.Code != Loading || !errors.Is(err, cause) {
		t.Fatalf("expected LoadingError wrapping known cause, got %v", err)
	}
}

func TestResilience_PutIfAbsentFailureInvokesOnPutCorrectly(t *testing.T) {
	ms := &memStore{}

	t.Run("loader already has value", func(t *testing.T) {
		lw := &memLoaderWriter{values: map[string]int{"k": 1}}
		r := NewResilienceStrategy[string, int](ms, lw)
		var wrote *bool
		onPut := func(w bool) { wrote = &w }
		v, found, err := r.putIfAbsentFailure(context.Background(), "k", 2, &lwOutcome{}, onPut)
		if err != nil || !found || v != 1 {
			t.Fatalf("expected existing value 1, got %d found=%v err=%v", v, found, err)
		}
		if wrote == nil || *wrote {
			t.Fatal("expected onPut(false) since loader already had a value")
		}
	})

	t.Run("loader absent, writes new value", func(t *testing.T) {
		lw := &memLoaderWriter{values: map[string]int{}}
		r := NewResilienceStrategy[string, int](ms, lw)
		var wrote *bool
		onPut := func(w bool) { wrote = &w }
		v, found, err := r.putIfAbsentFailure(context.Background(), "k2", 9, &lwOutcome{}, onPut)
		if err != nil || !found || v != 9 {
			t.Fatalf("expected written value 9, got %d found=%v err=%v", v, found, err)
		}
		if wrote == nil || !*wrote {
			t.Fatal("expected onPut(true) since a new value was written")
		}
		if lw.values["k2"] != 9 {
			t.Fatalf("expected loader to have persisted 9, got %d", lw.values["k2"])
		}
	})
}

func TestResilience_ClearFailureNeverErrors(t *testing.T) {
	ms := &memStore{}
	lw := &memLoaderWriter{values: map[string]int{}}
	r := NewResilienceStrategy[string, int](ms, lw)

	if err := r.clearFailure(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ms.cleared {
		t.Fatal("expected store.Clear attempted")
	}
}

func TestResilience_GetAllFailurePropagatesBulkErrorUnchanged(t *testing.T) {
	ms := &memStore{}
	lw := &memLoaderWriter{values: map[string]int{}}
	lw.loadErr = newBulkError(Loading, map[string]struct{}{"a": {}}, map[string]error{"b": errors.New("boom")})
	r := NewResilienceStrategy[string, int](ms, lw)

	_, err := r.getAllFailure(context.Background(), []string{"a", "b"})
	var be *BulkError[string]
	if !errors.As(err, &be) {
		t.Fatalf("expected BulkError propagated as-is, got %v", err)
	}
	if _, ok := be.Successes["a"]; !ok {
		t.Fatal("expected a in successes")
	}
	if _, ok := be.Failures["b"]; !ok {
		t.Fatal("expected b in failures")
	}
}

var _ Store[string, int] = (*memStore)(nil)
var _ LoaderWriter[string, int] = (*memLoaderWriter)(nil)
