package tiercache_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sharedcode/tiercache"
	"github.com/sharedcode/tiercache/store"
)

type nilRejectingLoaderWriter struct{}

func (nilRejectingLoaderWriter) Load(ctx context.Context, key string) (*int, bool, error) {
	return nil, false, nil
}
func (nilRejectingLoaderWriter) LoadAll(ctx context.Context, keys []string) (map[string]*int, error) {
	return map[string]*int{}, nil
}
func (nilRejectingLoaderWriter) Write(ctx context.Context, key string, value *int) error { return nil }
func (nilRejectingLoaderWriter) WriteAll(ctx context.Context, entries map[string]*int) error {
	return nil
}
func (nilRejectingLoaderWriter) Delete(ctx context.Context, key string) error       { return nil }
func (nilRejectingLoaderWriter) DeleteAll(ctx context.Context, keys []string) error { return nil }

var _ tiercache.LoaderWriter[string, *int] = nilRejectingLoaderWriter{}

func TestPutAll_RejectsNilValue(t *testing.T) {
	s := store.NewStringStore[*int]()
	e := tiercache.New[string, *int](s, nilRejectingLoaderWriter{})

	err := e.PutAll(context.Background(), map[string]*int{"a": nil})
	if err == nil {
		t.Fatal("expected an ArgumentError for a nil value")
	}
	var te *tiercache.Error
	if !errors.As(err, &te) || te.Code != tiercache.Argument {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
}

func TestGetAll_EmptyKeysIsNoOp(t *testing.T) {
	lw := newFakeIntLoaderWriter()
	s := store.NewStringStore[int]()
	e := tiercache.New[string, int](s, lw)

	values, err := e.GetAll(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != 0 {
		t.Fatalf("expected empty result, got %v", values)
	}
	if len(lw.loadCalls) != 0 {
		t.Fatal("expected no loader calls for an empty key set")
	}
}

func TestGetAll_MixOfHitAndMissLoadsOnlyMissingKeys(t *testing.T) {
	lw := newFakeIntLoaderWriter()
	lw.values["a"] = 1
	lw.values["b"] = 2
	s := store.NewStringStore[int]()
	e := tiercache.New[string, int](s, lw)

	// Prime "a" into the store directly so only "b" is a genuine loader miss.
	if _, _, err := e.Get(context.Background(), "a"); err != nil {
		t.Fatalf("priming get failed: %v", err)
	}
	lw.mu.Lock()
	lw.loadCalls = map[string]int{}
	lw.mu.Unlock()

	values, err := e.GetAll(context.Background(), []string{"a", "b"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["a"] != 1 || values["b"] != 2 {
		t.Fatalf("unexpected values: %v", values)
	}
	if lw.loadCalls["a"] != 0 {
		t.Fatalf("expected no loader call for already-cached key a, got %d", lw.loadCalls["a"])
	}
	if lw.loadCalls["b"] == 0 {
		t.Fatal("expected a loader call for the genuinely missing key b")
	}
}

func TestGetAll_IncludeNullsFillsZeroValueForMisses(t *testing.T) {
	lw := newFakeIntLoaderWriter()
	s := store.NewStringStore[int]()
	e := tiercache.New[string, int](s, lw)

	values, err := e.GetAll(context.Background(), []string{"missing"}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := values["missing"]
	if !ok || v != 0 {
		t.Fatalf("expected zero-value entry for missing key when includeNulls, got %v present=%v", v, ok)
	}

	values, err = e.GetAll(context.Background(), []string{"missing"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := values["missing"]; ok {
		t.Fatal("expected no entry for missing key when includeNulls is false")
	}
}

func TestGetAll_IncludeNullsSkipsNullFillForFailedKeys(t *testing.T) {
	lw := newFakeIntLoaderWriter()
	lw.values["a"] = 1
	lw.loadErr = errors.New("load refused")
	s := store.NewStringStore[int]()
	e := tiercache.New[string, int](s, lw)

	// Prime "a" into the store directly so its loader call never happens and
	// only "bad" is a genuine loader miss subject to loadErr.
	lw.loadErr = nil
	if _, _, err := e.Get(context.Background(), "a"); err != nil {
		t.Fatalf("priming get failed: %v", err)
	}
	lw.loadErr = errors.New("load refused")

	values, err := e.GetAll(context.Background(), []string{"a", "bad"}, true)
	if err == nil {
		t.Fatal("expected a bulk error for the failed key")
	}
	var be *tiercache.BulkError[string]
	if !errors.As(err, &be) {
		t.Fatalf("expected BulkError, got %v", err)
	}
	if _, ok := be.Failures["bad"]; !ok {
		t.Fatalf("expected bad recorded as a failure, got %v", be.Failures)
	}
	if v, ok := values["bad"]; ok {
		t.Fatalf("expected no null-filled entry for a key whose load failed, got %v", v)
	}
	if values["a"] != 1 {
		t.Fatalf("expected a's cached hit to still be returned, got %v", values["a"])
	}
}

func TestPutAll_EmptyEntriesIsNoOp(t *testing.T) {
	lw := newFakeIntLoaderWriter()
	s := store.NewStringStore[int]()
	e := tiercache.New[string, int](s, lw)

	if err := e.PutAll(context.Background(), map[string]int{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lw.writeCalls) != 0 {
		t.Fatal("expected no writer calls for an empty entry set")
	}
}

func TestPutAll_WritesThroughAndInstalls(t *testing.T) {
	lw := newFakeIntLoaderWriter()
	s := store.NewStringStore[int]()
	e := tiercache.New[string, int](s, lw)

	if err := e.PutAll(context.Background(), map[string]int{"a": 1, "b": 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lw.values["a"] != 1 || lw.values["b"] != 2 {
		t.Fatalf("expected loader to have both values, got %v", lw.values)
	}
	va, foundA := currentValue(t, s, "a")
	vb, foundB := currentValue(t, s, "b")
	if !foundA || va != 1 || !foundB || vb != 2 {
		t.Fatalf("expected store to have both values installed, got a=%d/%v b=%d/%v", va, foundA, vb, foundB)
	}
}

func TestRemoveAll_EmptyKeysIsNoOp(t *testing.T) {
	lw := newFakeIntLoaderWriter()
	s := store.NewStringStore[int]()
	e := tiercache.New[string, int](s, lw)

	if err := e.RemoveAll(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRemoveAll_DeletesFromStoreAndLoader(t *testing.T) {
	lw := newFakeIntLoaderWriter()
	s := store.NewStringStore[int]()
	e := tiercache.New[string, int](s, lw)

	if err := e.PutAll(context.Background(), map[string]int{"a": 1, "b": 2}); err != nil {
		t.Fatalf("setup PutAll failed: %v", err)
	}
	if err := e.RemoveAll(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := lw.values["a"]; ok {
		t.Fatal("expected a removed from loader")
	}
	if _, ok := lw.values["b"]; ok {
		t.Fatal("expected b removed from loader")
	}
	if _, found := currentValue(t, s, "a"); found {
		t.Fatal("expected a removed from store")
	}
}

func TestPutAll_PartialWriteAllFailureReturnsBulkError(t *testing.T) {
	lw := newFakeIntLoaderWriter()
	lw.writeAllHook = func(entries map[string]int) error {
		successes := map[string]struct{}{}
		failures := map[string]error{}
		for k := range entries {
			if k == "bad" {
				failures[k] = errors.New("write refused")
			} else {
				successes[k] = struct{}{}
			}
		}
		return tiercache.NewBulkError(tiercache.Writing, successes, failures)
	}
	s := store.New[string, int](func(k string) uint32 { return 0 })
	e := tiercache.New[string, int](s, lw)

	err := e.PutAll(context.Background(), map[string]int{"good": 1, "bad": 2})
	if err == nil {
		t.Fatal("expected a bulk error")
	}
	var be *tiercache.BulkError[string]
	if !errors.As(err, &be) {
		t.Fatalf("expected BulkError, got %v", err)
	}
	if _, ok := be.Successes["good"]; !ok {
		t.Fatal("expected good in successes")
	}
	if _, ok := be.Failures["bad"]; !ok {
		t.Fatal("expected bad in failures")
	}

	goodVal, goodFound := currentValue(t, s, "good")
	if !goodFound || goodVal != 1 {
		t.Fatalf("expected good installed in store, got %d found=%v", goodVal, goodFound)
	}
	if _, found := currentValue(t, s, "bad"); found {
		t.Fatal("expected bad not installed in store since its write failed")
	}
}
