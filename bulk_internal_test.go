package tiercache

import (
	"errors"
	"testing"
)

func TestBulkAccumulator_SucceedFailAreMutuallyExclusive(t *testing.T) {
	a := newBulkAccumulator[string]()
	a.fail("k", errors.New("boom"))
	if !a.hasFailures() {
		t.Fatal("expected a failure recorded")
	}
	a.succeed("k")
	if a.hasFailures() {
		t.Fatal("expected succeed to clear a prior failure for the same key")
	}
	if !a.succeeded("k") {
		t.Fatal("expected k to be recorded as succeeded")
	}

	a.fail("k", errors.New("boom again"))
	if a.succeeded("k") {
		t.Fatal("expected fail to clear a prior success for the same key")
	}
}

func TestBulkAccumulator_MergeUnionsAcrossSubBatches(t *testing.T) {
	a := newBulkAccumulator[string]()
	a.merge(map[string]struct{}{"a": {}}, map[string]error{"b": errors.New("boom")})
	a.merge(map[string]struct{}{"c": {}}, map[string]error{"d": errors.New("boom2")})

	successes, failures := a.snapshot()
	if len(successes) != 2 || len(failures) != 2 {
		t.Fatalf("expected 2 successes and 2 failures across merges, got %v / %v", successes, failures)
	}
}

func TestRemapSet_TracksRemainingKeys(t *testing.T) {
	s := newRemapSet([]string{"a", "b", "c"})
	if !s.has("a") || !s.has("b") || !s.has("c") {
		t.Fatal("expected all seed keys present")
	}
	s.remove("b")
	if s.has("b") {
		t.Fatal("expected b removed")
	}
	if !s.has("a") || !s.has("c") {
		t.Fatal("expected a and c to remain")
	}
}

func TestKeySet_AddHas(t *testing.T) {
	s := newKeySet[string]()
	if s.has("a") {
		t.Fatal("expected empty set to not have a")
	}
	s.add("a")
	if !s.has("a") {
		t.Fatal("expected a to be present after add")
	}
}

func TestIsBulkError(t *testing.T) {
	be := newBulkError[string](Loading, map[string]struct{}{"a": {}}, nil)
	var target *BulkError[string]
	if !isBulkError[string](be, &target) {
		t.Fatal("expected isBulkError to match a *BulkError[string]")
	}
	if target != be {
		t.Fatal("expected target to be set to the original error")
	}

	target = nil
	if isBulkError[string](errors.New("plain"), &target) {
		t.Fatal("expected isBulkError to reject a plain error")
	}
}
