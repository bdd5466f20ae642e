package tiercache

import (
	"context"
	"sync"
)

// bulkAccumulator tracks successes/failures across however many sub-batch
// closure invocations a single bulk call triggers. The reference Store
// (tiercache/store) invokes sub-batch closures concurrently across shards,
// so this is mutex-guarded rather than assuming serial invocation.
type bulkAccumulator[K comparable] struct {
	mu        sync.Mutex
	successes map[K]struct{}
	failures  map[K]error
}

func newBulkAccumulator[K comparable]() *bulkAccumulator[K] {
	return &bulkAccumulator[K]{
		successes: make(map[K]struct{}),
		failures:  make(map[K]error),
	}
}

func (a *bulkAccumulator[K]) succeed(key K) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.failures, key)
	a.successes[key] = struct{}{}
}

func (a *bulkAccumulator[K]) fail(key K, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.successes, key)
	a.failures[key] = err
}

func (a *bulkAccumulator[K]) merge(successes map[K]struct{}, failures map[K]error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k := range successes {
		delete(a.failures, k)
		a.successes[k] = struct{}{}
	}
	for k, err := range failures {
		delete(a.successes, k)
		a.failures[k] = err
	}
}

func (a *bulkAccumulator[K]) snapshot() (map[K]struct{}, map[K]error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	successes := make(map[K]struct{}, len(a.successes))
	for k := range a.successes {
		successes[k] = struct{}{}
	}
	failures := make(map[K]error, len(a.failures))
	for k, err := range a.failures {
		failures[k] = err
	}
	return successes, failures
}

func (a *bulkAccumulator[K]) hasFailures() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.failures) > 0
}

// GetAll reads a batch of keys, driving store.BulkComputeIfAbsent so the
// LoaderWriter is only consulted for keys genuinely absent from the Store.
func (e *CacheEngine[K, V]) GetAll(ctx context.Context, keys []K, includeNulls bool) (map[K]V, error) {
	if err := e.gate.checkAvailable(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return map[K]V{}, nil
	}
	for _, k := range keys {
		if isNilValue(k) {
			return nil, newError(Argument, nil, errNilKey)
		}
	}

	acc := newBulkAccumulator[K]()

	fn := func(ctx context.Context, batch map[K]PresentValue[V]) map[K]ComputeResult[V] {
		missing := make([]K, 0, len(batch))
		for k, pv := range batch {
			if !pv.Present {
				missing = append(missing, k)
			}
		}
		results := make(map[K]ComputeResult[V], len(batch))
		for k, pv := range batch {
			if pv.Present {
				results[k] = ComputeResult[V]{Install: true, Value: pv.Value}
			}
		}
		if len(missing) == 0 {
			return results
		}

		loaded, err := e.loader.LoadAll(ctx, missing)
		if err != nil {
			var be *BulkError[K]
			if isBulkError(err, &be) {
				acc.merge(be.Successes, be.Failures)
				for k := range be.Successes {
					if v, ok := loaded[k]; ok {
						results[k] = ComputeResult[V]{Install: true, Value: v}
					}
				}
				for k := range be.Failures {
					results[k] = ComputeResult[V]{Install: false}
				}
				return results
			}
			for _, k := range missing {
				acc.fail(k, err)
				results[k] = ComputeResult[V]{Install: false}
			}
			return results
		}
		for _, k := range missing {
			if v, ok := loaded[k]; ok {
				acc.succeed(k)
				results[k] = ComputeResult[V]{Install: true, Value: v}
			} else {
				results[k] = ComputeResult[V]{Install: false}
			}
		}
		return results
	}

	holders, err := e.store.BulkComputeIfAbsent(ctx, keys, fn)
	if err != nil {
		if IsStoreAccessError(err) {
			values, rerr := e.resilience.getAllFailure(ctx, keys)
			var be *BulkError[K]
			hasBulk := isBulkError(rerr, &be)
			for _, k := range keys {
				if hasBulk {
					if ferr, failed := be.Failures[k]; failed {
						e.observe("getAll", OutcomeFailure)
						e.notify(k, OutcomeFailure, ferr)
						continue
					}
				} else if rerr != nil {
					e.observe("getAll", OutcomeFailure)
					e.notify(k, OutcomeFailure, rerr)
					continue
				}
				if _, ok := values[k]; ok {
					e.observe("getAll", OutcomeGetAllHit)
					e.notify(k, OutcomeGetAllHit, nil)
				} else {
					e.observe("getAll", OutcomeGetAllMiss)
					e.notify(k, OutcomeGetAllMiss, nil)
				}
			}
			return values, rerr
		}
		return nil, e.classifyPassThrough(nil, err)
	}

	successes, failures := acc.snapshot()

	out := make(map[K]V, len(keys))
	for _, k := range keys {
		h, ok := holders[k]
		if ok && h.Found {
			out[k] = h.Value
			e.observe("getAll", OutcomeGetAllHit)
			e.notify(k, OutcomeGetAllHit, nil)
			continue
		}
		if ferr, failed := failures[k]; failed {
			e.observe("getAll", OutcomeGetAllMiss)
			e.notify(k, OutcomeFailure, ferr)
			continue
		}
		e.observe("getAll", OutcomeGetAllMiss)
		e.notify(k, OutcomeGetAllMiss, nil)
		if includeNulls {
			var zero V
			out[k] = zero
		}
	}

	if len(failures) > 0 {
		return out, newBulkError(Loading, successes, failures)
	}
	return out, nil
}

// PutAll writes a batch of entries through to the store and loader/writer.
func (e *CacheEngine[K, V]) PutAll(ctx context.Context, entries map[K]V) error {
	if err := e.gate.checkAvailable(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	keys := make([]K, 0, len(entries))
	for k, v := range entries {
		if isNilValue(k) {
			return newError(Argument, nil, errNilKey)
		}
		if isNilValue(v) {
			return newError(Argument, k, errNilValue)
		}
		keys = append(keys, k)
	}

	remaining := newRemapSet(keys)
	acc := newBulkAccumulator[K]()

	fn := func(ctx context.Context, batch map[K]PresentValue[V]) map[K]ComputeResult[V] {
		toWrite := make(map[K]V)
		for k := range batch {
			if remaining.has(k) {
				toWrite[k] = entries[k]
			}
		}
		if len(toWrite) > 0 {
			if err := e.loader.WriteAll(ctx, toWrite); err != nil {
				var be *BulkError[K]
				if isBulkError(err, &be) {
					acc.merge(be.Successes, be.Failures)
				} else {
					for k := range toWrite {
						acc.fail(k, err)
					}
				}
			} else {
				for k := range toWrite {
					acc.succeed(k)
				}
			}
		}

		results := make(map[K]ComputeResult[V], len(batch))
		for k, pv := range batch {
			remaining.remove(k)
			newValue := entries[k]
			if e.expired != nil && e.expired(newValue) {
				results[k] = ComputeResult[V]{Install: false}
				continue
			}
			if acc.succeeded(k) {
				results[k] = ComputeResult[V]{Install: true, Value: newValue}
			} else if pv.Present {
				results[k] = ComputeResult[V]{Install: true, Value: pv.Value}
			} else {
				results[k] = ComputeResult[V]{Install: false}
			}
		}
		return results
	}

	_, err := e.store.BulkCompute(ctx, keys, fn)
	if err != nil {
		if IsStoreAccessError(err) {
			rerr := e.resilience.putAllFailure(ctx, entries)
			e.observe("putAll", putOutcome(rerr))
			e.notifyBulkOutcome(keys, rerr, OutcomePutAll)
			return rerr
		}
		lerr := e.classifyPassThrough(nil, err)
		e.observe("putAll", OutcomeFailure)
		e.notifyBulkOutcome(keys, lerr, OutcomePutAll)
		return lerr
	}

	e.observe("putAll", OutcomePutAll)
	if acc.hasFailures() {
		successes, failures := acc.snapshot()
		berr := newBulkError(Writing, successes, failures)
		e.notifyBulkOutcome(keys, berr, OutcomePutAll)
		return berr
	}
	e.notifyBulkOutcome(keys, nil, OutcomePutAll)
	return nil
}

// RemoveAll deletes a batch of keys from the store and loader/writer.
func (e *CacheEngine[K, V]) RemoveAll(ctx context.Context, keys []K) error {
	if err := e.gate.checkAvailable(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	for _, k := range keys {
		if isNilValue(k) {
			return newError(Argument, nil, errNilKey)
		}
	}

	remaining := newRemapSet(keys)
	acc := newBulkAccumulator[K]()
	unknowns := newKeySet[K]()

	fn := func(ctx context.Context, batch map[K]PresentValue[V]) map[K]ComputeResult[V] {
		toDelete := make([]K, 0, len(batch))
		for k := range batch {
			if remaining.has(k) {
				toDelete = append(toDelete, k)
			}
		}
		if len(toDelete) > 0 {
			if err := e.loader.DeleteAll(ctx, toDelete); err != nil {
				var be *BulkError[K]
				if isBulkError(err, &be) {
					acc.merge(be.Successes, be.Failures)
					for k := range be.Failures {
						unknowns.add(k)
					}
				} else {
					for _, k := range toDelete {
						acc.fail(k, err)
						unknowns.add(k)
					}
				}
			} else {
				for _, k := range toDelete {
					acc.succeed(k)
				}
			}
		}

		results := make(map[K]ComputeResult[V], len(batch))
		for k := range batch {
			remaining.remove(k)
			if acc.succeeded(k) || unknowns.has(k) {
				results[k] = ComputeResult[V]{Install: false}
			} else {
				pv := batch[k]
				results[k] = ComputeResult[V]{Install: pv.Present, Value: pv.Value}
			}
		}
		return results
	}

	_, err := e.store.BulkCompute(ctx, keys, fn)
	if err != nil {
		if IsStoreAccessError(err) {
			rerr := e.resilience.removeAllFailure(ctx, keys)
			e.observe("removeAll", removeOutcome(true, rerr))
			e.notifyBulkOutcome(keys, rerr, OutcomeRemoveAll)
			return rerr
		}
		lerr := e.classifyPassThrough(nil, err)
		e.observe("removeAll", OutcomeFailure)
		e.notifyBulkOutcome(keys, lerr, OutcomeRemoveAll)
		return lerr
	}

	e.observe("removeAll", OutcomeRemoveAll)
	if acc.hasFailures() {
		successes, failures := acc.snapshot()
		berr := newBulkError(Writing, successes, failures)
		e.notifyBulkOutcome(keys, berr, OutcomeRemoveAll)
		return berr
	}
	e.notifyBulkOutcome(keys, nil, OutcomeRemoveAll)
	return nil
}

func (a *bulkAccumulator[K]) succeeded(key K) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.successes[key]
	return ok
}

// remapSet is a mutable scratch set
// mirroring the input batch, monotonically drained as sub-batches process.
type remapSet[K comparable] struct {
	mu   sync.Mutex
	keys map[K]struct{}
}

func newRemapSet[K comparable](keys []K) *remapSet[K] {
	m := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return &remapSet[K]{keys: m}
}

func (s *remapSet[K]) has(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[k]
	return ok
}

func (s *remapSet[K]) remove(k K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, k)
}

type keySet[K comparable] struct {
	mu   sync.Mutex
	keys map[K]struct{}
}

func newKeySet[K comparable]() *keySet[K] {
	return &keySet[K]{keys: make(map[K]struct{})}
}

func (s *keySet[K]) add(k K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[k] = struct{}{}
}

func (s *keySet[K]) has(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[k]
	return ok
}

func isBulkError[K comparable](err error, target **BulkError[K]) bool {
	be, ok := err.(*BulkError[K])
	if !ok {
		return false
	}
	*target = be
	return true
}

// notifyBulkOutcome posts one MutationEvent per key, reading per-key failures
// out of err when it is a BulkError and otherwise treating a non-nil err as
// applying to every key in the batch.
func (e *CacheEngine[K, V]) notifyBulkOutcome(keys []K, err error, successOutcome Outcome) {
	var be *BulkError[K]
	hasBulk := isBulkError(err, &be)
	for _, k := range keys {
		if hasBulk {
			if ferr, failed := be.Failures[k]; failed {
				e.notify(k, OutcomeFailure, ferr)
				continue
			}
			e.notify(k, successOutcome, nil)
			continue
		}
		if err != nil {
			e.notify(k, OutcomeFailure, err)
			continue
		}
		e.notify(k, successOutcome, nil)
	}
}
