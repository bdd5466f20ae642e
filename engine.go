package tiercache

import (
	"context"
	"errors"
)

// Option configures a CacheEngine at construction time.
type Option[K comparable, V any] func(*CacheEngine[K, V])

// WithUseLoaderInAtomics controls whether putIfAbsent, conditional remove,
// and replace consult the loader for the current value before deciding
// ("useLoaderInAtomics"). Default true.
func WithUseLoaderInAtomics[K comparable, V any](use bool) Option[K, V] {
	return func(e *CacheEngine[K, V]) { e.useLoaderInAtomics = use }
}

// WithEquals supplies the equality function conditional operations compare
// against. Default is reflect.DeepEqual-free: callers of replace(k,old,new)
// and remove(k,v) on a V that is not comparable must supply this.
func WithEquals[K comparable, V any](equals func(a, b V) bool) Option[K, V] {
	return func(e *CacheEngine[K, V]) { e.equals = equals }
}

// WithExpiry supplies a predicate that rejects a value from being installed
// (treated as if it had already expired) — replace's
// "unless expiration check rejects it (then install absent)".
func WithExpiry[K comparable, V any](expired func(v V) bool) Option[K, V] {
	return func(e *CacheEngine[K, V]) { e.expired = expired }
}

func WithObservers[K comparable, V any](o Observers) Option[K, V] {
	return func(e *CacheEngine[K, V]) { e.observers = o }
}

func WithEventDispatcher[K comparable, V any](d EventDispatcher) Option[K, V] {
	return func(e *CacheEngine[K, V]) { e.dispatcher = d }
}

// CacheEngine orchestrates compute-function-based operations against a
// Store, drives the LoaderWriter, and dispatches to a ResilienceStrategy
// when the Store itself fails.
type CacheEngine[K comparable, V any] struct {
	store      Store[K, V]
	loader     LoaderWriter[K, V]
	resilience *ResilienceStrategy[K, V]
	gate       *StatusGate
	observers  Observers
	dispatcher EventDispatcher

	useLoaderInAtomics bool
	equals             func(a, b V) bool
	expired            func(v V) bool
}

// New builds a CacheEngine over store and loader. The gate starts Available.
func New[K comparable, V any](store Store[K, V], loader LoaderWriter[K, V], opts ...Option[K, V]) *CacheEngine[K, V] {
	e := &CacheEngine[K, V]{
		store:              store,
		loader:             loader,
		gate:               NewStatusGate(),
		observers:          noopObservers{},
		dispatcher:         noopEventDispatcher{},
		useLoaderInAtomics: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.equals == nil {
		e.equals = defaultEquals[V]
	}
	e.resilience = NewResilienceStrategy(store, loader)
	return e
}

func defaultEquals[V any](a, b V) bool {
	av, bv := any(a), any(b)
	return av == bv
}

// Close transitions the engine's StatusGate to Closed. Subsequent
// operations fail with a LifecycleError.
func (e *CacheEngine[K, V]) Close() {
	e.gate.Close()
}

func (e *CacheEngine[K, V]) checkArgs(key any, requireValue bool, value any) error {
	if err := e.gate.checkAvailable(); err != nil {
		return err
	}
	if isNilValue(key) {
		return newError(Argument, nil, errNilKey)
	}
	if requireValue && isNilValue(value) {
		return newError(Argument, key, errNilValue)
	}
	return nil
}

// classifyPassThrough converts a pass-through error the Store delivered
// directly (i.e. not wrapped as a StoreAccessError) into the matching
// LoadingError/WritingError.
func (e *CacheEngine[K, V]) classifyPassThrough(key any, err error) error {
	var pt *passThrough
	if errors.As(err, &pt) {
		code := Writing
		if pt.loading {
			code = Loading
		}
		return newError(code, key, pt.err)
	}
	return err
}

func (e *CacheEngine[K, V]) observe(op string, outcome Outcome) {
	e.observers.Observe(op, outcome)
}

func (e *CacheEngine[K, V]) notify(key any, outcome Outcome, err error) {
	e.dispatcher.Post(MutationEvent{Key: key, Outcome: outcome, Err: err})
}

// Get reads key, triggering loader.load on a store miss,
// whose result is installed atomically.
func (e *CacheEngine[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V
	if err := e.checkArgs(key, false, nil); err != nil {
		return zero, false, err
	}

	known := &lwOutcome{}
	fn := func(ctx context.Context, k K, current V, present bool) ComputeResult[V] {
		if present {
			return ComputeResult[V]{Install: true, Value: current}
		}
		v, found, err := e.loader.Load(ctx, k)
		if err != nil {
			known.err, known.loading = err, true
			return ComputeResult[V]{LWErr: err, LWLoading: true}
		}
		if !found {
			return ComputeResult[V]{Install: false}
		}
		return ComputeResult[V]{Install: true, Value: v}
	}

	holder, err := e.store.Compute(ctx, key, fn, nil)
	if err != nil {
		if IsStoreAccessError(err) {
			v, found, rerr := e.resilience.getFailure(ctx, key, known)
			e.observe("get", getOutcome(found, rerr))
			e.notify(key, getOutcome(found, rerr), rerr)
			return v, found, rerr
		}
		lerr := e.classifyPassThrough(key, err)
		e.observe("get", OutcomeFailure)
		e.notify(key, OutcomeFailure, lerr)
		return zero, false, lerr
	}

	outcome := OutcomeMiss
	if holder.Found {
		outcome = OutcomeHit
	}
	e.observe("get", outcome)
	return holder.Value, holder.Found, nil
}

func getOutcome(found bool, err error) Outcome {
	if err != nil {
		return OutcomeFailure
	}
	if found {
		return OutcomeHit
	}
	return OutcomeMiss
}

// ContainsKey reports whether key currently has a mapping, consulting only
// the Store. On a StoreAccessError the key is invalidated and the result is
// false with no error; the loader/writer is never consulted.
func (e *CacheEngine[K, V]) ContainsKey(ctx context.Context, key K) (bool, error) {
	if err := e.checkArgs(key, false, nil); err != nil {
		return false, err
	}
	fn := func(ctx context.Context, k K, current V, present bool) ComputeResult[V] {
		return ComputeResult[V]{Install: present, Value: current}
	}
	holder, err := e.store.Compute(ctx, key, fn, nil)
	if err != nil {
		if IsStoreAccessError(err) {
			return e.resilience.containsKeyFailure(ctx, key)
		}
		return false, e.classifyPassThrough(key, err)
	}
	return holder.Found, nil
}

// Put writes key/value through: writer.write happens-before install.
func (e *CacheEngine[K, V]) Put(ctx context.Context, key K, value V) error {
	if err := e.checkArgs(key, true, value); err != nil {
		return err
	}

	known := &lwOutcome{}
	fn := func(ctx context.Context, k K, current V, present bool) ComputeResult[V] {
		if err := e.loader.Write(ctx, k, value); err != nil {
			known.err = err
			return ComputeResult[V]{LWErr: err}
		}
		return ComputeResult[V]{Install: true, Value: value}
	}

	_, err := e.store.Compute(ctx, key, fn, nil)
	if err != nil {
		if IsStoreAccessError(err) {
			rerr := e.resilience.putFailure(ctx, key, value, known)
			e.observe("put", putOutcome(rerr))
			e.notify(key, putOutcome(rerr), rerr)
			return rerr
		}
		lerr := e.classifyPassThrough(key, err)
		e.observe("put", OutcomeFailure)
		e.notify(key, OutcomeFailure, lerr)
		return lerr
	}
	e.observe("put", OutcomePut)
	e.notify(key, OutcomePut, nil)
	return nil
}

func putOutcome(err error) Outcome {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomePut
}

// Remove deletes key unconditionally.
func (e *CacheEngine[K, V]) Remove(ctx context.Context, key K) error {
	if err := e.checkArgs(key, false, nil); err != nil {
		return err
	}

	known := &lwOutcome{}
	var modified bool
	fn := func(ctx context.Context, k K, current V, present bool) ComputeResult[V] {
		modified = present
		if err := e.loader.Delete(ctx, k); err != nil {
			known.err = err
			return ComputeResult[V]{LWErr: err}
		}
		return ComputeResult[V]{Install: false}
	}

	_, err := e.store.Compute(ctx, key, fn, nil)
	if err != nil {
		if IsStoreAccessError(err) {
			rerr := e.resilience.removeFailure(ctx, key, known)
			e.observe("remove", removeOutcome(modified, rerr))
			e.notify(key, removeOutcome(modified, rerr), rerr)
			return rerr
		}
		lerr := e.classifyPassThrough(key, err)
		e.observe("remove", OutcomeFailure)
		e.notify(key, OutcomeFailure, lerr)
		return lerr
	}
	outcome := OutcomeNoop
	if modified {
		outcome = OutcomeSuccess
	}
	e.observe("remove", outcome)
	e.notify(key, outcome, nil)
	return nil
}

func removeOutcome(modified bool, err error) Outcome {
	if err != nil {
		return OutcomeFailure
	}
	if modified {
		return OutcomeSuccess
	}
	return OutcomeNoop
}

// Clear removes every mapping from the Store.
func (e *CacheEngine[K, V]) Clear(ctx context.Context) error {
	if err := e.gate.checkAvailable(); err != nil {
		return err
	}
	if err := e.store.Clear(ctx); err != nil {
		if IsStoreAccessError(err) {
			return e.resilience.clearFailure(ctx)
		}
		return err
	}
	return nil
}

// PutIfAbsent installs value only if key is currently absent. onPut, when non-nil,
// is invoked with true precisely when the writer wrote a new value.
func (e *CacheEngine[K, V]) PutIfAbsent(ctx context.Context, key K, value V, onPut func(wrote bool)) (V, bool, error) {
	var zero V
	if err := e.checkArgs(key, true, value); err != nil {
		return zero, false, err
	}

	known := &lwOutcome{}
	fn := func(ctx context.Context, k K, current V, present bool) ComputeResult[V] {
		if e.useLoaderInAtomics {
			loaded, found, err := e.loader.Load(ctx, k)
			if err != nil {
				known.err, known.loading = err, true
				return ComputeResult[V]{LWErr: err, LWLoading: true}
			}
			if found {
				if onPut != nil {
					onPut(false)
				}
				return ComputeResult[V]{Install: true, Value: loaded}
			}
		}
		if err := e.loader.Write(ctx, k, value); err != nil {
			known.err = err
			return ComputeResult[V]{LWErr: err}
		}
		if onPut != nil {
			onPut(true)
		}
		return ComputeResult[V]{Install: true, Value: value}
	}

	holder, err := e.store.ComputeIfAbsent(ctx, key, fn)
	if err != nil {
		if IsStoreAccessError(err) {
			v, found, rerr := e.resilience.putIfAbsentFailure(ctx, key, value, known, onPut)
			e.observe("putIfAbsent", getOutcome(found, rerr))
			e.notify(key, getOutcome(found, rerr), rerr)
			return v, found, rerr
		}
		lerr := e.classifyPassThrough(key, err)
		e.observe("putIfAbsent", OutcomeFailure)
		e.notify(key, OutcomeFailure, lerr)
		return zero, false, lerr
	}
	e.observe("putIfAbsent", getOutcome(holder.Found, nil))
	e.notify(key, getOutcome(holder.Found, nil), nil)
	return holder.Value, holder.Found, nil
}

// RemoveIfMatch deletes key only if its current value equals expected.
func (e *CacheEngine[K, V]) RemoveIfMatch(ctx context.Context, key K, expected V) (bool, error) {
	if err := e.checkArgs(key, true, expected); err != nil {
		return false, err
	}

	known := &lwOutcome{}
	var removed bool
	fn := func(ctx context.Context, k K, current V, present bool) ComputeResult[V] {
		if !present {
			if !e.useLoaderInAtomics {
				return ComputeResult[V]{Install: false}
			}
			loaded, found, err := e.loader.Load(ctx, k)
			if err != nil {
				known.err, known.loading = err, true
				return ComputeResult[V]{LWErr: err, LWLoading: true}
			}
			if !found {
				return ComputeResult[V]{Install: false}
			}
			current, present = loaded, true
		}
		if !e.equals(current, expected) {
			return ComputeResult[V]{Install: true, Value: current}
		}
		if err := e.loader.Delete(ctx, k); err != nil {
			known.err = err
			return ComputeResult[V]{LWErr: err}
		}
		removed = true
		return ComputeResult[V]{Install: false}
	}

	_, err := e.store.Compute(ctx, key, fn, nil)
	if err != nil {
		if IsStoreAccessError(err) {
			r, rerr := e.resilience.removeConditionalFailure(ctx, key, expected, e.equals, known)
			e.observe("removeIfMatch", conditionalOutcome(r, rerr))
			e.notify(key, conditionalOutcome(r, rerr), rerr)
			return r, rerr
		}
		lerr := e.classifyPassThrough(key, err)
		e.observe("removeIfMatch", OutcomeFailure)
		e.notify(key, OutcomeFailure, lerr)
		return false, lerr
	}
	e.observe("removeIfMatch", conditionalOutcome(removed, nil))
	e.notify(key, conditionalOutcome(removed, nil), nil)
	return removed, nil
}

func conditionalOutcome(success bool, err error) Outcome {
	if err != nil {
		return OutcomeFailure
	}
	if success {
		return OutcomeSuccess
	}
	return OutcomeFailureKeyPresent
}

// Replace installs newValue for key only if a value is currently present.
func (e *CacheEngine[K, V]) Replace(ctx context.Context, key K, newValue V) (V, bool, error) {
	var zero V
	if err := e.checkArgs(key, true, newValue); err != nil {
		return zero, false, err
	}

	known := &lwOutcome{}
	var oldValue V
	var hadOld bool
	fn := func(ctx context.Context, k K, current V, present bool) ComputeResult[V] {
		if !present {
			if !e.useLoaderInAtomics {
				return ComputeResult[V]{Install: false}
			}
			loaded, found, err := e.loader.Load(ctx, k)
			if err != nil {
				known.err, known.loading = err, true
				return ComputeResult[V]{LWErr: err, LWLoading: true}
			}
			if !found {
				return ComputeResult[V]{Install: false}
			}
			current, present = loaded, true
		}
		oldValue, hadOld = current, true
		if err := e.loader.Write(ctx, k, newValue); err != nil {
			known.err = err
			return ComputeResult[V]{LWErr: err}
		}
		if e.expired != nil && e.expired(newValue) {
			return ComputeResult[V]{Install: false}
		}
		return ComputeResult[V]{Install: true, Value: newValue}
	}

	_, err := e.store.Compute(ctx, key, fn, nil)
	if err != nil {
		if IsStoreAccessError(err) {
			v, found, rerr := e.resilience.replaceFailure(ctx, key, newValue, known)
			e.observe("replace", replaceOutcome(found, rerr))
			e.notify(key, replaceOutcome(found, rerr), rerr)
			return v, found, rerr
		}
		lerr := e.classifyPassThrough(key, err)
		e.observe("replace", OutcomeFailure)
		e.notify(key, OutcomeFailure, lerr)
		return zero, false, lerr
	}
	e.observe("replace", replaceOutcome(hadOld, nil))
	e.notify(key, replaceOutcome(hadOld, nil), nil)
	return oldValue, hadOld, nil
}

func replaceOutcome(present bool, err error) Outcome {
	if err != nil {
		return OutcomeFailure
	}
	if present {
		return OutcomeHit
	}
	return OutcomeMissNotPresent
}

// ReplaceIfMatch installs newValue only if the current value equals oldValue.
func (e *CacheEngine[K, V]) ReplaceIfMatch(ctx context.Context, key K, oldValue, newValue V) (bool, error) {
	if err := e.checkArgs(key, true, newValue); err != nil {
		return false, err
	}

	known := &lwOutcome{}
	var replaced bool
	var wasPresent bool
	fn := func(ctx context.Context, k K, current V, present bool) ComputeResult[V] {
		if !present {
			if !e.useLoaderInAtomics {
				return ComputeResult[V]{Install: false}
			}
			loaded, found, err := e.loader.Load(ctx, k)
			if err != nil {
				known.err, known.loading = err, true
				return ComputeResult[V]{LWErr: err, LWLoading: true}
			}
			if !found {
				return ComputeResult[V]{Install: false}
			}
			current, present = loaded, true
		}
		wasPresent = true
		if !e.equals(current, oldValue) {
			return ComputeResult[V]{Install: true, Value: current}
		}
		if err := e.loader.Write(ctx, k, newValue); err != nil {
			known.err = err
			return ComputeResult[V]{LWErr: err}
		}
		replaced = true
		return ComputeResult[V]{Install: true, Value: newValue}
	}

	_, err := e.store.Compute(ctx, key, fn, nil)
	if err != nil {
		if IsStoreAccessError(err) {
			r, rerr := e.resilience.replaceConditionalFailure(ctx, key, oldValue, newValue, e.equals, known)
			e.observe("replaceIfMatch", conditionalReplaceOutcome(wasPresent, r, rerr))
			e.notify(key, conditionalReplaceOutcome(wasPresent, r, rerr), rerr)
			return r, rerr
		}
		lerr := e.classifyPassThrough(key, err)
		e.observe("replaceIfMatch", OutcomeFailure)
		e.notify(key, OutcomeFailure, lerr)
		return false, lerr
	}
	e.observe("replaceIfMatch", conditionalReplaceOutcome(wasPresent, replaced, nil))
	e.notify(key, conditionalReplaceOutcome(wasPresent, replaced, nil), nil)
	return replaced, nil
}

func conditionalReplaceOutcome(wasPresent, replaced bool, err error) Outcome {
	if err != nil {
		return OutcomeFailure
	}
	if !wasPresent {
		return OutcomeMissNotPresent
	}
	if replaced {
		return OutcomeHit
	}
	return OutcomeMissPresent
}
