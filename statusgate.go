package tiercache

import "sync/atomic"

// gateStatus is the StatusGate state. Transitions are
// monotonic: Uninitialized -> Available -> Closed. There is no reopen.
type gateStatus int32

const (
	statusUninitialized gateStatus = iota
	statusAvailable
	statusClosed
)

// StatusGate is a single atomic status word checked at the entry of every
// CacheEngine operation, outside the Store's compute call. Concurrent
// callers during a transition either observe the old state and complete
// normally, or see the new state — there is no half-state to observe.
type StatusGate struct {
	status atomic.Int32
}

// NewStatusGate returns a gate in the Available state, ready for use.
func NewStatusGate() *StatusGate {
	g := &StatusGate{}
	g.status.Store(int32(statusAvailable))
	return g
}

// checkAvailable returns a LifecycleError if the gate is not Available.
func (g *StatusGate) checkAvailable() error {
	if gateStatus(g.status.Load()) != statusAvailable {
		return newError(Lifecycle, nil, errGateNotAvailable)
	}
	return nil
}

// Close transitions the gate to Closed. Idempotent.
func (g *StatusGate) Close() {
	g.status.Store(int32(statusClosed))
}

// Available reports whether the gate currently accepts operations.
func (g *StatusGate) Available() bool {
	return gateStatus(g.status.Load()) == statusAvailable
}
