package container

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Supplier produces the real instance behind a lazy stand-in.
type Supplier func() (any, error)

// Handle is the deferred-construction stand-in for a lazy bean. The
// supplier runs exactly once total, triggered by the first Value call;
// concurrent first uses block until the winner finishes. After realization
// every call takes the atomic fast path.
//
// A supplier failure is sticky: the producer is never re-run and every
// subsequent use observes the same error.
type Handle struct {
	bean   string
	supply Supplier

	mu    sync.Mutex
	done  atomic.Bool
	value any
	err   error
}

func newHandle(bean string, supply Supplier) *Handle {
	return &Handle{bean: bean, supply: supply}
}

// Value returns the real instance, realizing it on first use.
func (h *Handle) Value() (any, error) {
	if h.done.Load() {
		return h.value, h.err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done.Load() {
		return h.value, h.err
	}

	h.value, h.err = h.supply()
	h.supply = nil
	h.done.Store(true)
	return h.value, h.err
}

// MustValue is like Value but panics on realization failure.
func (h *Handle) MustValue() any {
	v, err := h.Value()
	if err != nil {
		panic(fmt.Sprintf("lazy bean %s: %v", h.bean, err))
	}
	return v
}

// Realized reports whether the underlying producer has run successfully.
// Only tests and session snapshots should care; regular callers go through
// Value.
func (h *Handle) Realized() bool {
	return h.done.Load() && h.err == nil
}

// Bean returns the bean id this handle stands in for.
func (h *Handle) Bean() string {
	return h.bean
}

// realizable is what session snapshots probe for. Both raw handles and
// ProxyFunc forwarders that embed *Handle satisfy it.
type realizable interface {
	Value() (any, error)
	Realized() bool
}
