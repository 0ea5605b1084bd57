package container

import (
	"fmt"
	"sync"
	"sync/atomic"

	errors2 "github.com/xraph/brew/internal/errors"
)

// singletonContextID is the implicit context for container-wide beans.
const singletonContextID = "@container"

type contextKey struct {
	kind Scope
	id   string
}

// storeEntry is one cache slot. Its mutex serializes first construction of
// the bucket; once done is set, readers take the lock-free fast path and
// value never changes again.
type storeEntry struct {
	mu    sync.Mutex
	done  atomic.Bool
	value any
}

// ScopeStore is the per-scope instance cache. Buckets are keyed by
// (beanID, scopeKind, contextID); the singleton scope uses a single
// implicit context equal to the container's lifetime.
//
// The store lock covers only bucket lookup and placeholder installation.
// Producers run outside it, so constructing one bean never serializes
// unrelated beans. Losing racers for the same bucket block on the
// placeholder's own mutex.
type ScopeStore struct {
	mu       sync.RWMutex
	contexts map[contextKey]map[string]*storeEntry
}

func NewScopeStore() *ScopeStore {
	s := &ScopeStore{contexts: make(map[contextKey]map[string]*storeEntry)}
	s.contexts[contextKey{kind: ScopeSingleton, id: singletonContextID}] = make(map[string]*storeEntry)
	return s
}

// BeginContext opens a bucket group for a request or session context.
func (s *ScopeStore) BeginContext(kind Scope, contextID string) error {
	if !kind.contextual() {
		return fmt.Errorf("scope %s has no caller-managed contexts", kind)
	}
	if contextID == "" {
		return fmt.Errorf("empty %s context id", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := contextKey{kind: kind, id: contextID}
	if _, exists := s.contexts[key]; exists {
		return fmt.Errorf("%s %s: %w", kind, contextID, errors2.ErrContextActive)
	}
	s.contexts[key] = make(map[string]*storeEntry)
	return nil
}

// EndContext evicts and discards every entry under the context. Producer
// level cleanup is the caller's concern; the store only drops references.
// It returns the number of evicted entries.
func (s *ScopeStore) EndContext(kind Scope, contextID string) (int, error) {
	if !kind.contextual() {
		return 0, fmt.Errorf("scope %s has no caller-managed contexts", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := contextKey{kind: kind, id: contextID}
	bucket, exists := s.contexts[key]
	if !exists {
		return 0, fmt.Errorf("%s %s: %w", kind, contextID, errors2.ErrContextNotFound)
	}
	delete(s.contexts, key)
	return len(bucket), nil
}

// Active reports whether the context has been begun and not yet ended.
func (s *ScopeStore) Active(kind Scope, contextID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.contexts[contextKey{kind: kind, id: contextID}]
	return ok
}

// Peek returns the cached instance for a bucket without constructing
// anything. In-progress placeholders are invisible.
func (s *ScopeStore) Peek(kind Scope, contextID, beanID string) (any, bool) {
	s.mu.RLock()
	bucket := s.contexts[contextKey{kind: kind, id: contextID}]
	e := bucket[beanID]
	s.mu.RUnlock()

	if e == nil || !e.done.Load() {
		return nil, false
	}
	return e.value, true
}

// GetOrCreate returns the cached instance for the bucket, running build at
// most once under concurrent first resolutions. The boolean reports whether
// this call performed the construction. A build failure discards the
// placeholder so a later resolve may try again.
func (s *ScopeStore) GetOrCreate(kind Scope, contextID, beanID string, build func() (any, error)) (any, bool, error) {
	key := contextKey{kind: kind, id: contextID}

	for {
		// Fast path: populated entry, no exclusive lock.
		s.mu.RLock()
		bucket, exists := s.contexts[key]
		e := bucket[beanID]
		s.mu.RUnlock()

		if !exists {
			return nil, false, fmt.Errorf("%s %s: %w", kind, contextID, errors2.ErrContextNotFound)
		}
		if e != nil && e.done.Load() {
			return e.value, false, nil
		}

		// Install a placeholder under the store lock, then release it
		// before the producer runs.
		if e == nil {
			s.mu.Lock()
			bucket, exists = s.contexts[key]
			if !exists {
				s.mu.Unlock()
				return nil, false, fmt.Errorf("%s %s: %w", kind, contextID, errors2.ErrContextNotFound)
			}
			if e = bucket[beanID]; e == nil {
				e = &storeEntry{}
				bucket[beanID] = e
			}
			s.mu.Unlock()
		}

		e.mu.Lock()
		if e.done.Load() {
			value := e.value
			e.mu.Unlock()
			return value, false, nil
		}

		// A racer holding this entry may have failed its build and
		// discarded the slot while we waited. Building into an orphaned
		// entry would leave the result invisible to the bucket, so start
		// over against the current state.
		if !s.holds(key, beanID, e) {
			e.mu.Unlock()
			continue
		}

		value, err := build()
		if err != nil {
			s.discard(key, beanID, e)
			e.mu.Unlock()
			return nil, false, err
		}

		e.value = value
		e.done.Store(true)
		e.mu.Unlock()
		return value, true, nil
	}
}

// holds reports whether e is still the bucket's current slot.
func (s *ScopeStore) holds(key contextKey, beanID string, e *storeEntry) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, exists := s.contexts[key]
	return exists && bucket[beanID] == e
}

// Put installs a pre-built instance, used when restoring session snapshots.
func (s *ScopeStore) Put(kind Scope, contextID, beanID string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, exists := s.contexts[contextKey{kind: kind, id: contextID}]
	if !exists {
		return fmt.Errorf("%s %s: %w", kind, contextID, errors2.ErrContextNotFound)
	}
	e := &storeEntry{value: value}
	e.done.Store(true)
	bucket[beanID] = e
	return nil
}

// Entries returns a copy of the populated entries under a context.
func (s *ScopeStore) Entries(kind Scope, contextID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket, exists := s.contexts[contextKey{kind: kind, id: contextID}]
	if !exists {
		return nil, fmt.Errorf("%s %s: %w", kind, contextID, errors2.ErrContextNotFound)
	}
	out := make(map[string]any, len(bucket))
	for id, e := range bucket {
		if e.done.Load() {
			out[id] = e.value
		}
	}
	return out, nil
}

// Drain discards every context and entry, returning eviction counts per
// scope kind. Used at container teardown.
func (s *ScopeStore) Drain() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := make(map[string]int)
	for key, bucket := range s.contexts {
		evicted[key.kind.String()] += len(bucket)
	}
	s.contexts = make(map[contextKey]map[string]*storeEntry)
	return evicted
}

// discard removes a failed placeholder, unless the context ended or the
// slot was replaced while the producer ran.
func (s *ScopeStore) discard(key contextKey, beanID string, e *storeEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket, exists := s.contexts[key]; exists && bucket[beanID] == e {
		delete(bucket, beanID)
	}
}
