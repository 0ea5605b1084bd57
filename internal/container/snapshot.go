package container

import (
	"sort"

	"go.uber.org/zap"
)

// SessionSnapshot is the exportable view of a session context. Only
// realized values appear in Values; lazy stand-ins whose producer has not
// run are listed in Pending and are simply re-resolved after a restore.
// Transient and per-lookup beans are never cached, so they never appear.
//
// Serialization of the values is the caller's concern; the engine holds
// only in-memory state.
type SessionSnapshot struct {
	Values  map[string]any
	Pending []string
}

// SnapshotSession captures the realized entries of an active session
// context. The context stays active.
func (e *Engine) SnapshotSession(sessionID string) (*SessionSnapshot, error) {
	entries, err := e.store.Entries(ScopeSession, sessionID)
	if err != nil {
		return nil, err
	}

	snap := &SessionSnapshot{Values: make(map[string]any, len(entries))}
	for id, v := range entries {
		if r, ok := v.(realizable); ok {
			if !r.Realized() {
				snap.Pending = append(snap.Pending, id)
				continue
			}
			if real, err := r.Value(); err == nil {
				snap.Values[id] = real
				continue
			}
			snap.Pending = append(snap.Pending, id)
			continue
		}
		snap.Values[id] = v
	}
	sort.Strings(snap.Pending)

	e.log.Debug("session snapshot taken",
		zap.String("context", sessionID),
		zap.Int("values", len(snap.Values)),
		zap.Int("pending", len(snap.Pending)))
	return snap, nil
}

// RestoreSession begins a fresh session context and repopulates it with the
// snapshot's realized values. Pending beans get new stand-ins on their next
// resolution.
func (e *Engine) RestoreSession(sessionID string, snap *SessionSnapshot) error {
	if err := e.BeginSession(sessionID); err != nil {
		return err
	}
	for id, v := range snap.Values {
		if err := e.store.Put(ScopeSession, sessionID, id, v); err != nil {
			return err
		}
	}

	e.log.Debug("session restored",
		zap.String("context", sessionID),
		zap.Int("values", len(snap.Values)))
	return nil
}
