package core

import (
	"fmt"
	"sync"
)

// ActionHandler is one versioned implementation of an action's state
// transition, invoked by the transaction processor (C12) through dispatch.
type ActionHandler func(ctx *ApplyContext) error

type actionEntry struct {
	name     string
	versions []ActionHandler // index 0 == version 1
	current  int             // 1-based version currently selected
}

// ExecutionContext maps an action name to its current-version handler.
// Contract upgrades are additive: newer versions coexist, selected by
// SetVersion, never replacing older ones in place.
type ExecutionContext struct {
	mu      sync.RWMutex
	actions map[string]*actionEntry
}

func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{actions: make(map[string]*actionEntry)}
}

// Register adds the next version of name's handler. The first Register
// call for a given name becomes version 1 and the initial current version.
func (ec *ExecutionContext) Register(name string, handler ActionHandler) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	e, ok := ec.actions[name]
	if !ok {
		e = &actionEntry{name: name}
		ec.actions[name] = e
	}
	e.versions = append(e.versions, handler)
	if e.current == 0 {
		e.current = 1
	}
}

// SetVersion fails unless v is strictly greater than the current version
// and no greater than the number of registered versions.
func (ec *ExecutionContext) SetVersion(name string, v int) error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	e, ok := ec.actions[name]
	if !ok {
		return fmt.Errorf("%w: action %q", ErrInvalidArgument, name)
	}
	if v <= e.current || v > len(e.versions) {
		return fmt.Errorf("%w: version %d must be > current (%d) and <= max (%d) for action %q", ErrInvalidArgument, v, e.current, len(e.versions), name)
	}
	e.current = v
	return nil
}

// CurrentVersion reports the active version for an action (0 if unknown).
func (ec *ExecutionContext) CurrentVersion(name string) int {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	if e, ok := ec.actions[name]; ok {
		return e.current
	}
	return 0
}

// Resolve returns the handler for action name at its current version.
func (ec *ExecutionContext) Resolve(name string) (ActionHandler, error) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	e, ok := ec.actions[name]
	if !ok || e.current == 0 {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidArgument, name)
	}
	return e.versions[e.current-1], nil
}

// Sync compares a persisted action-version vector (e.g. from the chain's
// global-property record) with the compiled-in action set: any action
// missing from persisted is appended as version 1, matching every other
// action already registered here. Returns the versions to persist.
func (ec *ExecutionContext) Sync(persisted map[string]int) map[string]int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make(map[string]int, len(ec.actions))
	for name, e := range ec.actions {
		if v, ok := persisted[name]; ok {
			if v >= 1 && v <= len(e.versions) {
				e.current = v
			}
		}
		out[name] = e.current
	}
	return out
}
