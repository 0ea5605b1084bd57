package container

import (
	errors2 "github.com/xraph/brew/internal/errors"
)

// Scope is the lifetime class governing how long a bean instance is cached
// and shared.
type Scope int

const (
	// ScopeTransient constructs a fresh instance on every resolve. Nothing
	// is cached.
	ScopeTransient Scope = iota

	// ScopeSingleton constructs at most once per container lifetime.
	ScopeSingleton

	// ScopeRequest constructs at most once per request context begun with
	// BeginRequest.
	ScopeRequest

	// ScopeSession constructs at most once per session context begun with
	// BeginSession.
	ScopeSession
)

// String returns a human-readable representation of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeTransient:
		return "transient"
	case ScopeSingleton:
		return "singleton"
	case ScopeRequest:
		return "request"
	case ScopeSession:
		return "session"
	default:
		return "unknown"
	}
}

func (s Scope) valid() bool {
	return s >= ScopeTransient && s <= ScopeSession
}

// contextual reports whether the scope is bounded by a caller-supplied
// context rather than the container's own lifetime.
func (s Scope) contextual() bool {
	return s == ScopeRequest || s == ScopeSession
}

// Producer builds a bean instance. It receives a BuildContext carrying the
// bound parameter values and a resolver that re-enters the engine with the
// same active scope context.
type Producer func(bc *BuildContext) (any, error)

// ProxyFunc wraps a lazy handle in a caller-provided forwarder implementing
// the bean's declared interface. Each forwarded method obtains the real
// instance from the handle, which runs the underlying producer exactly once.
type ProxyFunc func(h *Handle) any

// ParamSpec names an external parameter a producer requests. A spec with
// HasDefault set uses Default when the parameter map has no entry; a
// Required spec with no entry fails the resolution.
type ParamSpec struct {
	Name       string
	Required   bool
	Default    any
	HasDefault bool
}

// Arg is a bound parameter value, in spec order.
type Arg struct {
	Name  string
	Value any
}

// Definition describes how and under what scope a bean is produced.
// Definitions are immutable after configuration validation.
type Definition struct {
	ID       string
	Producer Producer
	Scope    Scope

	// Lazy defers producer execution to the first capability use of the
	// returned stand-in. Requires a cacheable scope.
	Lazy bool

	// PerLookup disables caching across repeated lookups within the same
	// request or session context: each lookup constructs a fresh instance,
	// but the instances still live and die with the context. Only
	// meaningful for ScopeRequest and ScopeSession.
	PerLookup bool

	// Proxy, when set on a lazy definition, builds the stand-in returned to
	// callers. When nil, callers receive the *Handle itself.
	Proxy ProxyFunc

	Params []ParamSpec
}

// PostProcessor transforms a freshly constructed bean instance before it is
// cached and returned.
type PostProcessor interface {
	Process(beanID string, instance any) (any, error)
}

// PostProcessorDefinition describes a post-processor. Declaration order is
// application order.
type PostProcessorDefinition struct {
	ID       string
	Producer func() (PostProcessor, error)
}

// validateDefinitions checks a full configuration. Any violation fails the
// whole configuration: no partial containers.
func validateDefinitions(defs []Definition, procs []PostProcessorDefinition) error {
	seen := make(map[string]struct{}, len(defs))

	for _, def := range defs {
		if def.ID == "" {
			return errors2.NewDefinitionError("", "definition has empty id")
		}
		if _, dup := seen[def.ID]; dup {
			return errors2.NewDefinitionError(def.ID, "duplicate definition")
		}
		seen[def.ID] = struct{}{}

		if def.Producer == nil {
			return errors2.NewDefinitionError(def.ID, "definition has nil producer")
		}
		if !def.Scope.valid() {
			return errors2.NewDefinitionError(def.ID, "invalid scope %d", int(def.Scope))
		}
		if def.Lazy && def.Scope == ScopeTransient {
			return errors2.NewDefinitionError(def.ID, "lazy requires a cacheable scope, got transient")
		}
		if def.Lazy && def.PerLookup {
			return errors2.NewDefinitionError(def.ID, "lazy and per-lookup are mutually exclusive")
		}
		if def.PerLookup && !def.Scope.contextual() {
			return errors2.NewDefinitionError(def.ID, "per-lookup requires request or session scope, got %s", def.Scope)
		}
		if def.Proxy != nil && !def.Lazy {
			return errors2.NewDefinitionError(def.ID, "proxy set on a non-lazy definition")
		}

		names := make(map[string]struct{}, len(def.Params))
		for _, p := range def.Params {
			if p.Name == "" {
				return errors2.NewDefinitionError(def.ID, "parameter spec has empty name")
			}
			if _, dup := names[p.Name]; dup {
				return errors2.NewDefinitionError(def.ID, "duplicate parameter spec %q", p.Name)
			}
			names[p.Name] = struct{}{}
			if p.Required && p.HasDefault {
				return errors2.NewDefinitionError(def.ID, "parameter %q is required and has a default", p.Name)
			}
		}
	}

	procSeen := make(map[string]struct{}, len(procs))
	for _, proc := range procs {
		if proc.ID == "" {
			return errors2.NewDefinitionError("", "post-processor definition has empty id")
		}
		if _, dup := procSeen[proc.ID]; dup {
			return errors2.NewDefinitionError(proc.ID, "duplicate post-processor definition")
		}
		procSeen[proc.ID] = struct{}{}
		if proc.Producer == nil {
			return errors2.NewDefinitionError(proc.ID, "post-processor definition has nil producer")
		}
	}

	return nil
}
