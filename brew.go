// Package brew is a declarative object-lifecycle and dependency-resolution
// engine. Producers declare how to build named beans; the container returns
// correctly scoped, possibly lazily constructed instances, applies
// post-construction hooks in declaration order, and threads externally
// supplied named parameters into producers.
package brew

import (
	"github.com/google/uuid"

	"github.com/xraph/brew/internal/container"
)

// Engine types re-exported for callers.
type (
	Definition              = container.Definition
	ParamSpec               = container.ParamSpec
	Arg                     = container.Arg
	Producer                = container.Producer
	ProxyFunc               = container.ProxyFunc
	PostProcessor           = container.PostProcessor
	PostProcessorDefinition = container.PostProcessorDefinition
	Scope                   = container.Scope
	ScopeContext            = container.ScopeContext
	BuildContext            = container.BuildContext
	Handle                  = container.Handle
	BeanInfo                = container.BeanInfo
	SessionSnapshot         = container.SessionSnapshot
)

// Bean scopes.
const (
	Transient = container.ScopeTransient
	Singleton = container.ScopeSingleton
	Request   = container.ScopeRequest
	Session   = container.ScopeSession
)

// ParamsFromYAML decodes a flat YAML mapping into a parameter map for
// WithParams.
func ParamsFromYAML(data []byte) (map[string]any, error) {
	return container.ParamsFromYAML(data)
}

// Container is the public lookup facade over the resolution engine. Its
// lifecycle is owned by the caller: construct with New, tear down with
// Close.
type Container struct {
	engine *container.Engine
}

// New validates the definitions and builds a container. A validation
// failure produces no container.
func New(defs []Definition, opts ...Option) (*Container, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	engine, err := container.NewEngine(defs, cfg.processors, cfg.params, cfg.engineOpts()...)
	if err != nil {
		return nil, err
	}
	return &Container{engine: engine}, nil
}

// Has reports whether a bean is defined. Pure lookup, never constructs.
func (c *Container) Has(id string) bool {
	return c.engine.Has(id)
}

// Get resolves a bean with no request or session context. Sufficient for
// transient and singleton beans.
func (c *Container) Get(id string) (any, error) {
	return c.engine.Resolve(id, ScopeContext{})
}

// Resolve resolves a bean within the supplied scope context.
func (c *Container) Resolve(id string, sctx ScopeContext) (any, error) {
	return c.engine.Resolve(id, sctx)
}

// BeginRequest opens a request context under the given id.
func (c *Container) BeginRequest(contextID string) error {
	return c.engine.BeginRequest(contextID)
}

// NewRequest opens a request context under a generated id.
func (c *Container) NewRequest() (string, error) {
	id := uuid.NewString()
	if err := c.engine.BeginRequest(id); err != nil {
		return "", err
	}
	return id, nil
}

// EndRequest ends a request context, discarding its cached beans.
func (c *Container) EndRequest(contextID string) error {
	return c.engine.EndRequest(contextID)
}

// BeginSession opens a session context under the given id.
func (c *Container) BeginSession(contextID string) error {
	return c.engine.BeginSession(contextID)
}

// NewSession opens a session context under a generated id.
func (c *Container) NewSession() (string, error) {
	id := uuid.NewString()
	if err := c.engine.BeginSession(id); err != nil {
		return "", err
	}
	return id, nil
}

// EndSession ends a session context, discarding its cached beans.
func (c *Container) EndSession(contextID string) error {
	return c.engine.EndSession(contextID)
}

// SnapshotSession exports the realized beans of an active session.
func (c *Container) SnapshotSession(sessionID string) (*SessionSnapshot, error) {
	return c.engine.SnapshotSession(sessionID)
}

// RestoreSession begins a session context repopulated from a snapshot.
func (c *Container) RestoreSession(sessionID string, snap *SessionSnapshot) error {
	return c.engine.RestoreSession(sessionID, snap)
}

// Beans returns all bean ids in registration order.
func (c *Container) Beans() []string {
	return c.engine.Beans()
}

// Inspect returns diagnostic information about a bean.
func (c *Container) Inspect(id string) (BeanInfo, bool) {
	return c.engine.Inspect(id)
}

// Close tears the container down, discarding all cached instances.
func (c *Container) Close() {
	c.engine.Close()
}
