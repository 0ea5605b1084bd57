package container

import (
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	errors2 "github.com/xraph/brew/internal/errors"
	"github.com/xraph/brew/internal/metrics"
)

// ScopeContext carries the caller-supplied lifetime tokens bounding the
// request and session scope buckets for one resolution. Either field may be
// empty; resolving a bean of the matching scope then fails.
type ScopeContext struct {
	Request string
	Session string
}

// Engine orchestrates definitions, the scope store, parameter binding, the
// lazy stand-in factory and the post-processor pipeline to answer Resolve
// and Has.
type Engine struct {
	defs     map[string]*Definition
	order    []string
	pipeline *Pipeline
	binder   *ParameterBinder
	store    *ScopeStore
	log      *zap.Logger
	metrics  *metrics.Collector
	closed   atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = c
	}
}

// NewEngine validates the configuration and builds the engine. Validation
// failure means no container is produced. Post-processor producers run here,
// in declaration order.
func NewEngine(defs []Definition, procs []PostProcessorDefinition, params map[string]any, opts ...Option) (*Engine, error) {
	if err := validateDefinitions(defs, procs); err != nil {
		return nil, err
	}

	pipeline, err := newPipeline(procs)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		defs:     make(map[string]*Definition, len(defs)),
		order:    make([]string, 0, len(defs)),
		pipeline: pipeline,
		binder:   NewParameterBinder(params),
		store:    NewScopeStore(),
		log:      zap.NewNop(),
	}
	for i := range defs {
		def := defs[i]
		e.defs[def.ID] = &def
		e.order = append(e.order, def.ID)
	}

	for _, opt := range opts {
		opt(e)
	}

	e.log.Info("container built",
		zap.Int("beans", len(e.defs)),
		zap.Int("post_processors", pipeline.Len()))
	return e, nil
}

// Has reports whether a definition exists. Pure lookup, no construction.
func (e *Engine) Has(id string) bool {
	_, ok := e.defs[id]
	return ok
}

// Beans returns all bean ids in registration order.
func (e *Engine) Beans() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// BeanInfo is diagnostic information about a definition.
type BeanInfo struct {
	ID        string
	Scope     Scope
	Lazy      bool
	PerLookup bool
	Params    int

	// Realized reports whether a singleton-scoped bean has a cached
	// instance. Always false for other scopes, whose buckets are keyed by
	// caller contexts.
	Realized bool
}

// Inspect returns diagnostic information about a bean.
func (e *Engine) Inspect(id string) (BeanInfo, bool) {
	def, ok := e.defs[id]
	if !ok {
		return BeanInfo{}, false
	}
	info := BeanInfo{
		ID:        def.ID,
		Scope:     def.Scope,
		Lazy:      def.Lazy,
		PerLookup: def.PerLookup,
		Params:    len(def.Params),
	}
	if def.Scope == ScopeSingleton {
		_, info.Realized = e.store.Peek(ScopeSingleton, singletonContextID, id)
	}
	return info, true
}

// Resolve returns the scoped, post-processed instance for id, constructing
// it if the scope bucket has no entry yet.
func (e *Engine) Resolve(id string, sctx ScopeContext) (any, error) {
	ch := newResolutionChain()
	defer ch.settle()
	return e.resolve(id, sctx, ch)
}

func (e *Engine) resolve(id string, sctx ScopeContext, ch *resolutionChain) (any, error) {
	if e.closed.Load() {
		e.metrics.Resolution(id, metrics.OutcomeError)
		return nil, errors2.NewConstructionErrorf(id, "container closed")
	}

	def, ok := e.defs[id]
	if !ok {
		e.metrics.Resolution(id, metrics.OutcomeError)
		return nil, errors2.NewNotFoundError(id)
	}

	if def.Scope == ScopeTransient || def.PerLookup {
		return e.resolveFresh(def, sctx, ch)
	}
	return e.resolveCached(def, sctx, ch)
}

// resolveFresh constructs a new instance on every lookup. Transient beans
// need no context; per-lookup request/session beans still require theirs to
// be active.
func (e *Engine) resolveFresh(def *Definition, sctx ScopeContext, ch *resolutionChain) (any, error) {
	chainCtx := "@transient"
	if def.Scope.contextual() {
		contextID, err := e.contextIDFor(def, sctx)
		if err != nil {
			e.metrics.Resolution(def.ID, metrics.OutcomeError)
			return nil, err
		}
		if !e.store.Active(def.Scope, contextID) {
			e.metrics.Resolution(def.ID, metrics.OutcomeError)
			return nil, errors2.NewConstructionErrorf(def.ID, "%s context %s not active", def.Scope, contextID)
		}
		chainCtx = def.Scope.String() + "/" + contextID
	}

	if ch.contains(def.ID, chainCtx) {
		e.metrics.Resolution(def.ID, metrics.OutcomeError)
		return nil, errors2.NewCycleError(append(ch.ids(), def.ID))
	}
	ch.push(def.ID, chainCtx)
	defer ch.pop()

	instance, err := e.construct(def, sctx, ch)
	if err != nil {
		e.metrics.Resolution(def.ID, metrics.OutcomeError)
		return nil, err
	}
	e.metrics.Resolution(def.ID, metrics.OutcomeMiss)
	return instance, nil
}

func (e *Engine) resolveCached(def *Definition, sctx ScopeContext, ch *resolutionChain) (any, error) {
	contextID, err := e.contextIDFor(def, sctx)
	if err != nil {
		e.metrics.Resolution(def.ID, metrics.OutcomeError)
		return nil, err
	}

	// Cache hit before cycle check: a completed bean appearing in a stale
	// lazy-supplier chain is not a cycle.
	if cached, ok := e.store.Peek(def.Scope, contextID, def.ID); ok {
		e.metrics.Resolution(def.ID, metrics.OutcomeHit)
		return cached, nil
	}

	chainCtx := def.Scope.String() + "/" + contextID
	if ch.contains(def.ID, chainCtx) {
		e.metrics.Resolution(def.ID, metrics.OutcomeError)
		return nil, errors2.NewCycleError(append(ch.ids(), def.ID))
	}
	ch.push(def.ID, chainCtx)
	defer ch.pop()

	instance, created, err := e.store.GetOrCreate(def.Scope, contextID, def.ID, func() (any, error) {
		if def.Lazy {
			return e.makeStandIn(def, sctx, ch), nil
		}
		return e.construct(def, sctx, ch)
	})
	if err != nil {
		e.metrics.Resolution(def.ID, metrics.OutcomeError)
		if errors.Is(err, errors2.ErrContextNotFound) {
			return nil, errors2.NewConstructionError(def.ID, err)
		}
		return nil, err
	}

	if created {
		e.metrics.Resolution(def.ID, metrics.OutcomeMiss)
	} else {
		e.metrics.Resolution(def.ID, metrics.OutcomeHit)
	}
	return instance, nil
}

// construct binds parameters, runs the producer, and applies the pipeline.
// BeanErrors from nested resolutions propagate unchanged so a deep cycle or
// missing bean keeps its kind; any other producer error is wrapped.
func (e *Engine) construct(def *Definition, sctx ScopeContext, ch *resolutionChain) (any, error) {
	args, err := e.binder.Bind(def.ID, def.Params)
	if err != nil {
		return nil, err
	}

	e.metrics.Construction(def.ID)
	instance, err := def.Producer(&BuildContext{engine: e, sctx: sctx, ch: ch, args: args})
	if err != nil {
		var be *errors2.BeanError
		if errors.As(err, &be) {
			return nil, err
		}
		return nil, errors2.NewConstructionError(def.ID, err)
	}

	processed, err := e.pipeline.Apply(def.ID, instance)
	if err != nil {
		return nil, err
	}

	e.log.Debug("bean constructed",
		zap.String("bean", def.ID),
		zap.Stringer("scope", def.Scope))
	return processed, nil
}

// makeStandIn builds the lazy stand-in cached in place of the real
// instance. The supplier captures a snapshot of the in-progress chain so a
// realization forced while that chain is still live reports a cycle
// instead of recursing forever. Once the installing resolution settles,
// its links are stale and realization starts from a clean chain; reusing
// them would report a false cycle for any transient dependency that was
// on the installing chain.
func (e *Engine) makeStandIn(def *Definition, sctx ScopeContext, ch *resolutionChain) any {
	snap := ch.snapshot()
	h := newHandle(def.ID, func() (any, error) {
		if snap.settled() {
			chain := newResolutionChain()
			defer chain.settle()
			return e.construct(def, sctx, chain)
		}
		return e.construct(def, sctx, snap)
	})

	e.log.Debug("lazy stand-in installed", zap.String("bean", def.ID))
	if def.Proxy != nil {
		return def.Proxy(h)
	}
	return h
}

func (e *Engine) contextIDFor(def *Definition, sctx ScopeContext) (string, error) {
	switch def.Scope {
	case ScopeSingleton:
		return singletonContextID, nil
	case ScopeRequest:
		if sctx.Request == "" {
			return "", errors2.NewConstructionErrorf(def.ID, "request-scoped bean resolved without a request context")
		}
		return sctx.Request, nil
	case ScopeSession:
		if sctx.Session == "" {
			return "", errors2.NewConstructionErrorf(def.ID, "session-scoped bean resolved without a session context")
		}
		return sctx.Session, nil
	default:
		return "", errors2.NewConstructionErrorf(def.ID, "scope %s has no cache context", def.Scope)
	}
}

// =============================================================================
// SCOPE CONTEXT LIFECYCLE
// =============================================================================

// BeginRequest opens a request context.
func (e *Engine) BeginRequest(contextID string) error {
	if err := e.store.BeginContext(ScopeRequest, contextID); err != nil {
		return err
	}
	e.metrics.ContextBegan(ScopeRequest.String())
	e.log.Debug("request context begun", zap.String("context", contextID))
	return nil
}

// EndRequest evicts and discards every request-scoped entry under the
// context. Instance-level cleanup is the caller's responsibility.
func (e *Engine) EndRequest(contextID string) error {
	n, err := e.store.EndContext(ScopeRequest, contextID)
	if err != nil {
		return err
	}
	e.metrics.ContextEnded(ScopeRequest.String())
	e.metrics.Evicted(ScopeRequest.String(), n)
	e.log.Debug("request context ended",
		zap.String("context", contextID),
		zap.Int("evicted", n))
	return nil
}

// BeginSession opens a session context.
func (e *Engine) BeginSession(contextID string) error {
	if err := e.store.BeginContext(ScopeSession, contextID); err != nil {
		return err
	}
	e.metrics.ContextBegan(ScopeSession.String())
	e.log.Debug("session context begun", zap.String("context", contextID))
	return nil
}

// EndSession evicts and discards every session-scoped entry under the
// context.
func (e *Engine) EndSession(contextID string) error {
	n, err := e.store.EndContext(ScopeSession, contextID)
	if err != nil {
		return err
	}
	e.metrics.ContextEnded(ScopeSession.String())
	e.metrics.Evicted(ScopeSession.String(), n)
	e.log.Debug("session context ended",
		zap.String("context", contextID),
		zap.Int("evicted", n))
	return nil
}

// Close tears the container down, discarding all cached instances. Further
// resolutions fail. Closing twice is a no-op.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	evicted := e.store.Drain()
	for scope, n := range evicted {
		e.metrics.Evicted(scope, n)
	}
	e.log.Info("container closed")
}

// =============================================================================
// BUILD CONTEXT
// =============================================================================

// BuildContext is handed to producers. It exposes the bound parameter
// values and re-enters the engine with the same active scope context, so
// bean-to-bean calls stay inside the current resolution chain.
type BuildContext struct {
	engine *Engine
	sctx   ScopeContext
	ch     *resolutionChain
	args   []Arg
}

// Resolve resolves another bean within the current resolution.
func (bc *BuildContext) Resolve(id string) (any, error) {
	return bc.engine.resolve(id, bc.sctx, bc.ch)
}

// Has reports whether a definition exists.
func (bc *BuildContext) Has(id string) bool {
	return bc.engine.Has(id)
}

// ScopeContext returns the active lifetime tokens.
func (bc *BuildContext) ScopeContext() ScopeContext {
	return bc.sctx
}

// Args returns the bound parameter values in spec order.
func (bc *BuildContext) Args() []Arg {
	return bc.args
}

// Arg returns the i-th bound value.
func (bc *BuildContext) Arg(i int) any {
	return bc.args[i].Value
}

// Param returns the bound value for a named parameter spec.
func (bc *BuildContext) Param(name string) (any, bool) {
	for _, a := range bc.args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// =============================================================================
// RESOLUTION CHAIN
// =============================================================================

// resolutionChain tracks the in-progress (bean, context) pairs of one
// resolution call. Revisiting a pair means a non-lazy cycle. The chain is
// confined to the resolving goroutine; lazy suppliers get a snapshot
// sharing the settle flag of the top-level chain, so they can tell a live
// installing resolution from a completed one.
type resolutionChain struct {
	entries []chainLink
	done    *atomic.Bool
}

type chainLink struct {
	bean string
	ctx  string
}

func newResolutionChain() *resolutionChain {
	return &resolutionChain{done: new(atomic.Bool)}
}

// settle marks the top-level resolution as complete, invalidating every
// snapshot taken from this chain.
func (c *resolutionChain) settle() {
	c.done.Store(true)
}

func (c *resolutionChain) settled() bool {
	return c.done.Load()
}

func (c *resolutionChain) contains(bean, ctx string) bool {
	for _, l := range c.entries {
		if l.bean == bean && l.ctx == ctx {
			return true
		}
	}
	return false
}

func (c *resolutionChain) push(bean, ctx string) {
	c.entries = append(c.entries, chainLink{bean: bean, ctx: ctx})
}

func (c *resolutionChain) pop() {
	c.entries = c.entries[:len(c.entries)-1]
}

func (c *resolutionChain) snapshot() *resolutionChain {
	entries := make([]chainLink, len(c.entries))
	copy(entries, c.entries)
	return &resolutionChain{entries: entries, done: c.done}
}

func (c *resolutionChain) ids() []string {
	out := make([]string, len(c.entries))
	for i, l := range c.entries {
		out[i] = l.bean
	}
	return out
}
