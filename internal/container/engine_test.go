package container

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errors2 "github.com/xraph/brew/internal/errors"
)

type widget struct {
	serial int32
}

func newTestEngine(t *testing.T, defs []Definition, procs []PostProcessorDefinition, params map[string]any) *Engine {
	t.Helper()
	e, err := NewEngine(defs, procs, params)
	require.NoError(t, err)
	return e
}

func countingProducer(counter *atomic.Int32) Producer {
	return func(_ *BuildContext) (any, error) {
		return &widget{serial: counter.Add(1)}, nil
	}
}

func TestResolve_SingletonIdentity(t *testing.T) {
	var counter atomic.Int32
	e := newTestEngine(t, []Definition{
		{ID: "widget", Producer: countingProducer(&counter), Scope: ScopeSingleton},
	}, nil, nil)

	first, err := e.Resolve("widget", ScopeContext{})
	require.NoError(t, err)
	second, err := e.Resolve("widget", ScopeContext{})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), counter.Load())
}

func TestResolve_TransientIsFresh(t *testing.T) {
	var counter atomic.Int32
	e := newTestEngine(t, []Definition{
		{ID: "widget", Producer: countingProducer(&counter), Scope: ScopeTransient},
	}, nil, nil)

	first, err := e.Resolve("widget", ScopeContext{})
	require.NoError(t, err)
	second, err := e.Resolve("widget", ScopeContext{})
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), counter.Load())
}

func TestResolve_NotFound(t *testing.T) {
	e := newTestEngine(t, nil, nil, nil)

	_, err := e.Resolve("missing", ScopeContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors2.ErrNotFound)

	var be *errors2.BeanError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "missing", be.Bean)
}

func TestHas_NoConstruction(t *testing.T) {
	var counter atomic.Int32
	e := newTestEngine(t, []Definition{
		{ID: "widget", Producer: countingProducer(&counter), Scope: ScopeSingleton},
	}, nil, nil)

	assert.True(t, e.Has("widget"))
	assert.False(t, e.Has("missing"))
	assert.Equal(t, int32(0), counter.Load())
}

func TestResolve_RequestScopeIsolation(t *testing.T) {
	var counter atomic.Int32
	e := newTestEngine(t, []Definition{
		{ID: "widget", Producer: countingProducer(&counter), Scope: ScopeRequest},
	}, nil, nil)

	require.NoError(t, e.BeginRequest("r1"))
	require.NoError(t, e.BeginRequest("r2"))

	inR1, err := e.Resolve("widget", ScopeContext{Request: "r1"})
	require.NoError(t, err)
	inR1Again, err := e.Resolve("widget", ScopeContext{Request: "r1"})
	require.NoError(t, err)
	inR2, err := e.Resolve("widget", ScopeContext{Request: "r2"})
	require.NoError(t, err)

	assert.Same(t, inR1, inR1Again)
	assert.NotSame(t, inR1, inR2)
	assert.Equal(t, int32(2), counter.Load())
}

func TestResolve_RequestScopeWithoutContext(t *testing.T) {
	e := newTestEngine(t, []Definition{
		{ID: "widget", Producer: nopProducer, Scope: ScopeRequest},
	}, nil, nil)

	_, err := e.Resolve("widget", ScopeContext{})
	assert.ErrorIs(t, err, errors2.ErrConstruction)

	// A context id that was never begun is just as invalid.
	_, err = e.Resolve("widget", ScopeContext{Request: "never-begun"})
	assert.ErrorIs(t, err, errors2.ErrConstruction)
}

func TestResolve_PerLookup(t *testing.T) {
	var counter atomic.Int32
	e := newTestEngine(t, []Definition{
		{ID: "widget", Producer: countingProducer(&counter), Scope: ScopeRequest, PerLookup: true},
	}, nil, nil)

	require.NoError(t, e.BeginRequest("r1"))

	first, err := e.Resolve("widget", ScopeContext{Request: "r1"})
	require.NoError(t, err)
	second, err := e.Resolve("widget", ScopeContext{Request: "r1"})
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), counter.Load())

	// Still bound to an active context.
	_, err = e.Resolve("widget", ScopeContext{Request: "ended"})
	assert.ErrorIs(t, err, errors2.ErrConstruction)
}

func TestEndRequest_EvictsEntries(t *testing.T) {
	var counter atomic.Int32
	e := newTestEngine(t, []Definition{
		{ID: "widget", Producer: countingProducer(&counter), Scope: ScopeRequest},
	}, nil, nil)

	require.NoError(t, e.BeginRequest("r1"))
	_, err := e.Resolve("widget", ScopeContext{Request: "r1"})
	require.NoError(t, err)
	require.NoError(t, e.EndRequest("r1"))

	require.NoError(t, e.BeginRequest("r1"))
	_, err = e.Resolve("widget", ScopeContext{Request: "r1"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), counter.Load())
}

func TestResolve_ConcurrentFirstResolution(t *testing.T) {
	var counter atomic.Int32
	e := newTestEngine(t, []Definition{
		{ID: "widget", Producer: countingProducer(&counter), Scope: ScopeSingleton},
	}, nil, nil)

	const n = 32
	results := make([]any, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			v, err := e.Resolve("widget", ScopeContext{})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), counter.Load())
	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestResolve_ConcurrentLazySameStandIn(t *testing.T) {
	var counter atomic.Int32
	e := newTestEngine(t, []Definition{
		{ID: "widget", Producer: countingProducer(&counter), Scope: ScopeSingleton, Lazy: true},
	}, nil, nil)

	const n = 16
	results := make([]any, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			v, err := e.Resolve("widget", ScopeContext{})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(0), counter.Load())
	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestResolve_LazyDefersProducer(t *testing.T) {
	var counter atomic.Int32
	e := newTestEngine(t, []Definition{
		{ID: "widget", Producer: countingProducer(&counter), Scope: ScopeSingleton, Lazy: true},
	}, nil, nil)

	standIn, err := e.Resolve("widget", ScopeContext{})
	require.NoError(t, err)
	assert.Equal(t, int32(0), counter.Load())

	h, ok := standIn.(*Handle)
	require.True(t, ok)
	assert.False(t, h.Realized())

	real, err := h.Value()
	require.NoError(t, err)
	assert.Equal(t, int32(1), counter.Load())

	again, err := h.Value()
	require.NoError(t, err)
	assert.Same(t, real, again)
	assert.Equal(t, int32(1), counter.Load())
}

func TestResolve_LazyConstructionErrorDeferred(t *testing.T) {
	cause := errors.New("boom")
	e := newTestEngine(t, []Definition{
		{ID: "widget", Producer: func(_ *BuildContext) (any, error) { return nil, cause }, Scope: ScopeSingleton, Lazy: true},
	}, nil, nil)

	standIn, err := e.Resolve("widget", ScopeContext{})
	require.NoError(t, err)

	h := standIn.(*Handle)
	_, err = h.Value()
	assert.ErrorIs(t, err, errors2.ErrConstruction)
	assert.ErrorIs(t, err, cause)

	// Sticky: the producer never re-runs.
	_, err = h.Value()
	assert.ErrorIs(t, err, cause)
}

func TestResolve_LazyPostProcessedOnRealization(t *testing.T) {
	e := newTestEngine(t, []Definition{
		{ID: "widget", Producer: func(_ *BuildContext) (any, error) { return &markedBean{}, nil }, Scope: ScopeSingleton, Lazy: true},
	}, []PostProcessorDefinition{
		procDef("p1", markerProcessor{marker: "P1"}),
	}, nil)

	standIn, err := e.Resolve("widget", ScopeContext{})
	require.NoError(t, err)

	real, err := standIn.(*Handle).Value()
	require.NoError(t, err)
	assert.Equal(t, []string{"P1"}, real.(*markedBean).markers)
}

func TestResolve_PostProcessorOrdering(t *testing.T) {
	e := newTestEngine(t, []Definition{
		{ID: "widget", Producer: func(_ *BuildContext) (any, error) { return &markedBean{}, nil }, Scope: ScopeSingleton},
	}, []PostProcessorDefinition{
		procDef("p1", markerProcessor{marker: "P1"}),
		procDef("p2", markerProcessor{marker: "P2"}),
	}, nil)

	v, err := e.Resolve("widget", ScopeContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2"}, v.(*markedBean).markers)
}

func TestResolve_PostProcessorFailureNotCached(t *testing.T) {
	var counter atomic.Int32
	cause := errors.New("process failed")
	e := newTestEngine(t, []Definition{
		{ID: "widget", Producer: countingProducer(&counter), Scope: ScopeSingleton},
	}, []PostProcessorDefinition{
		procDef("fail", failingProcessor{err: cause}),
	}, nil)

	_, err := e.Resolve("widget", ScopeContext{})
	assert.ErrorIs(t, err, errors2.ErrConstruction)

	_, err = e.Resolve("widget", ScopeContext{})
	assert.ErrorIs(t, err, errors2.ErrConstruction)
	assert.Equal(t, int32(2), counter.Load())
}

func TestResolve_ProducerErrorWrapped(t *testing.T) {
	var counter atomic.Int32
	cause := errors.New("dial failed")
	e := newTestEngine(t, []Definition{
		{ID: "db", Producer: func(_ *BuildContext) (any, error) {
			counter.Add(1)
			return nil, cause
		}, Scope: ScopeSingleton},
	}, nil, nil)

	_, err := e.Resolve("db", ScopeContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors2.ErrConstruction)
	assert.ErrorIs(t, err, cause)

	// Failed construction is never cached; the next resolve tries again.
	_, err = e.Resolve("db", ScopeContext{})
	require.Error(t, err)
	assert.Equal(t, int32(2), counter.Load())
}

func TestResolve_ParameterBinding(t *testing.T) {
	e := newTestEngine(t, []Definition{
		{
			ID: "db",
			Producer: func(bc *BuildContext) (any, error) {
				return bc.Arg(0).(string) + ":" + bc.Arg(1).(string), nil
			},
			Scope: ScopeSingleton,
			Params: []ParamSpec{
				{Name: "host", Required: true},
				{Name: "port", Default: "5432", HasDefault: true},
			},
		},
	}, nil, map[string]any{"host": "db.internal"})

	v, err := e.Resolve("db", ScopeContext{})
	require.NoError(t, err)
	assert.Equal(t, "db.internal:5432", v)
}

func TestResolve_MissingRequiredParameter(t *testing.T) {
	e := newTestEngine(t, []Definition{
		{ID: "db", Producer: nopProducer, Scope: ScopeSingleton, Params: []ParamSpec{
			{Name: "dsn", Required: true},
		}},
	}, nil, nil)

	_, err := e.Resolve("db", ScopeContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors2.ErrConstruction)
	assert.Contains(t, err.Error(), "dsn")
}

func TestBuildContext_ParamByName(t *testing.T) {
	e := newTestEngine(t, []Definition{
		{
			ID: "svc",
			Producer: func(bc *BuildContext) (any, error) {
				v, ok := bc.Param("region")
				if !ok {
					return nil, errors.New("region not bound")
				}
				return v, nil
			},
			Scope:  ScopeSingleton,
			Params: []ParamSpec{{Name: "region"}},
		},
	}, nil, map[string]any{"region": "eu-west-1"})

	v, err := e.Resolve("svc", ScopeContext{})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", v)
}

func TestResolve_DependencyChain(t *testing.T) {
	var dbCounter atomic.Int32
	e := newTestEngine(t, []Definition{
		{ID: "db", Producer: countingProducer(&dbCounter), Scope: ScopeSingleton},
		{ID: "repo", Producer: func(bc *BuildContext) (any, error) {
			db, err := bc.Resolve("db")
			if err != nil {
				return nil, err
			}
			return map[string]any{"db": db}, nil
		}, Scope: ScopeSingleton},
	}, nil, nil)

	repo, err := e.Resolve("repo", ScopeContext{})
	require.NoError(t, err)

	db, err := e.Resolve("db", ScopeContext{})
	require.NoError(t, err)
	assert.Same(t, db, repo.(map[string]any)["db"])
	assert.Equal(t, int32(1), dbCounter.Load())
}

func TestResolve_EagerCycleFails(t *testing.T) {
	e := newTestEngine(t, []Definition{
		{ID: "a", Producer: func(bc *BuildContext) (any, error) { return bc.Resolve("b") }, Scope: ScopeSingleton},
		{ID: "b", Producer: func(bc *BuildContext) (any, error) { return bc.Resolve("a") }, Scope: ScopeSingleton},
	}, nil, nil)

	_, err := e.Resolve("a", ScopeContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors2.ErrCycle)
	assert.Contains(t, err.Error(), "a -> b -> a")
}

func TestResolve_SelfCycleFails(t *testing.T) {
	e := newTestEngine(t, []Definition{
		{ID: "a", Producer: func(bc *BuildContext) (any, error) { return bc.Resolve("a") }, Scope: ScopeTransient},
	}, nil, nil)

	_, err := e.Resolve("a", ScopeContext{})
	assert.ErrorIs(t, err, errors2.ErrCycle)
}

func TestResolve_LazyBreaksCycle(t *testing.T) {
	var aCounter atomic.Int32
	e := newTestEngine(t, []Definition{
		{ID: "a", Producer: func(bc *BuildContext) (any, error) {
			aCounter.Add(1)
			b, err := bc.Resolve("b")
			if err != nil {
				return nil, err
			}
			return map[string]any{"b": b}, nil
		}, Scope: ScopeSingleton, Lazy: true},
		{ID: "b", Producer: func(bc *BuildContext) (any, error) {
			a, err := bc.Resolve("a")
			if err != nil {
				return nil, err
			}
			return map[string]any{"a": a}, nil
		}, Scope: ScopeSingleton},
	}, nil, nil)

	b, err := e.Resolve("b", ScopeContext{})
	require.NoError(t, err)
	assert.Equal(t, int32(0), aCounter.Load())

	// Realizing a after b completed resolves cleanly: a's producer finds b
	// in the cache.
	h := b.(map[string]any)["a"].(*Handle)
	realA, err := h.Value()
	require.NoError(t, err)
	assert.Equal(t, int32(1), aCounter.Load())
	// assert.Same rejects map kinds, so compare map identity via reflect.
	assert.Equal(t, reflect.ValueOf(b).Pointer(), reflect.ValueOf(realA.(map[string]any)["b"]).Pointer())
}

func TestResolve_LazyCycleRealizedDuringConstructionFails(t *testing.T) {
	e := newTestEngine(t, []Definition{
		{ID: "a", Producer: func(bc *BuildContext) (any, error) {
			b, err := bc.Resolve("b")
			if err != nil {
				return nil, err
			}
			return map[string]any{"b": b}, nil
		}, Scope: ScopeSingleton, Lazy: true},
		{ID: "b", Producer: func(bc *BuildContext) (any, error) {
			a, err := bc.Resolve("a")
			if err != nil {
				return nil, err
			}
			// Forcing the stand-in while b is still mid-construction
			// realizes the cycle.
			if _, err := a.(*Handle).Value(); err != nil {
				return nil, err
			}
			return struct{}{}, nil
		}, Scope: ScopeSingleton},
	}, nil, nil)

	_, err := e.Resolve("b", ScopeContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors2.ErrCycle)
}

func TestResolve_LazyRealizedAfterTransientChainSettles(t *testing.T) {
	e := newTestEngine(t, []Definition{
		{ID: "dialer", Producer: func(bc *BuildContext) (any, error) {
			return bc.Resolve("pool")
		}, Scope: ScopeTransient},
		{ID: "pool", Producer: func(bc *BuildContext) (any, error) {
			if _, err := bc.Resolve("dialer"); err != nil {
				return nil, err
			}
			return "pool-ready", nil
		}, Scope: ScopeSingleton, Lazy: true},
	}, nil, nil)

	v, err := e.Resolve("dialer", ScopeContext{})
	require.NoError(t, err)
	h, ok := v.(*Handle)
	require.True(t, ok)

	// The stand-in was installed while dialer was mid-construction, but
	// that resolution is over: realizing pool now re-resolves the
	// transient dialer without a false cycle.
	got, err := h.Value()
	require.NoError(t, err)
	assert.Equal(t, "pool-ready", got)
}

func TestResolve_AfterClose(t *testing.T) {
	e := newTestEngine(t, []Definition{
		{ID: "widget", Producer: nopProducer, Scope: ScopeSingleton},
	}, nil, nil)

	e.Close()
	_, err := e.Resolve("widget", ScopeContext{})
	assert.ErrorIs(t, err, errors2.ErrConstruction)

	// Closing twice is a no-op.
	e.Close()
}

func TestBeans_RegistrationOrder(t *testing.T) {
	e := newTestEngine(t, []Definition{
		{ID: "z", Producer: nopProducer, Scope: ScopeSingleton},
		{ID: "a", Producer: nopProducer, Scope: ScopeTransient},
		{ID: "m", Producer: nopProducer, Scope: ScopeRequest},
	}, nil, nil)

	assert.Equal(t, []string{"z", "a", "m"}, e.Beans())
}

func TestInspect(t *testing.T) {
	e := newTestEngine(t, []Definition{
		{ID: "widget", Producer: nopProducer, Scope: ScopeSingleton, Params: []ParamSpec{{Name: "x"}}},
		{ID: "req", Producer: nopProducer, Scope: ScopeRequest, PerLookup: true},
	}, nil, nil)

	info, ok := e.Inspect("widget")
	require.True(t, ok)
	assert.Equal(t, ScopeSingleton, info.Scope)
	assert.Equal(t, 1, info.Params)
	assert.False(t, info.Realized)

	_, err := e.Resolve("widget", ScopeContext{})
	require.NoError(t, err)
	info, _ = e.Inspect("widget")
	assert.True(t, info.Realized)

	info, ok = e.Inspect("req")
	require.True(t, ok)
	assert.True(t, info.PerLookup)

	_, ok = e.Inspect("missing")
	assert.False(t, ok)
}

// greeter is the capability contract used by the proxy tests.
type greeter interface {
	Greet() string
}

type realGreeter struct {
	greeting string
}

func (g *realGreeter) Greet() string { return g.greeting }

// greeterProxy forwards the capability to the lazily built instance. The
// embedded handle keeps realization introspection available.
type greeterProxy struct {
	*Handle
}

func (p *greeterProxy) Greet() string {
	v, err := p.Value()
	if err != nil {
		panic(err)
	}
	return v.(greeter).Greet()
}

func TestResolve_ProxiedLazyBean(t *testing.T) {
	var counter atomic.Int32
	e := newTestEngine(t, []Definition{
		{
			ID: "greeter",
			Producer: func(_ *BuildContext) (any, error) {
				counter.Add(1)
				return &realGreeter{greeting: "hello"}, nil
			},
			Scope: ScopeSingleton,
			Lazy:  true,
			Proxy: func(h *Handle) any { return &greeterProxy{Handle: h} },
		},
	}, nil, nil)

	v, err := e.Resolve("greeter", ScopeContext{})
	require.NoError(t, err)

	g, ok := v.(greeter)
	require.True(t, ok)
	assert.Equal(t, int32(0), counter.Load())

	assert.Equal(t, "hello", g.Greet())
	assert.Equal(t, "hello", g.Greet())
	assert.Equal(t, int32(1), counter.Load())
	assert.True(t, v.(*greeterProxy).Realized())
}

func TestSessionScope_SurvivesRequests(t *testing.T) {
	var counter atomic.Int32
	e := newTestEngine(t, []Definition{
		{ID: "cart", Producer: countingProducer(&counter), Scope: ScopeSession},
	}, nil, nil)

	require.NoError(t, e.BeginSession("s1"))
	require.NoError(t, e.BeginRequest("r1"))

	first, err := e.Resolve("cart", ScopeContext{Request: "r1", Session: "s1"})
	require.NoError(t, err)
	require.NoError(t, e.EndRequest("r1"))

	require.NoError(t, e.BeginRequest("r2"))
	second, err := e.Resolve("cart", ScopeContext{Request: "r2", Session: "s1"})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), counter.Load())
}
