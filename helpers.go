package brew

import (
	"fmt"

	errors2 "github.com/xraph/brew/internal/errors"
)

// Resolve resolves a bean with no scope context and type-asserts the
// result.
func Resolve[T any](c *Container, id string) (T, error) {
	return ResolveIn[T](c, id, ScopeContext{})
}

// ResolveIn resolves a bean within a scope context and type-asserts the
// result.
func ResolveIn[T any](c *Container, id string, sctx ScopeContext) (T, error) {
	var zero T
	instance, err := c.Resolve(id, sctx)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("%w: bean %s is %T, not %T", errors2.ErrTypeMismatch, id, instance, zero)
	}
	return typed, nil
}

// Must resolves or panics - use only during startup
func Must[T any](c *Container, id string) T {
	instance, err := Resolve[T](c, id)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve %s: %v", id, err))
	}
	return instance
}

// LazyValue realizes a lazy handle and type-asserts the result.
func LazyValue[T any](h *Handle) (T, error) {
	var zero T
	instance, err := h.Value()
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("%w: bean %s is %T, not %T", errors2.ErrTypeMismatch, h.Bean(), instance, zero)
	}
	return typed, nil
}
