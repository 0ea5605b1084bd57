package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Scope context lifecycle errors. These come from the begin/end API, not
// from resolution, so they are plain sentinels rather than BeanErrors.
var (
	ErrContextActive   = errors.New("scope context already active")
	ErrContextNotFound = errors.New("scope context not active")
)

// ErrTypeMismatch is returned by the typed resolve helpers when a bean is
// not assignable to the requested type.
var ErrTypeMismatch = errors.New("bean type mismatch")

// =============================================================================
// ERROR CODES
// =============================================================================

// Error code constants for structured errors
const (
	CodeDefinitionError    = "DEFINITION_ERROR"
	CodeBeanNotFound       = "BEAN_NOT_FOUND"
	CodeCycleDetected      = "CYCLE_DETECTED"
	CodeConstructionFailed = "CONSTRUCTION_FAILED"
)

// Sentinel targets for errors.Is checks. Each carries only a code, so any
// BeanError of the same kind matches regardless of bean id.
var (
	ErrDefinition   = &BeanError{Code: CodeDefinitionError}
	ErrNotFound     = &BeanError{Code: CodeBeanNotFound}
	ErrCycle        = &BeanError{Code: CodeCycleDetected}
	ErrConstruction = &BeanError{Code: CodeConstructionFailed}
)

// =============================================================================
// BEAN ERROR (STRUCTURED ERROR)
// =============================================================================

// BeanError is the structured error type for all resolution failures.
// Every error surfaced by the engine is one of the four codes above and
// carries the offending bean id.
type BeanError struct {
	Code    string
	Bean    string
	Message string
	Cause   error
}

func (e *BeanError) Error() string {
	var b strings.Builder
	if e.Bean != "" {
		b.WriteString("bean ")
		b.WriteString(e.Bean)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *BeanError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by error code, allowing comparison
// against the sentinel errors above.
func (e *BeanError) Is(target error) bool {
	t, ok := target.(*BeanError)
	if !ok {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// NewDefinitionError reports an invalid configuration. No container is
// produced when one of these is returned.
func NewDefinitionError(bean, format string, args ...any) *BeanError {
	return &BeanError{
		Code:    CodeDefinitionError,
		Bean:    bean,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewNotFoundError reports a resolve call for an unknown bean id.
func NewNotFoundError(bean string) *BeanError {
	return &BeanError{
		Code:    CodeBeanNotFound,
		Bean:    bean,
		Message: "no definition registered",
	}
}

// NewCycleError reports a non-lazy circular dependency. The chain lists the
// in-progress bean ids in resolution order, ending with the revisited id.
func NewCycleError(chain []string) *BeanError {
	bean := ""
	if len(chain) > 0 {
		bean = chain[len(chain)-1]
	}
	return &BeanError{
		Code:    CodeCycleDetected,
		Bean:    bean,
		Message: "circular dependency: " + strings.Join(chain, " -> "),
	}
}

// NewConstructionError reports a producer, parameter binding, or
// post-processor failure for the given bean.
func NewConstructionError(bean string, cause error) *BeanError {
	return &BeanError{
		Code:    CodeConstructionFailed,
		Bean:    bean,
		Message: "construction failed",
		Cause:   cause,
	}
}

// NewConstructionErrorf is like NewConstructionError without an underlying
// cause, for failures originating in the engine itself (missing parameters,
// inactive scope contexts).
func NewConstructionErrorf(bean, format string, args ...any) *BeanError {
	return &BeanError{
		Code:    CodeConstructionFailed,
		Bean:    bean,
		Message: fmt.Sprintf(format, args...),
	}
}
