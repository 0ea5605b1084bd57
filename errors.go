package brew

import (
	errors2 "github.com/xraph/brew/internal/errors"
)

// BeanError is the structured error carried by every resolution failure.
type BeanError = errors2.BeanError

// Error codes carried by BeanError.
const (
	CodeDefinitionError    = errors2.CodeDefinitionError
	CodeBeanNotFound       = errors2.CodeBeanNotFound
	CodeCycleDetected      = errors2.CodeCycleDetected
	CodeConstructionFailed = errors2.CodeConstructionFailed
)

// Sentinel targets for errors.Is checks against resolution failures.
var (
	ErrDefinition   = errors2.ErrDefinition
	ErrNotFound     = errors2.ErrNotFound
	ErrCycle        = errors2.ErrCycle
	ErrConstruction = errors2.ErrConstruction
)

// Scope context lifecycle and helper errors.
var (
	ErrContextActive   = errors2.ErrContextActive
	ErrContextNotFound = errors2.ErrContextNotFound
	ErrTypeMismatch    = errors2.ErrTypeMismatch
)
