package compile

import (
	"errors"
	"fmt"
)

// CompileError reports a defect in the catalog handed to the compiler.
//
// Every CompileError is an internal invariant violation: a correct upstream
// resolver cannot produce a catalog that trips one. Compilation of the
// offending statement is aborted; there is nothing a caller can retry.
type CompileError struct {
	// Code identifies the violated invariant.
	Code CompileErrorCode

	// Statement is the statement name, when known.
	Statement string

	// Message is a human-readable description.
	Message string
}

// CompileErrorCode categorizes compile-time invariant violations.
type CompileErrorCode string

const (
	// ErrCodeUnknownElement indicates a catalog entry of a kind the
	// compiler does not know. Unreachable through the sealed Element
	// union unless the catalog was built reflectively.
	ErrCodeUnknownElement CompileErrorCode = "UNKNOWN_ELEMENT"

	// ErrCodeOrphanOccurrence indicates a source occurrence whose element
	// is missing from the catalog.
	ErrCodeOrphanOccurrence CompileErrorCode = "ORPHAN_OCCURRENCE"

	// ErrCodeDuplicateElement indicates the same element listed twice in
	// the catalog, or two scalars claiming one static index.
	ErrCodeDuplicateElement CompileErrorCode = "DUPLICATE_ELEMENT"

	// ErrCodeStaticIndexGap indicates scalar indices that do not form a
	// contiguous 1-based run.
	ErrCodeStaticIndexGap CompileErrorCode = "STATIC_INDEX_GAP"

	// ErrCodeSpanOverlap indicates rewrite spans that overlap or lie
	// outside the source text.
	ErrCodeSpanOverlap CompileErrorCode = "SPAN_OVERLAP"

	// ErrCodeMissingName indicates a managed statement without a declared
	// name.
	ErrCodeMissingName CompileErrorCode = "MISSING_NAME"
)

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Statement != "" {
		return fmt.Sprintf("%s: %s (statement=%s)", e.Code, e.Message, e.Statement)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvariantViolation reports whether err is a CompileError.
// Uses errors.As to handle wrapped errors.
func IsInvariantViolation(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// BindError reports a contract violation by the caller of a compiled
// statement: wrong argument count, a non-collection bound to an array
// variable, a value the converter rejects. Unlike CompileError these are
// reachable through public API misuse and surface to the caller at bind
// time.
type BindError struct {
	Code      BindErrorCode
	Statement string
	Param     string // parameter name, when the error is per-parameter
	Message   string
}

// BindErrorCode categorizes bind-time contract violations.
type BindErrorCode string

const (
	// ErrCodeArity indicates the argument count does not match the
	// catalog.
	ErrCodeArity BindErrorCode = "ARITY_MISMATCH"

	// ErrCodeNotCollection indicates a non-collection value bound to an
	// array variable.
	ErrCodeNotCollection BindErrorCode = "NOT_A_COLLECTION"

	// ErrCodeBadValue indicates a value rejected while encoding (wrong
	// type for the converter, unbindable Go kind).
	ErrCodeBadValue BindErrorCode = "BAD_VALUE"

	// ErrCodeBadFragment indicates a fragment whose marker count does not
	// match its argument list, or a missing fragment value.
	ErrCodeBadFragment BindErrorCode = "BAD_FRAGMENT"
)

// Error implements the error interface.
func (e *BindError) Error() string {
	switch {
	case e.Statement != "" && e.Param != "":
		return fmt.Sprintf("%s: %s (statement=%s, param=%s)", e.Code, e.Message, e.Statement, e.Param)
	case e.Statement != "":
		return fmt.Sprintf("%s: %s (statement=%s)", e.Code, e.Message, e.Statement)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsBindError reports whether err is a BindError, unwrapping as needed.
func IsBindError(err error) bool {
	var be *BindError
	return errors.As(err, &be)
}
