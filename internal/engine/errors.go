package engine

import "fmt"

// Code enumerates the error taxonomy from spec §7. HTTP handlers map a
// Code to a status via one table (internal/transport/http/status.go)
// rather than inspecting error strings.
type Code int

const (
	CodeInternal Code = iota
	CodeInvalidNamespace
	CodeUnknownNamespace
	CodeUnknownActor
	CodeAuthFailed
	CodeScopeDenied
	CodePhaseMismatch
	CodeSupertickMismatch
	CodeContextHashMismatch
	CodeAlreadySubmitted
	CodeMalformedAction
	CodeSchemaMismatch
	CodeStoreBusy
	CodeIO
)

// Error is the typed error value every engine-internal failure path
// returns; callers use errors.As to recover the Code instead of matching
// on message text. The Detail string is still crafted to contain the
// spec-mandated substrings for the three most-automated client cases.
type Error struct {
	Code   Code
	Detail string
}

func (e *Error) Error() string { return e.Detail }

func newErr(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Fatal reports whether this single error marks the owning namespace
// refused for further requests: only SchemaMismatch does. Repeated
// Internal merge failures are counted by runMerge, not here.
func (e *Error) Fatal() bool {
	return e.Code == CodeSchemaMismatch
}
