// Package http wires the namespace-prefixed HTTP surface from spec §6 onto
// the engine and namespace registry: context fetch, action submission,
// adjudicator scoring, replay export, liveness, and the supplemented admin
// surface (SPEC_FULL §11.1).
package http

import (
	"net/http"

	"github.com/monument-sim/monument/internal/engine"
)

// statusFor maps an engine.Code to the HTTP status spec §6 assigns it, in
// one table rather than a switch duplicated per handler (SPEC_FULL §9.2).
var statusFor = map[engine.Code]int{
	engine.CodeInvalidNamespace:     http.StatusBadRequest,
	engine.CodeMalformedAction:      http.StatusBadRequest,
	engine.CodeUnknownNamespace:     http.StatusNotFound,
	engine.CodeUnknownActor:        http.StatusNotFound,
	engine.CodeAuthFailed:          http.StatusUnauthorized,
	engine.CodeScopeDenied:         http.StatusForbidden,
	engine.CodePhaseMismatch:       http.StatusConflict,
	engine.CodeSupertickMismatch:   http.StatusConflict,
	engine.CodeContextHashMismatch: http.StatusConflict,
	engine.CodeAlreadySubmitted:    http.StatusConflict,
	engine.CodeSchemaMismatch:      http.StatusInternalServerError,
	engine.CodeStoreBusy:           http.StatusServiceUnavailable,
	engine.CodeIO:                  http.StatusInternalServerError,
	engine.CodeInternal:            http.StatusInternalServerError,
}

func statusForErr(err error) int {
	if ee, ok := err.(*engine.Error); ok {
		if code, ok := statusFor[ee.Code]; ok {
			return code
		}
	}
	return http.StatusInternalServerError
}
