// Package schemas compiles the static JSON Schema documents under
// /schemas once, on first use, and exposes them for request-body validation,
// mirroring the teacher's internal/protocol schema-compilation idiom.
package schemas

import (
	"path/filepath"
	"runtime"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	once             sync.Once
	compileErr       error
	actionSubmission *jsonschema.Schema
	adjudicatorScore *jsonschema.Schema
)

func compile() {
	_, thisFile, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(thisFile), "..", "..", "schemas")

	load := func(name string) (*jsonschema.Schema, error) {
		return jsonschema.Compile(filepath.Join(root, name))
	}

	var err error
	if actionSubmission, err = load("action_submission.schema.json"); err != nil {
		compileErr = err
		return
	}
	if adjudicatorScore, err = load("adjudicator_score.schema.json"); err != nil {
		compileErr = err
		return
	}
}

func ensureCompiled() error {
	once.Do(compile)
	return compileErr
}

// ValidateActionSubmission checks a decoded action-submission body (spec
// §6 POST /sim/{ns}/agent/{id}/action) against its schema.
func ValidateActionSubmission(v any) error {
	if err := ensureCompiled(); err != nil {
		return err
	}
	return actionSubmission.Validate(v)
}

// ValidateAdjudicatorScore checks a decoded scoring-round body (spec §6
// POST /sim/{ns}/adjudicator/score) against its schema.
func ValidateAdjudicatorScore(v any) error {
	if err := ensureCompiled(); err != nil {
		return err
	}
	return adjudicatorScore.Validate(v)
}
