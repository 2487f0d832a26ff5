package schemas_test

import (
	"encoding/json"
	"testing"

	"github.com/monument-sim/monument/internal/schemas"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	var action any
	if err := json.Unmarshal([]byte(`{
		"supertick_id": 42,
		"context_hash": "sha256:0123456789abcdef",
		"action": "MOVE N"
	}`), &action); err != nil {
		t.Fatalf("unmarshal action sample: %v", err)
	}
	if err := schemas.ValidateActionSubmission(action); err != nil {
		t.Fatalf("validate action submission: %v", err)
	}

	var score any
	if err := json.Unmarshal([]byte(`{
		"selected_tiles": [{"x": 1, "y": 2}, {"x": 3, "y": 4}],
		"contributions_by_actor": {"alice": 3, "bob": 1},
		"rationale": "corners painted the claimed color",
		"feedback": "keep up the perimeter sweep"
	}`), &score); err != nil {
		t.Fatalf("unmarshal score sample: %v", err)
	}
	if err := schemas.ValidateAdjudicatorScore(score); err != nil {
		t.Fatalf("validate adjudicator score: %v", err)
	}
}

func TestSchemas_RejectMalformedAction(t *testing.T) {
	var action any
	if err := json.Unmarshal([]byte(`{
		"supertick_id": 42,
		"context_hash": "not-a-valid-hash",
		"action": "MOVE N"
	}`), &action); err != nil {
		t.Fatalf("unmarshal action sample: %v", err)
	}
	if err := schemas.ValidateActionSubmission(action); err == nil {
		t.Fatalf("expected validation error for malformed context_hash")
	}
}
