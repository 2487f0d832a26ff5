package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/monument-sim/monument/internal/config"
	"github.com/monument-sim/monument/internal/engine"
	"github.com/monument-sim/monument/internal/namespace"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := namespace.NewRegistry(t.TempDir(), engine.Config{CollectTimeout: time.Minute})
	cfg := config.Config{
		DataDir: t.TempDir(), DefaultGridW: 10, DefaultGridH: 10, DefaultEpoch: 1000, DefaultVisibility: 0,
	}
	logger := log.New(io.Discard, "", 0)
	return NewServer(reg, cfg, logger, nil, map[string]config.NamespaceOverride{})
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response body %q: %v", rr.Body.String(), err)
	}
}

func registerTestActor(t *testing.T, s *Server, ns, id string) string {
	t.Helper()
	body, _ := json.Marshal(registerActorBody{X: 0, Y: 0, Facing: "N", Scopes: []string{"MOVE", "WAIT"}})
	req := httptest.NewRequest("POST", "/admin/"+ns+"/actors?id="+id, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	if rr.Code != 201 {
		t.Fatalf("register actor: status %d body %s", rr.Code, rr.Body.String())
	}
	var out map[string]string
	decodeBody(t, rr, &out)
	return out["secret"]
}

func TestHandleLiveness(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestHandleRegisterActorThenContext(t *testing.T) {
	s := newTestServer(t)
	secret := registerTestActor(t, s, "arena", "alice")
	if secret == "" {
		t.Fatal("expected a generated secret")
	}

	req := httptest.NewRequest("GET", "/sim/arena/agent/alice/context", nil)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("context status = %d body %s", rr.Code, rr.Body.String())
	}
	var payload engine.ContextPayload
	decodeBody(t, rr, &payload)
	if payload.HUD.AgentID != "alice" {
		t.Fatalf("unexpected HUD: %+v", payload.HUD)
	}
}

func TestHandleContext_UnknownActorIs404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/sim/arena/agent/ghost/context", nil)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	if rr.Code != 404 {
		t.Fatalf("status = %d, want 404; body %s", rr.Code, rr.Body.String())
	}
}

func TestHandleAction_RejectsSchemaInvalidBody(t *testing.T) {
	s := newTestServer(t)
	registerTestActor(t, s, "arena", "alice")

	req := httptest.NewRequest("POST", "/sim/arena/agent/alice/action", bytes.NewReader([]byte(`{"not_a_known_field": true}`)))
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	if rr.Code != 400 {
		t.Fatalf("status = %d, want 400; body %s", rr.Code, rr.Body.String())
	}
}

func TestHandleAction_AcceptsValidSubmission(t *testing.T) {
	s := newTestServer(t)
	secret := registerTestActor(t, s, "arena", "alice")

	ctxReq := httptest.NewRequest("GET", "/sim/arena/agent/alice/context", nil)
	ctxRR := httptest.NewRecorder()
	s.Routes().ServeHTTP(ctxRR, ctxReq)
	var payload engine.ContextPayload
	decodeBody(t, ctxRR, &payload)

	actionBody, _ := json.Marshal(map[string]any{
		"namespace":    "arena",
		"supertick_id": payload.SuperTickID,
		"context_hash": payload.ContextHash,
		"action":       "WAIT",
	})
	req := httptest.NewRequest("POST", "/sim/arena/agent/alice/action", bytes.NewReader(actionBody))
	req.Header.Set("X-Agent-Secret", secret)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200; body %s", rr.Code, rr.Body.String())
	}
}

func TestHandleUnregisterAndEliminateActor(t *testing.T) {
	s := newTestServer(t)
	registerTestActor(t, s, "arena", "alice")
	registerTestActor(t, s, "arena", "bob")

	elimReq := httptest.NewRequest("POST", "/admin/arena/actors/alice/eliminate", nil)
	elimRR := httptest.NewRecorder()
	s.Routes().ServeHTTP(elimRR, elimReq)
	if elimRR.Code != 200 {
		t.Fatalf("eliminate status = %d body %s", elimRR.Code, elimRR.Body.String())
	}

	unregReq := httptest.NewRequest("DELETE", "/admin/arena/actors/bob", nil)
	unregRR := httptest.NewRecorder()
	s.Routes().ServeHTTP(unregRR, unregReq)
	if unregRR.Code != 200 {
		t.Fatalf("unregister status = %d body %s", unregRR.Code, unregRR.Body.String())
	}

	// bob is fully gone; alice is soft-eliminated and no longer reachable
	// via context (the engine treats eliminated actors as unknown).
	ctxReq := httptest.NewRequest("GET", "/sim/arena/agent/alice/context", nil)
	ctxRR := httptest.NewRecorder()
	s.Routes().ServeHTTP(ctxRR, ctxReq)
	if ctxRR.Code != 404 {
		t.Fatalf("eliminated actor's context should 404, got %d", ctxRR.Code)
	}
}

func TestHandleAdvanceEpoch(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("POST", "/admin/arena/epoch/advance", nil)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("status = %d body %s", rr.Code, rr.Body.String())
	}
}

func TestHandleUpdateActor_ScopesAndInstructions(t *testing.T) {
	s := newTestServer(t)
	registerTestActor(t, s, "arena", "alice")

	body, _ := json.Marshal(updateActorBody{Scopes: []string{"SPEAK"}, CustomInstructions: strPtr("guard the gate")})
	req := httptest.NewRequest("PATCH", "/admin/arena/actors/alice", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("status = %d body %s", rr.Code, rr.Body.String())
	}
}

func TestHandleRegenerateActorSecret(t *testing.T) {
	s := newTestServer(t)
	original := registerTestActor(t, s, "arena", "alice")

	req := httptest.NewRequest("POST", "/admin/arena/actors/alice/secret:regenerate", nil)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("status = %d body %s", rr.Code, rr.Body.String())
	}
	var out map[string]string
	decodeBody(t, rr, &out)
	if out["secret"] == "" || out["secret"] == original {
		t.Fatalf("expected a freshly rotated secret, got %q (was %q)", out["secret"], original)
	}
}

func strPtr(s string) *string { return &s }

func TestHandleReplay_UnknownNamespaceStorePathIsValid(t *testing.T) {
	s := newTestServer(t)
	registerTestActor(t, s, "arena", "alice")

	req := httptest.NewRequest("GET", filepath.ToSlash("/sim/arena/replay"), nil)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("status = %d body %s", rr.Code, rr.Body.String())
	}
}
