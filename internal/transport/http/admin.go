package http

import (
	"encoding/json"
	"net/http"

	"github.com/monument-sim/monument/internal/engine"
)

type registerActorBody struct {
	X                  int      `json:"x"`
	Y                  int      `json:"y"`
	Facing             string   `json:"facing"`
	Scopes             []string `json:"scopes"`
	Secret             string   `json:"secret"`
	CustomInstructions string   `json:"custom_instructions"`
}

// handleRegisterActor is the supplemented admin surface (SPEC_FULL §11.1):
// without it a namespace has no actors to take part in its ticks.
func (s *Server) handleRegisterActor(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("ns")

	var body registerActorBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, &engine.Error{Code: engine.CodeMalformedAction, Detail: "malformed request body: " + err.Error()})
		return
	}
	actorID := r.URL.Query().Get("id")
	if actorID == "" {
		writeErr(w, &engine.Error{Code: engine.CodeMalformedAction, Detail: "missing id query parameter"})
		return
	}

	h, err := s.resolveNamespace(r.Context(), ns)
	if err != nil {
		writeErr(w, err)
		return
	}

	scopes := make([]engine.Intent, len(body.Scopes))
	for i, sc := range body.Scopes {
		scopes[i] = engine.Intent(sc)
	}
	req := engine.RegisterActorRequest{
		ActorID:            actorID,
		X:                  body.X,
		Y:                  body.Y,
		Facing:             engine.Facing(body.Facing),
		Scopes:             scopes,
		Secret:             body.Secret,
		CustomInstructions: body.CustomInstructions,
	}
	result, err := h.Engine.RegisterActor(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"actor_id": actorID, "secret": result.Secret})
}

func (s *Server) handleUnregisterActor(w http.ResponseWriter, r *http.Request) {
	ns, id := r.PathValue("ns"), r.PathValue("id")
	h, err := s.resolveNamespace(r.Context(), ns)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := h.Engine.UnregisterActor(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleEliminateActor(w http.ResponseWriter, r *http.Request) {
	ns, id := r.PathValue("ns"), r.PathValue("id")
	h, err := s.resolveNamespace(r.Context(), ns)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := h.Engine.EliminateActor(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "eliminated"})
}

func (s *Server) handleAdvanceEpoch(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("ns")
	h, err := s.resolveNamespace(r.Context(), ns)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := h.Engine.AdvanceEpoch(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "advanced"})
}

type updateActorBody struct {
	Scopes             []string `json:"scopes"`
	CustomInstructions *string  `json:"custom_instructions"`
}

// handleUpdateActor covers update_actor_scopes / update_actor_instructions
// (SPEC_FULL §11.1): a PATCH may carry either field, or both.
func (s *Server) handleUpdateActor(w http.ResponseWriter, r *http.Request) {
	ns, id := r.PathValue("ns"), r.PathValue("id")

	var body updateActorBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, &engine.Error{Code: engine.CodeMalformedAction, Detail: "malformed request body: " + err.Error()})
		return
	}

	h, err := s.resolveNamespace(r.Context(), ns)
	if err != nil {
		writeErr(w, err)
		return
	}

	if body.Scopes != nil {
		scopes := make([]engine.Intent, len(body.Scopes))
		for i, sc := range body.Scopes {
			scopes[i] = engine.Intent(sc)
		}
		if err := h.Engine.UpdateActorScopes(r.Context(), engine.UpdateActorScopesRequest{ActorID: id, Scopes: scopes}); err != nil {
			writeErr(w, err)
			return
		}
	}
	if body.CustomInstructions != nil {
		if err := h.Engine.UpdateActorInstructions(r.Context(), id, *body.CustomInstructions); err != nil {
			writeErr(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleRegenerateActorSecret(w http.ResponseWriter, r *http.Request) {
	ns, id := r.PathValue("ns"), r.PathValue("id")
	h, err := s.resolveNamespace(r.Context(), ns)
	if err != nil {
		writeErr(w, err)
		return
	}
	secret, err := h.Engine.RegenerateActorSecret(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}
