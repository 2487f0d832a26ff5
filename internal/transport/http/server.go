package http

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/monument-sim/monument/internal/config"
	"github.com/monument-sim/monument/internal/engine"
	"github.com/monument-sim/monument/internal/namespace"
	"github.com/monument-sim/monument/internal/schemas"
	"github.com/monument-sim/monument/internal/transport/ws"
)

// Server holds the process-wide dependencies every handler needs: the
// namespace registry, process config, logger, and the optional Memory
// service client (spec §6 consumed contract).
type Server struct {
	reg       *namespace.Registry
	cfg       config.Config
	log       *log.Logger
	memory    engine.MemoryRecaller
	overrides map[string]config.NamespaceOverride
	ws        *ws.Server
}

// NewServer wires a Server. memory may be nil (HUD recalled-memories
// section is then null).
func NewServer(reg *namespace.Registry, cfg config.Config, logger *log.Logger, memory engine.MemoryRecaller, overrides map[string]config.NamespaceOverride) *Server {
	return &Server{reg: reg, cfg: cfg, log: logger, memory: memory, overrides: overrides, ws: ws.NewServer(reg, logger)}
}

// Routes builds the mux for the external surface described in spec §6,
// plus the supplemented admin endpoints from SPEC_FULL §11.1. It uses the
// Go 1.22 method+pattern ServeMux the same way the teacher's cmd/server
// wires plain stdlib routes — no router library is introduced for the
// same reason the teacher never reaches for one.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleLiveness)
	mux.HandleFunc("GET /sim/{ns}/agent/{id}/context", s.handleContext)
	mux.HandleFunc("POST /sim/{ns}/agent/{id}/action", s.handleAction)
	mux.HandleFunc("POST /sim/{ns}/adjudicator/score", s.handleScore)
	mux.HandleFunc("GET /sim/{ns}/replay", s.handleReplay)
	mux.HandleFunc("GET /sim/{ns}/ws/live", s.handleLiveEvents)

	mux.HandleFunc("POST /admin/{ns}/actors", s.handleRegisterActor)
	mux.HandleFunc("PATCH /admin/{ns}/actors/{id}", s.handleUpdateActor)
	mux.HandleFunc("POST /admin/{ns}/actors/{id}/secret:regenerate", s.handleRegenerateActorSecret)
	mux.HandleFunc("POST /admin/{ns}/actors/{id}/eliminate", s.handleEliminateActor)
	mux.HandleFunc("DELETE /admin/{ns}/actors/{id}", s.handleUnregisterActor)
	mux.HandleFunc("POST /admin/{ns}/epoch/advance", s.handleAdvanceEpoch)
	return mux
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLiveEvents resolves/bootstraps the namespace the same way every
// other route does, then hands the connection to the WS layer.
func (s *Server) handleLiveEvents(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("ns")
	h, err := s.resolveNamespace(r.Context(), ns)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.ws.Serve(w, r, h)
}

// resolveNamespace opens (or fetches) the namespace handle, applying any
// configured per-namespace override as the bootstrap spec on first touch.
func (s *Server) resolveNamespace(ctx context.Context, ns string) (*namespace.Handle, error) {
	bootstrap := namespace.BootstrapSpec{
		Width:            s.cfg.DefaultGridW,
		Height:           s.cfg.DefaultGridH,
		Epoch:            s.cfg.DefaultEpoch,
		VisibilityRadius: s.cfg.DefaultVisibility,
	}
	if o, ok := s.overrides[ns]; ok {
		if o.Width > 0 {
			bootstrap.Width = o.Width
		}
		if o.Height > 0 {
			bootstrap.Height = o.Height
		}
		if o.Goal != "" {
			bootstrap.Goal = o.Goal
		}
		if o.Epoch > 0 {
			bootstrap.Epoch = o.Epoch
		}
		bootstrap.VisibilityRadius = o.VisibilityRadius
		bootstrap.ScoringInterval = o.ScoringInterval
		bootstrap.ScoringEnabled = o.ScoringEnabled
		bootstrap.EliminateAtOrBelowZero = o.EliminateAtOrBelowZero
	}
	return s.reg.Open(ctx, ns, bootstrap)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	ns, agentID := r.PathValue("ns"), r.PathValue("id")
	h, err := s.resolveNamespace(r.Context(), ns)
	if err != nil {
		writeErr(w, err)
		return
	}

	chatLength := 20
	if v := r.URL.Query().Get("chat_length"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			chatLength = n
		}
	}

	payload, err := h.Engine.BuildContext(r.Context(), agentID, chatLength, s.memory)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

type actionRequestBody struct {
	Namespace   string `json:"namespace"`
	SuperTickID int64  `json:"supertick_id"`
	ContextHash string `json:"context_hash"`
	Action      string `json:"action"`
	LLMInput    string `json:"llm_input,omitempty"`
	LLMOutput   string `json:"llm_output,omitempty"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	ns, agentID := r.PathValue("ns"), r.PathValue("id")

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, &engine.Error{Code: engine.CodeMalformedAction, Detail: "read request body: " + err.Error()})
		return
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		writeErr(w, &engine.Error{Code: engine.CodeMalformedAction, Detail: "malformed request body: " + err.Error()})
		return
	}
	if err := schemas.ValidateActionSubmission(generic); err != nil {
		writeErr(w, &engine.Error{Code: engine.CodeMalformedAction, Detail: "schema: " + err.Error()})
		return
	}

	var body actionRequestBody
	if err := json.Unmarshal(raw, &body); err != nil {
		writeErr(w, &engine.Error{Code: engine.CodeMalformedAction, Detail: "malformed request body: " + err.Error()})
		return
	}

	h, err := s.resolveNamespace(r.Context(), ns)
	if err != nil {
		writeErr(w, err)
		return
	}

	req := engine.SubmitRequest{
		Namespace:   ns,
		SuperTickID: body.SuperTickID,
		ContextHash: body.ContextHash,
		ActorID:     agentID,
		Secret:      r.Header.Get("X-Agent-Secret"),
		ActionText:  body.Action,
		LLMInput:    body.LLMInput,
		LLMOutput:   body.LLMOutput,
	}

	result, err := h.Engine.SubmitAction(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type scoreRequestBody struct {
	SelectedTiles        []engine.TileKey `json:"selected_tiles"`
	ContributionsByActor map[string]int   `json:"contributions_by_actor"`
	Rationale            string           `json:"rationale"`
	Feedback             string           `json:"feedback"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("ns")

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, &engine.Error{Code: engine.CodeMalformedAction, Detail: "read request body: " + err.Error()})
		return
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		writeErr(w, &engine.Error{Code: engine.CodeMalformedAction, Detail: "malformed request body: " + err.Error()})
		return
	}
	if err := schemas.ValidateAdjudicatorScore(generic); err != nil {
		writeErr(w, &engine.Error{Code: engine.CodeMalformedAction, Detail: "schema: " + err.Error()})
		return
	}

	var body scoreRequestBody
	if err := json.Unmarshal(raw, &body); err != nil {
		writeErr(w, &engine.Error{Code: engine.CodeMalformedAction, Detail: "malformed request body: " + err.Error()})
		return
	}

	h, err := s.resolveNamespace(r.Context(), ns)
	if err != nil {
		writeErr(w, err)
		return
	}

	sub := engine.AdjudicationSubmission{
		SelectedTiles:        body.SelectedTiles,
		ContributionsByActor: body.ContributionsByActor,
		Rationale:            body.Rationale,
		Feedback:             body.Feedback,
	}
	if err := h.Engine.SubmitScoringRound(r.Context(), sub); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "committed"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, statusForErr(err), map[string]string{"error": err.Error()})
}
