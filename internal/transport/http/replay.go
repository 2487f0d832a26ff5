package http

import (
	"net/http"
	"strconv"

	"github.com/monument-sim/monument/internal/engine"
	"github.com/monument-sim/monument/internal/replay"
)

// handleReplay streams a zstd-compressed JSONL audit export for
// [from, to] (spec §6: "GET /sim/{ns}/replay/... tick-range audit
// export"). Reads never touch the serializer goroutine (spec §4.1:
// "Reads ... may proceed concurrently").
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("ns")
	h, err := s.resolveNamespace(r.Context(), ns)
	if err != nil {
		writeErr(w, err)
		return
	}

	from, to, err := parseReplayRange(r)
	if err != nil {
		writeErr(w, &engine.Error{Code: engine.CodeMalformedAction, Detail: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ns+`-replay.jsonl.zst"`)
	w.WriteHeader(http.StatusOK)

	stats, err := replay.ExportRange(r.Context(), h.Store, w, from, to)
	if err != nil {
		s.log.Printf("replay export for %s failed after %s: %v", ns, stats, err)
		return
	}
	s.log.Printf("replay export for %s: %s", ns, stats)
}

func parseReplayRange(r *http.Request) (from, to int64, err error) {
	from = 0
	to = 1<<63 - 1
	if v := r.URL.Query().Get("from"); v != "" {
		from, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, 0, err
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, 0, err
		}
	}
	return from, to, nil
}
