// Package status serves the relay's state over HTTP for operators.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/overlayrelay/relay/internal/bind"
	"github.com/hazyhaar/overlayrelay/relay/structure"
)

// Health is the body of GET /healthz.
type Health struct {
	State      string `json:"state"`
	Connection string `json:"connection"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	Cycles     int64  `json:"cycles"`
}

// Source is what the router reads from and acts on.
type Source interface {
	Health() Health
	Snapshot() *structure.Snapshot
	Bindings() []bind.Result
	Fire(ctx context.Context, label string) error
}

// binding is the wire form of a bind.Result.
type binding struct {
	bind.Result
	Bound bool   `json:"bound"`
	Error string `json:"error,omitempty"`
}

// NewRouter builds the status router.
func NewRouter(src Source, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, src.Health())
	})

	r.Get("/snapshot", func(w http.ResponseWriter, _ *http.Request) {
		snap := src.Snapshot()
		if snap == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot yet"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":       snap.ID,
			"page_url": snap.PageURL,
			"taken_at": snap.TakenAt,
			"tree":     snap.Tree(),
		})
	})

	r.Get("/bindings", func(w http.ResponseWriter, _ *http.Request) {
		results := src.Bindings()
		out := make([]binding, len(results))
		for i, res := range results {
			out[i] = binding{Result: res, Bound: res.OK()}
			if res.Err != nil {
				out[i].Error = res.Err.Error()
			}
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/bindings/{label}/fire", func(w http.ResponseWriter, r *http.Request) {
		label := chi.URLParam(r, "label")
		err := src.Fire(r.Context(), label)
		switch {
		case err == nil:
			logger.Info("status: binding fired", "label", label,
				"request_id", middleware.GetReqID(r.Context()))
			writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "label": label})
		case errors.Is(err, bind.ErrUnknownLabel):
			writeError(w, http.StatusNotFound, err)
		default:
			logger.Warn("status: fire failed", "label", label, "error", err)
			writeError(w, http.StatusBadGateway, err)
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
