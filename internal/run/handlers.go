package run

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hearthside/leadscore/internal/bucket"
	"github.com/hearthside/leadscore/internal/scoring"
)

// Handlers provides the HTTP surface for the scoring subsystem: run
// triggering, run audit reads, and per-contact score reads for the
// dashboard collaborator.
type Handlers struct {
	store        *Store
	orchestrator *Orchestrator
	cache        *Cache

	// Inputs for triggered runs; loaded once at startup, re-read per
	// trigger so an operator can edit weights between runs.
	loadWeights func() (*scoring.ScoringWeights, error)
	loadDefs    func() ([]bucket.Definition, error)
}

// NewHandlers creates the HTTP handlers. cache may be nil.
func NewHandlers(store *Store, orch *Orchestrator, cache *Cache,
	loadWeights func() (*scoring.ScoringWeights, error),
	loadDefs func() ([]bucket.Definition, error)) *Handlers {
	return &Handlers{
		store:        store,
		orchestrator: orch,
		cache:        cache,
		loadWeights:  loadWeights,
		loadDefs:     loadDefs,
	}
}

// Routes mounts the API onto a chi router.
func (h *Handlers) Routes(r chi.Router) {
	r.Post("/api/runs", h.HandleTriggerRun)
	r.Get("/api/runs", h.HandleListRuns)
	r.Get("/api/runs/{runID}", h.HandleGetRun)
	r.Get("/api/contacts/{contactID}/scores", h.HandleContactScores)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// HandleTriggerRun starts a scoring run in the background and returns 202.
// A run already in flight yields 409; invalid configuration yields 422
// before any contact is scored.
func (h *Handlers) HandleTriggerRun(w http.ResponseWriter, r *http.Request) {
	weights, err := h.loadWeights()
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	defs, err := h.loadDefs()
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if h.orchestrator.Status() == scoring.RunRunning {
		respondError(w, http.StatusConflict, ErrRunInProgress.Error())
		return
	}

	// Detached from the request lifecycle: the trigger returns
	// immediately, the run's outcome lands in the audit table.
	runCtx := context.WithoutCancel(r.Context())
	go func() {
		_, err := h.orchestrator.Execute(runCtx, weights, defs)
		if err != nil && !errors.Is(err, ErrRunInProgress) {
			h.orchestrator.log.Error().Err(err).Msg("triggered run failed")
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// HandleListRuns returns recent run audit rows, newest first.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// HandleGetRun returns one run's audit row including bucket counts and the
// per-contact failure list.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// HandleContactScores returns a contact's latest scores plus snapshot
// history. The latest read prefers the cache and falls back to Postgres.
func (h *Handlers) HandleContactScores(w http.ResponseWriter, r *http.Request) {
	contactID, err := uuid.Parse(chi.URLParam(r, "contactID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid contact id")
		return
	}

	var latest *scoring.ScoreSnapshot
	if h.cache != nil {
		latest, _ = h.cache.GetLatest(r.Context(), contactID)
	}
	if latest == nil {
		latest, err = h.store.GetLatestScores(r.Context(), contactID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if latest == nil {
		respondError(w, http.StatusNotFound, "contact has no scores")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := h.store.GetSnapshotHistory(r.Context(), contactID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"latest":  latest,
		"history": history,
	})
}
