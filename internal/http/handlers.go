package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"expensetracker/internal/analytics"
	"expensetracker/internal/core"
	"expensetracker/internal/log"
	"expensetracker/internal/receipt"
)

// AnalyticsResponse is the body of GET /api/analytics.
type AnalyticsResponse struct {
	Snapshot analytics.Snapshot `json:"snapshot"`
	Insights analytics.Insights `json:"insights"`
}

// ReceiptResponse returns the stored expense and what the extraction
// defaulted.
type ReceiptResponse struct {
	Expense    core.Expense   `json:"expense"`
	Extraction receipt.Result `json:"extraction"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleAnalytics serves the dashboard. Results are cached per store
// revision and second, so any mutation invalidates them.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	key := analyticsCacheKey(s.expenses.Revision(), s.expenses.Now())

	if resp, ok := s.analyticsCache.Get(key); ok {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Analytics cache hit", "key", key)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	snap, insights := s.expenses.Analytics()
	resp := AnalyticsResponse{Snapshot: snap, Insights: insights}
	s.analyticsCache.Set(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

// analyticsCacheKey buckets by whole second: the recent-expenses window is
// measured against now, so a coarser bucket would serve stale results.
func analyticsCacheKey(revision int64, now time.Time) string {
	return fmt.Sprintf("%d|%d", revision, now.Unix())
}

func handleListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.Categories())
}

// handleGetCategory always succeeds: unknown ids resolve to "other".
func handleGetCategory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.LookupCategory(mux.Vars(r)["id"]))
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.prefs.Get(r.Context()))
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var patch core.PreferencesPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	prefs, err := s.prefs.Update(r.Context(), patch)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleResetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.prefs.Reset(r.Context())
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// handleCreateFromReceipt stores the expense read from a receipt. The model
// completion is parsed leniently; the user's edits override it.
func (s *Server) handleCreateFromReceipt(w http.ResponseWriter, r *http.Request) {
	var req ReceiptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpParse, err)
		return
	}
	imageURI, err := receipt.ValidateImageURI(req.ImageURI)
	if err != nil {
		writeError(w, r, log.OpParse, err)
		return
	}

	extraction := receipt.ParseCompletion(req.Completion)
	result := receipt.Normalize(extraction)
	if !extraction.Parsed || len(result.Defaulted) > 0 {
		log.FromContext(r.Context()).WithComponent(log.ComponentReceipt).WarnContext(r.Context(), "Receipt extraction used defaults",
			log.FieldOperation, log.OpParse,
			"parsed", extraction.Parsed,
			"defaulted", result.Defaulted)
	}

	draft := receipt.Confirm(result, receipt.Edits{
		Amount:      req.Amount,
		Description: sanitizeInput(req.Description),
		CategoryID:  req.Category,
	}, imageURI, req.Date)

	e, err := s.expenses.Add(r.Context(), draft)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, ReceiptResponse{Expense: e, Extraction: result})
}
