package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"expensetracker/internal/log"
	"expensetracker/internal/services"
)

var errEmptyPatch = errors.New("update changes nothing")

// ImportResponse reports how many records replaced the store.
type ImportResponse struct {
	Imported int `json:"imported"`
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	opts, err := ParseFilterOptions(r.URL.Query(), s.expenses.Location())
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, s.expenses.Filter(opts))
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.expenses.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	e, err := s.expenses.Add(r.Context(), req.Draft())
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	patch := req.Patch()
	if patch.IsEmpty() {
		writeError(w, r, log.OpUpdate, errEmptyPatch)
		return
	}

	e, err := s.expenses.Update(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.expenses.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearExpenses(w http.ResponseWriter, r *http.Request) {
	if err := s.expenses.ClearAll(r.Context()); err != nil {
		writeError(w, r, log.OpClear, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportExpenses(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = services.FormatJSON
	}
	data, err := s.expenses.Export(format)
	if err != nil {
		writeError(w, r, log.OpExport, err)
		return
	}

	contentType := "application/json; charset=utf-8"
	if format == services.FormatYAML || format == "yml" {
		contentType = "application/yaml; charset=utf-8"
		format = services.FormatYAML
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="expenses.%s"`, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleImportExpenses replaces the store with the body. The format comes
// from ?format= or, failing that, the Content-Type.
func (s *Server) handleImportExpenses(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = services.FormatJSON
		if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
			format = services.FormatYAML
		}
	}

	data, err := readBody(w, r, maxImportBytes)
	if err != nil {
		writeError(w, r, log.OpImport, err)
		return
	}

	n, err := s.expenses.Import(r.Context(), data, format)
	if err != nil {
		writeError(w, r, log.OpImport, err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{Imported: n})
}
