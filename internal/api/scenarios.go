package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kws0109/QA-Automation-sub001/internal/scenario"
)

// handleListScenarios returns all stored scenarios.
func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := s.scenarios.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scenarios": scenarios,
		"count":     len(scenarios),
	})
}

// handleCreateScenario stores a new scenario flow graph.
func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var scn scenario.Scenario
	if err := json.NewDecoder(r.Body).Decode(&scn); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.scenarios.Create(r.Context(), &scn); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &scn)
}

// handleImportScenario validates an exported scenario document against
// the schema and stores it. Unlike create, import is strict: unknown
// fields and schema violations are rejected before the graph is
// inspected.
func (s *Server) handleImportScenario(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body failed")
		return
	}

	scn, err := scenario.ParseImport(data)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.scenarios.Create(r.Context(), scn); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, scn)
}

// handleGetScenario returns a single scenario by ID. The response body
// doubles as the export format accepted by import.
func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	scn, err := s.scenarios.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scn)
}

// handleUpdateScenario replaces a scenario's graph and metadata.
func (s *Server) handleUpdateScenario(w http.ResponseWriter, r *http.Request) {
	var scn scenario.Scenario
	if err := json.NewDecoder(r.Body).Decode(&scn); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	scn.ID = chi.URLParam(r, "id")

	if err := s.scenarios.Update(r.Context(), &scn); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &scn)
}

// handleDeleteScenario removes a scenario.
//
// Executions that pinned the scenario at submit keep running on their
// snapshot; deletion only affects future submissions.
func (s *Server) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	if err := s.scenarios.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
