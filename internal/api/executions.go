package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kws0109/QA-Automation-sub001/internal/engine"
)

// handleSubmitExecution validates and admits a batch execution request.
//
// Admission is synchronous (validation, device checks, scenario
// pinning); the run itself proceeds in the background and progress is
// delivered over the WebSocket.
func (s *Server) handleSubmitExecution(w http.ResponseWriter, r *http.Request) {
	var req engine.ExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	exec, err := s.coordinator.Submit(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"execution_id": exec.ID,
		"started_at":   exec.StartedAt,
	})
}

// handleGetExecution returns the live progress of an execution, or its
// stored report once it has finished.
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "id")

	if exec, ok := s.coordinator.GetExecution(executionID); ok {
		total, passed, failed, cancelled, forced := exec.Counts()
		writeJSON(w, http.StatusOK, map[string]any{
			"execution_id":    exec.ID,
			"requester_name":  exec.RequesterName,
			"state":           "running",
			"units_total":     total,
			"units_passed":    passed,
			"units_failed":    failed,
			"units_cancelled": cancelled,
			"units_forced":    forced,
			"started_at":      exec.StartedAt,
		})
		return
	}

	if s.reports == nil {
		writeNotFound(w, "execution not found")
		return
	}
	rep, err := s.reports.Get(r.Context(), executionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"execution_id": rep.Summary.ExecutionID,
		"state":        "completed",
		"summary":      rep.Summary,
		"units":        rep.Units,
	})
}

// handleCancelExecution cancels every live unit of an execution.
// Pending units are removed immediately; running units are flagged and
// settle as cancelled at their next node boundary.
func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "id")
	if err := s.coordinator.CancelExecution(executionID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"execution_id": executionID,
		"cancelling":   true,
	})
}

// handleCancelUnit cancels a single unit.
func (s *Server) handleCancelUnit(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "id")
	if err := s.coordinator.CancelUnit(unitID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"unit_id":    unitID,
		"cancelling": true,
	})
}

// handleForceCompleteUnit marks a stuck pending unit as terminal so the
// rest of its execution can settle. Only allowed when the owning
// execution has nothing running.
func (s *Server) handleForceCompleteUnit(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "id")
	if err := s.coordinator.ForceCompleteUnit(unitID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"unit_id": unitID,
		"status":  engine.StatusForceCompleted,
	})
}

// handleQueueSnapshot returns the backlog of every device queue.
func (s *Server) handleQueueSnapshot(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.queue.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": snapshot,
		"count":   len(snapshot),
	})
}
