package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go-sim-loop/internal/model"
	"go-sim-loop/internal/store"
	"go-sim-loop/pkg/utils"
)

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
}

// PendingResponse is returned with 404 while no verdict of the family exists.
type PendingResponse struct {
	Error     string `json:"error"`
	State     string `json:"state"`
	RequestID string `json:"request_id"`
}

// Submit accepts a simulation request and publishes it into the loop
// @Summary Submit a simulation
// @Description Validate a simulation request, optionally store the uploaded model, and publish it as a USER request
// @Tags simulation
// @Accept json
// @Produce json
// @Param request body model.SubmitRequest true "Simulation request"
// @Success 200 {object} SubmitResponse "Request submitted"
// @Failure 400 {object} ErrorResponse "Malformed request"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /simulation [post]
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var sub model.SubmitRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	// 1. Validate payload
	criterion, err := sub.Validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// 2. Store the model if it was uploaded with the request
	if sub.ModelData != "" {
		data, err := base64.StdEncoding.DecodeString(sub.ModelData)
		if err != nil {
			writeError(w, http.StatusBadRequest, "model_data must be base64 encoded")
			return
		}
		if err := h.Models.Save(sub.ModelReference, data); err != nil {
			if errors.Is(err, store.ErrModelNotFound) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			h.internalError(w, r, "failed to store model", err)
			return
		}
	} else if !h.Models.Exists(sub.ModelReference) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("model %q not found", sub.ModelReference))
		return
	}

	// 3. Build and publish the request
	params := model.Parameters(sub.Parameters)
	if params == nil {
		params = model.Parameters{}
	}
	req := model.Request{
		RequestID:      h.NewID(),
		Origin:         model.OriginUser,
		Parameters:     params,
		Criterion:      criterion,
		ModelReference: sub.ModelReference,
		InputSeries:    sub.InputSeries,
		Window:         sub.Window,
		SubmittedAt:    h.Now().UTC(),
	}
	if err := h.Loop.Submit(r.Context(), req); err != nil {
		h.internalError(w, r, "failed to submit request", err)
		return
	}

	writeJSON(w, http.StatusOK, SubmitResponse{Status: "submitted", RequestID: req.RequestID})
}

// GetResult returns the family result of a request
// @Summary Get the family result
// @Description 404 while no verdict of the request's family exists, otherwise the family aggregate. Use wait to long-poll for a change.
// @Tags runs
// @Produce json
// @Param id path string true "Request ID"
// @Param wait query string false "Long-poll duration, e.g. 30s"
// @Success 200 {object} model.FamilyResult "Family result"
// @Failure 404 {object} PendingResponse "Result pending"
// @Router /runs/{id}/result [get]
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wait := utils.ParseDuration(r.URL.Query().Get("wait"), 0)

	var res model.FamilyResult
	if wait > 0 {
		res = h.Loop.Responder.Wait(r.Context(), id, wait)
	} else {
		res = h.Loop.Responder.Poll(id)
	}

	if res.State == model.StatePending {
		writeJSON(w, http.StatusNotFound, PendingResponse{
			Error:     "result pending",
			State:     model.StatePending,
			RequestID: id,
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetRelated returns every run of the request's family
// @Summary Get related runs
// @Description Return the root run, every stored member of the family and the family aggregate
// @Tags runs
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} model.RelatedRuns "Related runs"
// @Failure 404 {object} ErrorResponse "Unknown request"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /runs/{id}/related [get]
func (h *Handler) GetRelated(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	root := h.Loop.Tracker.RootOf(id)
	if root == id {
		// the tracker does not know runs recorded before a restart
		if rec, err := h.Store.GetRun(r.Context(), id); err == nil && rec.RootID != "" {
			root = rec.RootID
		}
	}

	runs, err := h.Store.ListFamily(r.Context(), root)
	if err != nil {
		h.internalError(w, r, "failed to list related runs", err)
		return
	}
	snap, tracked := h.Loop.Tracker.Members(root)
	if len(runs) == 0 && !tracked {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %q not found", id))
		return
	}
	if !tracked {
		snap = model.FamilySnapshot{RootID: root, Members: []model.FamilyMember{}}
	}

	related := model.RelatedRuns{
		ParentKey: root,
		Runs:      runs,
		Family:    snap,
	}
	if related.Runs == nil {
		related.Runs = []model.RunRecord{}
	}
	for i := range runs {
		if runs[i].RequestID == root {
			parent := runs[i]
			related.ParentRun = &parent
			break
		}
	}
	writeJSON(w, http.StatusOK, related)
}
