package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go-sim-loop/internal/model"
	"go-sim-loop/internal/store"
	"go-sim-loop/pkg/utils"
)

const defaultListLimit = 100

// RunList is the body of GET /runs.
type RunList struct {
	Runs  []model.RunRecord `json:"runs"`
	Count int               `json:"count"`
}

// RunDetails is a stored run with its output and statistics.
type RunDetails struct {
	Run        model.RunRecord      `json:"run"`
	Timeseries []model.SeriesRecord `json:"timeseries"`
	Statistics model.RunStatistics  `json:"statistics"`
	Errors     []string             `json:"errors"`
}

// TimeseriesResponse is the body of GET /runs/{id}/timeseries.
type TimeseriesResponse struct {
	RequestID  string               `json:"request_id"`
	DataPoints int                  `json:"data_points"`
	Timeseries []model.SeriesRecord `json:"timeseries"`
}

// ListRuns retrieves the most recent runs
// @Summary List runs
// @Description List recorded runs, newest first
// @Tags runs
// @Produce json
// @Param limit query int false "Maximum number of runs (default 100, 0 for all)"
// @Success 200 {object} RunList "Runs"
// @Failure 400 {object} ErrorResponse "Invalid limit"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		h.internalError(w, r, "failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []model.RunRecord{}
	}
	writeJSON(w, http.StatusOK, RunList{Runs: runs, Count: len(runs)})
}

// GetRun retrieves a run with its time series and statistics
// @Summary Get run details
// @Description Retrieve a stored run, its output series, summary statistics and recorded errors
// @Tags runs
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} RunDetails "Run details"
// @Failure 404 {object} ErrorResponse "Run not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := h.Store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %q not found", id))
		return
	}
	if err != nil {
		h.internalError(w, r, "failed to fetch run", err)
		return
	}

	series, err := h.Store.GetTimeseries(r.Context(), id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.internalError(w, r, "failed to fetch time series", err)
		return
	}
	if series == nil {
		series = []model.SeriesRecord{}
	}
	runErrors, err := h.Store.RunErrors(r.Context(), id)
	if err != nil {
		h.internalError(w, r, "failed to fetch run errors", err)
		return
	}
	if runErrors == nil {
		runErrors = []string{}
	}

	writeJSON(w, http.StatusOK, RunDetails{
		Run:        run,
		Timeseries: series,
		Statistics: Statistics(series, run.Criterion.FieldName),
		Errors:     runErrors,
	})
}

// GetTimeseries retrieves the output series of a run
// @Summary Get run time series
// @Tags runs
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} TimeseriesResponse "Time series"
// @Failure 404 {object} ErrorResponse "No time series for the run"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /runs/{id}/timeseries [get]
func (h *Handler) GetTimeseries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	series, err := h.Store.GetTimeseries(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no time series for run %q", id))
		return
	}
	if err != nil {
		h.internalError(w, r, "failed to fetch time series", err)
		return
	}
	writeJSON(w, http.StatusOK, TimeseriesResponse{RequestID: id, DataPoints: len(series), Timeseries: series})
}

// Statistics summarises series: the number of samples, the range of field and
// the covered simulation time.
func Statistics(series []model.SeriesRecord, field string) model.RunStatistics {
	stats := model.RunStatistics{DataPoints: len(series), Field: field}

	var minV, maxV, first, last float64
	seen, timed := false, false
	for _, rec := range series {
		if v, ok := utils.Numeric(rec[field]); ok && field != "" {
			if !seen || v > maxV {
				maxV = v
			}
			if !seen || v < minV {
				minV = v
			}
			seen = true
		}
		if t, ok := utils.Numeric(rec["time"]); ok {
			if !timed {
				first = t
			}
			last, timed = t, true
		}
	}
	if seen {
		stats.Max, stats.Min = &maxV, &minV
	}
	if timed {
		d := last - first
		stats.Duration = &d
	}
	return stats
}
