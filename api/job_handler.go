package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
)

// jobStates is the fixed set of states reported by counts and accepted
// as list filters.
var jobStates = []job.State{
	job.StatePending,
	job.StateRunning,
	job.StateCompleted,
	job.StateFailed,
	job.StateRetrying,
	job.StateCancelled,
}

// jobStateFrom validates a state query parameter. The empty string
// defaults to pending, matching the most common operator question
// ("what is waiting?").
func jobStateFrom(s string) (job.State, bool) {
	if s == "" {
		return job.StatePending, true
	}
	for _, st := range jobStates {
		if job.State(s) == st {
			return st, true
		}
	}
	return "", false
}

// JobCountsResponse reports per-state job counts.
type JobCountsResponse struct {
	Counts map[job.State]int64 `json:"counts"`
	Total  int64               `json:"total"`
}

// GET /v1/jobs?state=&lane=&limit=&offset=
func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	state, ok := jobStateFrom(r.URL.Query().Get("state"))
	if !ok {
		a.writeError(w, http.StatusBadRequest, "unknown state")
		return
	}

	lane := job.Lane(r.URL.Query().Get("lane"))
	if lane != "" && !lane.Valid() {
		a.writeError(w, http.StatusBadRequest, "unknown lane")
		return
	}

	jobs, err := a.eng.Store().ListJobsByState(r.Context(), state, job.ListOpts{
		Limit:  defaultLimit(intQuery(r, "limit")),
		Offset: intQuery(r, "offset"),
		Lane:   lane,
	})
	if err != nil {
		a.mapStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, jobs)
}

// GET /v1/jobs/counts?lane=
func (a *API) jobCounts(w http.ResponseWriter, r *http.Request) {
	lane := job.Lane(r.URL.Query().Get("lane"))
	if lane != "" && !lane.Valid() {
		a.writeError(w, http.StatusBadRequest, "unknown lane")
		return
	}

	resp := JobCountsResponse{Counts: make(map[job.State]int64, len(jobStates))}
	for _, state := range jobStates {
		n, err := a.eng.Store().CountJobs(r.Context(), job.CountOpts{
			Lane:  lane,
			State: state,
		})
		if err != nil {
			a.mapStoreError(w, err)
			return
		}
		resp.Counts[state] = n
		resp.Total += n
	}
	a.writeJSON(w, http.StatusOK, resp)
}

// GET /v1/jobs/{jobID}
func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	j, err := a.eng.Store().GetJob(r.Context(), jobID)
	if err != nil {
		a.mapStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, j)
}

// POST /v1/jobs/{jobID}/cancel
//
// Only pending and retrying jobs can be cancelled; a running worker is
// never yanked mid-flight.
func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	j, err := a.eng.Store().GetJob(r.Context(), jobID)
	if err != nil {
		a.mapStoreError(w, err)
		return
	}

	if j.State != job.StatePending && j.State != job.StateRetrying {
		a.writeError(w, http.StatusBadRequest, "job is not pending or retrying")
		return
	}

	now := time.Now().UTC()
	j.State = job.StateCancelled
	j.CompletedAt = &now
	if err := a.eng.Store().UpdateJob(r.Context(), j); err != nil {
		a.mapStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
