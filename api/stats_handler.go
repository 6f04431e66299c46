package api

import (
	"net/http"

	"github.com/waveline/courier/breaker"
	"github.com/waveline/courier/job"
)

// StatsResponse is the one-call operational overview: per-lane queue
// depths, per-state job counts, the dead letter backlog, and the number
// of live idempotency claims.
type StatsResponse struct {
	Lanes        map[job.Lane]job.LaneStats `json:"lanes"`
	States       map[job.State]int64        `json:"states"`
	DLQBacklog   int64                      `json:"dlq_backlog"`
	ActiveClaims int64                      `json:"active_claims"`
}

// BreakersResponse reports every registered circuit breaker and which
// of them are currently refusing calls.
type BreakersResponse struct {
	States map[string]breaker.State `json:"states"`
	Open   []string                 `json:"open"`
}

// GET /v1/stats
func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	lanes, err := a.eng.Jobs().Stats(ctx)
	if err != nil {
		a.mapStoreError(w, err)
		return
	}

	states := make(map[job.State]int64, len(jobStates))
	for _, state := range jobStates {
		n, err := a.eng.Store().CountJobs(ctx, job.CountOpts{State: state})
		if err != nil {
			a.mapStoreError(w, err)
			return
		}
		states[state] = n
	}

	dlqBacklog, err := a.eng.DLQService().Count(ctx)
	if err != nil {
		a.mapStoreError(w, err)
		return
	}

	claims, err := a.eng.Claims().Count(ctx)
	if err != nil {
		a.mapStoreError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, StatsResponse{
		Lanes:        lanes,
		States:       states,
		DLQBacklog:   dlqBacklog,
		ActiveClaims: claims,
	})
}

// GET /v1/breakers
func (a *API) listBreakers(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, BreakersResponse{
		States: a.eng.Breakers().States(),
		Open:   a.eng.Breakers().Open(),
	})
}
