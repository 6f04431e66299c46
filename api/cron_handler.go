package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/waveline/courier/id"
)

// GET /v1/crons?limit=&offset=
//
// The cron store returns the full set; pagination is applied here since
// entry counts stay small.
func (a *API) listCrons(w http.ResponseWriter, r *http.Request) {
	entries, err := a.eng.Store().ListCrons(r.Context())
	if err != nil {
		a.mapStoreError(w, err)
		return
	}

	offset := intQuery(r, "offset")
	if offset > len(entries) {
		offset = len(entries)
	}
	entries = entries[offset:]

	limit := defaultLimit(intQuery(r, "limit"))
	if limit < len(entries) {
		entries = entries[:limit]
	}
	a.writeJSON(w, http.StatusOK, entries)
}

// GET /v1/crons/{cronID}
func (a *API) getCron(w http.ResponseWriter, r *http.Request) {
	cronID, err := id.ParseCronID(chi.URLParam(r, "cronID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := a.eng.Store().GetCron(r.Context(), cronID)
	if err != nil {
		a.mapStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, entry)
}

// POST /v1/crons/{cronID}/enable
func (a *API) enableCron(w http.ResponseWriter, r *http.Request) {
	a.setCronEnabled(w, r, true)
}

// POST /v1/crons/{cronID}/disable
func (a *API) disableCron(w http.ResponseWriter, r *http.Request) {
	a.setCronEnabled(w, r, false)
}

func (a *API) setCronEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	cronID, err := id.ParseCronID(chi.URLParam(r, "cronID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := a.eng.Store().GetCron(r.Context(), cronID)
	if err != nil {
		a.mapStoreError(w, err)
		return
	}

	entry.Enabled = enabled
	entry.UpdatedAt = time.Now().UTC()
	if err := a.eng.Store().UpdateCronEntry(r.Context(), entry); err != nil {
		a.mapStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, entry)
}

// DELETE /v1/crons/{cronID}
func (a *API) deleteCron(w http.ResponseWriter, r *http.Request) {
	cronID, err := id.ParseCronID(chi.URLParam(r, "cronID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.eng.Store().DeleteCron(r.Context(), cronID); err != nil {
		a.mapStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
