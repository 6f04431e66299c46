package api

import (
	"errors"
	"net/http"

	"github.com/waveline/courier"
)

// GET /v1/sync/progress
//
// Responds 404 when no sync run exists.
func (a *API) syncProgress(w http.ResponseWriter, r *http.Request) {
	snap, err := a.eng.Progress().Snapshot(r.Context())
	if err != nil {
		a.mapStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, snap)
}

// DELETE /v1/sync/progress?force=
//
// Deleting an absent run is a no-op 204. Without force an in-progress
// run refuses to clear and responds 409.
func (a *API) clearSyncProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := a.eng.Store().GetProgress(ctx); err != nil {
		if errors.Is(err, courier.ErrNoActiveSync) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		a.mapStoreError(w, err)
		return
	}

	cleared, err := a.eng.Progress().Clear(ctx, boolQuery(r, "force"))
	if err != nil {
		a.mapStoreError(w, err)
		return
	}
	if !cleared {
		a.writeError(w, http.StatusConflict, "sync in progress; pass force=true to clear")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
