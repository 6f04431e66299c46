package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/waveline/courier/dlq"
	"github.com/waveline/courier/id"
)

// defaultDLQRetention is the cleanup retention applied when the request
// does not name one.
const defaultDLQRetention = 30 * 24 * time.Hour

// DLQCountResponse reports the dead letter backlog size.
type DLQCountResponse struct {
	Count int64 `json:"count"`
}

// CleanupDLQResponse reports how many entries a cleanup removed.
type CleanupDLQResponse struct {
	Removed int64 `json:"removed"`
}

type cleanupDLQRequest struct {
	// RetentionDays keeps entries younger than this many days. Zero
	// falls back to the 30 day default.
	RetentionDays int `json:"retention_days"`
}

// GET /v1/dlq?hook=&reason=&limit=&offset=
func (a *API) listDLQ(w http.ResponseWriter, r *http.Request) {
	reason := dlq.Reason(r.URL.Query().Get("reason"))
	if reason != "" && !reason.Valid() {
		a.writeError(w, http.StatusBadRequest, "unknown reason")
		return
	}

	entries, err := a.eng.Store().ListDLQ(r.Context(), dlq.ListOpts{
		Limit:  defaultLimit(intQuery(r, "limit")),
		Offset: intQuery(r, "offset"),
		Hook:   r.URL.Query().Get("hook"),
		Reason: reason,
	})
	if err != nil {
		a.mapStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, entries)
}

// GET /v1/dlq/count
func (a *API) dlqCount(w http.ResponseWriter, r *http.Request) {
	n, err := a.eng.DLQService().Count(r.Context())
	if err != nil {
		a.mapStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, DLQCountResponse{Count: n})
}

// GET /v1/dlq/{entryID}
func (a *API) getDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseDLQID(chi.URLParam(r, "entryID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := a.eng.Store().GetDLQ(r.Context(), entryID)
	if err != nil {
		a.mapStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, entry)
}

// POST /v1/dlq/{entryID}/replay
//
// Responds 201 with the freshly scheduled job.
func (a *API) replayDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseDLQID(chi.URLParam(r, "entryID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	j, err := a.eng.DLQService().Replay(r.Context(), entryID)
	if err != nil {
		a.mapStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, j)
}

// DELETE /v1/dlq/{entryID}
func (a *API) dismissDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseDLQID(chi.URLParam(r, "entryID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.eng.DLQService().Dismiss(r.Context(), entryID); err != nil {
		a.mapStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/dlq/cleanup
//
// The body is optional; an empty body applies the default retention.
func (a *API) cleanupDLQ(w http.ResponseWriter, r *http.Request) {
	var req cleanupDLQRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		a.writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.RetentionDays < 0 {
		a.writeError(w, http.StatusBadRequest, "retention_days must not be negative")
		return
	}

	retention := defaultDLQRetention
	if req.RetentionDays > 0 {
		retention = time.Duration(req.RetentionDays) * 24 * time.Hour
	}

	removed, err := a.eng.DLQService().Cleanup(r.Context(), retention)
	if err != nil {
		a.mapStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, CleanupDLQResponse{Removed: removed})
}
