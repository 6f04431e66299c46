package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/waveline/courier/broadcast"
	"github.com/waveline/courier/id"
)

// GET /v1/campaigns?state=&limit=&offset=
func (a *API) listCampaigns(w http.ResponseWriter, r *http.Request) {
	state := broadcast.State(r.URL.Query().Get("state"))
	switch state {
	case "", broadcast.StateRunning, broadcast.StateCompleted, broadcast.StateFailed:
	default:
		a.writeError(w, http.StatusBadRequest, "unknown state")
		return
	}

	campaigns, err := a.eng.Store().ListCampaigns(r.Context(), broadcast.ListOpts{
		Limit:  defaultLimit(intQuery(r, "limit")),
		Offset: intQuery(r, "offset"),
		State:  state,
	})
	if err != nil {
		a.mapStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, campaigns)
}

// GET /v1/campaigns/{campaignID}
func (a *API) getCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID, err := id.ParseCampaignID(chi.URLParam(r, "campaignID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := a.eng.Store().GetCampaign(r.Context(), campaignID)
	if err != nil {
		a.mapStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, c)
}
