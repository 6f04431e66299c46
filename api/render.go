package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/waveline/courier"
)

// errorResponse is the JSON error envelope for every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("write response", slog.String("error", err.Error()))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, errorResponse{Error: msg})
}

// mapStoreError renders a store error: not-found sentinels become 404,
// everything else is a 500.
func (a *API) mapStoreError(w http.ResponseWriter, err error) {
	if isNotFound(err) {
		a.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	a.logger.Error("store error", slog.String("error", err.Error()))
	a.writeError(w, http.StatusInternalServerError, err.Error())
}

func isNotFound(err error) bool {
	return errors.Is(err, courier.ErrJobNotFound) ||
		errors.Is(err, courier.ErrDLQNotFound) ||
		errors.Is(err, courier.ErrCronNotFound) ||
		errors.Is(err, courier.ErrCampaignNotFound) ||
		errors.Is(err, courier.ErrNoActiveSync)
}

const (
	listLimitDefault = 50
	listLimitMax     = 500
)

// defaultLimit clamps a client-supplied limit into a sane range.
func defaultLimit(v int) int {
	if v <= 0 {
		return listLimitDefault
	}
	if v > listLimitMax {
		return listLimitMax
	}
	return v
}

// intQuery parses an integer query parameter, returning zero when the
// parameter is absent or malformed.
func intQuery(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}

// boolQuery parses a boolean query parameter, returning false when the
// parameter is absent or malformed.
func boolQuery(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	if err != nil {
		return false
	}
	return v
}
