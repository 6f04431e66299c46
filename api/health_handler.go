package api

import "net/http"

// GET /healthz
//
// Responds 200 with the full report while healthy and 503 once any
// threshold is breached, so the same endpoint serves load balancer
// checks and operator diagnosis.
func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	report := a.eng.Health().Check(r.Context())

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	a.writeJSON(w, status, report)
}
