// Package api exposes the admin HTTP surface for a courier engine:
// job inspection and cancellation, lane statistics, dead letter
// management, sync progress, campaign listings, cron entries, breaker
// states, and a health endpoint. It is read-mostly by design; the only
// mutations are the operator actions (cancel, replay, dismiss, cleanup,
// enable/disable) that the engine itself cannot decide.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/waveline/courier/engine"
)

// API wires the admin HTTP handlers for a courier engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// Option configures the API.
type Option func(*API)

// WithLogger sets the logger used for request logging and handler
// errors.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an API over the given engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{
		eng:    eng,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the assembled http.Handler with all routes and
// middleware attached.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(a.logRequests)
	r.Use(a.recoverPanics)
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts all admin routes on the given router. Callers
// that want their own middleware stack can use this instead of
// Handler.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", a.healthz)

	r.Route("/v1", func(r chi.Router) {
		a.registerJobRoutes(r)
		a.registerStatsRoutes(r)
		a.registerDLQRoutes(r)
		a.registerSyncRoutes(r)
		a.registerCampaignRoutes(r)
		a.registerCronRoutes(r)
	})
}

func (a *API) registerJobRoutes(r chi.Router) {
	r.Get("/jobs", a.listJobs)
	r.Get("/jobs/counts", a.jobCounts)
	r.Get("/jobs/{jobID}", a.getJob)
	r.Post("/jobs/{jobID}/cancel", a.cancelJob)
}

func (a *API) registerStatsRoutes(r chi.Router) {
	r.Get("/stats", a.stats)
	r.Get("/breakers", a.listBreakers)
}

func (a *API) registerDLQRoutes(r chi.Router) {
	r.Get("/dlq", a.listDLQ)
	r.Get("/dlq/count", a.dlqCount)
	r.Post("/dlq/cleanup", a.cleanupDLQ)
	r.Get("/dlq/{entryID}", a.getDLQ)
	r.Post("/dlq/{entryID}/replay", a.replayDLQ)
	r.Delete("/dlq/{entryID}", a.dismissDLQ)
}

func (a *API) registerSyncRoutes(r chi.Router) {
	r.Get("/sync/progress", a.syncProgress)
	r.Delete("/sync/progress", a.clearSyncProgress)
}

func (a *API) registerCampaignRoutes(r chi.Router) {
	r.Get("/campaigns", a.listCampaigns)
	r.Get("/campaigns/{campaignID}", a.getCampaign)
}

func (a *API) registerCronRoutes(r chi.Router) {
	r.Get("/crons", a.listCrons)
	r.Get("/crons/{cronID}", a.getCron)
	r.Post("/crons/{cronID}/enable", a.enableCron)
	r.Post("/crons/{cronID}/disable", a.disableCron)
	r.Delete("/crons/{cronID}", a.deleteCron)
}
