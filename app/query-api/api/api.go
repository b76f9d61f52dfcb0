// Package api implements the read-only JSON query surface (6): current
// vehicles on selected routes, recent fix history, per-stop predictions, and
// per-vehicle trip detail. Grounded on FabianUB-minibarcelona3d's
// handler-struct-wrapping-a-repository shape, and on the original Django
// implementation's view functions (views.py: vehicles/history/stop/details)
// for what each endpoint answers.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/transitwatch/transitwatch/foundation/cache"
)

// currentVehiclesTTL and stopPredictionsTTL bound how stale a cached answer
// may be; both are far shorter than a human page-refresh interval so the
// cache only absorbs bursts of requests between live-poller ticks.
const (
	currentVehiclesTTL = 5 * time.Second
	stopPredictionsTTL = 10 * time.Second
)

// API holds the dependencies every handler needs.
type API struct {
	db    *sqlx.DB
	cache *cache.Cache
	log   zerolog.Logger
}

// New builds an API and its chi router, with CORS open to allowedOrigins.
func New(db *sqlx.DB, c *cache.Cache, log zerolog.Logger, allowedOrigins []string) http.Handler {
	a := &API{db: db, cache: c, log: log}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/healthz", a.health)
	r.Get("/api/vehicles", a.currentVehicles)
	r.Get("/api/vehicles/{vehicleId}", a.vehicleDetail)
	r.Get("/api/history", a.history)
	r.Get("/api/stops/{stopId}/predictions", a.stopPredictions)

	return r
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// writeJSON marshals v and writes it, logging (never panicking) on failure,
// the same shape as the teacher's gtfsTripUpdateHandler.serveJSON.
func (a *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Error().Err(err).Msg("writing json response")
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]string{"error": message})
}
