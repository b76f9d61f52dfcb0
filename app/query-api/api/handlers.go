package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
	"github.com/transitwatch/transitwatch/business/data/prediction"
	"github.com/transitwatch/transitwatch/business/data/vehiclecache"
	"github.com/transitwatch/transitwatch/foundation/cache"
)

// currentVehicles answers GET /api/vehicles?route=33&route=44: the current
// snapshot of every vehicle last seen on one of the given routes, grounded on
// views.py's `vehicles` view.
func (a *API) currentVehicles(w http.ResponseWriter, r *http.Request) {
	routes := r.URL.Query()["route"]
	if len(routes) == 0 {
		a.writeJSON(w, http.StatusOK, []vehiclecache.VehicleCache{})
		return
	}

	key := "vehicles:" + cacheKey(routes)
	var cached []*vehiclecache.VehicleCache
	if a.cache != nil {
		if err := a.cache.GetJSON(r.Context(), key, &cached); err == nil {
			a.writeJSON(w, http.StatusOK, cached)
			return
		} else if !cache.IsMiss(err) {
			a.log.Error().Err(err).Str("key", key).Msg("reading vehicle cache from redis")
		}
	}

	vehicles, err := vehiclecache.GetByRouteShortNames(a.db, routes)
	if err != nil {
		a.log.Error().Err(err).Msg("loading current vehicles")
		a.writeError(w, http.StatusInternalServerError, "loading current vehicles")
		return
	}

	if a.cache != nil {
		if err := a.cache.SetJSON(r.Context(), key, vehicles, currentVehiclesTTL); err != nil {
			a.log.Error().Err(err).Str("key", key).Msg("caching current vehicles")
		}
	}
	a.writeJSON(w, http.StatusOK, vehicles)
}

// history answers GET /api/history?route=33&start=2026-08-01T12:00:00Z: every
// raw fix for the given routes in the 15-minute window starting at start,
// grounded on views.py's `history` view.
func (a *API) history(w http.ResponseWriter, r *http.Request) {
	routes := r.URL.Query()["route"]
	if len(routes) == 0 {
		a.writeError(w, http.StatusBadRequest, "at least one route is required")
		return
	}

	startParam := r.URL.Query().Get("start")
	if startParam == "" {
		a.writeError(w, http.StatusBadRequest, "start is required")
		return
	}
	start, err := time.Parse(time.RFC3339, startParam)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid start %q: %s", startParam, err))
		return
	}

	fixes, err := gtfs.GetRawFixesInWindow(a.db, routes, start)
	if err != nil {
		a.log.Error().Err(err).Msg("loading fix history")
		a.writeError(w, http.StatusInternalServerError, "loading fix history")
		return
	}
	a.writeJSON(w, http.StatusOK, fixes)
}

// stopPredictionView pairs a StopPrediction with its surviving probability
// mass, the shape the per-stop view needs without a second round trip.
type stopPredictionView struct {
	*prediction.StopPrediction
	Times []*prediction.StopTimePrediction `json:"times"`
}

// stopPredictions answers GET /api/stops/{stopId}/predictions: the most
// recent predictions made for a physical stop across every active
// trip-instance, grounded on views.py's `stop` view.
func (a *API) stopPredictions(w http.ResponseWriter, r *http.Request) {
	stopId := chi.URLParam(r, "stopId")

	key := "stop:" + stopId
	var cached []*stopPredictionView
	if a.cache != nil {
		if err := a.cache.GetJSON(r.Context(), key, &cached); err == nil {
			a.writeJSON(w, http.StatusOK, cached)
			return
		} else if !cache.IsMiss(err) {
			a.log.Error().Err(err).Str("key", key).Msg("reading stop predictions from redis")
		}
	}

	since := time.Now().Add(-time.Hour)
	predictions, err := prediction.GetStopPredictionsForStop(a.db, stopId, since)
	if err != nil {
		a.log.Error().Err(err).Str("stop_id", stopId).Msg("loading stop predictions")
		a.writeError(w, http.StatusInternalServerError, "loading stop predictions")
		return
	}

	views := make([]*stopPredictionView, 0, len(predictions))
	for _, sp := range predictions {
		times, err := prediction.GetStopTimePredictions(a.db, sp.Id)
		if err != nil {
			a.log.Error().Err(err).Int64("stop_prediction_id", sp.Id).Msg("loading stop time predictions")
			continue
		}
		views = append(views, &stopPredictionView{StopPrediction: sp, Times: times})
	}

	if a.cache != nil {
		if err := a.cache.SetJSON(r.Context(), key, views, stopPredictionsTTL); err != nil {
			a.log.Error().Err(err).Str("key", key).Msg("caching stop predictions")
		}
	}
	a.writeJSON(w, http.StatusOK, views)
}

// vehicleDetailView is the full per-vehicle trip detail: its current
// snapshot, the scheduled stop-times of the trip it is bound to, and the
// predictions made for the rest of that trip, grounded on views.py's
// `details` view.
type vehicleDetailView struct {
	*vehiclecache.VehicleCache
	StopTimes   []*gtfs.StopTime      `json:"stop_times"`
	Predictions []*stopPredictionView `json:"predictions"`
}

// vehicleDetail answers GET /api/vehicles/{vehicleId}.
func (a *API) vehicleDetail(w http.ResponseWriter, r *http.Request) {
	vehicleId, err := strconv.ParseInt(chi.URLParam(r, "vehicleId"), 10, 64)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "vehicleId must be an integer")
		return
	}

	vc, err := vehiclecache.GetByVehicleId(a.db, vehicleId)
	if err != nil {
		a.log.Error().Err(err).Int64("vehicle_id", vehicleId).Msg("loading vehicle cache")
		a.writeError(w, http.StatusInternalServerError, "loading vehicle")
		return
	}
	if vc == nil {
		a.writeError(w, http.StatusNotFound, "vehicle not found")
		return
	}

	stopTimes, err := gtfs.GetStopTimesForTrip(a.db, vc.DataSetId, vc.TripId)
	if err != nil {
		a.log.Error().Err(err).Str("trip_id", vc.TripId).Msg("loading trip stop times")
		a.writeError(w, http.StatusInternalServerError, "loading trip stop times")
		return
	}

	predictions, err := prediction.GetStopPredictions(a.db, vc.TripInstanceId)
	if err != nil {
		a.log.Error().Err(err).Int64("trip_instance_id", vc.TripInstanceId).Msg("loading trip predictions")
		a.writeError(w, http.StatusInternalServerError, "loading trip predictions")
		return
	}

	views := make([]*stopPredictionView, 0, len(predictions))
	for _, sp := range predictions {
		times, err := prediction.GetStopTimePredictions(a.db, sp.Id)
		if err != nil {
			a.log.Error().Err(err).Int64("stop_prediction_id", sp.Id).Msg("loading stop time predictions")
			continue
		}
		views = append(views, &stopPredictionView{StopPrediction: sp, Times: times})
	}

	a.writeJSON(w, http.StatusOK, &vehicleDetailView{
		VehicleCache: vc,
		StopTimes:    stopTimes,
		Predictions:  views,
	})
}

// cacheKey builds a stable cache key from an unordered set of route names.
func cacheKey(routes []string) string {
	sorted := append([]string(nil), routes...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
