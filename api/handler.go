// Package api exposes the mutation entry points and fleet reads over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/cargoroute/tracker/core/alert"
	"github.com/cargoroute/tracker/core/engine"
	"github.com/cargoroute/tracker/core/model"
	"github.com/cargoroute/tracker/core/store"
	"github.com/cargoroute/tracker/infra/logger"
)

// API wires the engine, alert manager and store reads into an HTTP mux.
type API struct {
	engine *engine.Engine
	alerts *alert.Manager
	store  store.Store
	log    logger.Logger
}

// New creates the API handler set.
func New(eng *engine.Engine, alerts *alert.Manager, st store.Store) *API {
	return &API{engine: eng, alerts: alerts, store: st, log: logger.New("api")}
}

// Register adds all routes to the mux. The live channel handler is mounted
// separately by the caller.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/vehicles", a.createVehicle)
	mux.HandleFunc("GET /api/vehicles", a.listVehicles)
	mux.HandleFunc("GET /api/vehicles/available", a.listAvailableVehicles)
	mux.HandleFunc("POST /api/vehicles/{id}/location", a.updateVehicleLocation)
	mux.HandleFunc("POST /api/vehicles/{id}/status", a.updateVehicleStatus)

	mux.HandleFunc("POST /api/deliveries", a.createDelivery)
	mux.HandleFunc("GET /api/deliveries", a.listDeliveries)
	mux.HandleFunc("GET /api/deliveries/track/{trackingNumber}", a.trackDelivery)
	mux.HandleFunc("POST /api/deliveries/{id}/status", a.updateDeliveryStatus)
	mux.HandleFunc("POST /api/deliveries/{id}/assign", a.assignVehicle)

	mux.HandleFunc("POST /api/alerts", a.createAlert)
	mux.HandleFunc("GET /api/alerts", a.listOpenAlerts)
	mux.HandleFunc("POST /api/alerts/{id}/resolve", a.resolveAlert)
}

func (a *API) createVehicle(w http.ResponseWriter, r *http.Request) {
	var v model.Vehicle
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if v.Status == "" {
		v.Status = model.VehicleAvailable
	}
	v.IsActive = true
	if err := v.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.store.CreateVehicle(r.Context(), &v); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (a *API) listVehicles(w http.ResponseWriter, r *http.Request) {
	vs, err := a.store.ListVehicles(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (a *API) listAvailableVehicles(w http.ResponseWriter, r *http.Request) {
	vs, err := a.store.ListAvailableVehicles(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (a *API) updateVehicleLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v, err := a.engine.ApplyVehicleLocation(r.Context(), id, req.Latitude, req.Longitude)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) updateVehicleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status model.VehicleStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown vehicle status %q", req.Status))
		return
	}
	v, err := a.engine.ApplyVehicleStatus(r.Context(), id, req.Status)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) createDelivery(w http.ResponseWriter, r *http.Request) {
	var d model.Delivery
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	d.Status = model.DeliveryScheduled
	d.TrackingNumber = generateTrackingNumber()
	d.VehicleID = nil
	if err := d.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.store.CreateDelivery(r.Context(), &d); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) listDeliveries(w http.ResponseWriter, r *http.Request) {
	ds, err := a.store.ListDeliveries(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (a *API) trackDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := a.store.GetDeliveryByTracking(r.Context(), r.PathValue("trackingNumber"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) updateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status model.DeliveryStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown delivery status %q", req.Status))
		return
	}
	d, err := a.engine.ApplyDeliveryStatus(r.Context(), id, req.Status)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) assignVehicle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		VehicleID int64 `json:"vehicle_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	d, err := a.engine.AssignVehicle(r.Context(), id, req.VehicleID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) createAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scope    model.AlertScope    `json:"scope"`
		EntityID int64               `json:"entity_id"`
		Title    string              `json:"title"`
		Message  string              `json:"message"`
		Type     string              `json:"type"`
		Severity model.AlertSeverity `json:"severity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	al, err := a.alerts.Create(r.Context(), req.Scope, req.EntityID, req.Title, req.Message, req.Type, req.Severity)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, al)
}

func (a *API) listOpenAlerts(w http.ResponseWriter, r *http.Request) {
	as, err := a.store.ListOpenAlerts(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, as)
}

func (a *API) resolveAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	al, err := a.alerts.Resolve(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, al)
}

// fail maps domain errors to HTTP status codes.
func (a *API) fail(w http.ResponseWriter, err error) {
	switch {
	case store.IsNotFound(err):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, engine.ErrInactiveVehicle),
		errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, alert.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, err)
	default:
		a.log.Errorf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid id %q", r.PathValue("id")))
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// generateTrackingNumber mirrors the legacy TRK<yyyymmdd><nnnn> format.
func generateTrackingNumber() string {
	return "TRK" + time.Now().Format("20060102") + strconv.Itoa(1000+rand.Intn(9000))
}
