package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cargoroute/tracker/core/alert"
	"github.com/cargoroute/tracker/core/engine"
	"github.com/cargoroute/tracker/core/model"
	"github.com/cargoroute/tracker/core/store"
	"github.com/cargoroute/tracker/infra/logger"
	"github.com/cargoroute/tracker/internal/eventbus"
)

func newTestAPI(t *testing.T) (*http.ServeMux, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	bus := eventbus.New()
	eng, err := engine.New(st, bus, logger.NopLogger{}, nil)
	require.NoError(t, err)
	alerts, err := alert.New(st, bus, logger.NopLogger{}, nil)
	require.NoError(t, err)

	mux := http.NewServeMux()
	New(eng, alerts, st).Register(mux)
	return mux, st
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestCreateAndListVehicles(t *testing.T) {
	mux, _ := newTestAPI(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/vehicles",
		`{"vehicle_number":"TRUCK-1","driver_name":"A. Smith","vehicle_type":"van"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	v := decode[model.Vehicle](t, rec)
	assert.NotZero(t, v.ID)
	assert.Equal(t, model.VehicleAvailable, v.Status)
	assert.True(t, v.IsActive)

	rec = doJSON(t, mux, http.MethodGet, "/api/vehicles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]model.Vehicle](t, rec)
	assert.Len(t, list, 1)
}

func TestCreateVehicleRejectsBadPayload(t *testing.T) {
	mux, _ := newTestAPI(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/vehicles", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/vehicles", `{"vehicle_number":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAvailableVehiclesFilter(t *testing.T) {
	mux, st := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, st.CreateVehicle(ctx, &model.Vehicle{VehicleNumber: "A", Status: model.VehicleAvailable, IsActive: true}))
	require.NoError(t, st.CreateVehicle(ctx, &model.Vehicle{VehicleNumber: "B", Status: model.VehicleDelivering, IsActive: true}))

	rec := doJSON(t, mux, http.MethodGet, "/api/vehicles/available", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]model.Vehicle](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "A", list[0].VehicleNumber)
}

func TestUpdateVehicleLocation(t *testing.T) {
	mux, st := newTestAPI(t)
	v := &model.Vehicle{VehicleNumber: "TRUCK-1", Status: model.VehicleAvailable, IsActive: true}
	require.NoError(t, st.CreateVehicle(context.Background(), v))

	rec := doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/vehicles/%d/location", v.ID),
		`{"latitude":48.85,"longitude":2.35}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[model.Vehicle](t, rec)
	assert.InDelta(t, 48.85, got.Latitude, 1e-9)
	assert.False(t, got.LastLocationUpdate.IsZero())
}

func TestUpdateVehicleLocationErrors(t *testing.T) {
	mux, st := newTestAPI(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/vehicles/404/location", `{"latitude":1,"longitude":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/vehicles/abc/location", `{"latitude":1,"longitude":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	parked := &model.Vehicle{VehicleNumber: "OLD-1", Status: model.VehicleOffline, IsActive: false}
	require.NoError(t, st.CreateVehicle(context.Background(), parked))
	rec = doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/vehicles/%d/location", parked.ID),
		`{"latitude":1,"longitude":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateVehicleStatusValidation(t *testing.T) {
	mux, st := newTestAPI(t)
	v := &model.Vehicle{VehicleNumber: "TRUCK-1", Status: model.VehicleAvailable, IsActive: true}
	require.NoError(t, st.CreateVehicle(context.Background(), v))

	rec := doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/vehicles/%d/status", v.ID), `{"status":"warp"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/vehicles/%d/status", v.ID), `{"status":"maintenance"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[model.Vehicle](t, rec)
	assert.Equal(t, model.VehicleMaintenance, got.Status)
}

func TestCreateDeliveryGeneratesTrackingNumber(t *testing.T) {
	mux, _ := newTestAPI(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/deliveries",
		`{"pickup_address":"1 Dock Rd","delivery_address":"9 Market St","customer_id":7,"status":"delivered","vehicle_id":3}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	d := decode[model.Delivery](t, rec)

	// Client-supplied status, tracking number and assignment are ignored.
	assert.Equal(t, model.DeliveryScheduled, d.Status)
	assert.Nil(t, d.VehicleID)
	assert.True(t, strings.HasPrefix(d.TrackingNumber, "TRK"), d.TrackingNumber)
	assert.Len(t, d.TrackingNumber, len("TRK")+8+4)
}

func TestTrackDelivery(t *testing.T) {
	mux, st := newTestAPI(t)
	d := &model.Delivery{TrackingNumber: "TRK202506010042", Status: model.DeliveryScheduled, CustomerID: 1}
	require.NoError(t, st.CreateDelivery(context.Background(), d))

	rec := doJSON(t, mux, http.MethodGet, "/api/deliveries/track/TRK202506010042", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[model.Delivery](t, rec)
	assert.Equal(t, d.ID, got.ID)

	rec = doJSON(t, mux, http.MethodGet, "/api/deliveries/track/TRK000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateDeliveryStatusConflicts(t *testing.T) {
	mux, st := newTestAPI(t)
	d := &model.Delivery{TrackingNumber: "TRK1", Status: model.DeliveryDelivered, CustomerID: 1}
	require.NoError(t, st.CreateDelivery(context.Background(), d))

	// A terminal delivery rejects a different target status.
	rec := doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/deliveries/%d/status", d.ID), `{"status":"in_transit"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Re-affirming the current terminal status is accepted.
	rec = doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/deliveries/%d/status", d.ID), `{"status":"delivered"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/deliveries/%d/status", d.ID), `{"status":"teleported"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAssignVehicle(t *testing.T) {
	mux, st := newTestAPI(t)
	ctx := context.Background()
	v := &model.Vehicle{VehicleNumber: "TRUCK-1", Status: model.VehicleAvailable, IsActive: true}
	require.NoError(t, st.CreateVehicle(ctx, v))
	d := &model.Delivery{TrackingNumber: "TRK1", Status: model.DeliveryScheduled, CustomerID: 1}
	require.NoError(t, st.CreateDelivery(ctx, d))

	rec := doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/deliveries/%d/assign", d.ID),
		fmt.Sprintf(`{"vehicle_id":%d}`, v.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[model.Delivery](t, rec)
	assert.Equal(t, model.DeliveryAssigned, got.Status)
	require.NotNil(t, got.VehicleID)
	assert.Equal(t, v.ID, *got.VehicleID)

	rec = doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/deliveries/%d/assign", d.ID), `{"vehicle_id":404}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertLifecycle(t *testing.T) {
	mux, st := newTestAPI(t)
	v := &model.Vehicle{VehicleNumber: "TRUCK-1", Status: model.VehicleAvailable, IsActive: true}
	require.NoError(t, st.CreateVehicle(context.Background(), v))

	rec := doJSON(t, mux, http.MethodPost, "/api/alerts",
		fmt.Sprintf(`{"scope":"vehicle","entity_id":%d,"title":"Low fuel","severity":"high"}`, v.ID))
	require.Equal(t, http.StatusCreated, rec.Code)
	a := decode[model.Alert](t, rec)
	assert.False(t, a.IsResolved)

	rec = doJSON(t, mux, http.MethodGet, "/api/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	open := decode[[]model.Alert](t, rec)
	assert.Len(t, open, 1)

	rec = doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/alerts/%d/resolve", a.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decode[model.Alert](t, rec)
	assert.True(t, resolved.IsResolved)
	assert.NotNil(t, resolved.ResolvedAt)

	// A second resolve is a conflict.
	rec = doJSON(t, mux, http.MethodPost, fmt.Sprintf("/api/alerts/%d/resolve", a.ID), "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Alerts against unknown entities are rejected.
	rec = doJSON(t, mux, http.MethodPost, "/api/alerts",
		`{"scope":"delivery","entity_id":404,"title":"Late","severity":"low"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
