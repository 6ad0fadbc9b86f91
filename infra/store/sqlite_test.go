package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cargoroute/tracker/core/model"
	corestore "github.com/cargoroute/tracker/core/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestVehicleRoundtrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	fuel := 80.0
	v := &model.Vehicle{
		VehicleNumber: "TRUCK-9",
		DriverName:    "M. Diaz",
		PhoneNumber:   "+33102030405",
		VehicleType:   "van",
		Status:        model.VehicleAvailable,
		IsActive:      true,
		Latitude:      48.85,
		Longitude:     2.35,
		FuelLevel:     &fuel,
	}
	require.NoError(t, st.CreateVehicle(ctx, v))
	require.NotZero(t, v.ID)

	got, err := st.GetVehicle(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, *v, got)

	got.Status = model.VehicleInTransit
	got.LastLocationUpdate = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveVehicle(ctx, got))

	again, err := st.GetVehicle(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VehicleInTransit, again.Status)
	assert.True(t, again.LastLocationUpdate.Equal(got.LastLocationUpdate))
	require.NotNil(t, again.FuelLevel)
	assert.Equal(t, fuel, *again.FuelLevel)
	assert.Nil(t, again.FuelCapacity)
}

func TestVehicleNotFound(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.GetVehicle(ctx, 404)
	assert.ErrorIs(t, err, corestore.ErrNotFound)

	err = st.SaveVehicle(ctx, model.Vehicle{ID: 404, VehicleNumber: "X", Status: model.VehicleAvailable})
	assert.ErrorIs(t, err, corestore.ErrNotFound)
}

func TestListAvailableVehicles(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seed := []model.Vehicle{
		{VehicleNumber: "A", Status: model.VehicleAvailable, IsActive: true},
		{VehicleNumber: "B", Status: model.VehicleInTransit, IsActive: true},
		{VehicleNumber: "C", Status: model.VehicleAvailable, IsActive: false},
	}
	for i := range seed {
		require.NoError(t, st.CreateVehicle(ctx, &seed[i]))
	}

	all, err := st.ListVehicles(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	avail, err := st.ListAvailableVehicles(ctx)
	require.NoError(t, err)
	require.Len(t, avail, 1)
	assert.Equal(t, "A", avail[0].VehicleNumber)
}

func TestDeliveryRoundtrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	d := &model.Delivery{
		TrackingNumber:        "TRK202506010042",
		Status:                model.DeliveryScheduled,
		PickupAddress:         "1 Dock Rd",
		DeliveryAddress:       "9 Market St",
		PickupLat:             48.8,
		PickupLon:             2.3,
		DeliveryLat:           48.9,
		DeliveryLon:           2.4,
		ScheduledPickupTime:   time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		ScheduledDeliveryTime: time.Date(2025, 6, 1, 17, 0, 0, 0, time.UTC),
		Notes:                 "fragile",
		Priority:              2,
		CustomerID:            7,
	}
	require.NoError(t, st.CreateDelivery(ctx, d))
	require.NotZero(t, d.ID)

	got, err := st.GetDelivery(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, *d, got)

	byTrack, err := st.GetDeliveryByTracking(ctx, d.TrackingNumber)
	require.NoError(t, err)
	assert.Equal(t, d.ID, byTrack.ID)

	_, err = st.GetDeliveryByTracking(ctx, "TRK00000000")
	assert.ErrorIs(t, err, corestore.ErrNotFound)

	pickedUp := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	got.Status = model.DeliveryInTransit
	got.ActualPickupTime = &pickedUp
	require.NoError(t, st.SaveDelivery(ctx, got))

	again, err := st.GetDelivery(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryInTransit, again.Status)
	require.NotNil(t, again.ActualPickupTime)
	assert.True(t, again.ActualPickupTime.Equal(pickedUp))
	assert.Nil(t, again.ActualDeliveryTime)
}

func TestSaveDeliveryMissingRow(t *testing.T) {
	st := newTestStore(t)
	err := st.SaveDelivery(context.Background(), model.Delivery{
		ID: 99, TrackingNumber: "TRK1", Status: model.DeliveryScheduled, CustomerID: 1,
	})
	assert.ErrorIs(t, err, corestore.ErrNotFound)
}

func TestAssignDeliveryTransaction(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	v := &model.Vehicle{VehicleNumber: "TRUCK-1", Status: model.VehicleAvailable, IsActive: true}
	require.NoError(t, st.CreateVehicle(ctx, v))
	d := &model.Delivery{TrackingNumber: "TRK2", Status: model.DeliveryScheduled, CustomerID: 1}
	require.NoError(t, st.CreateDelivery(ctx, d))

	upd := *d
	upd.Status = model.DeliveryAssigned
	upd.VehicleID = &v.ID
	uv := *v
	uv.Status = model.VehicleInTransit

	require.NoError(t, st.AssignDelivery(ctx, upd, uv))

	gotD, err := st.GetDelivery(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryAssigned, gotD.Status)
	require.NotNil(t, gotD.VehicleID)
	assert.Equal(t, v.ID, *gotD.VehicleID)

	gotV, err := st.GetVehicle(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VehicleInTransit, gotV.Status)
}

func TestAssignDeliveryRollsBackOnMissingVehicle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	d := &model.Delivery{TrackingNumber: "TRK3", Status: model.DeliveryScheduled, CustomerID: 1}
	require.NoError(t, st.CreateDelivery(ctx, d))

	upd := *d
	upd.Status = model.DeliveryAssigned
	ghost := model.Vehicle{ID: 404, VehicleNumber: "GHOST", Status: model.VehicleInTransit}

	err := st.AssignDelivery(ctx, upd, ghost)
	require.ErrorIs(t, err, corestore.ErrNotFound)

	// The delivery write must have been rolled back with the vehicle write.
	gotD, err := st.GetDelivery(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryScheduled, gotD.Status)
	assert.Nil(t, gotD.VehicleID)
}

func TestAlertRoundtripAndOpenList(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a := &model.Alert{
		Scope:     model.ScopeVehicle,
		EntityID:  1,
		Title:     "Low fuel",
		Message:   "Tank below 10%",
		Type:      "fuel",
		Severity:  model.SeverityHigh,
		CreatedAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.CreateAlert(ctx, a))
	b := &model.Alert{
		Scope:     model.ScopeDelivery,
		EntityID:  2,
		Title:     "Late pickup",
		Severity:  model.SeverityLow,
		CreatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.CreateAlert(ctx, b))

	open, err := st.ListOpenAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	resolvedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	got, err := st.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	got.IsResolved = true
	got.ResolvedAt = &resolvedAt
	require.NoError(t, st.SaveAlert(ctx, got))

	open, err = st.ListOpenAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, b.ID, open[0].ID)

	resolved, err := st.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)
	require.NotNil(t, resolved.ResolvedAt)
	assert.True(t, resolved.ResolvedAt.Equal(resolvedAt))
}

func TestAlertNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetAlert(context.Background(), 404)
	assert.ErrorIs(t, err, corestore.ErrNotFound)
	err = st.SaveAlert(context.Background(), model.Alert{ID: 404, Scope: model.ScopeVehicle, Severity: model.SeverityLow})
	assert.ErrorIs(t, err, corestore.ErrNotFound)
}
