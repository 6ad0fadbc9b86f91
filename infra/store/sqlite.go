// Package store provides the SQLite-backed entity store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cargoroute/tracker/core/model"
	corestore "github.com/cargoroute/tracker/core/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS vehicles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    vehicle_number TEXT NOT NULL,
    driver_name TEXT NOT NULL DEFAULT '',
    phone_number TEXT NOT NULL DEFAULT '',
    vehicle_type TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    latitude REAL NOT NULL DEFAULT 0,
    longitude REAL NOT NULL DEFAULT 0,
    last_location_update INTEGER NOT NULL DEFAULT 0,
    fuel_level REAL,
    fuel_capacity REAL
);
CREATE TABLE IF NOT EXISTS deliveries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tracking_number TEXT NOT NULL UNIQUE,
    status TEXT NOT NULL,
    pickup_address TEXT NOT NULL DEFAULT '',
    delivery_address TEXT NOT NULL DEFAULT '',
    pickup_lat REAL NOT NULL DEFAULT 0,
    pickup_lon REAL NOT NULL DEFAULT 0,
    delivery_lat REAL NOT NULL DEFAULT 0,
    delivery_lon REAL NOT NULL DEFAULT 0,
    scheduled_pickup_time INTEGER NOT NULL DEFAULT 0,
    scheduled_delivery_time INTEGER NOT NULL DEFAULT 0,
    actual_pickup_time INTEGER,
    actual_delivery_time INTEGER,
    notes TEXT NOT NULL DEFAULT '',
    priority INTEGER NOT NULL DEFAULT 1,
    vehicle_id INTEGER,
    customer_id INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS alerts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    scope TEXT NOT NULL,
    entity_id INTEGER NOT NULL,
    title TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    resolved_at INTEGER,
    is_resolved INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteStore persists vehicles, deliveries and alerts in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func optNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromOptNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

const vehicleCols = `id, vehicle_number, driver_name, phone_number, vehicle_type,
    status, is_active, latitude, longitude, last_location_update, fuel_level, fuel_capacity`

func scanVehicle(row interface{ Scan(...any) error }) (model.Vehicle, error) {
	var (
		v        model.Vehicle
		lastLoc  int64
		fuelLvl  sql.NullFloat64
		fuelCap  sql.NullFloat64
		isActive int
	)
	err := row.Scan(&v.ID, &v.VehicleNumber, &v.DriverName, &v.PhoneNumber, &v.VehicleType,
		&v.Status, &isActive, &v.Latitude, &v.Longitude, &lastLoc, &fuelLvl, &fuelCap)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Vehicle{}, corestore.ErrNotFound
	}
	if err != nil {
		return model.Vehicle{}, err
	}
	v.IsActive = isActive != 0
	v.LastLocationUpdate = fromNanos(lastLoc)
	if fuelLvl.Valid {
		v.FuelLevel = &fuelLvl.Float64
	}
	if fuelCap.Valid {
		v.FuelCapacity = &fuelCap.Float64
	}
	return v, nil
}

func (s *SQLiteStore) GetVehicle(ctx context.Context, id int64) (model.Vehicle, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+vehicleCols+` FROM vehicles WHERE id = ?`, id)
	return scanVehicle(row)
}

func (s *SQLiteStore) SaveVehicle(ctx context.Context, v model.Vehicle) error {
	return saveVehicleTx(ctx, s.db, v)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveVehicleTx(ctx context.Context, db execer, v model.Vehicle) error {
	res, err := db.ExecContext(ctx, `UPDATE vehicles SET vehicle_number=?, driver_name=?,
        phone_number=?, vehicle_type=?, status=?, is_active=?, latitude=?, longitude=?,
        last_location_update=?, fuel_level=?, fuel_capacity=? WHERE id=?`,
		v.VehicleNumber, v.DriverName, v.PhoneNumber, v.VehicleType, v.Status,
		boolInt(v.IsActive), v.Latitude, v.Longitude, nanos(v.LastLocationUpdate),
		optFloat(v.FuelLevel), optFloat(v.FuelCapacity), v.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *SQLiteStore) CreateVehicle(ctx context.Context, v *model.Vehicle) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO vehicles (vehicle_number, driver_name,
        phone_number, vehicle_type, status, is_active, latitude, longitude,
        last_location_update, fuel_level, fuel_capacity) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		v.VehicleNumber, v.DriverName, v.PhoneNumber, v.VehicleType, v.Status,
		boolInt(v.IsActive), v.Latitude, v.Longitude, nanos(v.LastLocationUpdate),
		optFloat(v.FuelLevel), optFloat(v.FuelCapacity))
	if err != nil {
		return err
	}
	v.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	return s.queryVehicles(ctx, `SELECT `+vehicleCols+` FROM vehicles ORDER BY id`)
}

func (s *SQLiteStore) ListAvailableVehicles(ctx context.Context) ([]model.Vehicle, error) {
	return s.queryVehicles(ctx, `SELECT `+vehicleCols+` FROM vehicles
        WHERE is_active = 1 AND status = ? ORDER BY id`, model.VehicleAvailable)
}

func (s *SQLiteStore) queryVehicles(ctx context.Context, query string, args ...any) ([]model.Vehicle, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

const deliveryCols = `id, tracking_number, status, pickup_address, delivery_address,
    pickup_lat, pickup_lon, delivery_lat, delivery_lon, scheduled_pickup_time,
    scheduled_delivery_time, actual_pickup_time, actual_delivery_time, notes,
    priority, vehicle_id, customer_id`

func scanDelivery(row interface{ Scan(...any) error }) (model.Delivery, error) {
	var (
		d               model.Delivery
		schedPickup     int64
		schedDelivery   int64
		actualPickup    sql.NullInt64
		actualDelivered sql.NullInt64
		vehicleID       sql.NullInt64
	)
	err := row.Scan(&d.ID, &d.TrackingNumber, &d.Status, &d.PickupAddress, &d.DeliveryAddress,
		&d.PickupLat, &d.PickupLon, &d.DeliveryLat, &d.DeliveryLon, &schedPickup,
		&schedDelivery, &actualPickup, &actualDelivered, &d.Notes, &d.Priority,
		&vehicleID, &d.CustomerID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Delivery{}, corestore.ErrNotFound
	}
	if err != nil {
		return model.Delivery{}, err
	}
	d.ScheduledPickupTime = fromNanos(schedPickup)
	d.ScheduledDeliveryTime = fromNanos(schedDelivery)
	d.ActualPickupTime = fromOptNanos(actualPickup)
	d.ActualDeliveryTime = fromOptNanos(actualDelivered)
	if vehicleID.Valid {
		d.VehicleID = &vehicleID.Int64
	}
	return d, nil
}

func (s *SQLiteStore) GetDelivery(ctx context.Context, id int64) (model.Delivery, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deliveryCols+` FROM deliveries WHERE id = ?`, id)
	return scanDelivery(row)
}

func (s *SQLiteStore) GetDeliveryByTracking(ctx context.Context, trackingNumber string) (model.Delivery, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deliveryCols+` FROM deliveries WHERE tracking_number = ?`, trackingNumber)
	return scanDelivery(row)
}

func (s *SQLiteStore) SaveDelivery(ctx context.Context, d model.Delivery) error {
	return saveDeliveryTx(ctx, s.db, d)
}

func saveDeliveryTx(ctx context.Context, db execer, d model.Delivery) error {
	res, err := db.ExecContext(ctx, `UPDATE deliveries SET tracking_number=?, status=?,
        pickup_address=?, delivery_address=?, pickup_lat=?, pickup_lon=?, delivery_lat=?,
        delivery_lon=?, scheduled_pickup_time=?, scheduled_delivery_time=?,
        actual_pickup_time=?, actual_delivery_time=?, notes=?, priority=?, vehicle_id=?,
        customer_id=? WHERE id=?`,
		d.TrackingNumber, d.Status, d.PickupAddress, d.DeliveryAddress, d.PickupLat,
		d.PickupLon, d.DeliveryLat, d.DeliveryLon, nanos(d.ScheduledPickupTime),
		nanos(d.ScheduledDeliveryTime), optNanos(d.ActualPickupTime),
		optNanos(d.ActualDeliveryTime), d.Notes, d.Priority, optInt(d.VehicleID),
		d.CustomerID, d.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *SQLiteStore) CreateDelivery(ctx context.Context, d *model.Delivery) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO deliveries (tracking_number, status,
        pickup_address, delivery_address, pickup_lat, pickup_lon, delivery_lat,
        delivery_lon, scheduled_pickup_time, scheduled_delivery_time, actual_pickup_time,
        actual_delivery_time, notes, priority, vehicle_id, customer_id)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.TrackingNumber, d.Status, d.PickupAddress, d.DeliveryAddress, d.PickupLat,
		d.PickupLon, d.DeliveryLat, d.DeliveryLon, nanos(d.ScheduledPickupTime),
		nanos(d.ScheduledDeliveryTime), optNanos(d.ActualPickupTime),
		optNanos(d.ActualDeliveryTime), d.Notes, d.Priority, optInt(d.VehicleID),
		d.CustomerID)
	if err != nil {
		return err
	}
	d.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) ListDeliveries(ctx context.Context) ([]model.Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+deliveryCols+` FROM deliveries ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// AssignDelivery writes the delivery and vehicle in one transaction. A
// failure on either row rolls both back.
func (s *SQLiteStore) AssignDelivery(ctx context.Context, d model.Delivery, v model.Vehicle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := saveDeliveryTx(ctx, tx, d); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := saveVehicleTx(ctx, tx, v); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const alertCols = `id, scope, entity_id, title, message, type, severity, created_at, resolved_at, is_resolved`

func scanAlert(row interface{ Scan(...any) error }) (model.Alert, error) {
	var (
		a          model.Alert
		createdAt  int64
		resolvedAt sql.NullInt64
		isResolved int
	)
	err := row.Scan(&a.ID, &a.Scope, &a.EntityID, &a.Title, &a.Message, &a.Type,
		&a.Severity, &createdAt, &resolvedAt, &isResolved)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Alert{}, corestore.ErrNotFound
	}
	if err != nil {
		return model.Alert{}, err
	}
	a.CreatedAt = fromNanos(createdAt)
	a.ResolvedAt = fromOptNanos(resolvedAt)
	a.IsResolved = isResolved != 0
	return a, nil
}

func (s *SQLiteStore) GetAlert(ctx context.Context, id int64) (model.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertCols+` FROM alerts WHERE id = ?`, id)
	return scanAlert(row)
}

func (s *SQLiteStore) SaveAlert(ctx context.Context, a model.Alert) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET scope=?, entity_id=?, title=?,
        message=?, type=?, severity=?, created_at=?, resolved_at=?, is_resolved=? WHERE id=?`,
		a.Scope, a.EntityID, a.Title, a.Message, a.Type, a.Severity,
		nanos(a.CreatedAt), optNanos(a.ResolvedAt), boolInt(a.IsResolved), a.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *SQLiteStore) CreateAlert(ctx context.Context, a *model.Alert) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO alerts (scope, entity_id, title, message,
        type, severity, created_at, resolved_at, is_resolved) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.Scope, a.EntityID, a.Title, a.Message, a.Type, a.Severity,
		nanos(a.CreatedAt), optNanos(a.ResolvedAt), boolInt(a.IsResolved))
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) ListOpenAlerts(ctx context.Context) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+alertCols+` FROM alerts WHERE is_resolved = 0 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func optFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func optInt(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

// requireRow maps zero affected rows to ErrNotFound so the engine's error
// taxonomy holds for updates of missing ids.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return corestore.ErrNotFound
	}
	return nil
}
