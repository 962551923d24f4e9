package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kid-livraison/parcel/internal/platform/db"
	"github.com/kid-livraison/parcel/internal/shared"
)

// Store is the persistence surface the fleet service relies on.
type Store interface {
	CreateCourier(ctx context.Context, c Courier) (int64, error)
	GetCourier(ctx context.Context, id int64) (Courier, error)
	ListCouriers(ctx context.Context, filter CourierFilter) ([]Courier, int, error)
	UpdateCourier(ctx context.Context, id int64, updates map[string]interface{}) error
	CreateVehicle(ctx context.Context, v Vehicle) (int64, error)
	GetVehicle(ctx context.Context, id int64) (Vehicle, error)
	ListVehicles(ctx context.Context, filter VehicleFilter) ([]Vehicle, int, error)
	UpdateVehicle(ctx context.Context, id int64, updates map[string]interface{}) error
}

// Repository provides PostgreSQL persistence for couriers and vehicles.
type Repository struct {
	conn db.Querier
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{conn: db.Guard(pool)}
}

// TxRepo runs fleet statements on an open transaction. The assignment
// workflow embeds it to keep courier state in step with its own writes.
type TxRepo struct {
	tx pgx.Tx
}

// NewTxRepo wraps tx.
func NewTxRepo(tx pgx.Tx) *TxRepo {
	return &TxRepo{tx: tx}
}

const courierColumns = `id, user_id, badge_number, full_name, license_number, license_expiry, work_phone,
	status, average_rating, delivery_count, coverage_area, hired_on, active, created_at, updated_at`

const vehicleColumns = `id, plate_number, vehicle_type, brand, model, year, capacity_kg, volume_m3, status,
	inspection_due, insurance_due, courier_id, created_at, updated_at`

func scanCourier(row pgx.Row) (Courier, error) {
	var c Courier
	err := row.Scan(&c.ID, &c.UserID, &c.BadgeNumber, &c.FullName, &c.LicenseNumber, &c.LicenseExpiry,
		&c.WorkPhone, &c.Status, &c.AverageRating, &c.DeliveryCount, &c.CoverageArea, &c.HiredOn, &c.Active,
		&c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanVehicle(row pgx.Row) (Vehicle, error) {
	var v Vehicle
	err := row.Scan(&v.ID, &v.PlateNumber, &v.Type, &v.Brand, &v.Model, &v.Year, &v.CapacityKg, &v.VolumeM3,
		&v.Status, &v.InspectionDue, &v.InsuranceDue, &v.CourierID, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func getCourier(ctx context.Context, q db.Querier, id int64, lock bool) (Courier, error) {
	query := `SELECT ` + courierColumns + ` FROM couriers WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	c, err := scanCourier(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Courier{}, fmt.Errorf("courier %d: %w", id, shared.ErrNotFound)
	}
	return c, err
}

func getVehicle(ctx context.Context, q db.Querier, id int64, lock bool) (Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	v, err := scanVehicle(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Vehicle{}, fmt.Errorf("vehicle %d: %w", id, shared.ErrNotFound)
	}
	return v, err
}

func update(ctx context.Context, q db.Querier, table, label string, id int64, updates map[string]interface{}) error {
	n, err := db.UpdateColumns(ctx, q, table, id, updates)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return fmt.Errorf("%s %d: %w", label, id, shared.ErrConflict)
		}
		return err
	}
	if n == 0 && len(updates) > 0 {
		return fmt.Errorf("%s %d: %w", label, id, shared.ErrNotFound)
	}
	return nil
}

// CreateCourier inserts a courier.
func (r *Repository) CreateCourier(ctx context.Context, c Courier) (int64, error) {
	var id int64
	err := r.conn.QueryRow(ctx, `
		INSERT INTO couriers (user_id, badge_number, full_name, license_number, license_expiry, work_phone,
		                      status, coverage_area, hired_on, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		c.UserID, c.BadgeNumber, c.FullName, c.LicenseNumber, c.LicenseExpiry, c.WorkPhone,
		c.Status, c.CoverageArea, c.HiredOn, c.Active).Scan(&id)
	if db.IsUniqueViolation(err, "") {
		return 0, fmt.Errorf("courier badge or user already registered: %w", shared.ErrConflict)
	}
	return id, err
}

// GetCourier loads a courier.
func (r *Repository) GetCourier(ctx context.Context, id int64) (Courier, error) {
	return getCourier(ctx, r.conn, id, false)
}

// ListCouriers returns couriers matching filter.
func (r *Repository) ListCouriers(ctx context.Context, filter CourierFilter) ([]Courier, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *filter.Status)
		argPos++
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "active")
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.conn.QueryRow(ctx, "SELECT COUNT(*) FROM couriers "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT %s FROM couriers %s ORDER BY badge_number LIMIT $%d OFFSET $%d`,
		courierColumns, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Courier
	for rows.Next() {
		c, err := scanCourier(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// UpdateCourier writes the given courier columns.
func (r *Repository) UpdateCourier(ctx context.Context, id int64, updates map[string]interface{}) error {
	return update(ctx, r.conn, "couriers", "courier", id, updates)
}

// CreateVehicle inserts a vehicle.
func (r *Repository) CreateVehicle(ctx context.Context, v Vehicle) (int64, error) {
	var id int64
	err := r.conn.QueryRow(ctx, `
		INSERT INTO vehicles (plate_number, vehicle_type, brand, model, year, capacity_kg, volume_m3, status,
		                      inspection_due, insurance_due)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		v.PlateNumber, v.Type, v.Brand, v.Model, v.Year, v.CapacityKg, v.VolumeM3, v.Status,
		v.InspectionDue, v.InsuranceDue).Scan(&id)
	if db.IsUniqueViolation(err, "") {
		return 0, fmt.Errorf("plate number %s already registered: %w", v.PlateNumber, shared.ErrConflict)
	}
	return id, err
}

// GetVehicle loads a vehicle.
func (r *Repository) GetVehicle(ctx context.Context, id int64) (Vehicle, error) {
	return getVehicle(ctx, r.conn, id, false)
}

// ListVehicles returns vehicles matching filter.
func (r *Repository) ListVehicles(ctx context.Context, filter VehicleFilter) ([]Vehicle, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *filter.Status)
		argPos++
	}
	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("vehicle_type = $%d", argPos))
		args = append(args, *filter.Type)
		argPos++
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.conn.QueryRow(ctx, "SELECT COUNT(*) FROM vehicles "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT %s FROM vehicles %s ORDER BY plate_number LIMIT $%d OFFSET $%d`,
		vehicleColumns, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

// UpdateVehicle writes the given vehicle columns.
func (r *Repository) UpdateVehicle(ctx context.Context, id int64, updates map[string]interface{}) error {
	return update(ctx, r.conn, "vehicles", "vehicle", id, updates)
}

// GetCourierForUpdate locks a courier row.
func (t *TxRepo) GetCourierForUpdate(ctx context.Context, id int64) (Courier, error) {
	return getCourier(ctx, t.tx, id, true)
}

// GetVehicle loads a vehicle inside the transaction.
func (t *TxRepo) GetVehicle(ctx context.Context, id int64) (Vehicle, error) {
	return getVehicle(ctx, t.tx, id, false)
}

// SetCourierStatus changes a courier's availability.
func (t *TxRepo) SetCourierStatus(ctx context.Context, id int64, status CourierStatus) error {
	return update(ctx, t.tx, "couriers", "courier", id, map[string]interface{}{"status": status})
}

// RecordCourierDelivery counts a completed delivery.
func (t *TxRepo) RecordCourierDelivery(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE couriers
		SET delivery_count = delivery_count + 1, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("courier %d: %w", id, shared.ErrNotFound)
	}
	return nil
}
