package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kid-livraison/parcel/internal/fleet"
	"github.com/kid-livraison/parcel/internal/notify"
	"github.com/kid-livraison/parcel/internal/parcel"
	"github.com/kid-livraison/parcel/internal/platform/db"
	"github.com/kid-livraison/parcel/internal/shared"
)

// openAssignmentIndex backs the one-open-assignment-per-package rule.
const openAssignmentIndex = "assignments_one_open_per_package"

// TxRepository is the write surface of an assignment transaction.
type TxRepository interface {
	parcel.Mutator
	GetPackageForUpdate(ctx context.Context, id int64) (parcel.Package, error)
	GetCourierForUpdate(ctx context.Context, id int64) (fleet.Courier, error)
	GetVehicle(ctx context.Context, id int64) (fleet.Vehicle, error)
	SetCourierStatus(ctx context.Context, id int64, status fleet.CourierStatus) error
	RecordCourierDelivery(ctx context.Context, id int64) error
	InsertNotification(ctx context.Context, n notify.Notification) (int64, error)
	HasOpenAssignment(ctx context.Context, packageID int64) (bool, error)
	CountOpenAssignmentsByCourier(ctx context.Context, courierID int64) (int, error)
	InsertAssignment(ctx context.Context, a Assignment) (int64, error)
	GetAssignmentForUpdate(ctx context.Context, id int64) (Assignment, error)
	UpdateAssignment(ctx context.Context, id int64, updates map[string]interface{}) error
}

// Store is the persistence surface of the service.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Assignment, error)
	ListByPackage(ctx context.Context, packageID int64) ([]Assignment, error)
}

// Repository provides PostgreSQL persistence for assignments.
type Repository struct {
	pool *pgxpool.Pool
	conn db.Querier
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, conn: db.Guard(pool)}
}

type txRepo struct {
	*parcel.TxRepo
	tx       pgx.Tx
	fleet    *fleet.TxRepo
	messages *notify.TxRepo
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, txRepo{
			TxRepo:   parcel.NewTxRepo(tx),
			tx:       tx,
			fleet:    fleet.NewTxRepo(tx),
			messages: notify.NewTxRepo(tx),
		})
	})
}

func (t txRepo) GetCourierForUpdate(ctx context.Context, id int64) (fleet.Courier, error) {
	return t.fleet.GetCourierForUpdate(ctx, id)
}

func (t txRepo) GetVehicle(ctx context.Context, id int64) (fleet.Vehicle, error) {
	return t.fleet.GetVehicle(ctx, id)
}

func (t txRepo) SetCourierStatus(ctx context.Context, id int64, status fleet.CourierStatus) error {
	return t.fleet.SetCourierStatus(ctx, id, status)
}

func (t txRepo) RecordCourierDelivery(ctx context.Context, id int64) error {
	return t.fleet.RecordCourierDelivery(ctx, id)
}

func (t txRepo) InsertNotification(ctx context.Context, n notify.Notification) (int64, error) {
	return t.messages.InsertNotification(ctx, n)
}

const assignmentColumns = `id, package_id, courier_id, vehicle_id, assigned_by, status, assigned_at, departed_at,
	arrived_at, distance_km, failure_reason, signature_ref, photo_ref, comment, latitude, longitude,
	created_at, updated_at`

func scanAssignment(row pgx.Row) (Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.PackageID, &a.CourierID, &a.VehicleID, &a.AssignedBy, &a.Status, &a.AssignedAt,
		&a.DepartedAt, &a.ArrivedAt, &a.DistanceKm, &a.FailureReason, &a.SignatureRef, &a.PhotoRef, &a.Comment,
		&a.Latitude, &a.Longitude, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func getAssignment(ctx context.Context, q db.Querier, id int64, lock bool) (Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	a, err := scanAssignment(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Assignment{}, fmt.Errorf("assignment %d: %w", id, shared.ErrNotFound)
	}
	return a, err
}

// Get loads an assignment.
func (r *Repository) Get(ctx context.Context, id int64) (Assignment, error) {
	return getAssignment(ctx, r.conn, id, false)
}

// ListByPackage returns the attempts made for a package, oldest first.
func (r *Repository) ListByPackage(ctx context.Context, packageID int64) ([]Assignment, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+assignmentColumns+`
		FROM assignments WHERE package_id = $1 ORDER BY assigned_at, id`, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t txRepo) HasOpenAssignment(ctx context.Context, packageID int64) (bool, error) {
	var open bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM assignments WHERE package_id = $1 AND status IN ($2, $3))`,
		packageID, StatusAssigned, StatusInProgress).Scan(&open)
	return open, err
}

func (t txRepo) CountOpenAssignmentsByCourier(ctx context.Context, courierID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM assignments WHERE courier_id = $1 AND status IN ($2, $3)`,
		courierID, StatusAssigned, StatusInProgress).Scan(&n)
	return n, err
}

func (t txRepo) InsertAssignment(ctx context.Context, a Assignment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO assignments (package_id, courier_id, vehicle_id, assigned_by, status, assigned_at, distance_km)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		a.PackageID, a.CourierID, a.VehicleID, a.AssignedBy, a.Status, a.AssignedAt, a.DistanceKm,
	).Scan(&id)
	if db.IsUniqueViolation(err, openAssignmentIndex) {
		return 0, fmt.Errorf("package %d already has an open assignment: %w", a.PackageID, shared.ErrConflict)
	}
	return id, err
}

func (t txRepo) GetAssignmentForUpdate(ctx context.Context, id int64) (Assignment, error) {
	return getAssignment(ctx, t.tx, id, true)
}

func (t txRepo) UpdateAssignment(ctx context.Context, id int64, updates map[string]interface{}) error {
	n, err := db.UpdateColumns(ctx, t.tx, "assignments", id, updates)
	if err != nil {
		return err
	}
	if n == 0 && len(updates) > 0 {
		return fmt.Errorf("assignment %d: %w", id, shared.ErrNotFound)
	}
	return nil
}
