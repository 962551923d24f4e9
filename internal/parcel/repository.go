package parcel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kid-livraison/parcel/internal/billing"
	"github.com/kid-livraison/parcel/internal/notify"
	"github.com/kid-livraison/parcel/internal/platform/db"
	"github.com/kid-livraison/parcel/internal/shared"
)

// TxRepository is the write surface of the registration and lifecycle
// transactions.
type TxRepository interface {
	Mutator
	billing.TxStore
	TrackingNumberExists(ctx context.Context, number string) (bool, error)
	InsertPackage(ctx context.Context, pkg Package) (int64, error)
	GetPackageForUpdate(ctx context.Context, id int64) (Package, error)
	InsertNotification(ctx context.Context, n notify.Notification) (int64, error)
}

// Store is the persistence surface of the service.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Package, error)
	GetByTrackingNumber(ctx context.Context, number string) (Package, error)
	List(ctx context.Context, filter ListFilter) ([]Package, int, error)
	History(ctx context.Context, packageID int64) ([]TrackingEntry, error)
}

// Repository provides PostgreSQL persistence for packages and their history.
type Repository struct {
	pool *pgxpool.Pool
	conn db.Querier
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, conn: db.Guard(pool)}
}

// TxRepo runs package statements on an open transaction. The dispatch
// workflow reuses it to move packages from its own transactions.
type TxRepo struct {
	tx pgx.Tx
}

// NewTxRepo wraps tx.
func NewTxRepo(tx pgx.Tx) *TxRepo {
	return &TxRepo{tx: tx}
}

type txRepo struct {
	*TxRepo
	invoices *billing.TxRepo
	messages *notify.TxRepo
}

func (t txRepo) InvoiceNumberExists(ctx context.Context, number string) (bool, error) {
	return t.invoices.InvoiceNumberExists(ctx, number)
}

func (t txRepo) InsertInvoice(ctx context.Context, inv billing.Invoice) (billing.Invoice, error) {
	return t.invoices.InsertInvoice(ctx, inv)
}

func (t txRepo) InsertNotification(ctx context.Context, n notify.Notification) (int64, error) {
	return t.messages.InsertNotification(ctx, n)
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, txRepo{
			TxRepo:   NewTxRepo(tx),
			invoices: billing.NewTxRepo(tx),
			messages: notify.NewTxRepo(tx),
		})
	})
}

const packageColumns = `id, tracking_number, sender_id, recipient_id, registered_by, weight, length, width, height,
	declared_value, category, status, priority, insured, insured_amount, shipping_fee, description,
	planned_delivery_at, delivered_at, created_at, updated_at`

func scanPackage(row pgx.Row) (Package, error) {
	var p Package
	err := row.Scan(&p.ID, &p.TrackingNumber, &p.SenderID, &p.RecipientID, &p.RegisteredBy, &p.Weight,
		&p.Length, &p.Width, &p.Height, &p.DeclaredValue, &p.Category, &p.Status, &p.Priority, &p.Insured,
		&p.InsuredAmount, &p.ShippingFee, &p.Description, &p.PlannedDeliveryAt, &p.DeliveredAt,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func getPackage(ctx context.Context, q db.Querier, where string, arg any, lock bool) (Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE ` + where
	if lock {
		query += ` FOR UPDATE`
	}
	p, err := scanPackage(q.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Package{}, fmt.Errorf("package %v: %w", arg, shared.ErrNotFound)
	}
	return p, err
}

// Get loads a package.
func (r *Repository) Get(ctx context.Context, id int64) (Package, error) {
	return getPackage(ctx, r.conn, "id = $1", id, false)
}

// GetByTrackingNumber loads a package by its tracking number.
func (r *Repository) GetByTrackingNumber(ctx context.Context, number string) (Package, error) {
	return getPackage(ctx, r.conn, "tracking_number = $1", number, false)
}

// List returns packages matching filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Package, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *filter.Status)
		argPos++
	}
	if filter.Priority != nil {
		conditions = append(conditions, fmt.Sprintf("priority = $%d", argPos))
		args = append(args, *filter.Priority)
		argPos++
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("tracking_number ILIKE $%d", argPos))
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.conn.QueryRow(ctx, "SELECT COUNT(*) FROM packages "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT %s FROM packages %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		packageColumns, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// History returns the tracking entries of a package in the order written.
func (r *Repository) History(ctx context.Context, packageID int64) ([]TrackingEntry, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, package_id, status, description, location, latitude, longitude, actor_id, created_at
		FROM tracking_entries
		WHERE package_id = $1
		ORDER BY created_at, id`, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackingEntry
	for rows.Next() {
		var e TrackingEntry
		if err := rows.Scan(&e.ID, &e.PackageID, &e.Status, &e.Description, &e.Location,
			&e.Latitude, &e.Longitude, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// TrackingNumberExists reports whether number is taken.
func (t *TxRepo) TrackingNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM packages WHERE tracking_number = $1)`, number).Scan(&exists)
	return exists, err
}

// InsertPackage stores a new package and returns its id.
func (t *TxRepo) InsertPackage(ctx context.Context, p Package) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO packages (tracking_number, sender_id, recipient_id, registered_by, weight, length, width,
		                      height, declared_value, category, status, priority, insured, insured_amount,
		                      shipping_fee, description, planned_delivery_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`,
		p.TrackingNumber, p.SenderID, p.RecipientID, p.RegisteredBy, p.Weight, p.Length, p.Width, p.Height,
		p.DeclaredValue, p.Category, p.Status, p.Priority, p.Insured, p.InsuredAmount, p.ShippingFee,
		p.Description, p.PlannedDeliveryAt,
	).Scan(&id)
	return id, err
}

// GetPackageForUpdate locks a package row.
func (t *TxRepo) GetPackageForUpdate(ctx context.Context, id int64) (Package, error) {
	return getPackage(ctx, t.tx, "id = $1", id, true)
}

// UpdatePackage writes the given columns.
func (t *TxRepo) UpdatePackage(ctx context.Context, id int64, updates map[string]interface{}) error {
	if _, ok := updates["tracking_number"]; ok {
		return fmt.Errorf("%w: tracking number is immutable", shared.ErrValidation)
	}
	n, err := db.UpdateColumns(ctx, t.tx, "packages", id, updates)
	if err != nil {
		return err
	}
	if n == 0 && len(updates) > 0 {
		return fmt.Errorf("package %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// InsertTrackingEntry appends a history row. Entries are never updated.
func (t *TxRepo) InsertTrackingEntry(ctx context.Context, e TrackingEntry) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO tracking_entries (package_id, status, description, location, latitude, longitude, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		e.PackageID, e.Status, e.Description, e.Location, e.Latitude, e.Longitude, e.ActorID, e.CreatedAt,
	).Scan(&id)
	return id, err
}
