package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kid-livraison/parcel/internal/platform/db"
	"github.com/kid-livraison/parcel/internal/shared"
)

// ErrImmutableColumn is returned when an update targets a column fixed at issuance.
var ErrImmutableColumn = errors.New("invoice column is immutable")

// mutableColumns are the only invoice columns writable after insert.
var mutableColumns = map[string]bool{
	"status":         true,
	"amount_paid":    true,
	"payment_method": true,
	"paid_at":        true,
	"cancelled_at":   true,
	"cancel_reason":  true,
}

// mutableFields returns the sorted update keys, rejecting any amount column.
func mutableFields(updates map[string]interface{}) ([]string, error) {
	fields := make([]string, 0, len(updates))
	for field := range updates {
		if !mutableColumns[field] {
			return nil, fmt.Errorf("%w: %s", ErrImmutableColumn, field)
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields, nil
}

// TxRepository exposes transactional invoice operations.
type TxRepository interface {
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	UpdateInvoice(ctx context.Context, id int64, updates map[string]interface{}) error
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	ClaimPaymentKey(ctx context.Context, invoiceID int64, key string) error
}

// Store is the persistence surface the service relies on.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Invoice, error)
	GetByPackage(ctx context.Context, packageID int64) (Invoice, error)
	List(ctx context.Context, filter ListFilter) ([]Invoice, int, error)
}

// Repository provides PostgreSQL persistence for invoices.
type Repository struct {
	pool *pgxpool.Pool
	conn db.Querier
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, conn: db.Guard(pool)}
}

// TxRepo runs invoice statements on an open transaction. Other packages embed
// it to issue invoices inside their own transactions.
type TxRepo struct {
	tx pgx.Tx
}

// NewTxRepo wraps tx.
func NewTxRepo(tx pgx.Tx) *TxRepo {
	return &TxRepo{tx: tx}
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepo(tx))
	})
}

const invoiceColumns = `id, invoice_number, package_id, base_amount, distance_surcharge, weight_surcharge,
	insurance_surcharge, express_surcharge, total_amount, amount_paid, status, payment_method,
	tariff_id, price_source, issued_at, paid_at, cancelled_at, cancel_reason, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.PackageID, &inv.Base, &inv.DistanceSurcharge,
		&inv.WeightSurcharge, &inv.InsuranceSurcharge, &inv.ExpressSurcharge, &inv.Total, &inv.AmountPaid,
		&inv.Status, &inv.PaymentMethod, &inv.TariffID, &inv.PriceSource, &inv.IssuedAt, &inv.PaidAt,
		&inv.CancelledAt, &inv.CancelReason, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

func getInvoice(ctx context.Context, q db.Querier, where string, arg any) (Invoice, error) {
	inv, err := scanInvoice(q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("invoice: %w", shared.ErrNotFound)
	}
	return inv, err
}

// Get loads an invoice with its payments.
func (r *Repository) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := getInvoice(ctx, r.conn, "id = $1", id)
	if err != nil {
		return Invoice{}, err
	}
	inv.Payments, err = r.payments(ctx, id)
	return inv, err
}

// GetByPackage loads the invoice issued for a package.
func (r *Repository) GetByPackage(ctx context.Context, packageID int64) (Invoice, error) {
	inv, err := getInvoice(ctx, r.conn, "package_id = $1", packageID)
	if err != nil {
		return Invoice{}, err
	}
	inv.Payments, err = r.payments(ctx, inv.ID)
	return inv, err
}

func (r *Repository) payments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, invoice_id, amount, method, reference, recorded_by, created_at
		FROM invoice_payments WHERE invoice_id = $1 ORDER BY created_at, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference, &p.RecordedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// List returns invoices matching filter and the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *filter.Status)
		argPos++
	}
	if filter.PackageID != nil {
		conditions = append(conditions, fmt.Sprintf("package_id = $%d", argPos))
		args = append(args, *filter.PackageID)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.conn.QueryRow(ctx, "SELECT COUNT(*) FROM invoices "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM invoices %s ORDER BY issued_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

// InvoiceNumberExists reports whether number is already issued.
func (t *TxRepo) InvoiceNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE invoice_number = $1)`, number).Scan(&exists)
	return exists, err
}

// InsertInvoice stores a newly issued invoice.
func (t *TxRepo) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	query := `
		INSERT INTO invoices (
			invoice_number, package_id, base_amount, distance_surcharge, weight_surcharge,
			insurance_surcharge, express_surcharge, total_amount, amount_paid, status,
			tariff_id, price_source, issued_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`
	err := t.tx.QueryRow(ctx, query,
		inv.InvoiceNumber, inv.PackageID, inv.Base, inv.DistanceSurcharge, inv.WeightSurcharge,
		inv.InsuranceSurcharge, inv.ExpressSurcharge, inv.Total, inv.AmountPaid, inv.Status,
		inv.TariffID, inv.PriceSource, inv.IssuedAt,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

// GetInvoiceForUpdate locks an invoice row for the rest of the transaction.
func (t *TxRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
	}
	return inv, err
}

// UpdateInvoice writes settlement columns. Amount columns are rejected.
func (t *TxRepo) UpdateInvoice(ctx context.Context, id int64, updates map[string]interface{}) error {
	if _, err := mutableFields(updates); err != nil {
		return err
	}
	n, err := db.UpdateColumns(ctx, t.tx, "invoices", id, updates)
	if err != nil {
		return err
	}
	if n == 0 && len(updates) > 0 {
		return fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// InsertPayment records a payment row.
func (t *TxRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO invoice_payments (invoice_id, amount, method, reference, recorded_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, p.InvoiceID, p.Amount, p.Method, p.Reference, p.RecordedBy).Scan(&id)
	return id, err
}

// ClaimPaymentKey reserves an Idempotency-Key for a payment on invoiceID.
func (t *TxRepo) ClaimPaymentKey(ctx context.Context, invoiceID int64, key string) error {
	return shared.ClaimIdempotencyKey(ctx, t.tx, paymentScope(invoiceID), key)
}

func paymentScope(invoiceID int64) string {
	return fmt.Sprintf("invoice:%d:payment", invoiceID)
}
