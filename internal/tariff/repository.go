package tariff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kid-livraison/parcel/internal/platform/db"
	"github.com/kid-livraison/parcel/internal/shared"
)

// Store is the persistence surface the admin service relies on.
type Store interface {
	Lookup
	Create(ctx context.Context, t Tariff) (int64, error)
	Get(ctx context.Context, id int64) (Tariff, error)
	List(ctx context.Context, filter ListFilter) ([]Tariff, int, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// Repository provides PostgreSQL persistence for tariff rows.
type Repository struct {
	conn db.Querier
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{conn: db.Guard(pool)}
}

const tariffColumns = `id, weight_min, weight_max, distance_min, distance_max, price,
	service_class, active, valid_from, valid_to, created_at, updated_at`

func scanTariff(row pgx.Row) (Tariff, error) {
	var t Tariff
	err := row.Scan(&t.ID, &t.WeightMin, &t.WeightMax, &t.DistanceMin, &t.DistanceMax, &t.Price,
		&t.ServiceClass, &t.Active, &t.ValidFrom, &t.ValidTo, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// Candidates returns active rows valid today covering weight for class,
// already in selection order.
func (r *Repository) Candidates(ctx context.Context, class ServiceClass, weight decimal.Decimal, today time.Time) ([]Tariff, error) {
	query := `SELECT ` + tariffColumns + `
		FROM tariffs
		WHERE active AND service_class = $1
		  AND weight_min <= $2 AND weight_max >= $2
		  AND valid_from <= $3 AND (valid_to IS NULL OR valid_to >= $3)
		ORDER BY (weight_max - weight_min) ASC, valid_from DESC, id ASC`
	rows, err := r.conn.Query(ctx, query, class, weight, dateOnly(today))
	if err != nil {
		return nil, fmt.Errorf("tariff candidates: %w", err)
	}
	defer rows.Close()

	var out []Tariff
	for rows.Next() {
		t, err := scanTariff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Create inserts a tariff row.
func (r *Repository) Create(ctx context.Context, t Tariff) (int64, error) {
	query := `
		INSERT INTO tariffs (weight_min, weight_max, distance_min, distance_max, price,
		                     service_class, active, valid_from, valid_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	var id int64
	err := r.conn.QueryRow(ctx, query, t.WeightMin, t.WeightMax, t.DistanceMin, t.DistanceMax, t.Price,
		t.ServiceClass, t.Active, t.ValidFrom, t.ValidTo).Scan(&id)
	return id, err
}

// Get loads a tariff row by id.
func (r *Repository) Get(ctx context.Context, id int64) (Tariff, error) {
	t, err := scanTariff(r.conn.QueryRow(ctx, `SELECT `+tariffColumns+` FROM tariffs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Tariff{}, fmt.Errorf("tariff %d: %w", id, shared.ErrNotFound)
	}
	return t, err
}

// List returns tariff rows matching filter and the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Tariff, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filter.ServiceClass != nil {
		conditions = append(conditions, fmt.Sprintf("service_class = $%d", argPos))
		args = append(args, *filter.ServiceClass)
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
	if err := r.conn.QueryRow(ctx, "SELECT COUNT(*) FROM tariffs "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM tariffs %s
		ORDER BY service_class, weight_min, id
		LIMIT $%d OFFSET $%d`, tariffColumns, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Tariff
	for rows.Next() {
		t, err := scanTariff(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// SetActive toggles whether a row is eligible for pricing.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.conn.Exec(ctx, `UPDATE tariffs SET active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tariff %d: %w", id, shared.ErrNotFound)
	}
	return nil
}
