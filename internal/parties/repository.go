package parties

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

// Store is the persistence surface of one party register.
type Store interface {
	Create(ctx context.Context, p Party) (int64, error)
	Get(ctx context.Context, id int64) (Party, error)
	List(ctx context.Context, filter ListFilter) ([]Party, int, error)
	Update(ctx context.Context, id int64, updates map[string]interface{}) error
}

// Repository provides PostgreSQL persistence for one party register.
type Repository struct {
	conn db.Querier
	role Role
}

// NewRepository constructs a repository for role.
func NewRepository(pool *pgxpool.Pool, role Role) *Repository {
	return &Repository{conn: db.Guard(pool), role: role}
}

const partyColumns = `id, name, phone, email, address, city, district, postal_code, created_at, updated_at`

func (r *Repository) scan(row pgx.Row) (Party, error) {
	p := Party{Role: r.role}
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.Address, &p.City, &p.District, &p.PostalCode,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// Create inserts a party.
func (r *Repository) Create(ctx context.Context, p Party) (int64, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (name, phone, email, address, city, district, postal_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`, r.role.table())
	var id int64
	err := r.conn.QueryRow(ctx, query, p.Name, p.Phone, p.Email, p.Address, p.City, p.District, p.PostalCode).Scan(&id)
	return id, err
}

// Get loads a party.
func (r *Repository) Get(ctx context.Context, id int64) (Party, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, partyColumns, r.role.table())
	p, err := r.scan(r.conn.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Party{}, fmt.Errorf("%s %d: %w", r.role, id, shared.ErrNotFound)
	}
	return p, err
}

// List returns parties matching filter.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Party, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR phone LIKE $%d)", argPos, argPos))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		argPos++
	}
	if filter.City != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(city) = $%d", argPos))
		args = append(args, strings.ToLower(filter.City))
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", r.role.table(), whereClause)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY name, id LIMIT $%d OFFSET $%d`,
		partyColumns, r.role.table(), whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Party
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// Update writes the given columns.
func (r *Repository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	n, err := db.UpdateColumns(ctx, r.conn, r.role.table(), id, updates)
	if err != nil {
		return err
	}
	if n == 0 && len(updates) > 0 {
		return fmt.Errorf("%s %d: %w", r.role, id, shared.ErrNotFound)
	}
	return nil
}
