package zones

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

// nameConstraint keeps zone names unique within a city.
const nameConstraint = "delivery_zones_city_name_key"

// Store is the persistence surface of the zone register.
type Store interface {
	Create(ctx context.Context, z Zone) (int64, error)
	Get(ctx context.Context, id int64) (Zone, error)
	List(ctx context.Context, filter ListFilter) ([]Zone, int, error)
	Update(ctx context.Context, id int64, updates map[string]interface{}) error
}

// Repository provides PostgreSQL persistence for delivery zones.
type Repository struct {
	conn db.Querier
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{conn: db.Guard(pool)}
}

const zoneColumns = `id, name, city, districts, base_rate, per_km_rate, delay_days, active, created_at, updated_at`

func scanZone(row pgx.Row) (Zone, error) {
	var z Zone
	err := row.Scan(&z.ID, &z.Name, &z.City, &z.Districts, &z.BaseRate, &z.PerKmRate, &z.DelayDays, &z.Active,
		&z.CreatedAt, &z.UpdatedAt)
	return z, err
}

// Create inserts a zone.
func (r *Repository) Create(ctx context.Context, z Zone) (int64, error) {
	var id int64
	err := r.conn.QueryRow(ctx, `
		INSERT INTO delivery_zones (name, city, districts, base_rate, per_km_rate, delay_days, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		z.Name, z.City, z.Districts, z.BaseRate, z.PerKmRate, z.DelayDays, z.Active,
	).Scan(&id)
	if db.IsUniqueViolation(err, nameConstraint) {
		return 0, fmt.Errorf("zone %q already exists in %s: %w", z.Name, z.City, shared.ErrConflict)
	}
	return id, err
}

// Get loads a zone.
func (r *Repository) Get(ctx context.Context, id int64) (Zone, error) {
	z, err := scanZone(r.conn.QueryRow(ctx, `SELECT `+zoneColumns+` FROM delivery_zones WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Zone{}, fmt.Errorf("zone %d: %w", id, shared.ErrNotFound)
	}
	return z, err
}

// List returns zones matching filter ordered by city and name.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Zone, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filter.City != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(city) = $%d", argPos))
		args = append(args, strings.ToLower(filter.City))
		argPos++
	}
	if filter.District != "" {
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM unnest(districts) AS d WHERE LOWER(d) = $%d)", argPos))
		args = append(args, strings.ToLower(filter.District))
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
	if err := r.conn.QueryRow(ctx, "SELECT COUNT(*) FROM delivery_zones "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM delivery_zones %s ORDER BY city, name, id LIMIT $%d OFFSET $%d`,
		zoneColumns, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, z)
	}
	return out, total, rows.Err()
}

// Update writes the given columns.
func (r *Repository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	n, err := db.UpdateColumns(ctx, r.conn, "delivery_zones", id, updates)
	if db.IsUniqueViolation(err, nameConstraint) {
		return fmt.Errorf("zone name already used in that city: %w", shared.ErrConflict)
	}
	if err != nil {
		return err
	}
	if n == 0 && len(updates) > 0 {
		return fmt.Errorf("zone %d: %w", id, shared.ErrNotFound)
	}
	return nil
}
