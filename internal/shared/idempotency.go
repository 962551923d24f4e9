package shared

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// IdempotencyHeader carries a client-chosen key that makes a POST safe to retry.
const IdempotencyHeader = "Idempotency-Key"

// ErrDuplicateRequest reports a key that an earlier request already claimed.
var ErrDuplicateRequest = errors.New("idempotent request already processed")

// Execer runs a statement. pgx.Tx and *pgxpool.Pool satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ClaimIdempotencyKey records key under scope. Run it on the transaction
// doing the work so the claim and the effect commit or roll back together.
func ClaimIdempotencyKey(ctx context.Context, q Execer, scope, key string) error {
	if key == "" {
		return fmt.Errorf("%w: idempotency key required", ErrValidation)
	}
	if scope == "" {
		return errors.New("idempotency scope required")
	}
	_, err := q.Exec(ctx, `INSERT INTO idempotency_keys (scope, key) VALUES ($1, $2)`, scope, key)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateRequest
	}
	return err
}
