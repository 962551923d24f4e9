package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kid-livraison/parcel/internal/shared"
)

const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// Classify maps a datastore error onto the domain taxonomy. Domain errors,
// pgx.ErrNoRows and cancellations pass through unchanged. Integrity
// violations, serialization failures and deadlocks become shared.ErrConflict.
// Everything else is a shared.ErrDependency. The driver error stays in the
// chain, so IsUniqueViolation keeps working on the result.
func Classify(err error) error {
	if err == nil || errors.Is(err, pgx.ErrNoRows) || errors.Is(err, context.Canceled) || isDomain(err) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == serializationFailure, pgErr.Code == deadlockDetected:
			return fmt.Errorf("%w: concurrent update, retry the request: %w", shared.ErrConflict, err)
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "23":
			return fmt.Errorf("%w: %w", shared.ErrConflict, err)
		}
	}
	return fmt.Errorf("%w: %w", shared.ErrDependency, err)
}

func isDomain(err error) bool {
	for _, target := range []error{
		shared.ErrValidation, shared.ErrNotFound, shared.ErrInvalidState,
		shared.ErrCodeMismatch, shared.ErrConflict, shared.ErrDependency,
		shared.ErrDuplicateRequest,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Guard wraps q so every error it reports goes through Classify.
func Guard(q Querier) Querier {
	return guarded{q: q}
}

type guarded struct {
	q Querier
}

func (g guarded) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tag, err := g.q.Exec(ctx, sql, args...)
	return tag, Classify(err)
}

func (g guarded) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := g.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return guardedRows{Rows: rows}, nil
}

func (g guarded) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return guardedRow{row: g.q.QueryRow(ctx, sql, args...)}
}

type guardedRow struct {
	row pgx.Row
}

func (r guardedRow) Scan(dest ...any) error {
	return Classify(r.row.Scan(dest...))
}

type guardedRows struct {
	pgx.Rows
}

func (r guardedRows) Scan(dest ...any) error {
	return Classify(r.Rows.Scan(dest...))
}

func (r guardedRows) Err() error {
	return Classify(r.Rows.Err())
}
