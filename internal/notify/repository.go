package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kid-livraison/parcel/internal/platform/db"
	"github.com/kid-livraison/parcel/internal/shared"
)

// DeliveryStore is the surface the send and redispatch jobs rely on.
type DeliveryStore interface {
	Get(ctx context.Context, id int64) (Notification, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	RecordAttempt(ctx context.Context, id int64, reason string) error
	PendingIDs(ctx context.Context, createdBefore time.Time, limit int) ([]int64, error)
}

// Repository provides PostgreSQL persistence for notifications.
type Repository struct {
	conn db.Querier
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{conn: db.Guard(pool)}
}

// TxRepo writes notification rows on an open transaction, so lifecycle
// writes and their messages commit together.
type TxRepo struct {
	tx pgx.Tx
}

// NewTxRepo wraps tx.
func NewTxRepo(tx pgx.Tx) *TxRepo {
	return &TxRepo{tx: tx}
}

// InsertNotification stores a PENDING row and returns its id.
func (t *TxRepo) InsertNotification(ctx context.Context, n Notification) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO notifications (package_id, kind, channel, recipient, subject, body, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		n.PackageID, n.Kind, n.Channel, n.Recipient, n.Subject, n.Body, StatusPending,
	).Scan(&id)
	return id, err
}

const notificationColumns = `id, package_id, kind, channel, recipient, subject, body, status,
	attempts, last_error, sent_at, created_at, updated_at`

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.PackageID, &n.Kind, &n.Channel, &n.Recipient, &n.Subject, &n.Body,
		&n.Status, &n.Attempts, &n.LastError, &n.SentAt, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

// Get loads a notification.
func (r *Repository) Get(ctx context.Context, id int64) (Notification, error) {
	n, err := scanNotification(r.conn.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, fmt.Errorf("notification %d: %w", id, shared.ErrNotFound)
	}
	return n, err
}

// List returns notifications matching filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Notification, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filter.PackageID != nil {
		conditions = append(conditions, fmt.Sprintf("package_id = $%d", argPos))
		args = append(args, *filter.PackageID)
		argPos++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *filter.Status)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.conn.QueryRow(ctx, "SELECT COUNT(*) FROM notifications "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM notifications %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		notificationColumns, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

// MarkSent records a successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id int64, at time.Time) error {
	_, err := r.conn.Exec(ctx, `
		UPDATE notifications
		SET status = $1, sent_at = $2, attempts = attempts + 1, last_error = NULL, updated_at = NOW()
		WHERE id = $3 AND status = $4`, StatusSent, at, id, StatusPending)
	return err
}

// MarkFailed records a permanent delivery failure.
func (r *Repository) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.conn.Exec(ctx, `
		UPDATE notifications
		SET status = $1, attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`, StatusFailed, reason, id, StatusPending)
	return err
}

// RecordAttempt notes a transient failure; the row stays PENDING.
func (r *Repository) RecordAttempt(ctx context.Context, id int64, reason string) error {
	_, err := r.conn.Exec(ctx, `
		UPDATE notifications
		SET attempts = attempts + 1, last_error = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`, reason, id, StatusPending)
	return err
}

// PendingIDs returns PENDING rows created before the cutoff, oldest first.
func (r *Repository) PendingIDs(ctx context.Context, createdBefore time.Time, limit int) ([]int64, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id FROM notifications
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at, id
		LIMIT $3`, StatusPending, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
