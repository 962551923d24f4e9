package parcel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/kid-livraison/parcel/internal/billing"
	"github.com/kid-livraison/parcel/internal/notify"
	"github.com/kid-livraison/parcel/internal/numbering"
	"github.com/kid-livraison/parcel/internal/parties"
	"github.com/kid-livraison/parcel/internal/shared"
	"github.com/kid-livraison/parcel/internal/tariff"
)

type memoryState struct {
	packages      map[int64]Package
	entries       []TrackingEntry
	invoices      []billing.Invoice
	notifications []notify.Notification
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		packages:      make(map[int64]Package, len(s.packages)),
		entries:       append([]TrackingEntry(nil), s.entries...),
		invoices:      append([]billing.Invoice(nil), s.invoices...),
		notifications: append([]notify.Notification(nil), s.notifications...),
	}
	for k, v := range s.packages {
		out.packages[k] = v
	}
	return out
}

// memoryRepo keeps committed state and discards a transaction's writes when
// its callback fails.
type memoryRepo struct {
	state  memoryState
	nextID int64
	// collisions makes the next InsertPackage calls fail with a unique
	// violation.
	collisions int
}

type memoryTx struct {
	repo  *memoryRepo
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{packages: make(map[int64]Package)}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	working := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r, state: &working}); err != nil {
		return err
	}
	r.state = working
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Package, error) {
	p, ok := r.state.packages[id]
	if !ok {
		return Package{}, fmt.Errorf("package %d: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

func (r *memoryRepo) GetByTrackingNumber(_ context.Context, number string) (Package, error) {
	for _, p := range r.state.packages {
		if p.TrackingNumber == number {
			return p, nil
		}
	}
	return Package{}, fmt.Errorf("package %s: %w", number, shared.ErrNotFound)
}

func (r *memoryRepo) List(_ context.Context, filter ListFilter) ([]Package, int, error) {
	var out []Package
	for id := int64(1); id <= r.nextID; id++ {
		p, ok := r.state.packages[id]
		if !ok {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(p.TrackingNumber, filter.Search) {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memoryRepo) History(_ context.Context, packageID int64) ([]TrackingEntry, error) {
	var out []TrackingEntry
	for _, e := range r.state.entries {
		if e.PackageID == packageID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryRepo) notificationsFor(packageID int64) []notify.Notification {
	var out []notify.Notification
	for _, n := range r.state.notifications {
		if n.PackageID == packageID {
			out = append(out, n)
		}
	}
	return out
}

func (t *memoryTx) TrackingNumberExists(_ context.Context, number string) (bool, error) {
	for _, p := range t.state.packages {
		if p.TrackingNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertPackage(_ context.Context, p Package) (int64, error) {
	if t.repo.collisions > 0 {
		t.repo.collisions--
		return 0, &pgconn.PgError{Code: "23505", ConstraintName: "packages_tracking_number_key"}
	}
	t.repo.nextID++
	p.ID = t.repo.nextID
	t.state.packages[p.ID] = p
	return p.ID, nil
}

func (t *memoryTx) GetPackageForUpdate(_ context.Context, id int64) (Package, error) {
	p, ok := t.state.packages[id]
	if !ok {
		return Package{}, fmt.Errorf("package %d: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

func (t *memoryTx) UpdatePackage(_ context.Context, id int64, updates map[string]interface{}) error {
	p, ok := t.state.packages[id]
	if !ok {
		return fmt.Errorf("package %d: %w", id, shared.ErrNotFound)
	}
	if v, ok := updates["status"]; ok {
		p.Status = v.(Status)
	}
	if v, ok := updates["delivered_at"]; ok {
		at := v.(time.Time)
		p.DeliveredAt = &at
	}
	if v, ok := updates["shipping_fee"]; ok {
		p.ShippingFee = v.(decimal.Decimal)
	}
	t.state.packages[id] = p
	return nil
}

func (t *memoryTx) InsertTrackingEntry(_ context.Context, e TrackingEntry) (int64, error) {
	e.ID = int64(len(t.state.entries) + 1)
	t.state.entries = append(t.state.entries, e)
	return e.ID, nil
}

func (t *memoryTx) InvoiceNumberExists(_ context.Context, number string) (bool, error) {
	for _, inv := range t.state.invoices {
		if inv.InvoiceNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertInvoice(_ context.Context, inv billing.Invoice) (billing.Invoice, error) {
	inv.ID = int64(len(t.state.invoices) + 1)
	t.state.invoices = append(t.state.invoices, inv)
	return inv, nil
}

func (t *memoryTx) InsertNotification(_ context.Context, n notify.Notification) (int64, error) {
	n.ID = int64(len(t.state.notifications) + 1)
	t.state.notifications = append(t.state.notifications, n)
	return n.ID, nil
}

type directory map[int64]parties.Party

func (d directory) Get(_ context.Context, id int64) (parties.Party, error) {
	p, ok := d[id]
	if !ok {
		return parties.Party{}, fmt.Errorf("party %d: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

type emptyLookup struct{}

func (emptyLookup) Candidates(context.Context, tariff.ServiceClass, decimal.Decimal, time.Time) ([]tariff.Tariff, error) {
	return nil, nil
}

type recordingQueue struct {
	ids []int64
	err error
}

func (q *recordingQueue) EnqueueNotification(_ context.Context, id int64) error {
	q.ids = append(q.ids, id)
	return q.err
}

type fixture struct {
	repo    *memoryRepo
	queue   *recordingQueue
	service *Service
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture() *fixture {
	repo := newMemoryRepo()
	queue := &recordingQueue{}
	logger := discardLogger()
	numbers := numbering.New()
	svc := NewService(Deps{
		Store: repo,
		Senders: directory{1: {ID: 1, Role: parties.RoleSender, Name: "Boutique Adjamé",
			Phone: "+2250101010101", City: "Abidjan"}},
		Recipients: directory{2: {ID: 2, Role: parties.RoleRecipient, Name: "Kouassi Yao",
			Phone: "+2250202020202", City: "Bouaké"}},
		Numbers:  numbers,
		Invoices: billing.NewBuilder(numbers, tariff.NewCalculator(emptyLookup{}, logger)),
		Notifier: notify.NewDispatcher(queue, logger, nil),
		Logger:   logger,
	})
	return &fixture{repo: repo, queue: queue, service: svc}
}

func registerRequest() RegisterRequest {
	return RegisterRequest{
		SenderID:      1,
		RecipientID:   2,
		Weight:        decimal.RequireFromString("2.5"),
		DeclaredValue: decimal.RequireFromString("100000"),
		Category:      CategoryFragile,
		Priority:      tariff.PriorityExpress,
		Insured:       true,
		Description:   "  pagne wax  ",
	}
}
