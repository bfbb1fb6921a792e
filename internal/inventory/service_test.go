package inventory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motoparts/motoparts/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	parts     map[int64]Part
	history   []PriceHistoryEntry
	nextID    int64
	nextHist  int64
	clock     time.Time
	deleteErr error
}

type memoryTx struct {
	repo    *memoryRepo
	parts   map[int64]Part
	history []PriceHistoryEntry
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{parts: make(map[int64]Part), clock: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
}

func (r *memoryRepo) seed(name string, price string, stock int64) Part {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p := Part{ID: r.nextID, Name: name, Price: decimal.RequireFromString(price), Description: name, Stock: stock, Image: "img.png"}
	r.parts[p.ID] = p
	return p
}

// WithTx works on copies and publishes them only when fn succeeds.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, parts: make(map[int64]Part, len(r.parts))}
	for id, p := range r.parts {
		tx.parts[id] = p
	}
	tx.history = append(tx.history, r.history...)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.parts = tx.parts
	r.history = tx.history
	return nil
}

func (r *memoryRepo) GetPart(ctx context.Context, id int64) (Part, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.parts[id]
	if !ok {
		return Part{}, ErrPartNotFound
	}
	return p, nil
}

func (r *memoryRepo) ListParts(ctx context.Context) ([]Part, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	parts := make([]Part, 0, len(r.parts))
	for _, p := range r.parts {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].ID < parts[j].ID })
	return parts, nil
}

func (r *memoryRepo) ListCategories(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, p := range r.parts {
		if p.Category != nil && *p.Category != "" && !seen[*p.Category] {
			seen[*p.Category] = true
			out = append(out, *p.Category)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memoryRepo) ListPriceHistory(ctx context.Context, partID int64) ([]PriceHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []PriceHistoryEntry{}
	for _, e := range r.history {
		if e.PartID == partID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChangeDate.Equal(out[j].ChangeDate) {
			return out[i].ID > out[j].ID
		}
		return out[i].ChangeDate.After(out[j].ChangeDate)
	})
	return out, nil
}

func (r *memoryRepo) ListLowStock(ctx context.Context, threshold int64) ([]Part, error) {
	parts, _ := r.ListParts(ctx)
	out := []Part{}
	for _, p := range parts {
		if p.Stock <= threshold {
			out = append(out, p)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetPartForUpdate(ctx context.Context, id int64) (Part, error) {
	p, ok := tx.parts[id]
	if !ok {
		return Part{}, ErrPartNotFound
	}
	return p, nil
}

func (tx *memoryTx) InsertPart(ctx context.Context, input PartInput) (int64, error) {
	tx.repo.nextID++
	p := Part{ID: tx.repo.nextID, Name: input.Name, Price: input.Price, Description: input.Description, Stock: input.Stock, Image: input.Image}
	if input.Category != "" {
		category := input.Category
		p.Category = &category
	}
	tx.parts[p.ID] = p
	return p.ID, nil
}

func (tx *memoryTx) UpdatePart(ctx context.Context, id int64, update PartUpdate) error {
	p, ok := tx.parts[id]
	if !ok {
		return ErrPartNotFound
	}
	p.Name, p.Price, p.Description = update.Name, update.Price, update.Description
	if update.Category != "" {
		category := update.Category
		p.Category = &category
	}
	if update.Image != nil {
		p.Image = *update.Image
	}
	tx.parts[id] = p
	return nil
}

func (tx *memoryTx) SetStock(ctx context.Context, id, stock int64) error {
	p, ok := tx.parts[id]
	if !ok {
		return ErrPartNotFound
	}
	p.Stock = stock
	tx.parts[id] = p
	return nil
}

func (tx *memoryTx) SetPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	p, ok := tx.parts[id]
	if !ok {
		return ErrPartNotFound
	}
	p.Price = price
	tx.parts[id] = p
	return nil
}

func (tx *memoryTx) InsertPriceHistory(ctx context.Context, partID int64, oldPrice, newPrice decimal.Decimal) (PriceHistoryEntry, error) {
	tx.repo.nextHist++
	tx.repo.clock = tx.repo.clock.Add(time.Minute)
	e := PriceHistoryEntry{ID: tx.repo.nextHist, PartID: partID, OldPrice: oldPrice, NewPrice: newPrice, ChangeDate: tx.repo.clock}
	tx.history = append(tx.history, e)
	return e, nil
}

func (tx *memoryTx) DeletePriceHistory(ctx context.Context, partID int64) (int64, error) {
	kept := tx.history[:0:0]
	var n int64
	for _, e := range tx.history {
		if e.PartID == partID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	tx.history = kept
	return n, nil
}

func (tx *memoryTx) DeletePart(ctx context.Context, id int64) (int64, error) {
	if tx.repo.deleteErr != nil {
		return 0, tx.repo.deleteErr
	}
	if _, ok := tx.parts[id]; !ok {
		return 0, nil
	}
	delete(tx.parts, id)
	return 1, nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type recordedEvent struct {
	Type        string
	AggregateID int64
	Data        any
}

type recordingEvents struct {
	events []recordedEvent
	err    error
}

func (e *recordingEvents) Emit(ctx context.Context, eventType string, aggregateID int64, data any) error {
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, recordedEvent{Type: eventType, AggregateID: aggregateID, Data: data})
	return nil
}

func newTestService(repo *memoryRepo) (*Service, *recordingAudit, *recordingEvents) {
	audit := &recordingAudit{}
	events := &recordingEvents{}
	return NewService(repo, audit, events, nil, nil), audit, events
}

func TestAdjustStockIncreaseAndDecrease(t *testing.T) {
	repo := newMemoryRepo()
	part := repo.seed("Brake Pad", "1200", 10)
	svc, audit, events := newTestService(repo)
	ctx := context.Background()

	adj, err := svc.AdjustStock(ctx, part.ID, 5, StockIncrease)
	require.NoError(t, err)
	require.Equal(t, int64(15), adj.NewStock)

	adj, err = svc.AdjustStock(ctx, part.ID, 3, StockDecrease)
	require.NoError(t, err)
	require.Equal(t, int64(12), adj.NewStock)
	require.Equal(t, int64(15), adj.PreviousStock)

	stored, _ := repo.GetPart(ctx, part.ID)
	require.Equal(t, int64(12), stored.Stock)
	require.Len(t, audit.logs, 2)
	require.Len(t, events.events, 2)
	require.Equal(t, EventStockAdjusted, events.events[1].Type)
}

func TestAdjustStockClampsAtZero(t *testing.T) {
	repo := newMemoryRepo()
	part := repo.seed("Chain", "300", 2)
	svc, _, _ := newTestService(repo)

	adj, err := svc.AdjustStock(context.Background(), part.ID, 5, StockDecrease)
	require.NoError(t, err)
	require.Equal(t, int64(0), adj.NewStock)
	require.True(t, adj.Clamped())
}

func TestAdjustStockRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		original int64
		amount   int64
		want     int64
	}{
		{"within stock", 7, 4, 7},
		{"exact stock", 7, 7, 7},
		{"past zero", 3, 10, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemoryRepo()
			part := repo.seed("Spark Plug", "45.50", tc.original)
			svc, _, _ := newTestService(repo)
			ctx := context.Background()

			_, err := svc.AdjustStock(ctx, part.ID, tc.amount, StockDecrease)
			require.NoError(t, err)
			adj, err := svc.AdjustStock(ctx, part.ID, tc.amount, StockIncrease)
			require.NoError(t, err)
			require.Equal(t, min(tc.original, tc.amount), adj.NewStock)
			require.Equal(t, tc.want, adj.NewStock)
		})
	}
}

func TestAdjustStockLeavesPriceHistoryAlone(t *testing.T) {
	repo := newMemoryRepo()
	part := repo.seed("Filter", "80", 3)
	svc, _, _ := newTestService(repo)

	_, err := svc.AdjustStock(context.Background(), part.ID, 1, StockIncrease)
	require.NoError(t, err)
	require.Empty(t, repo.history)
}

func TestAdjustStockValidation(t *testing.T) {
	repo := newMemoryRepo()
	part := repo.seed("Mirror", "150", 1)
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	cases := []struct {
		name   string
		id     int64
		amount int64
		op     StockOperation
		want   error
	}{
		{"zero amount", part.ID, 0, StockIncrease, ErrInvalidAmount},
		{"negative amount", part.ID, -3, StockIncrease, ErrInvalidAmount},
		{"bad operation", part.ID, 1, StockOperation("multiply"), ErrInvalidOperation},
		{"bad id", 0, 1, StockIncrease, ErrInvalidPartID},
		{"missing part", 999, 1, StockIncrease, ErrPartNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AdjustStock(ctx, tc.id, tc.amount, tc.op)
			require.ErrorIs(t, err, tc.want)
		})
	}
	stored, _ := repo.GetPart(ctx, part.ID)
	require.Equal(t, int64(1), stored.Stock)
}

func TestAdjustStockLargeAmount(t *testing.T) {
	repo := newMemoryRepo()
	part := repo.seed("Tyre", "900", 5)
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	adj, err := svc.AdjustStock(ctx, part.ID, 1000000, StockDecrease)
	require.NoError(t, err)
	require.Equal(t, int64(0), adj.NewStock)
	require.True(t, adj.Clamped())

	adj, err = svc.AdjustStock(ctx, part.ID, 1000000, StockIncrease)
	require.NoError(t, err)
	require.Equal(t, int64(1000000), adj.NewStock)
}

func TestAdjustStockRejectsOverflow(t *testing.T) {
	repo := newMemoryRepo()
	part := repo.seed("Tyre", "900", 10)
	svc, _, events := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AdjustStock(ctx, part.ID, math.MaxInt64, StockIncrease)
	require.ErrorIs(t, err, ErrStockOverflow)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
	require.Empty(t, events.events)

	stored, err := repo.GetPart(ctx, part.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), stored.Stock)

	adj, err := svc.AdjustStock(ctx, part.ID, math.MaxInt64-10, StockIncrease)
	require.NoError(t, err)
	require.Equal(t, int64(math.MaxInt64), adj.NewStock)
}

func TestApplyStockChange(t *testing.T) {
	next, err := ApplyStockChange(5, 3, StockIncrease)
	require.NoError(t, err)
	require.Equal(t, int64(8), next)

	next, err = ApplyStockChange(5, 9, StockDecrease)
	require.NoError(t, err)
	require.Equal(t, int64(0), next)

	_, err = ApplyStockChange(1, math.MaxInt64, StockIncrease)
	require.ErrorIs(t, err, ErrStockOverflow)
}

func TestUpdatePriceWritesOneHistoryEntry(t *testing.T) {
	repo := newMemoryRepo()
	part := repo.seed("Helmet", "1500", 4)
	svc, _, events := newTestService(repo)
	ctx := context.Background()

	entry, err := svc.UpdatePrice(ctx, part.ID, decimal.RequireFromString("1750.25"))
	require.NoError(t, err)
	require.True(t, entry.OldPrice.Equal(decimal.RequireFromString("1500")))
	require.True(t, entry.NewPrice.Equal(decimal.RequireFromString("1750.25")))

	history, err := svc.ListPriceHistory(ctx, part.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	stored, _ := repo.GetPart(ctx, part.ID)
	require.True(t, stored.Price.Equal(decimal.RequireFromString("1750.25")))
	require.Equal(t, EventPriceChanged, events.events[0].Type)
}

func TestUpdatePriceHistoryNewestFirst(t *testing.T) {
	repo := newMemoryRepo()
	part := repo.seed("Mirror", "100", 4)
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	for _, p := range []string{"110", "120", "130"} {
		_, err := svc.UpdatePrice(ctx, part.ID, decimal.RequireFromString(p))
		require.NoError(t, err)
	}
	history, err := svc.ListPriceHistory(ctx, part.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, "130", history[0].NewPrice.String())
	require.Equal(t, "120", history[0].OldPrice.String())
	require.Equal(t, "110", history[2].NewPrice.String())

	again, err := svc.ListPriceHistory(ctx, part.ID)
	require.NoError(t, err)
	require.Equal(t, history, again)
}

func TestUpdatePriceRejectsNonPositive(t *testing.T) {
	repo := newMemoryRepo()
	part := repo.seed("Seat", "500", 1)
	svc, _, _ := newTestService(repo)

	_, err := svc.UpdatePrice(context.Background(), part.ID, decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidPrice)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
	_, err = svc.UpdatePrice(context.Background(), 404, decimal.NewFromInt(5))
	require.ErrorIs(t, err, ErrPartNotFound)
	require.Empty(t, repo.history)
}

func TestPriceMustFitMoneyColumn(t *testing.T) {
	repo := newMemoryRepo()
	part := repo.seed("Seat", "500", 1)
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	for _, raw := range []string{"0.001", "19.999", "10000000000", "123456789012.5"} {
		price := decimal.RequireFromString(raw)
		_, err := svc.UpdatePrice(ctx, part.ID, price)
		require.ErrorIs(t, err, ErrInvalidPrice, raw)
		_, err = svc.CreatePart(ctx, PartInput{Name: "n", Price: price, Description: "d", Image: "i"})
		require.ErrorIs(t, err, ErrInvalidPrice, raw)
		err = svc.UpdatePart(ctx, part.ID, PartUpdate{Name: "Seat", Price: price, Description: "d"})
		require.ErrorIs(t, err, ErrInvalidPrice, raw)
	}
	require.Empty(t, repo.history)

	_, err := svc.UpdatePrice(ctx, part.ID, decimal.RequireFromString("9999999999.99"))
	require.NoError(t, err)
}

func TestListPriceHistoryUnknownPartIsEmpty(t *testing.T) {
	svc, _, _ := newTestService(newMemoryRepo())
	history, err := svc.ListPriceHistory(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, history)
	require.Empty(t, history)
}

func TestDeletePartRemovesHistory(t *testing.T) {
	repo := newMemoryRepo()
	part := repo.seed("Clutch", "600", 2)
	other := repo.seed("Cable", "50", 2)
	svc, audit, _ := newTestService(repo)
	ctx := context.Background()

	for _, p := range []string{"610", "620", "630"} {
		_, err := svc.UpdatePrice(ctx, part.ID, decimal.RequireFromString(p))
		require.NoError(t, err)
	}
	_, err := svc.UpdatePrice(ctx, other.ID, decimal.RequireFromString("55"))
	require.NoError(t, err)

	res, err := svc.DeletePart(ctx, part.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.AffectedRows)
	require.Equal(t, int64(3), res.HistoryDeleted)

	_, err = repo.GetPart(ctx, part.ID)
	require.ErrorIs(t, err, ErrPartNotFound)
	history, _ := svc.ListPriceHistory(ctx, other.ID)
	require.Len(t, history, 1)
	require.Equal(t, "part_deleted", audit.logs[len(audit.logs)-1].Action)
}

func TestDeletePartMissing(t *testing.T) {
	svc, audit, _ := newTestService(newMemoryRepo())
	_, err := svc.DeletePart(context.Background(), 77)
	require.ErrorIs(t, err, ErrPartNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, audit.logs)
}

func TestDeletePartReferencedRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	part := repo.seed("Battery", "700", 1)
	svc, _, _ := newTestService(repo)
	ctx := context.Background()
	_, err := svc.UpdatePrice(ctx, part.ID, decimal.RequireFromString("720"))
	require.NoError(t, err)

	repo.deleteErr = &pgconn.PgError{Code: "23503", Message: "update or delete on table \"parts\" violates foreign key constraint", Detail: "Key (id)=(1) is still referenced from table \"warranty_claims\"."}
	_, err = svc.DeletePart(ctx, part.ID)

	var refErr *ReferencedError
	require.True(t, errors.As(err, &refErr))
	require.Equal(t, "ER_ROW_IS_REFERENCED", refErr.Code())
	require.Contains(t, err.Error(), "warranty_claims")
	require.ErrorIs(t, err, shared.ErrReferenced)

	history, _ := svc.ListPriceHistory(ctx, part.ID)
	require.Len(t, history, 1)
	_, err = repo.GetPart(ctx, part.ID)
	require.NoError(t, err)
}

func TestCreateAndUpdatePart(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, events := newTestService(repo)
	ctx := context.Background()

	id, err := svc.CreatePart(ctx, PartInput{Name: " Oil Filter ", Price: decimal.RequireFromString("85"), Description: "OEM", Stock: 12, Image: "oil.png", Category: "  engine   parts "})
	require.NoError(t, err)
	part, err := svc.GetPart(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Oil Filter", part.Name)
	require.Equal(t, "Engine Parts", *part.Category)

	err = svc.UpdatePart(ctx, id, PartUpdate{Name: "Oil Filter", Price: decimal.RequireFromString("85"), Description: "OEM v2", Category: "engine parts"})
	require.NoError(t, err)
	history, _ := svc.ListPriceHistory(ctx, id)
	require.Empty(t, history)

	err = svc.UpdatePart(ctx, id, PartUpdate{Name: "Oil Filter", Price: decimal.RequireFromString("90"), Description: "OEM v2"})
	require.NoError(t, err)
	history, _ = svc.ListPriceHistory(ctx, id)
	require.Len(t, history, 1)
	require.Equal(t, "85", history[0].OldPrice.String())

	types := make([]string, 0, len(events.events))
	for _, e := range events.events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{EventPartCreated, EventPartUpdated, EventPartUpdated, EventPriceChanged}, types)
}

func TestCreatePartValidation(t *testing.T) {
	svc, _, _ := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreatePart(ctx, PartInput{Name: "", Price: decimal.NewFromInt(1), Description: "d", Image: "i"})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
	_, err = svc.CreatePart(ctx, PartInput{Name: "n", Price: decimal.NewFromInt(-1), Description: "d", Image: "i"})
	require.ErrorIs(t, err, ErrInvalidPrice)
	_, err = svc.CreatePart(ctx, PartInput{Name: "n", Price: decimal.NewFromInt(1), Description: "d", Image: "i", Stock: -1})
	require.ErrorIs(t, err, ErrInvalidStock)
}

func TestUpdatePartMissing(t *testing.T) {
	svc, _, _ := newTestService(newMemoryRepo())
	err := svc.UpdatePart(context.Background(), 3, PartUpdate{Name: "n", Price: decimal.NewFromInt(1), Description: "d"})
	require.ErrorIs(t, err, ErrPartNotFound)
}

func TestAddCategoryNormalises(t *testing.T) {
	svc, _, _ := newTestService(newMemoryRepo())
	name, err := svc.AddCategory("  brake   SYSTEM ")
	require.NoError(t, err)
	require.Equal(t, "Brake System", name)

	_, err = svc.AddCategory("   ")
	require.ErrorIs(t, err, ErrCategoryRequired)
}

func TestEmitFailureDoesNotFailCommit(t *testing.T) {
	repo := newMemoryRepo()
	part := repo.seed("Horn", "40", 1)
	events := &recordingEvents{err: errors.New("queue down")}
	svc := NewService(repo, nil, events, nil, nil)

	adj, err := svc.AdjustStock(context.Background(), part.ID, 2, StockIncrease)
	require.NoError(t, err)
	require.Equal(t, int64(3), adj.NewStock)
}

func TestListLowStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed("A", "1", 0)
	repo.seed("B", "1", 5)
	repo.seed("C", "1", 50)
	svc, _, _ := newTestService(repo)

	parts, err := svc.ListLowStock(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, parts, 2)

	_, err = svc.ListLowStock(context.Background(), -1)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}
