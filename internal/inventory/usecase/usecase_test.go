package usecase

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fauzanr/kurma-inventory-service/internal/errs"
	"github.com/fauzanr/kurma-inventory-service/internal/inventory/dto"
	"github.com/fauzanr/kurma-inventory-service/internal/model"
	"github.com/fauzanr/kurma-inventory-service/pkg/logger"
)

// memRepo keeps items and movements in memory. Transactions run against a
// sqlmock-backed sqlx.DB so Begin/Commit/Rollback behave like the real thing
// while reads and writes hit the maps directly.
type memRepo struct {
	db        *sqlx.DB
	mock      sqlmock.Sqlmock
	items     map[string]*model.InventoryItem
	movements []*model.StockMovement
}

func newMemRepo(t *testing.T) *memRepo {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.MatchExpectationsInOrder(false)
	return &memRepo{
		db:    sqlx.NewDb(db, "sqlmock"),
		mock:  mock,
		items: make(map[string]*model.InventoryItem),
	}
}

func (r *memRepo) put(item *model.InventoryItem) {
	cp := *item
	r.items[item.ID] = &cp
}

func (r *memRepo) GetByID(_ context.Context, id string) (*model.InventoryItem, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (r *memRepo) GetByKey(_ context.Context, branchID, productID string, batchNumber *string) (*model.InventoryItem, error) {
	for _, item := range r.items {
		if item.BranchID != branchID || item.ProductID != productID {
			continue
		}
		if batchNumber == nil && item.BatchNumber == nil {
			cp := *item
			return &cp, nil
		}
		if batchNumber != nil && item.BatchNumber != nil && *batchNumber == *item.BatchNumber {
			cp := *item
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) FindAll(_ context.Context, _ *dto.ItemFilters) ([]model.InventoryItem, int, error) {
	out := make([]model.InventoryItem, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, *item)
	}
	return out, len(out), nil
}

func (r *memRepo) BestLot(_ context.Context, branchID, productID string) (*model.InventoryItem, error) {
	var lots []*model.InventoryItem
	for _, item := range r.items {
		if item.BranchID == branchID && item.ProductID == productID && item.CurrentStock > 0 {
			lots = append(lots, item)
		}
	}
	if len(lots) == 0 {
		return nil, nil
	}
	sort.Slice(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		if a.ExpirationDate == nil && b.ExpirationDate != nil {
			return false
		}
		if a.ExpirationDate != nil && b.ExpirationDate == nil {
			return true
		}
		if a.ExpirationDate != nil && !a.ExpirationDate.Equal(*b.ExpirationDate) {
			return a.ExpirationDate.Before(*b.ExpirationDate)
		}
		return a.AverageCost < b.AverageCost
	})
	cp := *lots[0]
	return &cp, nil
}

func (r *memRepo) ListMovements(_ context.Context, _ *dto.MovementFilters) ([]model.StockMovement, int, error) {
	out := make([]model.StockMovement, 0, len(r.movements))
	for _, m := range r.movements {
		out = append(out, *m)
	}
	return out, len(out), nil
}

func (r *memRepo) GetMovementByID(_ context.Context, id string) (*model.StockMovement, error) {
	for _, m := range r.movements {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	r.mock.ExpectBegin()
	r.mock.ExpectCommit()
	r.mock.ExpectRollback()
	return r.db.BeginTxx(ctx, nil)
}

func (r *memRepo) GetByIDForUpdate(ctx context.Context, _ *sqlx.Tx, id string) (*model.InventoryItem, error) {
	return r.GetByID(ctx, id)
}

func (r *memRepo) CreateTx(_ context.Context, _ *sqlx.Tx, item *model.InventoryItem) error {
	r.put(item)
	return nil
}

func (r *memRepo) UpdateStockTx(_ context.Context, _ *sqlx.Tx, item *model.InventoryItem) error {
	r.put(item)
	return nil
}

func (r *memRepo) InsertMovementTx(_ context.Context, _ *sqlx.Tx, movement *model.StockMovement) error {
	cp := *movement
	r.movements = append(r.movements, &cp)
	return nil
}

func (r *memRepo) UpdateFields(_ context.Context, item *model.InventoryItem) error {
	r.put(item)
	return nil
}

// serialTxRepo wraps memRepo with the mutual exclusion the real repository
// gets from SELECT FOR UPDATE: a transaction holds the row from BeginTxx
// until its movement is inserted, so concurrent writers queue instead of
// reading stale stock. Only usable for mutations that insert a movement.
type serialTxRepo struct {
	*memRepo
	rowMu sync.Mutex
}

func (r *serialTxRepo) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	r.rowMu.Lock()
	return r.memRepo.BeginTxx(ctx)
}

func (r *serialTxRepo) InsertMovementTx(ctx context.Context, tx *sqlx.Tx, movement *model.StockMovement) error {
	defer r.rowMu.Unlock()
	return r.memRepo.InsertMovementTx(ctx, tx, movement)
}

type noopAlerts struct{}

func (noopAlerts) CheckItem(context.Context, *model.InventoryItem) {}

type recordingAlerts struct {
	checked []model.InventoryItem
}

func (r *recordingAlerts) CheckItem(_ context.Context, item *model.InventoryItem) {
	r.checked = append(r.checked, *item)
}

func newTestUseCase(t *testing.T) (*memRepo, *inventoryUseCase) {
	repo := newMemRepo(t)
	uc := NewInventoryUseCase(repo, nil, nil, nil, noopAlerts{}, logger.NewNop()).(*inventoryUseCase)
	return repo, uc
}

func createItem(t *testing.T, uc *inventoryUseCase, stock float64) *model.InventoryItem {
	t.Helper()
	item, err := uc.CreateItem(context.Background(), &dto.CreateItemInput{
		BranchID:     "branch-1",
		ProductID:    "medjool-dates",
		InitialStock: stock,
		Unit:         "kg",
		UnitCost:     80,
		UserID:       "tester",
	})
	require.NoError(t, err)
	return item
}

func TestCreateItem(t *testing.T) {
	repo, uc := newTestUseCase(t)

	item := createItem(t, uc, 10)
	assert.Equal(t, 10.0, item.CurrentStock)
	assert.Equal(t, 0.0, item.ReservedStock)
	assert.Equal(t, 10.0, item.AvailableStock)
	assert.Equal(t, 80.0, item.AverageCost)

	// Initial receipt is recorded as an incoming movement.
	require.Len(t, repo.movements, 1)
	m := repo.movements[0]
	assert.Equal(t, model.MovementIncoming, m.MovementType)
	assert.Equal(t, 0.0, m.PreviousStock)
	assert.Equal(t, 10.0, m.NewStock)
	assert.True(t, m.Consistent())
}

func TestCreateItemDuplicate(t *testing.T) {
	_, uc := newTestUseCase(t)
	createItem(t, uc, 10)

	_, err := uc.CreateItem(context.Background(), &dto.CreateItemInput{
		BranchID:  "branch-1",
		ProductID: "medjool-dates",
		Unit:      "kg",
	})
	assert.True(t, errs.IsKind(err, errs.KindDuplicateItem))
}

func TestCreateItemDistinctBatches(t *testing.T) {
	_, uc := newTestUseCase(t)
	createItem(t, uc, 10)

	batch := "B-2026-03"
	_, err := uc.CreateItem(context.Background(), &dto.CreateItemInput{
		BranchID:    "branch-1",
		ProductID:   "medjool-dates",
		BatchNumber: &batch,
		Unit:        "kg",
	})
	assert.NoError(t, err)
}

func TestAdjustStockDirections(t *testing.T) {
	repo, uc := newTestUseCase(t)
	item := createItem(t, uc, 10)
	ctx := context.Background()

	item, _, err := uc.AdjustStock(ctx, &dto.AdjustStockInput{
		ItemID: item.ID, Quantity: 5, MovementType: model.MovementIncoming, Reason: "delivery",
	})
	require.NoError(t, err)
	assert.Equal(t, 15.0, item.CurrentStock)

	item, _, err = uc.AdjustStock(ctx, &dto.AdjustStockInput{
		ItemID: item.ID, Quantity: 4, MovementType: model.MovementOutgoing, Reason: "sale",
	})
	require.NoError(t, err)
	assert.Equal(t, 11.0, item.CurrentStock)

	// Adjustment sets an exact level, as after a physical count.
	item, _, err = uc.AdjustStock(ctx, &dto.AdjustStockInput{
		ItemID: item.ID, Quantity: 9.5, MovementType: model.MovementAdjustment, Reason: "stocktake",
	})
	require.NoError(t, err)
	assert.Equal(t, 9.5, item.CurrentStock)

	for _, m := range repo.movements {
		assert.True(t, m.Consistent(), m.MovementType)
	}
}

func TestAdjustStockInsufficient(t *testing.T) {
	_, uc := newTestUseCase(t)
	item := createItem(t, uc, 3)

	_, _, err := uc.AdjustStock(context.Background(), &dto.AdjustStockInput{
		ItemID: item.ID, Quantity: 5, MovementType: model.MovementOutgoing, Reason: "sale",
	})
	assert.True(t, errs.IsKind(err, errs.KindInsufficientStock))

	// Failed adjustment leaves the level untouched.
	got, err := uc.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.CurrentStock)
}

func TestAdjustStockCannotUndercutReservation(t *testing.T) {
	_, uc := newTestUseCase(t)
	item := createItem(t, uc, 10)
	ctx := context.Background()

	_, err := uc.Reserve(ctx, item.ID, 6, "tester")
	require.NoError(t, err)

	// 10 - 5 = 5 would leave less on hand than the 6 reserved.
	_, _, err = uc.AdjustStock(ctx, &dto.AdjustStockInput{
		ItemID: item.ID, Quantity: 5, MovementType: model.MovementOutgoing, Reason: "sale",
	})
	assert.True(t, errs.IsKind(err, errs.KindInsufficientStock))
}

func TestAdjustStockRejectsUnknownKind(t *testing.T) {
	_, uc := newTestUseCase(t)
	item := createItem(t, uc, 10)

	_, _, err := uc.AdjustStock(context.Background(), &dto.AdjustStockInput{
		ItemID: item.ID, Quantity: 1, MovementType: "teleport",
	})
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	_, _, err = uc.AdjustStock(context.Background(), &dto.AdjustStockInput{
		ItemID: item.ID, Quantity: -1, MovementType: model.MovementIncoming,
	})
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestReserveAndRelease(t *testing.T) {
	_, uc := newTestUseCase(t)
	item := createItem(t, uc, 10)
	ctx := context.Background()

	item, err := uc.Reserve(ctx, item.ID, 4, "tester")
	require.NoError(t, err)
	assert.Equal(t, 4.0, item.ReservedStock)
	assert.Equal(t, 6.0, item.AvailableStock)

	item, err = uc.Release(ctx, item.ID, 4, "tester")
	require.NoError(t, err)
	assert.Equal(t, 0.0, item.ReservedStock)
	assert.Equal(t, 10.0, item.AvailableStock)
}

func TestReserveInsufficientAvailable(t *testing.T) {
	_, uc := newTestUseCase(t)
	item := createItem(t, uc, 10)
	ctx := context.Background()

	_, err := uc.Reserve(ctx, item.ID, 7, "tester")
	require.NoError(t, err)

	// 3 available left; a 4 unit reservation must fail even though current is 10.
	_, err = uc.Reserve(ctx, item.ID, 4, "tester")
	assert.True(t, errs.IsKind(err, errs.KindInsufficientAvailable))
}

func TestReleaseSemantics(t *testing.T) {
	_, uc := newTestUseCase(t)
	item := createItem(t, uc, 10)
	ctx := context.Background()

	// Releasing with nothing reserved is a safe no-op.
	got, err := uc.Release(ctx, item.ID, 5, "tester")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.ReservedStock)

	_, err = uc.Reserve(ctx, item.ID, 3, "tester")
	require.NoError(t, err)

	// Releasing zero is also a no-op.
	got, err = uc.Release(ctx, item.ID, 0, "tester")
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.ReservedStock)

	// Releasing more than reserved is an over-release.
	_, err = uc.Release(ctx, item.ID, 5, "tester")
	assert.True(t, errs.IsKind(err, errs.KindOverRelease))

	// The clamped variant caps at the reserved amount instead.
	got, err = uc.ReleaseUpTo(ctx, item.ID, 5, "tester")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.ReservedStock)

	// And stays idempotent when retried.
	got, err = uc.ReleaseUpTo(ctx, item.ID, 5, "tester")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.ReservedStock)
}

// Reservation interleaved with a sale: reserving 2kg of a 10kg lot leaves 8kg
// available; selling 3kg drops stock to 7kg with the reservation intact.
func TestReservationThenSale(t *testing.T) {
	_, uc := newTestUseCase(t)
	item := createItem(t, uc, 10)
	ctx := context.Background()

	item, err := uc.Reserve(ctx, item.ID, 2, "tester")
	require.NoError(t, err)
	assert.Equal(t, 8.0, item.AvailableStock)

	item, _, err = uc.AdjustStock(ctx, &dto.AdjustStockInput{
		ItemID: item.ID, Quantity: 3, MovementType: model.MovementOutgoing, Reason: "sale",
	})
	require.NoError(t, err)
	assert.Equal(t, 7.0, item.CurrentStock)
	assert.Equal(t, 2.0, item.ReservedStock)
	assert.Equal(t, 5.0, item.AvailableStock)
	assert.True(t, item.CheckInvariants())
}

func TestUpdateItemFieldsBlendsAverageCost(t *testing.T) {
	_, uc := newTestUseCase(t)
	item := createItem(t, uc, 10)

	newCost := 120.0
	updated, err := uc.UpdateItemFields(context.Background(), &dto.UpdateItemFieldsInput{
		ItemID:   item.ID,
		UnitCost: &newCost,
	})
	require.NoError(t, err)
	assert.Equal(t, 120.0, updated.UnitCost)
	assert.InDelta(t, 100.0, updated.AverageCost, 1e-9)

	// Same cost again does not re-blend.
	updated, err = uc.UpdateItemFields(context.Background(), &dto.UpdateItemFieldsInput{
		ItemID:   item.ID,
		UnitCost: &newCost,
	})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, updated.AverageCost, 1e-9)
}

// The threshold check runs synchronously right after the committed mutation,
// seeing the post-adjustment levels.
func TestAdjustStockTriggersAlertCheck(t *testing.T) {
	repo := newMemRepo(t)
	alerts := &recordingAlerts{}
	uc := NewInventoryUseCase(repo, nil, nil, nil, alerts, logger.NewNop()).(*inventoryUseCase)

	item, err := uc.CreateItem(context.Background(), &dto.CreateItemInput{
		BranchID:     "branch-1",
		ProductID:    "medjool-dates",
		InitialStock: 10,
		Unit:         "kg",
		ReorderPoint: 5,
		UserID:       "tester",
	})
	require.NoError(t, err)

	_, _, err = uc.AdjustStock(context.Background(), &dto.AdjustStockInput{
		ItemID: item.ID, Quantity: 6, MovementType: model.MovementOutgoing, Reason: "sale",
	})
	require.NoError(t, err)

	require.Len(t, alerts.checked, 1)
	assert.Equal(t, item.ID, alerts.checked[0].ID)
	assert.Equal(t, 4.0, alerts.checked[0].CurrentStock)
}

func TestAdjustStockNotFound(t *testing.T) {
	_, uc := newTestUseCase(t)

	_, _, err := uc.AdjustStock(context.Background(), &dto.AdjustStockInput{
		ItemID: "missing", Quantity: 1, MovementType: model.MovementIncoming,
	})
	assert.True(t, errs.IsKind(err, errs.KindNotFound))
}

func TestConcurrentAdjustmentsConverge(t *testing.T) {
	repo := &serialTxRepo{memRepo: newMemRepo(t)}
	uc := NewInventoryUseCase(repo, nil, nil, nil, noopAlerts{}, logger.NewNop()).(*inventoryUseCase)
	item := createItem(t, uc, 100)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		adj := &dto.AdjustStockInput{
			ItemID: item.ID, Quantity: 5, MovementType: model.MovementIncoming,
			Reason: "delivery", UserID: "tester",
		}
		if i%2 == 1 {
			adj.Quantity = 2
			adj.MovementType = model.MovementOutgoing
			adj.Reason = "sale"
		}
		wg.Add(1)
		go func(in *dto.AdjustStockInput) {
			defer wg.Done()
			if _, _, err := uc.AdjustStock(ctx, in); err != nil {
				errCh <- err
			}
		}(adj)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent adjustment failed: %v", err)
	}

	// No update may be lost: 100 + 10*5 - 10*2.
	got, err := uc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 130.0, got.CurrentStock)
	assert.True(t, got.CheckInvariants())

	// One movement per adjustment on top of the initial receipt, each
	// recording a consistent before/after pair.
	require.Len(t, repo.movements, writers+1)
	for _, m := range repo.movements {
		assert.True(t, m.Consistent(), "movement %s", m.ID)
	}
}
