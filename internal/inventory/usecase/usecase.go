package usecase

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fauzanr/kurma-inventory-service/internal/errs"
	"github.com/fauzanr/kurma-inventory-service/internal/inventory"
	"github.com/fauzanr/kurma-inventory-service/internal/inventory/dto"
	"github.com/fauzanr/kurma-inventory-service/internal/model"
	"github.com/fauzanr/kurma-inventory-service/pkg/broker"
	"github.com/fauzanr/kurma-inventory-service/pkg/cache"
	"github.com/fauzanr/kurma-inventory-service/pkg/logger"
	"github.com/fauzanr/kurma-inventory-service/pkg/search"
)

const (
	TopicInventoryEvents = "inventory.events"

	EventInventoryCreated = "inventory.created"
	EventItemUpdated      = "inventory.item.updated"
	EventStockReserved    = "stock.reserved"
	EventStockReleased    = "stock.released"

	itemsIndex   = "inventory_items"
	itemCacheTTL = 5 * time.Minute
)

type inventoryUseCase struct {
	repo   inventory.Repository
	cache  *cache.RedisClient
	es     *search.Client
	bus    broker.Publisher
	alerts inventory.AlertChecker
	logger logger.ZapLogger
}

func NewInventoryUseCase(
	repo inventory.Repository,
	cacheClient *cache.RedisClient,
	es *search.Client,
	bus broker.Publisher,
	alerts inventory.AlertChecker,
	log logger.ZapLogger,
) inventory.UseCase {
	return &inventoryUseCase{
		repo:   repo,
		cache:  cacheClient,
		es:     es,
		bus:    bus,
		alerts: alerts,
		logger: log,
	}
}

func (uc *inventoryUseCase) CreateItem(ctx context.Context, input *dto.CreateItemInput) (*model.InventoryItem, error) {
	if input.BranchID == "" || input.ProductID == "" {
		return nil, errs.Validation("branch_id and product_id are required")
	}
	if input.InitialStock < 0 {
		return nil, errs.Validation("initial stock cannot be negative")
	}

	existing, err := uc.repo.GetByKey(ctx, input.BranchID, input.ProductID, input.BatchNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errs.DuplicateItem(input.ProductID, input.BranchID, input.BatchNumber)
	}

	now := time.Now()
	item := &model.InventoryItem{
		BaseModel:        model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		BranchID:         input.BranchID,
		ProductID:        input.ProductID,
		CategoryID:       input.CategoryID,
		BatchNumber:      input.BatchNumber,
		LotID:            input.LotID,
		CurrentStock:     input.InitialStock,
		ReservedStock:    0,
		Unit:             input.Unit,
		MinStockLevel:    input.MinStockLevel,
		MaxStockLevel:    input.MaxStockLevel,
		ReorderPoint:     input.ReorderPoint,
		ReorderQuantity:  input.ReorderQuantity,
		UnitCost:         input.UnitCost,
		AverageCost:      input.UnitCost,
		ExpirationDate:   input.ExpirationDate,
		PhysicalLocation: input.PhysicalLocation,
	}

	tx, err := uc.repo.BeginTxx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := uc.repo.CreateTx(ctx, tx, item); err != nil {
		return nil, err
	}

	if input.InitialStock > 0 {
		movement := uc.buildMovement(item, model.MovementIncoming, input.InitialStock, 0, input.InitialStock,
			"initial stock receipt", "", "", nil, input.UserID, now)
		if err := uc.repo.InsertMovementTx(ctx, tx, movement); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	item.AvailableStock = item.Available()

	uc.invalidateItemCache(ctx, item)
	go uc.syncToElastic(context.Background(), item)
	uc.publish(EventInventoryCreated, item)

	return item, nil
}

// AdjustStock is the single mutation entrypoint for stock quantities. The row
// lock acquired inside the transaction serializes concurrent adjusters per item;
// the redis lock in front of it keeps retry storms off the database.
func (uc *inventoryUseCase) AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (*model.InventoryItem, string, error) {
	dir, known := model.MovementDirection(input.MovementType)
	if !known {
		return nil, "", errs.Validation(fmt.Sprintf("unknown movement type %q", input.MovementType))
	}
	if input.Quantity < 0 {
		return nil, "", errs.Validation("quantity must be recorded as an absolute value")
	}

	unlock, err := uc.lockItem(ctx, input.ItemID)
	if err != nil {
		return nil, "", err
	}
	defer unlock()

	tx, err := uc.repo.BeginTxx(ctx)
	if err != nil {
		return nil, "", err
	}
	defer tx.Rollback()

	item, err := uc.repo.GetByIDForUpdate(ctx, tx, input.ItemID)
	if err != nil {
		return nil, "", err
	}
	if item == nil {
		return nil, "", errs.NotFound("inventory item", input.ItemID)
	}

	previousStock := item.CurrentStock
	var newStock float64
	switch dir {
	case +1:
		newStock = previousStock + input.Quantity
	case -1:
		newStock = previousStock - input.Quantity
	default:
		newStock = input.Quantity
	}

	if newStock < 0 {
		return nil, "", errs.InsufficientStock(item.ID, input.Quantity, previousStock)
	}
	if newStock < item.ReservedStock {
		return nil, "", errs.InsufficientStock(item.ID, input.Quantity, previousStock).
			With("reserved", item.ReservedStock)
	}

	now := time.Now()
	item.CurrentStock = newStock
	item.UpdatedAt = now

	if err := uc.repo.UpdateStockTx(ctx, tx, item); err != nil {
		return nil, "", err
	}

	movement := uc.buildMovement(item, input.MovementType, input.Quantity, previousStock, newStock,
		input.Reason, input.ReferenceID, input.ReferenceType, input.Notes, input.UserID, now)
	if err := uc.repo.InsertMovementTx(ctx, tx, movement); err != nil {
		return nil, "", err
	}

	if err := tx.Commit(); err != nil {
		return nil, "", err
	}

	item.AvailableStock = item.Available()

	// Post-commit side effects: none of these may fail the mutation.
	uc.alerts.CheckItem(ctx, item)
	uc.invalidateItemCache(ctx, item)
	go uc.syncToElastic(context.Background(), item)
	uc.publish("stock.movement."+input.MovementType, movement)

	return item, movement.ID, nil
}

func (uc *inventoryUseCase) UpdateItemFields(ctx context.Context, input *dto.UpdateItemFieldsInput) (*model.InventoryItem, error) {
	item, err := uc.repo.GetByID(ctx, input.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	if input.MinStockLevel != nil {
		item.MinStockLevel = *input.MinStockLevel
	}
	if input.MaxStockLevel != nil {
		item.MaxStockLevel = *input.MaxStockLevel
	}
	if input.ReorderPoint != nil {
		item.ReorderPoint = *input.ReorderPoint
	}
	if input.ReorderQuantity != nil {
		item.ReorderQuantity = *input.ReorderQuantity
	}
	if input.UnitCost != nil && *input.UnitCost != item.UnitCost {
		item.UnitCost = *input.UnitCost
		// Blended running average, matching the receiving workflow.
		item.AverageCost = (item.AverageCost + *input.UnitCost) / 2
	}
	if input.ExpirationDate != nil {
		item.ExpirationDate = input.ExpirationDate
	}
	if input.PhysicalLocation != nil {
		item.PhysicalLocation = input.PhysicalLocation
	}
	if input.BatchNumber != nil {
		item.BatchNumber = input.BatchNumber
	}
	if input.LotID != nil {
		item.LotID = input.LotID
	}
	item.UpdatedAt = time.Now()

	if err := uc.repo.UpdateFields(ctx, item); err != nil {
		return nil, err
	}

	item.AvailableStock = item.Available()

	uc.alerts.CheckItem(ctx, item)
	uc.invalidateItemCache(ctx, item)
	go uc.syncToElastic(context.Background(), item)
	uc.publish(EventItemUpdated, item)

	return item, nil
}

func (uc *inventoryUseCase) Reserve(ctx context.Context, itemID string, quantity float64, userID string) (*model.InventoryItem, error) {
	if quantity < 0 {
		return nil, errs.Validation("reservation quantity cannot be negative")
	}

	unlock, err := uc.lockItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx, err := uc.repo.BeginTxx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	item, err := uc.repo.GetByIDForUpdate(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errs.NotFound("inventory item", itemID)
	}

	if quantity > item.Available() {
		return nil, errs.InsufficientAvailable(item.ID, quantity, item.Available())
	}

	item.ReservedStock += quantity
	item.UpdatedAt = time.Now()

	if err := uc.repo.UpdateStockTx(ctx, tx, item); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	item.AvailableStock = item.Available()
	uc.invalidateItemCache(ctx, item)
	uc.publish(EventStockReserved, map[string]interface{}{
		"item_id": item.ID, "quantity": quantity, "reserved": item.ReservedStock, "user_id": userID,
	})
	return item, nil
}

func (uc *inventoryUseCase) Release(ctx context.Context, itemID string, quantity float64, userID string) (*model.InventoryItem, error) {
	return uc.release(ctx, itemID, quantity, userID, false)
}

func (uc *inventoryUseCase) ReleaseUpTo(ctx context.Context, itemID string, quantity float64, userID string) (*model.InventoryItem, error) {
	return uc.release(ctx, itemID, quantity, userID, true)
}

func (uc *inventoryUseCase) release(ctx context.Context, itemID string, quantity float64, userID string, clamp bool) (*model.InventoryItem, error) {
	if quantity < 0 {
		return nil, errs.Validation("release quantity cannot be negative")
	}

	unlock, err := uc.lockItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx, err := uc.repo.BeginTxx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	item, err := uc.repo.GetByIDForUpdate(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errs.NotFound("inventory item", itemID)
	}

	// Releasing nothing, or from an empty reservation, is a no-op so that
	// cancellation retries stay safe.
	if quantity == 0 || item.ReservedStock == 0 {
		item.AvailableStock = item.Available()
		return item, nil
	}

	if quantity > item.ReservedStock {
		if !clamp {
			return nil, errs.OverRelease(item.ID, quantity, item.ReservedStock)
		}
		quantity = item.ReservedStock
	}

	item.ReservedStock -= quantity
	item.UpdatedAt = time.Now()

	if err := uc.repo.UpdateStockTx(ctx, tx, item); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	item.AvailableStock = item.Available()
	uc.invalidateItemCache(ctx, item)
	uc.publish(EventStockReleased, map[string]interface{}{
		"item_id": item.ID, "quantity": quantity, "reserved": item.ReservedStock, "user_id": userID,
	})
	return item, nil
}

func (uc *inventoryUseCase) GetItem(ctx context.Context, id string) (*model.InventoryItem, error) {
	cacheKey := "inventory:item:" + id
	if uc.cache != nil {
		if val, ok, err := uc.cache.Get(ctx, cacheKey); err == nil && ok {
			var item model.InventoryItem
			if err := json.Unmarshal([]byte(val), &item); err == nil {
				return &item, nil
			}
		}
	}

	item, err := uc.repo.GetByID(ctx, id)
	if err != nil || item == nil {
		return item, err
	}

	if uc.cache != nil {
		if data, err := json.Marshal(item); err == nil {
			uc.cache.SetWithTTL(ctx, cacheKey, data, itemCacheTTL)
		}
	}
	return item, nil
}

func (uc *inventoryUseCase) GetItemByKey(ctx context.Context, branchID, productID string, batchNumber *string) (*model.InventoryItem, error) {
	return uc.repo.GetByKey(ctx, branchID, productID, batchNumber)
}

func (uc *inventoryUseCase) ListItems(ctx context.Context, filters *dto.ItemFilters) ([]model.InventoryItem, int, error) {
	cacheKey := uc.listCacheKey(filters)
	if uc.cache != nil && cacheKey != "" {
		if val, ok, err := uc.cache.Get(ctx, cacheKey); err == nil && ok {
			var cached struct {
				Items []model.InventoryItem
				Count int
			}
			if err := json.Unmarshal([]byte(val), &cached); err == nil {
				return cached.Items, cached.Count, nil
			}
		}
	}

	if filters.SearchQuery != "" && uc.es != nil {
		items, count, err := uc.searchElastic(ctx, filters)
		if err == nil {
			return items, count, nil
		}
		uc.logger.Error("ES search failed, falling back to DB", zap.Error(err))
	}

	items, count, err := uc.repo.FindAll(ctx, filters)
	if err != nil {
		return nil, 0, err
	}

	if uc.cache != nil && cacheKey != "" {
		cached := struct {
			Items []model.InventoryItem
			Count int
		}{Items: items, Count: count}
		if data, err := json.Marshal(cached); err == nil {
			uc.cache.SetWithTTL(ctx, cacheKey, data, itemCacheTTL)
		}
	}
	return items, count, nil
}

func (uc *inventoryUseCase) ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error) {
	return uc.repo.ListMovements(ctx, filters)
}

func (uc *inventoryUseCase) BestLot(ctx context.Context, branchID, productID string) (*model.InventoryItem, error) {
	return uc.repo.BestLot(ctx, branchID, productID)
}

func (uc *inventoryUseCase) buildMovement(
	item *model.InventoryItem,
	kind string,
	quantity, previous, current float64,
	reason, referenceID, referenceType string,
	notes *string,
	userID string,
	at time.Time,
) *model.StockMovement {
	var refID, refType, createdBy *string
	if referenceID != "" {
		refID = &referenceID
	}
	if referenceType != "" {
		refType = &referenceType
	}
	if userID != "" {
		createdBy = &userID
	}
	return &model.StockMovement{
		ID:            uuid.New().String(),
		ItemID:        item.ID,
		BranchID:      item.BranchID,
		ProductID:     item.ProductID,
		MovementType:  kind,
		Quantity:      quantity,
		PreviousStock: previous,
		NewStock:      current,
		Reason:        reason,
		ReferenceType: refType,
		ReferenceID:   refID,
		Notes:         notes,
		CreatedBy:     createdBy,
		CreatedAt:     at,
	}
}

// lockItem takes the redis guard in front of the row lock. Returns a release
// func; callers must defer it.
func (uc *inventoryUseCase) lockItem(ctx context.Context, itemID string) (func(), error) {
	if uc.cache == nil {
		return func() {}, nil
	}

	lockKey := "lock:inventory:" + itemID
	lockValue := uuid.New().String()

	acquired := false
	for i := 0; i < 3; i++ {
		ok, err := uc.cache.AcquireLock(ctx, lockKey, lockValue, 5*time.Second)
		if err != nil {
			uc.logger.Error("failed to acquire lock redis error", zap.Error(err))
		}
		if ok {
			acquired = true
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !acquired {
		return nil, errs.Validation("system busy, please try again later (lock)")
	}

	return func() {
		if err := uc.cache.ReleaseLock(ctx, lockKey, lockValue); err != nil {
			uc.logger.Error("failed to release lock", zap.String("key", lockKey), zap.Error(err))
		}
	}, nil
}

func (uc *inventoryUseCase) invalidateItemCache(ctx context.Context, item *model.InventoryItem) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Delete(ctx, "inventory:item:"+item.ID); err != nil {
		uc.logger.Error("failed to invalidate item cache", zap.Error(err))
	}
	if err := uc.cache.DeleteByPattern(ctx, "inventory:list:"+item.BranchID+":*"); err != nil {
		uc.logger.Error("failed to invalidate list cache", zap.Error(err))
	}
}

func (uc *inventoryUseCase) listCacheKey(f *dto.ItemFilters) string {
	if f.BranchID == "" {
		return ""
	}
	data, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("inventory:list:%s:%x", f.BranchID, md5.Sum(data))
}

func (uc *inventoryUseCase) syncToElastic(ctx context.Context, item *model.InventoryItem) {
	if uc.es == nil {
		return
	}
	const mapping = `{
		"mappings": {
			"properties": {
				"branch_id": { "type": "keyword" },
				"product_id": { "type": "keyword" },
				"batch_number": { "type": "keyword" },
				"physical_location": { "type": "text" },
				"current_stock": { "type": "double" },
				"available_stock": { "type": "double" },
				"expiration_date": { "type": "date" },
				"updated_at": { "type": "date" }
			}
		}
	}`
	_ = uc.es.CreateIndex(ctx, itemsIndex, mapping)

	if err := uc.es.Index(ctx, itemsIndex, item.ID, item); err != nil {
		uc.logger.Error("failed to index inventory item", zap.String("item_id", item.ID), zap.Error(err))
	}
}

func (uc *inventoryUseCase) searchElastic(ctx context.Context, f *dto.ItemFilters) ([]model.InventoryItem, int, error) {
	q := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []map[string]interface{}{
					{
						"query_string": map[string]interface{}{
							"query":  fmt.Sprintf("*%s*", f.SearchQuery),
							"fields": []string{"product_id^3", "batch_number", "physical_location"},
						},
					},
					{
						"term": map[string]interface{}{
							"branch_id": f.BranchID,
						},
					},
				},
			},
		},
		"from": (f.Page - 1) * f.PageSize,
	}
	if f.PageSize > 0 {
		q["size"] = f.PageSize
	}

	res, err := uc.es.Search(ctx, itemsIndex, q)
	if err != nil {
		return nil, 0, err
	}

	var items []model.InventoryItem
	for _, hit := range res.Hits.Hits {
		var item model.InventoryItem
		if err := json.Unmarshal(hit.Source, &item); err == nil {
			items = append(items, item)
		}
	}
	return items, res.Hits.Total.Value, nil
}

// publish emits an event on the inventory stream. Failures are logged only;
// the committed mutation stands regardless.
func (uc *inventoryUseCase) publish(eventType string, payload interface{}) {
	if uc.bus == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := uc.bus.Publish(ctx, TopicInventoryEvents, eventType, payload); err != nil {
			uc.logger.Error("failed to publish inventory event",
				zap.String("event_type", eventType), zap.Error(err))
		}
	}()
}
