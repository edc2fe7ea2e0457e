package inventory

import (
	"context"

	"github.com/fauzanr/kurma-inventory-service/internal/inventory/dto"
	"github.com/fauzanr/kurma-inventory-service/internal/model"
)

type UseCase interface {
	// Ledger
	CreateItem(ctx context.Context, input *dto.CreateItemInput) (*model.InventoryItem, error)
	AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (*model.InventoryItem, string, error)
	UpdateItemFields(ctx context.Context, input *dto.UpdateItemFieldsInput) (*model.InventoryItem, error)

	// Reservations
	Reserve(ctx context.Context, itemID string, quantity float64, userID string) (*model.InventoryItem, error)
	Release(ctx context.Context, itemID string, quantity float64, userID string) (*model.InventoryItem, error)
	// ReleaseUpTo releases min(quantity, reserved); used by cancellation paths
	// that must stay idempotent.
	ReleaseUpTo(ctx context.Context, itemID string, quantity float64, userID string) (*model.InventoryItem, error)

	// Queries
	GetItem(ctx context.Context, id string) (*model.InventoryItem, error)
	GetItemByKey(ctx context.Context, branchID, productID string, batchNumber *string) (*model.InventoryItem, error)
	ListItems(ctx context.Context, filters *dto.ItemFilters) ([]model.InventoryItem, int, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error)
	BestLot(ctx context.Context, branchID, productID string) (*model.InventoryItem, error)
}

// AlertChecker re-evaluates thresholds for an item after a stock mutation.
// Implementations must never return an error into the mutation path.
type AlertChecker interface {
	CheckItem(ctx context.Context, item *model.InventoryItem)
}
