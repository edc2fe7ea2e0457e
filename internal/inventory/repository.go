package inventory

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/fauzanr/kurma-inventory-service/internal/inventory/dto"
	"github.com/fauzanr/kurma-inventory-service/internal/model"
)

type Repository interface {
	// Items
	GetByID(ctx context.Context, id string) (*model.InventoryItem, error)
	GetByKey(ctx context.Context, branchID, productID string, batchNumber *string) (*model.InventoryItem, error)
	FindAll(ctx context.Context, filters *dto.ItemFilters) ([]model.InventoryItem, int, error)
	// BestLot returns the item to draw a sample from: stock > 0, earliest
	// expiration first, then lowest average cost.
	BestLot(ctx context.Context, branchID, productID string) (*model.InventoryItem, error)

	// Movements / Audit
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error)
	GetMovementByID(ctx context.Context, id string) (*model.StockMovement, error)

	// Transaction support. Stock mutations lock the row inside a transaction so
	// concurrent adjusters serialize per item.
	BeginTxx(ctx context.Context) (*sqlx.Tx, error)
	GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.InventoryItem, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, item *model.InventoryItem) error
	UpdateStockTx(ctx context.Context, tx *sqlx.Tx, item *model.InventoryItem) error
	InsertMovementTx(ctx context.Context, tx *sqlx.Tx, movement *model.StockMovement) error

	// Non-quantity field updates (thresholds, cost, location, batch).
	UpdateFields(ctx context.Context, item *model.InventoryItem) error
}
