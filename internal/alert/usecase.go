package alert

import (
	"context"

	"github.com/fauzanr/kurma-inventory-service/internal/model"
)

// UseCase evaluates stock thresholds and maintains alert records. CheckItem is
// called synchronously after every stock mutation and must never surface an
// error into the mutation path.
type UseCase interface {
	CheckItem(ctx context.Context, item *model.InventoryItem)
	SweepLowStock(ctx context.Context) error
	SweepExpiring(ctx context.Context) error
	ListActive(ctx context.Context, branchID string) ([]model.StockAlert, error)
}
