package alert

import (
	"context"

	"github.com/fauzanr/kurma-inventory-service/internal/model"
)

type Repository interface {
	Insert(ctx context.Context, alert *model.StockAlert) error
	// GetLatestByItemAndType returns the newest alert row for an item and alert
	// type regardless of status, or nil.
	GetLatestByItemAndType(ctx context.Context, itemID, alertType string) (*model.StockAlert, error)
	GetActiveByItemAndType(ctx context.Context, itemID, alertType string) (*model.StockAlert, error)
	Resolve(ctx context.Context, id string) error
	ListActive(ctx context.Context, branchID string) ([]model.StockAlert, error)
}
