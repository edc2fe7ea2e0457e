package repack

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fauzanr/kurma-inventory-service/internal/model"
)

type Repository interface {
	Create(ctx context.Context, order *model.RepackOrder) error
	GetByID(ctx context.Context, id string) (*model.RepackOrder, error)
	ListByStatus(ctx context.Context, branchID, status string) ([]model.RepackOrder, error)
	ListReady(ctx context.Context, branchID string, asOf time.Time) ([]model.RepackOrder, error)
	UpdateOrder(ctx context.Context, order *model.RepackOrder) error

	// Tx variants used by Complete, which must commit order state and all stock
	// effects as one transaction.
	UpdateOrderTx(ctx context.Context, tx *sqlx.Tx, order *model.RepackOrder) error
	UpdateSourceItemTx(ctx context.Context, tx *sqlx.Tx, source *model.RepackSourceItem) error
}
