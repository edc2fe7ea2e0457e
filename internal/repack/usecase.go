package repack

import (
	"context"

	"github.com/fauzanr/kurma-inventory-service/internal/model"
	"github.com/fauzanr/kurma-inventory-service/internal/repack/dto"
)

type UseCase interface {
	Create(ctx context.Context, input *dto.CreateOrderInput) (*model.RepackOrder, error)
	Start(ctx context.Context, orderID, userID string) (*model.RepackOrder, error)
	Complete(ctx context.Context, input *dto.CompleteOrderInput) (*model.RepackOrder, error)
	Cancel(ctx context.Context, orderID, reason, userID string) (*model.RepackOrder, error)
	ValidateFeasibility(ctx context.Context, orderID string) (*dto.FeasibilityReport, error)
	GetOrder(ctx context.Context, orderID string) (*model.RepackOrder, error)
	ListReadyForProcessing(ctx context.Context, branchID string) ([]model.RepackOrder, error)
}
