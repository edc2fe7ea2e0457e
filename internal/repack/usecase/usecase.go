package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fauzanr/kurma-inventory-service/internal/errs"
	"github.com/fauzanr/kurma-inventory-service/internal/inventory"
	invdto "github.com/fauzanr/kurma-inventory-service/internal/inventory/dto"
	"github.com/fauzanr/kurma-inventory-service/internal/model"
	"github.com/fauzanr/kurma-inventory-service/internal/repack"
	"github.com/fauzanr/kurma-inventory-service/internal/repack/dto"
	"github.com/fauzanr/kurma-inventory-service/pkg/broker"
	"github.com/fauzanr/kurma-inventory-service/pkg/cache"
	"github.com/fauzanr/kurma-inventory-service/pkg/logger"
)

const TopicRepackEvents = "repack.events"

type repackUseCase struct {
	repo      repack.Repository
	invRepo   inventory.Repository
	invUC     inventory.UseCase
	alerts    inventory.AlertChecker
	cache     *cache.RedisClient
	bus       broker.Publisher
	allocator repack.CostAllocator
	logger    logger.ZapLogger
}

func NewRepackUseCase(
	repo repack.Repository,
	invRepo inventory.Repository,
	invUC inventory.UseCase,
	alerts inventory.AlertChecker,
	cacheClient *cache.RedisClient,
	bus broker.Publisher,
	allocator repack.CostAllocator,
	log logger.ZapLogger,
) repack.UseCase {
	if allocator == nil {
		allocator = repack.ProportionalAllocator{}
	}
	return &repackUseCase{
		repo:      repo,
		invRepo:   invRepo,
		invUC:     invUC,
		alerts:    alerts,
		cache:     cacheClient,
		bus:       bus,
		allocator: allocator,
		logger:    log,
	}
}

func (uc *repackUseCase) Create(ctx context.Context, input *dto.CreateOrderInput) (*model.RepackOrder, error) {
	if input.ExpectedQuantity <= 0 {
		return nil, errs.Validation("expected quantity must be positive")
	}
	if len(input.SourceItems) == 0 {
		return nil, errs.Validation("at least one source item is required")
	}
	today := time.Now().Truncate(24 * time.Hour)
	if input.ScheduleDate.Before(today) {
		return nil, errs.Validation("schedule date cannot be in the past")
	}

	// Validate every source line before touching any reservation.
	sources := make([]model.RepackSourceItem, 0, len(input.SourceItems))
	for i, src := range input.SourceItems {
		if src.RequiredQuantity <= 0 {
			return nil, errs.Validation("required quantity must be positive")
		}
		item, err := uc.invRepo.GetByID(ctx, src.ItemID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, errs.NotFound("inventory item", src.ItemID)
		}
		if item.BranchID != input.BranchID {
			return nil, errs.Validation(fmt.Sprintf("source item %s belongs to branch %s, not %s",
				item.ID, item.BranchID, input.BranchID))
		}
		if item.Available() < src.RequiredQuantity {
			return nil, errs.InsufficientAvailable(item.ID, src.RequiredQuantity, item.Available())
		}
		sources = append(sources, model.RepackSourceItem{
			ID:               uuid.New().String(),
			ItemID:           item.ID,
			ProductID:        item.ProductID,
			RequiredQuantity: src.RequiredQuantity,
			SortOrder:        i,
		})
	}

	// Reserve each source, compensating on failure.
	reserved := make([]model.RepackSourceItem, 0, len(sources))
	for _, src := range sources {
		if _, err := uc.invUC.Reserve(ctx, src.ItemID, src.RequiredQuantity, input.RequestedBy); err != nil {
			for _, done := range reserved {
				if _, rerr := uc.invUC.ReleaseUpTo(ctx, done.ItemID, done.RequiredQuantity, input.RequestedBy); rerr != nil {
					uc.logger.Error("failed to roll back reservation",
						zap.String("item_id", done.ItemID), zap.Error(rerr))
				}
			}
			return nil, err
		}
		reserved = append(reserved, src)
	}

	// Target placeholder so completion always has a row to credit.
	target, err := uc.invRepo.GetByKey(ctx, input.BranchID, input.TargetProductID, nil)
	if err == nil && target == nil {
		_, err = uc.invUC.CreateItem(ctx, &invdto.CreateItemInput{
			BranchID:  input.BranchID,
			ProductID: input.TargetProductID,
			Unit:      input.TargetUnit,
			UserID:    input.RequestedBy,
		})
	}
	if err != nil {
		for _, done := range reserved {
			if _, rerr := uc.invUC.ReleaseUpTo(ctx, done.ItemID, done.RequiredQuantity, input.RequestedBy); rerr != nil {
				uc.logger.Error("failed to roll back reservation",
					zap.String("item_id", done.ItemID), zap.Error(rerr))
			}
		}
		return nil, err
	}

	now := time.Now()
	order := &model.RepackOrder{
		BaseModel:        model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		BranchID:         input.BranchID,
		Status:           model.RepackStatusPlanned,
		TargetProductID:  input.TargetProductID,
		TargetUnit:       input.TargetUnit,
		ExpectedQuantity: input.ExpectedQuantity,
		ScheduleDate:     input.ScheduleDate,
		RequestedBy:      input.RequestedBy,
		SupervisedBy:     input.SupervisedBy,
		Notes:            input.Notes,
		SourceItems:      sources,
	}
	for i := range order.SourceItems {
		order.SourceItems[i].OrderID = order.ID
	}

	if err := uc.repo.Create(ctx, order); err != nil {
		for _, done := range reserved {
			if _, rerr := uc.invUC.ReleaseUpTo(ctx, done.ItemID, done.RequiredQuantity, input.RequestedBy); rerr != nil {
				uc.logger.Error("failed to roll back reservation",
					zap.String("item_id", done.ItemID), zap.Error(rerr))
			}
		}
		return nil, err
	}

	uc.publish("repack.orders.planned", order)
	return order, nil
}

func (uc *repackUseCase) Start(ctx context.Context, orderID, userID string) (*model.RepackOrder, error) {
	order, err := uc.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, errs.NotFound("repack order", orderID)
	}
	if !model.CanTransitionRepack(order.Status, model.RepackStatusInProgress) {
		return nil, errs.InvalidStatusTransition("repack order", orderID, order.Status, model.RepackStatusInProgress)
	}

	// Stock may have drifted since creation; re-check before work begins.
	report, err := uc.feasibility(ctx, order)
	if err != nil {
		return nil, err
	}
	if !report.Feasible {
		shortfalls := make([]errs.ShortfallItem, 0)
		for _, line := range report.Lines {
			if !line.Feasible {
				shortfalls = append(shortfalls, errs.ShortfallItem{
					ItemID:    line.ItemID,
					ProductID: line.ProductID,
					Required:  line.RequiredQuantity,
					Available: line.AvailableStock,
				})
			}
		}
		return nil, errs.Infeasible(orderID, shortfalls)
	}

	now := time.Now()
	order.Status = model.RepackStatusInProgress
	order.PerformedBy = &userID
	order.StartedAt = &now
	order.UpdatedAt = now

	if err := uc.repo.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}

	uc.publish("repack.orders.in_progress", order)
	return order, nil
}

// Complete consumes the source items, credits the target, and finalizes the
// order inside one transaction so no reader ever sees a half-applied repack.
func (uc *repackUseCase) Complete(ctx context.Context, input *dto.CompleteOrderInput) (*model.RepackOrder, error) {
	if input.ActualQuantity <= 0 {
		return nil, errs.Validation("actual output quantity must be positive")
	}

	order, err := uc.repo.GetByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, errs.NotFound("repack order", input.OrderID)
	}
	if !model.CanTransitionRepack(order.Status, model.RepackStatusCompleted) {
		return nil, errs.InvalidStatusTransition("repack order", input.OrderID, order.Status, model.RepackStatusCompleted)
	}

	actuals := make(map[string]float64, len(input.SourceResults))
	for _, res := range input.SourceResults {
		if res.ActualQuantity < 0 {
			return nil, errs.Validation("actual consumed quantity cannot be negative")
		}
		actuals[res.ItemID] = res.ActualQuantity
	}
	for _, src := range order.SourceItems {
		if _, ok := actuals[src.ItemID]; !ok {
			return nil, errs.Validation(fmt.Sprintf("missing actual quantity for source item %s", src.ItemID))
		}
	}

	target, err := uc.invRepo.GetByKey(ctx, order.BranchID, order.TargetProductID, nil)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, errs.NotFound("target inventory item", order.TargetProductID)
	}

	tx, err := uc.invRepo.BeginTxx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now()
	var totalCost, totalConsumed float64
	touched := make([]*model.InventoryItem, 0, len(order.SourceItems)+1)
	movements := make([]*model.StockMovement, 0, len(order.SourceItems)+1)

	for i := range order.SourceItems {
		src := &order.SourceItems[i]
		used := actuals[src.ItemID]

		item, err := uc.invRepo.GetByIDForUpdate(ctx, tx, src.ItemID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, errs.NotFound("inventory item", src.ItemID)
		}

		// The full reservation comes off: the used part is consumed, the unused
		// remainder is released. Clamped so a drifted reservation cannot fail.
		release := src.RequiredQuantity
		if release > item.ReservedStock {
			release = item.ReservedStock
		}

		// Actual usage may draw only on this order's own reservation plus
		// unreserved stock; quantity held for other orders is untouchable.
		drawable := item.CurrentStock - (item.ReservedStock - release)
		if used > drawable {
			return nil, errs.InsufficientStock(item.ID, used, drawable).
				With("reserved_for_others", item.ReservedStock-release)
		}

		stockAtUse := item.CurrentStock
		totalCost += uc.allocator.Contribution(used, stockAtUse, item.AverageCost)
		totalConsumed += used

		item.ReservedStock -= release
		item.CurrentStock -= used
		item.UpdatedAt = now

		if err := uc.invRepo.UpdateStockTx(ctx, tx, item); err != nil {
			return nil, err
		}

		if used > 0 {
			movement := &model.StockMovement{
				ID:            uuid.New().String(),
				ItemID:        item.ID,
				BranchID:      item.BranchID,
				ProductID:     item.ProductID,
				MovementType:  model.MovementRepackOut,
				Quantity:      used,
				PreviousStock: stockAtUse,
				NewStock:      item.CurrentStock,
				Reason:        "repack consumption",
				ReferenceType: strPtr("repack"),
				ReferenceID:   &order.ID,
				CreatedBy:     &input.PerformedBy,
				CreatedAt:     now,
			}
			if err := uc.invRepo.InsertMovementTx(ctx, tx, movement); err != nil {
				return nil, err
			}
			movements = append(movements, movement)
		}

		src.ActualQuantity = &used
		if err := uc.repo.UpdateSourceItemTx(ctx, tx, src); err != nil {
			return nil, err
		}
		touched = append(touched, item)
	}

	// Credit the target with the actual output and blend its cost.
	targetLocked, err := uc.invRepo.GetByIDForUpdate(ctx, tx, target.ID)
	if err != nil {
		return nil, err
	}
	if targetLocked == nil {
		return nil, errs.NotFound("inventory item", target.ID)
	}

	previousTarget := targetLocked.CurrentStock
	targetLocked.CurrentStock += input.ActualQuantity
	if totalConsumed > 0 {
		targetLocked.AverageCost = totalCost / totalConsumed
		targetLocked.UnitCost = targetLocked.AverageCost
	}
	targetLocked.UpdatedAt = now

	if err := uc.invRepo.UpdateStockTx(ctx, tx, targetLocked); err != nil {
		return nil, err
	}

	production := &model.StockMovement{
		ID:            uuid.New().String(),
		ItemID:        targetLocked.ID,
		BranchID:      targetLocked.BranchID,
		ProductID:     targetLocked.ProductID,
		MovementType:  model.MovementRepackIn,
		Quantity:      input.ActualQuantity,
		PreviousStock: previousTarget,
		NewStock:      targetLocked.CurrentStock,
		Reason:        "repack production",
		ReferenceType: strPtr("repack"),
		ReferenceID:   &order.ID,
		CreatedBy:     &input.PerformedBy,
		CreatedAt:     now,
	}
	if err := uc.invRepo.InsertMovementTx(ctx, tx, production); err != nil {
		return nil, err
	}
	movements = append(movements, production)
	touched = append(touched, targetLocked)

	order.Status = model.RepackStatusCompleted
	order.ActualQuantity = &input.ActualQuantity
	order.PerformedBy = &input.PerformedBy
	order.CompletedAt = &now
	order.UpdatedAt = now
	if input.Notes != nil {
		order.Notes = input.Notes
	}
	if err := uc.repo.UpdateOrderTx(ctx, tx, order); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for _, item := range touched {
		item.AvailableStock = item.Available()
		uc.alerts.CheckItem(ctx, item)
		uc.invalidateItemCache(ctx, item)
	}
	for _, m := range movements {
		uc.publish("stock.movement."+m.MovementType, m)
	}
	uc.publish("repack.orders.completed", order)

	return order, nil
}

func (uc *repackUseCase) Cancel(ctx context.Context, orderID, reason, userID string) (*model.RepackOrder, error) {
	order, err := uc.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, errs.NotFound("repack order", orderID)
	}
	if !model.CanTransitionRepack(order.Status, model.RepackStatusCancelled) {
		return nil, errs.InvalidStatusTransition("repack order", orderID, order.Status, model.RepackStatusCancelled)
	}

	// Clamped releases keep retried cancellations idempotent.
	for _, src := range order.SourceItems {
		if _, err := uc.invUC.ReleaseUpTo(ctx, src.ItemID, src.RequiredQuantity, userID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	order.Status = model.RepackStatusCancelled
	order.UpdatedAt = now
	if reason != "" {
		note := "cancelled: " + reason
		order.Notes = &note
	}

	if err := uc.repo.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}

	uc.publish("repack.orders.cancelled", order)
	return order, nil
}

func (uc *repackUseCase) ValidateFeasibility(ctx context.Context, orderID string) (*dto.FeasibilityReport, error) {
	order, err := uc.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, errs.NotFound("repack order", orderID)
	}
	return uc.feasibility(ctx, order)
}

func (uc *repackUseCase) feasibility(ctx context.Context, order *model.RepackOrder) (*dto.FeasibilityReport, error) {
	report := &dto.FeasibilityReport{OrderID: order.ID, Feasible: true}
	for _, src := range order.SourceItems {
		item, err := uc.invRepo.GetByID(ctx, src.ItemID)
		if err != nil {
			return nil, err
		}

		line := dto.FeasibilityLine{
			ItemID:           src.ItemID,
			ProductID:        src.ProductID,
			RequiredQuantity: src.RequiredQuantity,
		}
		if item != nil {
			line.AvailableStock = item.Available()
			// The order's own reservation counts toward what it can consume.
			line.Feasible = item.Available()+minFloat(src.RequiredQuantity, item.ReservedStock) >= src.RequiredQuantity
		}
		if !line.Feasible {
			report.Feasible = false
		}
		report.Lines = append(report.Lines, line)
	}
	return report, nil
}

func (uc *repackUseCase) GetOrder(ctx context.Context, orderID string) (*model.RepackOrder, error) {
	return uc.repo.GetByID(ctx, orderID)
}

func (uc *repackUseCase) ListReadyForProcessing(ctx context.Context, branchID string) ([]model.RepackOrder, error) {
	return uc.repo.ListReady(ctx, branchID, time.Now())
}

func (uc *repackUseCase) invalidateItemCache(ctx context.Context, item *model.InventoryItem) {
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

func (uc *repackUseCase) publish(eventType string, payload interface{}) {
	if uc.bus == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := uc.bus.Publish(ctx, TopicRepackEvents, eventType, payload); err != nil {
			uc.logger.Error("failed to publish repack event",
				zap.String("event_type", eventType), zap.Error(err))
		}
	}()
}

func strPtr(s string) *string { return &s }

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
