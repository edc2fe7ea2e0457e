package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fauzanr/kurma-inventory-service/internal/alert"
	"github.com/fauzanr/kurma-inventory-service/internal/inventory"
	invdto "github.com/fauzanr/kurma-inventory-service/internal/inventory/dto"
	"github.com/fauzanr/kurma-inventory-service/internal/model"
	"github.com/fauzanr/kurma-inventory-service/pkg/broker"
	"github.com/fauzanr/kurma-inventory-service/pkg/logger"
)

const (
	TopicStockAlerts = "stock.alerts"

	EventAlertRaised   = "stock.alert.raised"
	EventAlertResolved = "stock.alert.resolved"
)

type Config struct {
	// CriticalThresholdRatio scales min stock level for the critical cutoff.
	CriticalThresholdRatio float64
	Cooldown               time.Duration
	ExpiryHorizonDays      int
}

type alertUseCase struct {
	repo    alert.Repository
	invRepo inventory.Repository
	bus     broker.Publisher
	cfg     Config
	logger  logger.ZapLogger
}

func NewAlertUseCase(
	repo alert.Repository,
	invRepo inventory.Repository,
	bus broker.Publisher,
	cfg Config,
	log logger.ZapLogger,
) alert.UseCase {
	if cfg.CriticalThresholdRatio <= 0 {
		cfg.CriticalThresholdRatio = 0.5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Hour
	}
	if cfg.ExpiryHorizonDays <= 0 {
		cfg.ExpiryHorizonDays = 30
	}
	return &alertUseCase{
		repo:    repo,
		invRepo: invRepo,
		bus:     bus,
		cfg:     cfg,
		logger:  log,
	}
}

// CheckItem evaluates the low-stock threshold for one item. Invoked after every
// stock mutation; all failures are logged and swallowed so the mutation that
// triggered the check is never disturbed.
func (uc *alertUseCase) CheckItem(ctx context.Context, item *model.InventoryItem) {
	available := item.Available()

	if item.ReorderPoint > 0 && available <= item.ReorderPoint {
		severity := model.SeverityWarning
		if available <= item.MinStockLevel*uc.cfg.CriticalThresholdRatio {
			severity = model.SeverityCritical
		}
		message := fmt.Sprintf("low stock: %.3f %s available (reorder point %.3f)",
			available, item.Unit, item.ReorderPoint)
		uc.raise(ctx, item, model.AlertTypeLowStock, severity, message)
		return
	}

	// Stock recovered: close any open low-stock alert.
	active, err := uc.repo.GetActiveByItemAndType(ctx, item.ID, model.AlertTypeLowStock)
	if err != nil {
		uc.logger.Error("failed to look up active alert", zap.String("item_id", item.ID), zap.Error(err))
		return
	}
	if active == nil {
		return
	}
	if err := uc.repo.Resolve(ctx, active.ID); err != nil {
		uc.logger.Error("failed to resolve alert", zap.String("alert_id", active.ID), zap.Error(err))
		return
	}
	uc.publish(EventAlertResolved, active)
}

func (uc *alertUseCase) SweepLowStock(ctx context.Context) error {
	items, _, err := uc.invRepo.FindAll(ctx, &invdto.ItemFilters{LowStock: true})
	if err != nil {
		return fmt.Errorf("low stock sweep query failed: %w", err)
	}
	for i := range items {
		uc.CheckItem(ctx, &items[i])
	}
	return nil
}

func (uc *alertUseCase) SweepExpiring(ctx context.Context) error {
	items, _, err := uc.invRepo.FindAll(ctx, &invdto.ItemFilters{ExpiringWithinDays: uc.cfg.ExpiryHorizonDays})
	if err != nil {
		return fmt.Errorf("expiry sweep query failed: %w", err)
	}

	now := time.Now()
	for i := range items {
		item := &items[i]
		if item.ExpirationDate == nil || item.CurrentStock <= 0 {
			continue
		}
		daysLeft := int(item.ExpirationDate.Sub(now).Hours() / 24)

		severity := model.SeverityInfo
		switch {
		case daysLeft <= 3:
			severity = model.SeverityCritical
		case daysLeft <= 7:
			severity = model.SeverityWarning
		}

		message := fmt.Sprintf("stock expiring in %d day(s): %.3f %s on hand",
			daysLeft, item.CurrentStock, item.Unit)
		uc.raise(ctx, item, model.AlertTypeExpiry, severity, message)
	}
	return nil
}

func (uc *alertUseCase) ListActive(ctx context.Context, branchID string) ([]model.StockAlert, error) {
	return uc.repo.ListActive(ctx, branchID)
}

// raise inserts an alert unless an equivalent one is already active or was
// raised within the cooldown window. Severity escalation bypasses the cooldown.
func (uc *alertUseCase) raise(ctx context.Context, item *model.InventoryItem, alertType, severity, message string) {
	latest, err := uc.repo.GetLatestByItemAndType(ctx, item.ID, alertType)
	if err != nil {
		uc.logger.Error("failed to look up latest alert", zap.String("item_id", item.ID), zap.Error(err))
		return
	}
	if latest != nil {
		sameSeverity := latest.Severity == severity
		if latest.Status == model.AlertStatusActive && sameSeverity {
			return
		}
		withinCooldown := time.Since(latest.RaisedAt) < uc.cfg.Cooldown
		escalated := severityRank(severity) > severityRank(latest.Severity)
		if withinCooldown && !escalated {
			return
		}
		if latest.Status == model.AlertStatusActive && escalated {
			// Supersede the lower-severity alert.
			if err := uc.repo.Resolve(ctx, latest.ID); err != nil {
				uc.logger.Error("failed to supersede alert", zap.String("alert_id", latest.ID), zap.Error(err))
			}
		}
	}

	a := &model.StockAlert{
		ID:        uuid.New().String(),
		ItemID:    item.ID,
		BranchID:  item.BranchID,
		ProductID: item.ProductID,
		AlertType: alertType,
		Severity:  severity,
		Message:   message,
		Status:    model.AlertStatusActive,
		RaisedAt:  time.Now(),
	}
	if err := uc.repo.Insert(ctx, a); err != nil {
		uc.logger.Error("failed to insert alert", zap.String("item_id", item.ID), zap.Error(err))
		return
	}
	uc.publish(EventAlertRaised, a)
}

func severityRank(s string) int {
	switch s {
	case model.SeverityCritical:
		return 2
	case model.SeverityWarning:
		return 1
	default:
		return 0
	}
}

func (uc *alertUseCase) publish(eventType string, payload interface{}) {
	if uc.bus == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := uc.bus.Publish(ctx, TopicStockAlerts, eventType, payload); err != nil {
			uc.logger.Error("failed to publish alert event",
				zap.String("event_type", eventType), zap.Error(err))
		}
	}()
}
