package listener

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/fauzanr/kurma-inventory-service/internal/inventory"
	"github.com/fauzanr/kurma-inventory-service/internal/inventory/dto"
	"github.com/fauzanr/kurma-inventory-service/internal/model"
	"github.com/fauzanr/kurma-inventory-service/pkg/broker"
	"github.com/fauzanr/kurma-inventory-service/pkg/logger"
)

// SaleListener consumes order events and deducts sold quantities from the ledger.
type SaleListener struct {
	consumer *broker.KafkaConsumer
	uc       inventory.UseCase
	logger   logger.ZapLogger
}

func NewSaleListener(consumer *broker.KafkaConsumer, uc inventory.UseCase, log logger.ZapLogger) *SaleListener {
	return &SaleListener{
		consumer: consumer,
		uc:       uc,
		logger:   log,
	}
}

func (l *SaleListener) Start(ctx context.Context) {
	l.logger.Info("Starting sale deduction listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping sale deduction listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

type OrderCreatedEvent struct {
	EventID   string       `json:"event_id"`
	EventType string       `json:"event_type"`
	Payload   OrderPayload `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

type OrderPayload struct {
	ID       string             `json:"id"`
	BranchID string             `json:"branch_id"`
	Items    []OrderItemPayload `json:"items"`
}

type OrderItemPayload struct {
	ProductID   string  `json:"product_id"`
	BatchNumber *string `json:"batch_number"`
	Quantity    float64 `json:"quantity"`
}

func (l *SaleListener) processMessage(ctx context.Context, value []byte) {
	var event OrderCreatedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	if event.EventType != "OrderCreated" {
		return
	}

	l.logger.Info("Processing OrderCreated event", zap.String("order_id", event.Payload.ID))

	for _, orderItem := range event.Payload.Items {
		item, err := l.resolveItem(ctx, event.Payload.BranchID, orderItem)
		if err != nil {
			l.logger.Error("Failed to resolve inventory item for sale",
				zap.String("order_id", event.Payload.ID),
				zap.String("product_id", orderItem.ProductID),
				zap.Error(err),
			)
			continue
		}
		if item == nil {
			l.logger.Warn("No inventory item for sold product",
				zap.String("order_id", event.Payload.ID),
				zap.String("product_id", orderItem.ProductID),
			)
			continue
		}

		input := &dto.AdjustStockInput{
			ItemID:        item.ID,
			Quantity:      orderItem.Quantity,
			MovementType:  model.MovementOutgoing,
			Reason:        "order sale",
			ReferenceID:   event.Payload.ID,
			ReferenceType: "sale",
			UserID:        "system",
		}

		if _, _, err := l.uc.AdjustStock(ctx, input); err != nil {
			l.logger.Error("Failed to deduct stock for order item",
				zap.String("order_id", event.Payload.ID),
				zap.String("item_id", item.ID),
				zap.Error(err),
			)
		}
	}
}

func (l *SaleListener) resolveItem(ctx context.Context, branchID string, orderItem OrderItemPayload) (*model.InventoryItem, error) {
	if orderItem.BatchNumber != nil {
		return l.uc.GetItemByKey(ctx, branchID, orderItem.ProductID, orderItem.BatchNumber)
	}
	item, err := l.uc.GetItemByKey(ctx, branchID, orderItem.ProductID, nil)
	if err != nil || item != nil {
		return item, err
	}
	// Batch-tracked products have no batchless row; sell from the best lot.
	return l.uc.BestLot(ctx, branchID, orderItem.ProductID)
}
