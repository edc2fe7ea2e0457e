package model

import "time"

// InventoryItem is one stock record per (product, branch, batch-or-null).
// Created on first receipt, never hard-deleted; stock may reach zero but the row
// stays for audit and batch tracking.
type InventoryItem struct {
	BaseModel
	BranchID         string     `db:"branch_id" json:"branch_id"`
	ProductID        string     `db:"product_id" json:"product_id"`
	CategoryID       *string    `db:"category_id" json:"category_id"`
	BatchNumber      *string    `db:"batch_number" json:"batch_number"`
	LotID            *string    `db:"lot_id" json:"lot_id"`
	CurrentStock     float64    `db:"current_stock" json:"current_stock"`
	ReservedStock    float64    `db:"reserved_stock" json:"reserved_stock"`
	AvailableStock   float64    `db:"available_stock" json:"available_stock"` // Generated column
	Unit             string     `db:"unit" json:"unit"`
	MinStockLevel    float64    `db:"min_stock_level" json:"min_stock_level"`
	MaxStockLevel    float64    `db:"max_stock_level" json:"max_stock_level"`
	ReorderPoint     float64    `db:"reorder_point" json:"reorder_point"`
	ReorderQuantity  float64    `db:"reorder_quantity" json:"reorder_quantity"`
	UnitCost         float64    `db:"unit_cost" json:"unit_cost"`
	AverageCost      float64    `db:"average_cost" json:"average_cost"`
	ExpirationDate   *time.Time `db:"expiration_date" json:"expiration_date"`
	PhysicalLocation *string    `db:"physical_location" json:"physical_location"`
}

// Available computes current minus reserved. The DB keeps available_stock as a
// generated column; in-memory mutations must go through this instead.
func (i *InventoryItem) Available() float64 {
	return i.CurrentStock - i.ReservedStock
}

// CheckInvariants reports whether the stock counters are internally consistent.
func (i *InventoryItem) CheckInvariants() bool {
	return i.CurrentStock >= 0 &&
		i.ReservedStock >= 0 &&
		i.ReservedStock <= i.CurrentStock
}

// Movement kinds. Quantity is always stored absolute; the kind carries direction.
const (
	MovementIncoming   = "incoming"
	MovementOutgoing   = "outgoing"
	MovementAdjustment = "adjustment" // sets stock to an exact value
	MovementTransfer   = "transfer"
	MovementRepackIn   = "repack_in"  // production onto the target item
	MovementRepackOut  = "repack_out" // consumption from a source item
	MovementSampling   = "sampling"
	MovementWaste      = "waste"
	MovementReturn     = "return"
)

// movementDirections maps each kind to its stock effect: +1 increases, -1
// decreases, 0 means the quantity is an absolute replacement value.
var movementDirections = map[string]int{
	MovementIncoming:   +1,
	MovementOutgoing:   -1,
	MovementAdjustment: 0,
	MovementTransfer:   -1,
	MovementRepackIn:   +1,
	MovementRepackOut:  -1,
	MovementSampling:   -1,
	MovementWaste:      -1,
	MovementReturn:     +1,
}

// MovementDirection returns the stock effect for a kind and whether the kind is known.
func MovementDirection(kind string) (int, bool) {
	d, ok := movementDirections[kind]
	return d, ok
}

// StockMovement is an immutable audit record. Rows are inserted in the same
// transaction as the stock change and never updated or deleted.
type StockMovement struct {
	ID            string    `db:"id" json:"id"`
	ItemID        string    `db:"item_id" json:"item_id"`
	BranchID      string    `db:"branch_id" json:"branch_id"`
	ProductID     string    `db:"product_id" json:"product_id"`
	MovementType  string    `db:"movement_type" json:"movement_type"`
	Quantity      float64   `db:"quantity" json:"quantity"` // always absolute
	PreviousStock float64   `db:"previous_stock" json:"previous_stock"`
	NewStock      float64   `db:"new_stock" json:"new_stock"`
	Reason        string    `db:"reason" json:"reason"`
	ReferenceType *string   `db:"reference_type" json:"reference_type"`
	ReferenceID   *string   `db:"reference_id" json:"reference_id"`
	Notes         *string   `db:"notes" json:"notes"`
	CreatedBy     *string   `db:"created_by" json:"created_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Consistent reports whether the before/after levels agree with (kind, quantity).
func (m *StockMovement) Consistent() bool {
	dir, ok := MovementDirection(m.MovementType)
	if !ok || m.Quantity < 0 {
		return false
	}
	switch dir {
	case +1:
		return floatEq(m.NewStock-m.PreviousStock, m.Quantity)
	case -1:
		return floatEq(m.PreviousStock-m.NewStock, m.Quantity)
	default:
		return floatEq(m.NewStock, m.Quantity)
	}
}

func floatEq(a, b float64) bool {
	const eps = 1e-9
	d := a - b
	return d < eps && d > -eps
}
