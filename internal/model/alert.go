package model

import "time"

// Alert types and severities.
const (
	AlertTypeLowStock = "low_stock"
	AlertTypeExpiry   = "expiry"

	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"

	AlertStatusActive   = "active"
	AlertStatusResolved = "resolved"
)

// StockAlert is a persisted, queryable alert raised by the threshold monitor.
type StockAlert struct {
	ID         string     `db:"id" json:"id"`
	ItemID     string     `db:"item_id" json:"item_id"`
	BranchID   string     `db:"branch_id" json:"branch_id"`
	ProductID  string     `db:"product_id" json:"product_id"`
	AlertType  string     `db:"alert_type" json:"alert_type"`
	Severity   string     `db:"severity" json:"severity"`
	Message    string     `db:"message" json:"message"`
	Status     string     `db:"status" json:"status"`
	RaisedAt   time.Time  `db:"raised_at" json:"raised_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at"`
}
