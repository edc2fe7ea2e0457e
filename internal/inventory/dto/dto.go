package dto

import "time"

type ItemFilters struct {
	BranchID           string
	ProductID          string
	BatchNumber        *string
	CategoryID         string
	LowStock           bool // available_stock <= reorder_point
	ExpiringWithinDays int  // 0 disables the expiry filter
	SearchQuery        string
	Page               int
	PageSize           int
}

type MovementFilters struct {
	BranchID     string
	ItemID       string
	ProductID    string
	MovementType string
	StartDate    *time.Time
	EndDate      *time.Time
	Page         int
	PageSize     int
}
