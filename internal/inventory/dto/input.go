package dto

import "time"

type CreateItemInput struct {
	BranchID         string
	ProductID        string
	CategoryID       *string
	BatchNumber      *string
	LotID            *string
	InitialStock     float64
	Unit             string
	MinStockLevel    float64
	MaxStockLevel    float64
	ReorderPoint     float64
	ReorderQuantity  float64
	UnitCost         float64
	ExpirationDate   *time.Time
	PhysicalLocation *string
	UserID           string
}

type AdjustStockInput struct {
	ItemID        string
	Quantity      float64 // absolute; MovementType carries direction
	MovementType  string
	Reason        string
	ReferenceID   string // order id, repack id, sampling record id
	ReferenceType string // 'sale', 'repack', 'sampling_record', 'sampling_approval'
	Notes         *string
	UserID        string
}

// UpdateItemFieldsInput is a partial update; nil pointers leave fields untouched.
type UpdateItemFieldsInput struct {
	ItemID           string
	MinStockLevel    *float64
	MaxStockLevel    *float64
	ReorderPoint     *float64
	ReorderQuantity  *float64
	UnitCost         *float64
	ExpirationDate   *time.Time
	PhysicalLocation *string
	BatchNumber      *string
	LotID            *string
	UserID           string
}
