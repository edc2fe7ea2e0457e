package dto

import "time"

type CreateOrderInput struct {
	BranchID         string
	TargetProductID  string
	TargetUnit       string
	ExpectedQuantity float64
	ScheduleDate     time.Time
	SourceItems      []SourceItemInput
	RequestedBy      string
	SupervisedBy     *string
	Notes            *string
}

type SourceItemInput struct {
	ItemID           string
	RequiredQuantity float64
}

type CompleteOrderInput struct {
	OrderID        string
	ActualQuantity float64 // actual target output
	SourceResults  []SourceResult
	PerformedBy    string
	Notes          *string
}

type SourceResult struct {
	ItemID         string
	ActualQuantity float64 // actually consumed; may be under the reservation
}
