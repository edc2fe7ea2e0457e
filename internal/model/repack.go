package model

import "time"

// Repack order statuses.
const (
	RepackStatusPlanned    = "planned"
	RepackStatusInProgress = "in_progress"
	RepackStatusCompleted  = "completed"
	RepackStatusCancelled  = "cancelled"
)

// ValidRepackTransitions lists the allowed status moves. Completed and cancelled
// are terminal.
var ValidRepackTransitions = map[string][]string{
	RepackStatusPlanned:    {RepackStatusInProgress, RepackStatusCancelled},
	RepackStatusInProgress: {RepackStatusCompleted, RepackStatusCancelled},
}

// CanTransitionRepack reports whether moving from one repack status to another is legal.
func CanTransitionRepack(from, to string) bool {
	for _, s := range ValidRepackTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// RepackOrder converts N source inventory lots into one target product.
type RepackOrder struct {
	BaseModel
	BranchID         string     `db:"branch_id" json:"branch_id"`
	Status           string     `db:"status" json:"status"`
	TargetProductID  string     `db:"target_product_id" json:"target_product_id"`
	TargetUnit       string     `db:"target_unit" json:"target_unit"`
	ExpectedQuantity float64    `db:"expected_quantity" json:"expected_quantity"`
	ActualQuantity   *float64   `db:"actual_quantity" json:"actual_quantity"`
	ScheduleDate     time.Time  `db:"schedule_date" json:"schedule_date"`
	RequestedBy      string     `db:"requested_by" json:"requested_by"`
	PerformedBy      *string    `db:"performed_by" json:"performed_by"`
	SupervisedBy     *string    `db:"supervised_by" json:"supervised_by"`
	StartedAt        *time.Time `db:"started_at" json:"started_at"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at"`
	Notes            *string    `db:"notes" json:"notes"`
	SourceItems      []RepackSourceItem `db:"-" json:"source_items"`
}

// RepackSourceItem is one ordered source line of a repack order.
type RepackSourceItem struct {
	ID               string   `db:"id" json:"id"`
	OrderID          string   `db:"order_id" json:"order_id"`
	ItemID           string   `db:"item_id" json:"item_id"`
	ProductID        string   `db:"product_id" json:"product_id"`
	RequiredQuantity float64  `db:"required_quantity" json:"required_quantity"`
	ActualQuantity   *float64 `db:"actual_quantity" json:"actual_quantity"`
	SortOrder        int      `db:"sort_order" json:"sort_order"`
}
