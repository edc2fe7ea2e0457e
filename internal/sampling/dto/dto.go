package dto

import "time"

// Decision is the outcome of a policy limit check.
type Decision struct {
	Allowed              bool    `json:"allowed"`
	Reason               string  `json:"reason"`
	RequiresApproval     bool    `json:"requires_approval"`
	Flagged              bool    `json:"flagged"` // allowed but marked for review
	RemainingDailyGram   float64 `json:"remaining_daily_gram"`
	RemainingSessionGram float64 `json:"remaining_session_gram"`
}

type RecordFilters struct {
	BranchID  string
	SessionID string
	ProductID string
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PageSize  int
}

type DailyReport struct {
	BranchID        string  `json:"branch_id"`
	Date            string  `json:"date"`
	TotalWeightGram float64 `json:"total_weight_gram"`
	TotalCost       float64 `json:"total_cost"`
	RecordCount     int     `json:"record_count"`
	SessionCount    int     `json:"session_count"`
	SaleConversions int     `json:"sale_conversions"`
}
