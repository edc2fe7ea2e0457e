package dto

import "time"

type CreatePolicyInput struct {
	BranchID                  string
	ProductID                 *string
	CategoryID                *string
	DailyLimitGram            float64
	MaxPerSessionGram         float64
	CostPerGram               float64
	MonthlyBudget             *float64
	AllowedStartHour          int
	AllowedEndHour            int
	WeekendEnabled            bool
	RequiresApprovalAboveGram float64
	AutoApproveBelowGram      float64
	EffectiveFrom             time.Time
	EffectiveUntil            *time.Time
}

type RecordSamplingInput struct {
	SessionID        string
	BranchID         string
	ProductID        string
	BatchNumber      *string
	WeightGram       float64
	ProductCondition string
	CustomerResponse *string
	ResultedInSale   bool
	SaleAmount       *float64
	Justification    string // carried onto the approval request when escalated
	RecordedBy       string
}

type StartSessionInput struct {
	BranchID    string
	ConductedBy string
	Weather     *string
	FootTraffic *string
}

type RequestApprovalInput struct {
	BranchID      string
	ProductID     string
	SessionID     *string
	WeightGram    float64
	Justification string
	RequestedBy   string
}

type ApproveInput struct {
	ApprovalID         string
	Approver           string
	ApprovedWeightGram *float64 // nil defaults to the requested weight
	Notes              *string
}
