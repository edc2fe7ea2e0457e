package model

import "time"

// Weight bounds for a single weighed sample, in grams.
const (
	MinSampleWeightGram = 0.001
	MaxSampleWeightGram = 100.0
)

// SamplingPolicy bounds sampling behavior for a branch, optionally narrowed to a
// single product or category. A branch-wide policy has nil product and category
// and acts as the fallback.
type SamplingPolicy struct {
	BaseModel
	BranchID                 string     `db:"branch_id" json:"branch_id"`
	ProductID                *string    `db:"product_id" json:"product_id"`
	CategoryID               *string    `db:"category_id" json:"category_id"`
	DailyLimitGram           float64    `db:"daily_limit_gram" json:"daily_limit_gram"`
	MaxPerSessionGram        float64    `db:"max_per_session_gram" json:"max_per_session_gram"`
	CostPerGram              float64    `db:"cost_per_gram" json:"cost_per_gram"`
	MonthlyBudget            *float64   `db:"monthly_budget" json:"monthly_budget"`
	AllowedStartHour         int        `db:"allowed_start_hour" json:"allowed_start_hour"`
	AllowedEndHour           int        `db:"allowed_end_hour" json:"allowed_end_hour"`
	WeekendEnabled           bool       `db:"weekend_enabled" json:"weekend_enabled"`
	RequiresApprovalAboveGram float64   `db:"requires_approval_above_gram" json:"requires_approval_above_gram"`
	AutoApproveBelowGram     float64    `db:"auto_approve_below_gram" json:"auto_approve_below_gram"`
	IsActive                 bool       `db:"is_active" json:"is_active"`
	EffectiveFrom            time.Time  `db:"effective_from" json:"effective_from"`
	EffectiveUntil           *time.Time `db:"effective_until" json:"effective_until"`
}

// Valid checks the policy's internal constraints.
func (p *SamplingPolicy) Valid() bool {
	return p.MaxPerSessionGram <= p.DailyLimitGram &&
		p.AutoApproveBelowGram < p.RequiresApprovalAboveGram
}

// EffectiveAt reports whether the policy applies at the given time.
func (p *SamplingPolicy) EffectiveAt(t time.Time) bool {
	if !p.IsActive || t.Before(p.EffectiveFrom) {
		return false
	}
	return p.EffectiveUntil == nil || !t.After(*p.EffectiveUntil)
}

// Sampling session statuses.
const (
	SessionStatusActive          = "active"
	SessionStatusPendingApproval = "pending_approval"
	SessionStatusCompleted       = "completed"
	SessionStatusCancelled       = "cancelled"
)

var ValidSessionTransitions = map[string][]string{
	SessionStatusActive:          {SessionStatusPendingApproval, SessionStatusCompleted, SessionStatusCancelled},
	SessionStatusPendingApproval: {SessionStatusActive, SessionStatusCompleted, SessionStatusCancelled},
}

func CanTransitionSession(from, to string) bool {
	for _, s := range ValidSessionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SamplingSession groups the sample records conducted together at one branch by
// one actor.
type SamplingSession struct {
	BaseModel
	BranchID        string     `db:"branch_id" json:"branch_id"`
	Status          string     `db:"status" json:"status"`
	ConductedBy     string     `db:"conducted_by" json:"conducted_by"`
	TotalWeightGram float64    `db:"total_weight_gram" json:"total_weight_gram"`
	TotalCost       float64    `db:"total_cost" json:"total_cost"`
	ItemCount       int        `db:"item_count" json:"item_count"`
	CustomerCount   int        `db:"customer_count" json:"customer_count"`
	Weather         *string    `db:"weather" json:"weather"`
	FootTraffic     *string    `db:"foot_traffic" json:"foot_traffic"`
	ApprovedBy      *string    `db:"approved_by" json:"approved_by"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approved_at"`
	ApprovalNotes   *string    `db:"approval_notes" json:"approval_notes"`
	StartedAt       time.Time  `db:"started_at" json:"started_at"`
	EndedAt         *time.Time `db:"ended_at" json:"ended_at"`
}

// SamplingRecord is one weighed sample event.
type SamplingRecord struct {
	BaseModel
	SessionID        string   `db:"session_id" json:"session_id"`
	BranchID         string   `db:"branch_id" json:"branch_id"`
	ProductID        string   `db:"product_id" json:"product_id"`
	ItemID           *string  `db:"item_id" json:"item_id"`
	BatchNumber      *string  `db:"batch_number" json:"batch_number"`
	WeightGram       float64  `db:"weight_gram" json:"weight_gram"`
	UnitCostPerGram  float64  `db:"unit_cost_per_gram" json:"unit_cost_per_gram"`
	TotalCost        float64  `db:"total_cost" json:"total_cost"`
	ProductCondition string   `db:"product_condition" json:"product_condition"`
	CustomerResponse *string  `db:"customer_response" json:"customer_response"`
	ResultedInSale   bool     `db:"resulted_in_sale" json:"resulted_in_sale"`
	SaleAmount       *float64 `db:"sale_amount" json:"sale_amount"`
	Flagged          bool     `db:"flagged" json:"flagged"`
	RecordedBy       string   `db:"recorded_by" json:"recorded_by"`
}

// Sampling approval statuses.
const (
	ApprovalStatusPending  = "pending"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"
	ApprovalStatusExpired  = "expired"
)

var ValidApprovalTransitions = map[string][]string{
	ApprovalStatusPending: {ApprovalStatusApproved, ApprovalStatusRejected, ApprovalStatusExpired},
}

func CanTransitionApproval(from, to string) bool {
	for _, s := range ValidApprovalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SamplingApproval is a request to exceed normal sampling limits. Approved
// requests carry an allotment that Consume draws down until expiry.
type SamplingApproval struct {
	BaseModel
	BranchID              string     `db:"branch_id" json:"branch_id"`
	ProductID             string     `db:"product_id" json:"product_id"`
	SessionID             *string    `db:"session_id" json:"session_id"`
	PolicyID              string     `db:"policy_id" json:"policy_id"`
	Status                string     `db:"status" json:"status"`
	RequestedWeightGram   float64    `db:"requested_weight_gram" json:"requested_weight_gram"`
	Justification         string     `db:"justification" json:"justification"`
	DailyUsageSnapshotGram float64   `db:"daily_usage_snapshot_gram" json:"daily_usage_snapshot_gram"`
	DailyLimitSnapshotGram float64   `db:"daily_limit_snapshot_gram" json:"daily_limit_snapshot_gram"`
	RemainingMonthlyBudget *float64  `db:"remaining_monthly_budget" json:"remaining_monthly_budget"`
	RequestedBy           string     `db:"requested_by" json:"requested_by"`
	ApprovedBy            *string    `db:"approved_by" json:"approved_by"`
	ApprovedWeightGram    *float64   `db:"approved_weight_gram" json:"approved_weight_gram"`
	UsedWeightGram        float64    `db:"used_weight_gram" json:"used_weight_gram"`
	DecisionNotes         *string    `db:"decision_notes" json:"decision_notes"`
	DecidedAt             *time.Time `db:"decided_at" json:"decided_at"`
	ExpiresAt             time.Time  `db:"expires_at" json:"expires_at"`
}
