package sampling

import (
	"context"
	"time"

	"github.com/fauzanr/kurma-inventory-service/internal/model"
	"github.com/fauzanr/kurma-inventory-service/internal/sampling/dto"
)

type Repository interface {
	// Policies
	CreatePolicy(ctx context.Context, policy *model.SamplingPolicy) error
	UpdatePolicy(ctx context.Context, policy *model.SamplingPolicy) error
	GetPolicyByID(ctx context.Context, id string) (*model.SamplingPolicy, error)
	// FindActivePolicies returns every active, currently-effective policy for a
	// branch; precedence resolution happens in the usecase.
	FindActivePolicies(ctx context.Context, branchID string, at time.Time) ([]model.SamplingPolicy, error)

	// Sessions
	CreateSession(ctx context.Context, session *model.SamplingSession) error
	GetSessionByID(ctx context.Context, id string) (*model.SamplingSession, error)
	UpdateSession(ctx context.Context, session *model.SamplingSession) error

	// Records
	CreateRecord(ctx context.Context, record *model.SamplingRecord) error
	GetRecordByID(ctx context.Context, id string) (*model.SamplingRecord, error)
	DeleteRecord(ctx context.Context, id string) error
	ListRecords(ctx context.Context, filters *dto.RecordFilters) ([]model.SamplingRecord, int, error)

	// Usage aggregates. Only records belonging to active/completed sessions count.
	DailyUsageGram(ctx context.Context, branchID, productID string, day time.Time) (float64, error)
	MonthlyCost(ctx context.Context, branchID string, month time.Time) (float64, error)
	DailyReport(ctx context.Context, branchID string, day time.Time) (*dto.DailyReport, error)

	// Approvals
	CreateApproval(ctx context.Context, approval *model.SamplingApproval) error
	GetApprovalByID(ctx context.Context, id string) (*model.SamplingApproval, error)
	UpdateApproval(ctx context.Context, approval *model.SamplingApproval) error
	ListPendingExpired(ctx context.Context, asOf time.Time) ([]model.SamplingApproval, error)
}
