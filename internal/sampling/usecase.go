package sampling

import (
	"context"
	"time"

	"github.com/fauzanr/kurma-inventory-service/internal/model"
	"github.com/fauzanr/kurma-inventory-service/internal/sampling/dto"
)

type UseCase interface {
	// Policies
	CreatePolicy(ctx context.Context, input *dto.CreatePolicyInput) (*model.SamplingPolicy, error)
	ResolvePolicy(ctx context.Context, branchID, productID string, at time.Time) (*model.SamplingPolicy, error)
	CheckLimits(ctx context.Context, branchID, productID string, weightGram float64, at time.Time) (*dto.Decision, error)

	// Records
	RecordSampling(ctx context.Context, input *dto.RecordSamplingInput) (*model.SamplingRecord, error)
	DeleteRecord(ctx context.Context, recordID, userID string) error

	// Sessions
	StartSession(ctx context.Context, input *dto.StartSessionInput) (*model.SamplingSession, error)
	CompleteSession(ctx context.Context, sessionID, userID string) (*model.SamplingSession, error)
	CancelSession(ctx context.Context, sessionID, reason, userID string) (*model.SamplingSession, error)

	// Approval workflow
	RequestApproval(ctx context.Context, input *dto.RequestApprovalInput) (*model.SamplingApproval, error)
	Approve(ctx context.Context, input *dto.ApproveInput) (*model.SamplingApproval, error)
	Reject(ctx context.Context, approvalID, approver, reason string) (*model.SamplingApproval, error)
	ConsumeApproval(ctx context.Context, approvalID string, usedWeightGram float64) (*model.SamplingApproval, error)
	ExpireStale(ctx context.Context) (int, error)

	// Reporting
	DailyReport(ctx context.Context, branchID string, day time.Time) (*dto.DailyReport, error)
}
