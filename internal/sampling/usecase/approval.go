package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fauzanr/kurma-inventory-service/internal/errs"
	invdto "github.com/fauzanr/kurma-inventory-service/internal/inventory/dto"
	"github.com/fauzanr/kurma-inventory-service/internal/model"
	"github.com/fauzanr/kurma-inventory-service/internal/sampling/dto"
)

// endOfBusinessDay returns 23:59:59 on the request's local day; an unconsumed
// approval is worthless the next morning.
func endOfBusinessDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

func (uc *samplingUseCase) RequestApproval(ctx context.Context, input *dto.RequestApprovalInput) (*model.SamplingApproval, error) {
	if err := ValidateWeight(input.WeightGram); err != nil {
		return nil, err
	}
	if input.Justification == "" {
		return nil, errs.Validation("justification is required for an approval request")
	}

	at := uc.now()
	policy, err := uc.ResolvePolicy(ctx, input.BranchID, input.ProductID, at)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, errs.PolicyNotFound(input.BranchID, input.ProductID)
	}

	usage, err := uc.repo.DailyUsageGram(ctx, input.BranchID, input.ProductID, at)
	if err != nil {
		return nil, err
	}

	// Snapshot the monthly budget headroom so the approver sees the state at
	// request time, not at decision time.
	var remainingBudget *float64
	if policy.MonthlyBudget != nil {
		spent, err := uc.repo.MonthlyCost(ctx, input.BranchID, at)
		if err != nil {
			return nil, err
		}
		r := *policy.MonthlyBudget - spent
		remainingBudget = &r
	}

	approval := &model.SamplingApproval{
		BaseModel:              model.BaseModel{ID: uuid.New().String(), CreatedAt: at, UpdatedAt: at},
		BranchID:               input.BranchID,
		ProductID:              input.ProductID,
		SessionID:              input.SessionID,
		PolicyID:               policy.ID,
		Status:                 model.ApprovalStatusPending,
		RequestedWeightGram:    input.WeightGram,
		Justification:          input.Justification,
		DailyUsageSnapshotGram: usage,
		DailyLimitSnapshotGram: policy.DailyLimitGram,
		RemainingMonthlyBudget: remainingBudget,
		RequestedBy:            input.RequestedBy,
		ExpiresAt:              endOfBusinessDay(at),
	}

	if err := uc.repo.CreateApproval(ctx, approval); err != nil {
		return nil, err
	}

	if input.SessionID != nil {
		uc.holdSession(ctx, *input.SessionID)
	}

	uc.publish("sampling.approval.requested", approval)
	return approval, nil
}

// holdSession parks an active session in pending_approval while a request is
// open. Best effort: a session already past active is left alone.
func (uc *samplingUseCase) holdSession(ctx context.Context, sessionID string) {
	session, err := uc.repo.GetSessionByID(ctx, sessionID)
	if err != nil || session == nil {
		return
	}
	if !model.CanTransitionSession(session.Status, model.SessionStatusPendingApproval) {
		return
	}
	session.Status = model.SessionStatusPendingApproval
	session.UpdatedAt = uc.now()
	if err := uc.repo.UpdateSession(ctx, session); err != nil {
		uc.logger.Error("failed to hold session for approval",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (uc *samplingUseCase) Approve(ctx context.Context, input *dto.ApproveInput) (*model.SamplingApproval, error) {
	approval, err := uc.loadPending(ctx, input.ApprovalID)
	if err != nil {
		return nil, err
	}
	if input.Approver == approval.RequestedBy {
		return nil, errs.Validation("an approval request cannot be decided by its requester")
	}

	grantedWeight := approval.RequestedWeightGram
	if input.ApprovedWeightGram != nil {
		grantedWeight = *input.ApprovedWeightGram
		if err := ValidateWeight(grantedWeight); err != nil {
			return nil, err
		}
		if grantedWeight > approval.RequestedWeightGram {
			return nil, errs.Validation("approved weight cannot exceed the requested weight")
		}
	}

	now := uc.now()
	approval.Status = model.ApprovalStatusApproved
	approval.ApprovedBy = &input.Approver
	approval.ApprovedWeightGram = &grantedWeight
	approval.DecisionNotes = input.Notes
	approval.DecidedAt = &now
	approval.UpdatedAt = now

	if err := uc.repo.UpdateApproval(ctx, approval); err != nil {
		return nil, err
	}

	uc.resumeSession(ctx, approval)
	uc.publish("sampling.approval.approved", approval)
	return approval, nil
}

func (uc *samplingUseCase) Reject(ctx context.Context, approvalID, approver, reason string) (*model.SamplingApproval, error) {
	approval, err := uc.loadPending(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if approver == approval.RequestedBy {
		return nil, errs.Validation("an approval request cannot be decided by its requester")
	}

	now := uc.now()
	approval.Status = model.ApprovalStatusRejected
	approval.ApprovedBy = &approver
	approval.DecisionNotes = &reason
	approval.DecidedAt = &now
	approval.UpdatedAt = now

	if err := uc.repo.UpdateApproval(ctx, approval); err != nil {
		return nil, err
	}

	uc.resumeSession(ctx, approval)
	uc.publish("sampling.approval.rejected", approval)
	return approval, nil
}

func (uc *samplingUseCase) loadPending(ctx context.Context, approvalID string) (*model.SamplingApproval, error) {
	approval, err := uc.repo.GetApprovalByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if approval == nil {
		return nil, errs.NotFound("sampling approval", approvalID)
	}
	if approval.Status != model.ApprovalStatusPending {
		return nil, errs.AlreadyProcessed("sampling approval", approvalID, approval.Status)
	}
	if uc.now().After(approval.ExpiresAt) {
		return nil, errs.Expired("sampling approval", approvalID, approval.ExpiresAt)
	}
	return approval, nil
}

func (uc *samplingUseCase) resumeSession(ctx context.Context, approval *model.SamplingApproval) {
	if approval.SessionID == nil {
		return
	}
	session, err := uc.repo.GetSessionByID(ctx, *approval.SessionID)
	if err != nil || session == nil || session.Status != model.SessionStatusPendingApproval {
		return
	}
	session.Status = model.SessionStatusActive
	session.UpdatedAt = uc.now()
	if err := uc.repo.UpdateSession(ctx, session); err != nil {
		uc.logger.Error("failed to resume held session",
			zap.String("session_id", session.ID), zap.Error(err))
	}
}

// ConsumeApproval draws down an approved allotment, deducting the used weight
// from stock. Multiple partial draws are allowed until the allotment or the
// expiry runs out.
func (uc *samplingUseCase) ConsumeApproval(ctx context.Context, approvalID string, usedWeightGram float64) (*model.SamplingApproval, error) {
	if err := ValidateWeight(usedWeightGram); err != nil {
		return nil, err
	}

	approval, err := uc.repo.GetApprovalByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if approval == nil {
		return nil, errs.NotFound("sampling approval", approvalID)
	}
	if approval.Status != model.ApprovalStatusApproved {
		return nil, errs.AlreadyProcessed("sampling approval", approvalID, approval.Status)
	}
	if uc.now().After(approval.ExpiresAt) {
		return nil, errs.Expired("sampling approval", approvalID, approval.ExpiresAt)
	}

	granted := approval.RequestedWeightGram
	if approval.ApprovedWeightGram != nil {
		granted = *approval.ApprovedWeightGram
	}
	if approval.UsedWeightGram+usedWeightGram > granted {
		return nil, errs.Validation("used weight exceeds the approved allotment").
			With("approval_id", approvalID).
			With("granted_gram", granted).
			With("used_gram", approval.UsedWeightGram).
			With("requested_gram", usedWeightGram)
	}

	lot, err := uc.invUC.BestLot(ctx, approval.BranchID, approval.ProductID)
	if err != nil {
		return nil, err
	}
	if lot == nil {
		return nil, errs.InsufficientStock(approval.ProductID, usedWeightGram, 0).
			With("branch_id", approval.BranchID)
	}

	if _, _, err := uc.invUC.AdjustStock(ctx, &invdto.AdjustStockInput{
		ItemID:        lot.ID,
		Quantity:      usedWeightGram,
		MovementType:  model.MovementSampling,
		Reason:        "approved sampling draw",
		ReferenceID:   approval.ID,
		ReferenceType: "sampling_approval",
		UserID:        approval.RequestedBy,
	}); err != nil {
		return nil, err
	}

	approval.UsedWeightGram += usedWeightGram
	approval.UpdatedAt = uc.now()
	if err := uc.repo.UpdateApproval(ctx, approval); err != nil {
		return nil, err
	}

	uc.publish("sampling.approval.consumed", approval)
	return approval, nil
}

// ExpireStale moves every past-due pending approval to expired. Safe to run
// repeatedly; already-decided approvals are never touched.
func (uc *samplingUseCase) ExpireStale(ctx context.Context) (int, error) {
	now := uc.now()
	stale, err := uc.repo.ListPendingExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range stale {
		approval := &stale[i]
		if !model.CanTransitionApproval(approval.Status, model.ApprovalStatusExpired) {
			continue
		}
		approval.Status = model.ApprovalStatusExpired
		approval.UpdatedAt = now
		if err := uc.repo.UpdateApproval(ctx, approval); err != nil {
			uc.logger.Error("failed to expire approval",
				zap.String("approval_id", approval.ID), zap.Error(err))
			continue
		}
		uc.resumeSession(ctx, approval)
		uc.publish("sampling.approval.expired", approval)
		expired++
	}
	return expired, nil
}
