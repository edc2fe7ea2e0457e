package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fauzanr/kurma-inventory-service/internal/errs"
	"github.com/fauzanr/kurma-inventory-service/internal/inventory"
	invdto "github.com/fauzanr/kurma-inventory-service/internal/inventory/dto"
	"github.com/fauzanr/kurma-inventory-service/internal/model"
	"github.com/fauzanr/kurma-inventory-service/internal/sampling"
	"github.com/fauzanr/kurma-inventory-service/internal/sampling/dto"
	"github.com/fauzanr/kurma-inventory-service/pkg/broker"
	"github.com/fauzanr/kurma-inventory-service/pkg/logger"
)

const TopicSamplingEvents = "sampling.events"

type samplingUseCase struct {
	repo   sampling.Repository
	invUC  inventory.UseCase
	bus    broker.Publisher
	logger logger.ZapLogger
	now    func() time.Time // swappable in tests
}

func NewSamplingUseCase(
	repo sampling.Repository,
	invUC inventory.UseCase,
	bus broker.Publisher,
	log logger.ZapLogger,
) sampling.UseCase {
	return &samplingUseCase{
		repo:   repo,
		invUC:  invUC,
		bus:    bus,
		logger: log,
		now:    time.Now,
	}
}

func (uc *samplingUseCase) CreatePolicy(ctx context.Context, input *dto.CreatePolicyInput) (*model.SamplingPolicy, error) {
	if input.DailyLimitGram <= 0 {
		return nil, errs.Validation("daily limit must be positive")
	}
	if input.MaxPerSessionGram > input.DailyLimitGram {
		return nil, errs.Validation("per-session limit cannot exceed the daily limit")
	}
	if input.AutoApproveBelowGram >= input.RequiresApprovalAboveGram {
		return nil, errs.Validation("auto-approve threshold must be strictly below the approval threshold")
	}
	if input.AllowedStartHour < 0 || input.AllowedEndHour > 24 || input.AllowedStartHour >= input.AllowedEndHour {
		return nil, errs.Validation("allowed hour window is invalid")
	}

	now := uc.now()
	policy := &model.SamplingPolicy{
		BaseModel:                 model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		BranchID:                  input.BranchID,
		ProductID:                 input.ProductID,
		CategoryID:                input.CategoryID,
		DailyLimitGram:            input.DailyLimitGram,
		MaxPerSessionGram:         input.MaxPerSessionGram,
		CostPerGram:               input.CostPerGram,
		MonthlyBudget:             input.MonthlyBudget,
		AllowedStartHour:          input.AllowedStartHour,
		AllowedEndHour:            input.AllowedEndHour,
		WeekendEnabled:            input.WeekendEnabled,
		RequiresApprovalAboveGram: input.RequiresApprovalAboveGram,
		AutoApproveBelowGram:      input.AutoApproveBelowGram,
		IsActive:                  true,
		EffectiveFrom:             input.EffectiveFrom,
		EffectiveUntil:            input.EffectiveUntil,
	}
	if policy.EffectiveFrom.IsZero() {
		policy.EffectiveFrom = now
	}

	if err := uc.repo.CreatePolicy(ctx, policy); err != nil {
		return nil, err
	}
	return policy, nil
}

// ResolvePolicy picks the most specific applicable policy: product-scoped wins
// over category-scoped, which wins over the branch-wide fallback.
func (uc *samplingUseCase) ResolvePolicy(ctx context.Context, branchID, productID string, at time.Time) (*model.SamplingPolicy, error) {
	policies, err := uc.repo.FindActivePolicies(ctx, branchID, at)
	if err != nil {
		return nil, err
	}

	var categoryMatch, branchWide *model.SamplingPolicy
	item, err := uc.invUC.GetItemByKey(ctx, branchID, productID, nil)
	if err != nil {
		return nil, err
	}

	for i := range policies {
		p := &policies[i]
		if p.ProductID != nil {
			if *p.ProductID == productID {
				return p, nil
			}
			continue
		}
		if p.CategoryID != nil {
			if item != nil && item.CategoryID != nil && *item.CategoryID == *p.CategoryID && categoryMatch == nil {
				categoryMatch = p
			}
			continue
		}
		if branchWide == nil {
			branchWide = p
		}
	}

	if categoryMatch != nil {
		return categoryMatch, nil
	}
	return branchWide, nil
}

// ValidateWeight enforces the per-sample bounds: [0.001, 100] grams at three
// decimal places, before any policy is consulted.
func ValidateWeight(weightGram float64) error {
	if weightGram < model.MinSampleWeightGram {
		return errs.WeightOutOfBounds(weightGram, fmt.Sprintf("below minimum %.3fg", model.MinSampleWeightGram))
	}
	if weightGram > model.MaxSampleWeightGram {
		return errs.WeightOutOfBounds(weightGram, fmt.Sprintf("above maximum %.3fg", model.MaxSampleWeightGram))
	}
	scaled := weightGram * 1000
	if math.Abs(scaled-math.Round(scaled)) > 1e-6 {
		return errs.WeightOutOfBounds(weightGram, "more than 3 decimal places")
	}
	return nil
}

func (uc *samplingUseCase) CheckLimits(ctx context.Context, branchID, productID string, weightGram float64, at time.Time) (*dto.Decision, error) {
	policy, err := uc.ResolvePolicy(ctx, branchID, productID, at)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, errs.PolicyNotFound(branchID, productID)
	}
	return uc.checkAgainstPolicy(ctx, policy, branchID, productID, weightGram, at)
}

func (uc *samplingUseCase) checkAgainstPolicy(ctx context.Context, policy *model.SamplingPolicy, branchID, productID string, weightGram float64, at time.Time) (*dto.Decision, error) {
	usage, err := uc.repo.DailyUsageGram(ctx, branchID, productID, at)
	if err != nil {
		return nil, err
	}

	decision := &dto.Decision{
		RemainingDailyGram:   math.Max(0, policy.DailyLimitGram-usage),
		RemainingSessionGram: math.Max(0, policy.MaxPerSessionGram-weightGram),
	}

	weekday := at.Weekday()
	isWeekend := weekday == time.Saturday || weekday == time.Sunday
	if isWeekend && !policy.WeekendEnabled {
		decision.Reason = "weekend sampling disabled for this policy"
		return decision, nil
	}

	hour := at.Hour()
	if hour < policy.AllowedStartHour || hour >= policy.AllowedEndHour {
		decision.Reason = fmt.Sprintf("outside allowed hours %02d:00-%02d:00",
			policy.AllowedStartHour, policy.AllowedEndHour)
		return decision, nil
	}

	// The per-session cap is a hard ceiling; it never escalates to approval.
	if weightGram > policy.MaxPerSessionGram {
		decision.Reason = fmt.Sprintf("weight %.3fg exceeds per-session cap %.3fg",
			weightGram, policy.MaxPerSessionGram)
		return decision, nil
	}

	// Under the auto-approve threshold nothing else blocks the sample.
	if weightGram < policy.AutoApproveBelowGram {
		decision.Allowed = true
		decision.Reason = "within auto-approve threshold"
		return decision, nil
	}

	exceedsDaily := usage+weightGram > policy.DailyLimitGram
	aboveApproval := weightGram > policy.RequiresApprovalAboveGram

	switch {
	case aboveApproval:
		decision.RequiresApproval = true
		decision.Reason = fmt.Sprintf("weight %.3fg above approval threshold %.3fg",
			weightGram, policy.RequiresApprovalAboveGram)
	case exceedsDaily:
		// Mid-band weight pushing past the daily limit: permitted but flagged.
		decision.Allowed = true
		decision.Flagged = true
		decision.Reason = fmt.Sprintf("daily limit %.3fg exceeded (usage %.3fg), permitted with flag",
			policy.DailyLimitGram, usage)
	default:
		// Mid-band under the daily limit. Allowed without approval, flagged for
		// review so the audit trail records the above-threshold weight.
		decision.Allowed = true
		decision.Flagged = true
		decision.Reason = "between auto-approve and approval thresholds, permitted with flag"
	}
	return decision, nil
}

func (uc *samplingUseCase) RecordSampling(ctx context.Context, input *dto.RecordSamplingInput) (*model.SamplingRecord, error) {
	if err := ValidateWeight(input.WeightGram); err != nil {
		return nil, err
	}

	session, err := uc.repo.GetSessionByID(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errs.NotFound("sampling session", input.SessionID)
	}
	if session.Status != model.SessionStatusActive {
		return nil, errs.InvalidStatusTransition("sampling session", session.ID, session.Status, "record")
	}

	at := uc.now()
	policy, err := uc.ResolvePolicy(ctx, input.BranchID, input.ProductID, at)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, errs.PolicyNotFound(input.BranchID, input.ProductID)
	}

	decision, err := uc.checkAgainstPolicy(ctx, policy, input.BranchID, input.ProductID, input.WeightGram, at)
	if err != nil {
		return nil, err
	}

	if !decision.Allowed {
		if decision.RequiresApproval {
			approval, err := uc.RequestApproval(ctx, &dto.RequestApprovalInput{
				BranchID:      input.BranchID,
				ProductID:     input.ProductID,
				SessionID:     &input.SessionID,
				WeightGram:    input.WeightGram,
				Justification: input.Justification,
				RequestedBy:   input.RecordedBy,
			})
			if err != nil {
				return nil, err
			}
			return nil, errs.RequiresApproval(approval.ID, input.WeightGram)
		}
		return nil, errs.SamplingNotAllowed(decision.Reason)
	}

	// Draw from the best lot available for the product.
	lot, err := uc.invUC.BestLot(ctx, input.BranchID, input.ProductID)
	if err != nil {
		return nil, err
	}
	if lot == nil {
		return nil, errs.InsufficientStock(input.ProductID, input.WeightGram, 0).
			With("branch_id", input.BranchID)
	}

	recordID := uuid.New().String()
	if _, _, err := uc.invUC.AdjustStock(ctx, &invdto.AdjustStockInput{
		ItemID:        lot.ID,
		Quantity:      input.WeightGram,
		MovementType:  model.MovementSampling,
		Reason:        "sampling giveaway",
		ReferenceID:   recordID,
		ReferenceType: "sampling_record",
		UserID:        input.RecordedBy,
	}); err != nil {
		return nil, err
	}

	record := &model.SamplingRecord{
		BaseModel:        model.BaseModel{ID: recordID, CreatedAt: at, UpdatedAt: at},
		SessionID:        session.ID,
		BranchID:         input.BranchID,
		ProductID:        input.ProductID,
		ItemID:           &lot.ID,
		BatchNumber:      lot.BatchNumber,
		WeightGram:       input.WeightGram,
		UnitCostPerGram:  policy.CostPerGram,
		TotalCost:        input.WeightGram * policy.CostPerGram,
		ProductCondition: input.ProductCondition,
		CustomerResponse: input.CustomerResponse,
		ResultedInSale:   input.ResultedInSale,
		SaleAmount:       input.SaleAmount,
		Flagged:          decision.Flagged,
		RecordedBy:       input.RecordedBy,
	}

	if err := uc.repo.CreateRecord(ctx, record); err != nil {
		// Compensate the deduction so stock is not silently lost.
		if _, _, rerr := uc.invUC.AdjustStock(ctx, &invdto.AdjustStockInput{
			ItemID:        lot.ID,
			Quantity:      input.WeightGram,
			MovementType:  model.MovementReturn,
			Reason:        "sampling record persist failed, reversing deduction",
			ReferenceID:   recordID,
			ReferenceType: "sampling_record",
			UserID:        input.RecordedBy,
		}); rerr != nil {
			uc.logger.Error("failed to reverse sampling deduction",
				zap.String("record_id", recordID), zap.Error(rerr))
		}
		return nil, err
	}

	session.TotalWeightGram += record.WeightGram
	session.TotalCost += record.TotalCost
	session.ItemCount++
	session.UpdatedAt = at
	if err := uc.repo.UpdateSession(ctx, session); err != nil {
		uc.logger.Error("failed to update session aggregates",
			zap.String("session_id", session.ID), zap.Error(err))
	}

	uc.publish("sampling.recorded", record)
	return record, nil
}

func (uc *samplingUseCase) DeleteRecord(ctx context.Context, recordID, userID string) error {
	record, err := uc.repo.GetRecordByID(ctx, recordID)
	if err != nil {
		return err
	}
	if record == nil {
		return errs.NotFound("sampling record", recordID)
	}

	// Restore the deducted stock with a reversing movement before dropping the row.
	if record.ItemID != nil {
		if _, _, err := uc.invUC.AdjustStock(ctx, &invdto.AdjustStockInput{
			ItemID:        *record.ItemID,
			Quantity:      record.WeightGram,
			MovementType:  model.MovementReturn,
			Reason:        "sampling record deleted",
			ReferenceID:   record.ID,
			ReferenceType: "sampling_record",
			UserID:        userID,
		}); err != nil {
			return err
		}
	}

	if err := uc.repo.DeleteRecord(ctx, recordID); err != nil {
		return err
	}

	session, err := uc.repo.GetSessionByID(ctx, record.SessionID)
	if err == nil && session != nil {
		session.TotalWeightGram -= record.WeightGram
		session.TotalCost -= record.TotalCost
		if session.ItemCount > 0 {
			session.ItemCount--
		}
		session.UpdatedAt = uc.now()
		if uerr := uc.repo.UpdateSession(ctx, session); uerr != nil {
			uc.logger.Error("failed to update session aggregates",
				zap.String("session_id", session.ID), zap.Error(uerr))
		}
	}

	uc.publish("sampling.record.deleted", record)
	return nil
}

func (uc *samplingUseCase) StartSession(ctx context.Context, input *dto.StartSessionInput) (*model.SamplingSession, error) {
	if input.BranchID == "" || input.ConductedBy == "" {
		return nil, errs.Validation("branch_id and conducted_by are required")
	}

	now := uc.now()
	session := &model.SamplingSession{
		BaseModel:   model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		BranchID:    input.BranchID,
		Status:      model.SessionStatusActive,
		ConductedBy: input.ConductedBy,
		Weather:     input.Weather,
		FootTraffic: input.FootTraffic,
		StartedAt:   now,
	}

	if err := uc.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	uc.publish("sampling.session.started", session)
	return session, nil
}

func (uc *samplingUseCase) CompleteSession(ctx context.Context, sessionID, userID string) (*model.SamplingSession, error) {
	return uc.endSession(ctx, sessionID, userID, model.SessionStatusCompleted, "")
}

func (uc *samplingUseCase) CancelSession(ctx context.Context, sessionID, reason, userID string) (*model.SamplingSession, error) {
	return uc.endSession(ctx, sessionID, userID, model.SessionStatusCancelled, reason)
}

func (uc *samplingUseCase) endSession(ctx context.Context, sessionID, userID, target, reason string) (*model.SamplingSession, error) {
	session, err := uc.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errs.NotFound("sampling session", sessionID)
	}
	if !model.CanTransitionSession(session.Status, target) {
		return nil, errs.InvalidStatusTransition("sampling session", sessionID, session.Status, target)
	}

	now := uc.now()
	session.Status = target
	session.EndedAt = &now
	session.UpdatedAt = now
	if reason != "" {
		session.ApprovalNotes = &reason
	}

	if err := uc.repo.UpdateSession(ctx, session); err != nil {
		return nil, err
	}

	uc.publish("sampling.session."+target, session)
	return session, nil
}

func (uc *samplingUseCase) DailyReport(ctx context.Context, branchID string, day time.Time) (*dto.DailyReport, error) {
	return uc.repo.DailyReport(ctx, branchID, day)
}

func (uc *samplingUseCase) publish(eventType string, payload interface{}) {
	if uc.bus == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := uc.bus.Publish(ctx, TopicSamplingEvents, eventType, payload); err != nil {
			uc.logger.Error("failed to publish sampling event",
				zap.String("event_type", eventType), zap.Error(err))
		}
	}()
}
