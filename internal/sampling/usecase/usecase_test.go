package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fauzanr/kurma-inventory-service/internal/errs"
	"github.com/fauzanr/kurma-inventory-service/internal/inventory"
	invdto "github.com/fauzanr/kurma-inventory-service/internal/inventory/dto"
	"github.com/fauzanr/kurma-inventory-service/internal/model"
	"github.com/fauzanr/kurma-inventory-service/internal/sampling"
	"github.com/fauzanr/kurma-inventory-service/internal/sampling/dto"
	"github.com/fauzanr/kurma-inventory-service/pkg/logger"
)

// Wednesday inside business hours; the fixed clock keeps hour and weekday
// checks deterministic.
var wednesdayNoon = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

type memSamplingRepo struct {
	policies  []model.SamplingPolicy
	sessions  map[string]*model.SamplingSession
	records   map[string]*model.SamplingRecord
	approvals map[string]*model.SamplingApproval
}

func newMemSamplingRepo() *memSamplingRepo {
	return &memSamplingRepo{
		sessions:  make(map[string]*model.SamplingSession),
		records:   make(map[string]*model.SamplingRecord),
		approvals: make(map[string]*model.SamplingApproval),
	}
}

func (r *memSamplingRepo) CreatePolicy(_ context.Context, policy *model.SamplingPolicy) error {
	r.policies = append(r.policies, *policy)
	return nil
}

func (r *memSamplingRepo) UpdatePolicy(_ context.Context, policy *model.SamplingPolicy) error {
	for i := range r.policies {
		if r.policies[i].ID == policy.ID {
			r.policies[i] = *policy
		}
	}
	return nil
}

func (r *memSamplingRepo) GetPolicyByID(_ context.Context, id string) (*model.SamplingPolicy, error) {
	for i := range r.policies {
		if r.policies[i].ID == id {
			cp := r.policies[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memSamplingRepo) FindActivePolicies(_ context.Context, branchID string, at time.Time) ([]model.SamplingPolicy, error) {
	var out []model.SamplingPolicy
	for _, p := range r.policies {
		if p.BranchID == branchID && p.EffectiveAt(at) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memSamplingRepo) CreateSession(_ context.Context, session *model.SamplingSession) error {
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func (r *memSamplingRepo) GetSessionByID(_ context.Context, id string) (*model.SamplingSession, error) {
	session, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *session
	return &cp, nil
}

func (r *memSamplingRepo) UpdateSession(_ context.Context, session *model.SamplingSession) error {
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func (r *memSamplingRepo) CreateRecord(_ context.Context, record *model.SamplingRecord) error {
	cp := *record
	r.records[record.ID] = &cp
	return nil
}

func (r *memSamplingRepo) GetRecordByID(_ context.Context, id string) (*model.SamplingRecord, error) {
	record, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	cp := *record
	return &cp, nil
}

func (r *memSamplingRepo) DeleteRecord(_ context.Context, id string) error {
	delete(r.records, id)
	return nil
}

func (r *memSamplingRepo) ListRecords(_ context.Context, _ *dto.RecordFilters) ([]model.SamplingRecord, int, error) {
	out := make([]model.SamplingRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out, len(out), nil
}

func (r *memSamplingRepo) DailyUsageGram(_ context.Context, branchID, productID string, day time.Time) (float64, error) {
	var total float64
	for _, rec := range r.records {
		if rec.BranchID == branchID && rec.ProductID == productID &&
			rec.CreatedAt.Year() == day.Year() && rec.CreatedAt.YearDay() == day.YearDay() {
			total += rec.WeightGram
		}
	}
	return total, nil
}

func (r *memSamplingRepo) MonthlyCost(_ context.Context, branchID string, month time.Time) (float64, error) {
	var total float64
	for _, rec := range r.records {
		if rec.BranchID == branchID &&
			rec.CreatedAt.Year() == month.Year() && rec.CreatedAt.Month() == month.Month() {
			total += rec.TotalCost
		}
	}
	return total, nil
}

func (r *memSamplingRepo) DailyReport(_ context.Context, branchID string, day time.Time) (*dto.DailyReport, error) {
	report := &dto.DailyReport{BranchID: branchID, Date: day.Format("2006-01-02")}
	for _, rec := range r.records {
		if rec.BranchID != branchID || rec.CreatedAt.YearDay() != day.YearDay() {
			continue
		}
		report.TotalWeightGram += rec.WeightGram
		report.TotalCost += rec.TotalCost
		report.RecordCount++
		if rec.ResultedInSale {
			report.SaleConversions++
		}
	}
	return report, nil
}

func (r *memSamplingRepo) CreateApproval(_ context.Context, approval *model.SamplingApproval) error {
	cp := *approval
	r.approvals[approval.ID] = &cp
	return nil
}

func (r *memSamplingRepo) GetApprovalByID(_ context.Context, id string) (*model.SamplingApproval, error) {
	approval, ok := r.approvals[id]
	if !ok {
		return nil, nil
	}
	cp := *approval
	return &cp, nil
}

func (r *memSamplingRepo) UpdateApproval(_ context.Context, approval *model.SamplingApproval) error {
	cp := *approval
	r.approvals[approval.ID] = &cp
	return nil
}

func (r *memSamplingRepo) ListPendingExpired(_ context.Context, asOf time.Time) ([]model.SamplingApproval, error) {
	var out []model.SamplingApproval
	for _, a := range r.approvals {
		if a.Status == model.ApprovalStatusPending && a.ExpiresAt.Before(asOf) {
			out = append(out, *a)
		}
	}
	return out, nil
}

// fakeInventory covers the slice of the inventory contract the sampling flow
// touches: lot lookup and stock deduction.
type fakeInventory struct {
	inventory.UseCase
	items       map[string]*model.InventoryItem
	adjustments []invdto.AdjustStockInput
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{items: make(map[string]*model.InventoryItem)}
}

func (f *fakeInventory) seed(branchID, productID string, stock float64) *model.InventoryItem {
	item := &model.InventoryItem{
		BaseModel:    model.BaseModel{ID: uuid.New().String()},
		BranchID:     branchID,
		ProductID:    productID,
		CurrentStock: stock,
		Unit:         "g",
	}
	f.items[item.ID] = item
	return item
}

func (f *fakeInventory) GetItemByKey(_ context.Context, branchID, productID string, _ *string) (*model.InventoryItem, error) {
	for _, item := range f.items {
		if item.BranchID == branchID && item.ProductID == productID {
			cp := *item
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeInventory) BestLot(_ context.Context, branchID, productID string) (*model.InventoryItem, error) {
	for _, item := range f.items {
		if item.BranchID == branchID && item.ProductID == productID && item.CurrentStock > 0 {
			cp := *item
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeInventory) AdjustStock(_ context.Context, input *invdto.AdjustStockInput) (*model.InventoryItem, string, error) {
	item, ok := f.items[input.ItemID]
	if !ok {
		return nil, "", errs.NotFound("inventory item", input.ItemID)
	}
	dir, known := model.MovementDirection(input.MovementType)
	if !known {
		return nil, "", errs.Validation("unknown movement type")
	}
	next := item.CurrentStock + float64(dir)*input.Quantity
	if next < 0 {
		return nil, "", errs.InsufficientStock(item.ID, input.Quantity, item.CurrentStock)
	}
	item.CurrentStock = next
	f.adjustments = append(f.adjustments, *input)
	cp := *item
	return &cp, uuid.New().String(), nil
}

type samplingFixture struct {
	repo *memSamplingRepo
	inv  *fakeInventory
	uc   *samplingUseCase
}

func newSamplingFixture(t *testing.T) *samplingFixture {
	t.Helper()
	repo := newMemSamplingRepo()
	inv := newFakeInventory()
	uc := NewSamplingUseCase(repo, inv, nil, logger.NewNop()).(*samplingUseCase)
	uc.now = func() time.Time { return wednesdayNoon }
	return &samplingFixture{repo: repo, inv: inv, uc: uc}
}

func (f *samplingFixture) seedPolicy(t *testing.T, productID *string) *model.SamplingPolicy {
	t.Helper()
	policy, err := f.uc.CreatePolicy(context.Background(), &dto.CreatePolicyInput{
		BranchID:                  "branch-1",
		ProductID:                 productID,
		DailyLimitGram:            500,
		MaxPerSessionGram:         100,
		CostPerGram:               0.08,
		AllowedStartHour:          9,
		AllowedEndHour:            21,
		WeekendEnabled:            false,
		AutoApproveBelowGram:      10,
		RequiresApprovalAboveGram: 50,
	})
	require.NoError(t, err)
	return policy
}

func (f *samplingFixture) startSession(t *testing.T) *model.SamplingSession {
	t.Helper()
	session, err := f.uc.StartSession(context.Background(), &dto.StartSessionInput{
		BranchID:    "branch-1",
		ConductedBy: "staff-1",
	})
	require.NoError(t, err)
	return session
}

func TestValidateWeight(t *testing.T) {
	assert.NoError(t, ValidateWeight(0.001))
	assert.NoError(t, ValidateWeight(25.5))
	assert.NoError(t, ValidateWeight(100.000))
	assert.NoError(t, ValidateWeight(99.999))

	assert.True(t, errs.IsKind(ValidateWeight(0.0005), errs.KindWeightOutOfBounds))
	assert.True(t, errs.IsKind(ValidateWeight(0), errs.KindWeightOutOfBounds))
	assert.True(t, errs.IsKind(ValidateWeight(-1), errs.KindWeightOutOfBounds))
	assert.True(t, errs.IsKind(ValidateWeight(100.001), errs.KindWeightOutOfBounds))

	// More than three decimal places.
	assert.True(t, errs.IsKind(ValidateWeight(1.2345), errs.KindWeightOutOfBounds))
}

func TestCheckLimitsWeekendDisabled(t *testing.T) {
	f := newSamplingFixture(t)
	f.seedPolicy(t, nil)
	f.inv.seed("branch-1", "medjool-dates", 1000)

	saturday := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	decision, err := f.uc.CheckLimits(context.Background(), "branch-1", "medjool-dates", 5, saturday)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "weekend")
}

func TestCheckLimitsOutsideHours(t *testing.T) {
	f := newSamplingFixture(t)
	f.seedPolicy(t, nil)
	f.inv.seed("branch-1", "medjool-dates", 1000)

	lateNight := time.Date(2026, 3, 4, 22, 30, 0, 0, time.UTC)
	decision, err := f.uc.CheckLimits(context.Background(), "branch-1", "medjool-dates", 5, lateNight)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "allowed hours")
}

// The per-session cap is a hard ceiling: an oversized request is denied, never
// escalated to approval.
func TestCheckLimitsSessionCapNeverEscalates(t *testing.T) {
	f := newSamplingFixture(t)
	f.seedPolicy(t, nil)
	f.inv.seed("branch-1", "medjool-dates", 1000)

	// 100.0 exceeds nothing; the cap itself is still allowed territory weight-wise,
	// but anything above it is denied outright.
	decision, err := f.uc.CheckLimits(context.Background(), "branch-1", "medjool-dates", 100.0, wednesdayNoon)
	require.NoError(t, err)
	assert.False(t, decision.RequiresApproval)

	decision, err = f.uc.CheckLimits(context.Background(), "branch-1", "medjool-dates", 100.0+0.001, wednesdayNoon)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.False(t, decision.RequiresApproval)
	assert.Contains(t, decision.Reason, "per-session cap")
}

func TestCheckLimitsAutoApprove(t *testing.T) {
	f := newSamplingFixture(t)
	f.seedPolicy(t, nil)
	f.inv.seed("branch-1", "medjool-dates", 1000)

	decision, err := f.uc.CheckLimits(context.Background(), "branch-1", "medjool-dates", 5, wednesdayNoon)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.False(t, decision.Flagged)
	assert.False(t, decision.RequiresApproval)
}

// Weight between the auto-approve and approval thresholds, under the daily
// limit: permitted without approval but flagged for review.
func TestCheckLimitsMidBandUnderDailyLimit(t *testing.T) {
	f := newSamplingFixture(t)
	f.seedPolicy(t, nil)
	f.inv.seed("branch-1", "medjool-dates", 1000)

	decision, err := f.uc.CheckLimits(context.Background(), "branch-1", "medjool-dates", 30, wednesdayNoon)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.Flagged)
	assert.False(t, decision.RequiresApproval)
}

func TestCheckLimitsAboveApprovalThreshold(t *testing.T) {
	f := newSamplingFixture(t)
	f.seedPolicy(t, nil)
	f.inv.seed("branch-1", "medjool-dates", 1000)

	decision, err := f.uc.CheckLimits(context.Background(), "branch-1", "medjool-dates", 80, wednesdayNoon)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.True(t, decision.RequiresApproval)
}

func TestResolvePolicyPrecedence(t *testing.T) {
	f := newSamplingFixture(t)
	ctx := context.Background()

	branchWide := f.seedPolicy(t, nil)
	product := "medjool-dates"
	specific := f.seedPolicy(t, &product)
	f.inv.seed("branch-1", product, 1000)
	f.inv.seed("branch-1", "dried-figs", 1000)

	got, err := f.uc.ResolvePolicy(ctx, "branch-1", product, wednesdayNoon)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, specific.ID, got.ID)

	// Products without a dedicated policy fall back to the branch-wide one.
	got, err = f.uc.ResolvePolicy(ctx, "branch-1", "dried-figs", wednesdayNoon)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, branchWide.ID, got.ID)

	_, err = f.uc.CheckLimits(ctx, "branch-9", "dried-figs", 5, wednesdayNoon)
	assert.True(t, errs.IsKind(err, errs.KindPolicyNotFound))
}

func TestRecordSamplingDeductsStock(t *testing.T) {
	f := newSamplingFixture(t)
	f.seedPolicy(t, nil)
	item := f.inv.seed("branch-1", "medjool-dates", 1000)
	session := f.startSession(t)
	ctx := context.Background()

	record, err := f.uc.RecordSampling(ctx, &dto.RecordSamplingInput{
		SessionID:        session.ID,
		BranchID:         "branch-1",
		ProductID:        "medjool-dates",
		WeightGram:       25,
		ProductCondition: "fresh",
		RecordedBy:       "staff-1",
	})
	require.NoError(t, err)
	assert.True(t, record.Flagged) // mid-band weight
	assert.InDelta(t, 2.0, record.TotalCost, 1e-9)
	assert.Equal(t, 975.0, f.inv.items[item.ID].CurrentStock)

	require.Len(t, f.inv.adjustments, 1)
	assert.Equal(t, model.MovementSampling, f.inv.adjustments[0].MovementType)
	assert.Equal(t, record.ID, f.inv.adjustments[0].ReferenceID)

	got, _ := f.repo.GetSessionByID(ctx, session.ID)
	assert.Equal(t, 25.0, got.TotalWeightGram)
	assert.InDelta(t, 2.0, got.TotalCost, 1e-9)
	assert.Equal(t, 1, got.ItemCount)
}

func TestRecordSamplingDeniedOutsideHours(t *testing.T) {
	f := newSamplingFixture(t)
	f.seedPolicy(t, nil)
	item := f.inv.seed("branch-1", "medjool-dates", 1000)
	session := f.startSession(t)

	f.uc.now = func() time.Time { return time.Date(2026, 3, 4, 22, 30, 0, 0, time.UTC) }

	_, err := f.uc.RecordSampling(context.Background(), &dto.RecordSamplingInput{
		SessionID:  session.ID,
		BranchID:   "branch-1",
		ProductID:  "medjool-dates",
		WeightGram: 5,
		RecordedBy: "staff-1",
	})
	assert.True(t, errs.IsKind(err, errs.KindSamplingNotAllowed))
	assert.Equal(t, 1000.0, f.inv.items[item.ID].CurrentStock)
}

func TestRecordSamplingEscalatesToApproval(t *testing.T) {
	f := newSamplingFixture(t)
	f.seedPolicy(t, nil)
	item := f.inv.seed("branch-1", "medjool-dates", 1000)
	session := f.startSession(t)
	ctx := context.Background()

	// An earlier auto-approved sample gives the day some usage to snapshot.
	_, err := f.uc.RecordSampling(ctx, &dto.RecordSamplingInput{
		SessionID:  session.ID,
		BranchID:   "branch-1",
		ProductID:  "medjool-dates",
		WeightGram: 5,
		RecordedBy: "staff-1",
	})
	require.NoError(t, err)

	_, err = f.uc.RecordSampling(ctx, &dto.RecordSamplingInput{
		SessionID:     session.ID,
		BranchID:      "branch-1",
		ProductID:     "medjool-dates",
		WeightGram:    80,
		Justification: "corporate tasting event",
		RecordedBy:    "staff-1",
	})
	require.True(t, errs.IsKind(err, errs.KindRequiresApproval))

	// No further stock moved; an approval request was opened with the day's
	// usage and limit captured at request time, and the session is parked.
	assert.Equal(t, 995.0, f.inv.items[item.ID].CurrentStock)
	require.Len(t, f.repo.approvals, 1)
	for _, a := range f.repo.approvals {
		assert.Equal(t, model.ApprovalStatusPending, a.Status)
		assert.Equal(t, 80.0, a.RequestedWeightGram)
		assert.Equal(t, 5.0, a.DailyUsageSnapshotGram)
		assert.Equal(t, 500.0, a.DailyLimitSnapshotGram)
	}
	got, _ := f.repo.GetSessionByID(ctx, session.ID)
	assert.Equal(t, model.SessionStatusPendingApproval, got.Status)
}

func TestRecordSamplingRejectsClosedSession(t *testing.T) {
	f := newSamplingFixture(t)
	f.seedPolicy(t, nil)
	f.inv.seed("branch-1", "medjool-dates", 1000)
	session := f.startSession(t)
	ctx := context.Background()

	_, err := f.uc.CompleteSession(ctx, session.ID, "staff-1")
	require.NoError(t, err)

	_, err = f.uc.RecordSampling(ctx, &dto.RecordSamplingInput{
		SessionID:  session.ID,
		BranchID:   "branch-1",
		ProductID:  "medjool-dates",
		WeightGram: 5,
		RecordedBy: "staff-1",
	})
	assert.True(t, errs.IsKind(err, errs.KindInvalidStatusTransition))
}

func TestDeleteRecordRestoresStock(t *testing.T) {
	f := newSamplingFixture(t)
	f.seedPolicy(t, nil)
	item := f.inv.seed("branch-1", "medjool-dates", 1000)
	session := f.startSession(t)
	ctx := context.Background()

	record, err := f.uc.RecordSampling(ctx, &dto.RecordSamplingInput{
		SessionID:  session.ID,
		BranchID:   "branch-1",
		ProductID:  "medjool-dates",
		WeightGram: 5,
		RecordedBy: "staff-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 995.0, f.inv.items[item.ID].CurrentStock)

	require.NoError(t, f.uc.DeleteRecord(ctx, record.ID, "manager-1"))
	assert.Equal(t, 1000.0, f.inv.items[item.ID].CurrentStock)

	got, _ := f.repo.GetSessionByID(ctx, session.ID)
	assert.Equal(t, 0.0, got.TotalWeightGram)
	assert.Equal(t, 0, got.ItemCount)

	// The reversal is recorded as a return movement referencing the record.
	require.Len(t, f.inv.adjustments, 2)
	assert.Equal(t, model.MovementReturn, f.inv.adjustments[1].MovementType)
	assert.Equal(t, record.ID, f.inv.adjustments[1].ReferenceID)
}

func TestDailyLimitAccumulatesAcrossRecords(t *testing.T) {
	f := newSamplingFixture(t)
	f.seedPolicy(t, nil)
	f.inv.seed("branch-1", "medjool-dates", 10000)
	session := f.startSession(t)
	ctx := context.Background()

	// Burn 480g of the 500g daily limit in mid-band draws.
	for i := 0; i < 16; i++ {
		_, err := f.uc.RecordSampling(ctx, &dto.RecordSamplingInput{
			SessionID:  session.ID,
			BranchID:   "branch-1",
			ProductID:  "medjool-dates",
			WeightGram: 30,
			RecordedBy: "staff-1",
		})
		require.NoError(t, err)
	}

	// 16 * 30 = 480g used. The next mid-band draw crosses the daily limit and
	// comes back flagged with the limit named in the reason.
	decision, err := f.uc.CheckLimits(ctx, "branch-1", "medjool-dates", 30, wednesdayNoon)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.Flagged)
	assert.Contains(t, decision.Reason, "daily limit")
	assert.InDelta(t, 20.0, decision.RemainingDailyGram, 1e-9)
}

func TestApprovalLifecycle(t *testing.T) {
	f := newSamplingFixture(t)
	f.seedPolicy(t, nil)
	item := f.inv.seed("branch-1", "medjool-dates", 1000)
	ctx := context.Background()

	approval, err := f.uc.RequestApproval(ctx, &dto.RequestApprovalInput{
		BranchID:      "branch-1",
		ProductID:     "medjool-dates",
		WeightGram:    80,
		Justification: "corporate tasting event",
		RequestedBy:   "staff-1",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalStatusPending, approval.Status)
	assert.Equal(t, 23, approval.ExpiresAt.Hour())

	// Requester cannot decide their own request.
	_, err = f.uc.Approve(ctx, &dto.ApproveInput{ApprovalID: approval.ID, Approver: "staff-1"})
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	// Granting more than requested is rejected.
	tooMuch := 90.0
	_, err = f.uc.Approve(ctx, &dto.ApproveInput{
		ApprovalID: approval.ID, Approver: "manager-1", ApprovedWeightGram: &tooMuch,
	})
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	// Partial grant.
	granted := 60.0
	approved, err := f.uc.Approve(ctx, &dto.ApproveInput{
		ApprovalID: approval.ID, Approver: "manager-1", ApprovedWeightGram: &granted,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalStatusApproved, approved.Status)

	// A second decision on the same request is rejected.
	_, err = f.uc.Approve(ctx, &dto.ApproveInput{ApprovalID: approval.ID, Approver: "manager-2"})
	assert.True(t, errs.IsKind(err, errs.KindAlreadyProcessed))

	// Draw down the allotment in two parts.
	consumed, err := f.uc.ConsumeApproval(ctx, approval.ID, 40)
	require.NoError(t, err)
	assert.Equal(t, 40.0, consumed.UsedWeightGram)
	assert.Equal(t, 960.0, f.inv.items[item.ID].CurrentStock)

	// Over-allotment draw is rejected without touching stock.
	_, err = f.uc.ConsumeApproval(ctx, approval.ID, 30)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
	assert.Equal(t, 960.0, f.inv.items[item.ID].CurrentStock)

	consumed, err = f.uc.ConsumeApproval(ctx, approval.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, 60.0, consumed.UsedWeightGram)
	assert.Equal(t, 940.0, f.inv.items[item.ID].CurrentStock)
}

func TestRejectApproval(t *testing.T) {
	f := newSamplingFixture(t)
	f.seedPolicy(t, nil)
	f.inv.seed("branch-1", "medjool-dates", 1000)
	session := f.startSession(t)
	ctx := context.Background()

	approval, err := f.uc.RequestApproval(ctx, &dto.RequestApprovalInput{
		BranchID:      "branch-1",
		ProductID:     "medjool-dates",
		SessionID:     &session.ID,
		WeightGram:    80,
		Justification: "bulk customer",
		RequestedBy:   "staff-1",
	})
	require.NoError(t, err)

	got, _ := f.repo.GetSessionByID(ctx, session.ID)
	assert.Equal(t, model.SessionStatusPendingApproval, got.Status)

	rejected, err := f.uc.Reject(ctx, approval.ID, "manager-1", "too generous")
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalStatusRejected, rejected.Status)

	// Rejection releases the parked session back to active.
	got, _ = f.repo.GetSessionByID(ctx, session.ID)
	assert.Equal(t, model.SessionStatusActive, got.Status)

	// A rejected approval cannot be consumed.
	_, err = f.uc.ConsumeApproval(ctx, approval.ID, 10)
	assert.True(t, errs.IsKind(err, errs.KindAlreadyProcessed))
}

func TestApprovalExpiry(t *testing.T) {
	f := newSamplingFixture(t)
	f.seedPolicy(t, nil)
	f.inv.seed("branch-1", "medjool-dates", 1000)
	ctx := context.Background()

	approval, err := f.uc.RequestApproval(ctx, &dto.RequestApprovalInput{
		BranchID:      "branch-1",
		ProductID:     "medjool-dates",
		WeightGram:    80,
		Justification: "event",
		RequestedBy:   "staff-1",
	})
	require.NoError(t, err)

	// Jump past end of business day.
	f.uc.now = func() time.Time { return wednesdayNoon.Add(13 * time.Hour) }

	_, err = f.uc.Approve(ctx, &dto.ApproveInput{ApprovalID: approval.ID, Approver: "manager-1"})
	assert.True(t, errs.IsKind(err, errs.KindExpired))

	n, err := f.uc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := f.repo.GetApprovalByID(ctx, approval.ID)
	assert.Equal(t, model.ApprovalStatusExpired, got.Status)

	// The sweep is idempotent.
	n, err = f.uc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSessionLifecycle(t *testing.T) {
	f := newSamplingFixture(t)
	session := f.startSession(t)
	ctx := context.Background()

	completed, err := f.uc.CompleteSession(ctx, session.ID, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, completed.Status)
	require.NotNil(t, completed.EndedAt)

	_, err = f.uc.CancelSession(ctx, session.ID, "oops", "staff-1")
	assert.True(t, errs.IsKind(err, errs.KindInvalidStatusTransition))
}

func TestDailyReport(t *testing.T) {
	f := newSamplingFixture(t)
	f.seedPolicy(t, nil)
	f.inv.seed("branch-1", "medjool-dates", 1000)
	session := f.startSession(t)
	ctx := context.Background()

	for _, w := range []float64{5, 8} {
		_, err := f.uc.RecordSampling(ctx, &dto.RecordSamplingInput{
			SessionID:      session.ID,
			BranchID:       "branch-1",
			ProductID:      "medjool-dates",
			WeightGram:     w,
			ResultedInSale: w > 6,
			RecordedBy:     "staff-1",
		})
		require.NoError(t, err)
	}

	report, err := f.uc.DailyReport(ctx, "branch-1", wednesdayNoon)
	require.NoError(t, err)
	assert.Equal(t, 2, report.RecordCount)
	assert.InDelta(t, 13.0, report.TotalWeightGram, 1e-9)
	assert.Equal(t, 1, report.SaleConversions)
}

var _ sampling.Repository = (*memSamplingRepo)(nil)
