package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fauzanr/kurma-inventory-service/internal/model"
	"github.com/fauzanr/kurma-inventory-service/internal/sampling/dto"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) CreatePolicy(ctx context.Context, p *model.SamplingPolicy) error {
	query := `
        INSERT INTO sampling_policies (
            id, branch_id, product_id, category_id,
            daily_limit_gram, max_per_session_gram, cost_per_gram, monthly_budget,
            allowed_start_hour, allowed_end_hour, weekend_enabled,
            requires_approval_above_gram, auto_approve_below_gram,
            is_active, effective_from, effective_until, created_at, updated_at
        )
        VALUES (
            :id, :branch_id, :product_id, :category_id,
            :daily_limit_gram, :max_per_session_gram, :cost_per_gram, :monthly_budget,
            :allowed_start_hour, :allowed_end_hour, :weekend_enabled,
            :requires_approval_above_gram, :auto_approve_below_gram,
            :is_active, :effective_from, :effective_until, :created_at, :updated_at
        )
    `
	_, err := r.DB.NamedExecContext(ctx, query, p)
	return err
}

func (r *PGRepository) UpdatePolicy(ctx context.Context, p *model.SamplingPolicy) error {
	query := `
        UPDATE sampling_policies SET
            daily_limit_gram = :daily_limit_gram,
            max_per_session_gram = :max_per_session_gram,
            cost_per_gram = :cost_per_gram,
            monthly_budget = :monthly_budget,
            allowed_start_hour = :allowed_start_hour,
            allowed_end_hour = :allowed_end_hour,
            weekend_enabled = :weekend_enabled,
            requires_approval_above_gram = :requires_approval_above_gram,
            auto_approve_below_gram = :auto_approve_below_gram,
            is_active = :is_active,
            effective_from = :effective_from,
            effective_until = :effective_until,
            updated_at = :updated_at
        WHERE id = :id
    `
	_, err := r.DB.NamedExecContext(ctx, query, p)
	return err
}

func (r *PGRepository) GetPolicyByID(ctx context.Context, id string) (*model.SamplingPolicy, error) {
	var p model.SamplingPolicy
	err := r.DB.GetContext(ctx, &p, `SELECT * FROM sampling_policies WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PGRepository) FindActivePolicies(ctx context.Context, branchID string, at time.Time) ([]model.SamplingPolicy, error) {
	var policies []model.SamplingPolicy
	query := `
        SELECT * FROM sampling_policies
        WHERE branch_id = $1
          AND is_active = true
          AND effective_from <= $2
          AND (effective_until IS NULL OR effective_until >= $2)
        ORDER BY created_at DESC
    `
	err := r.DB.SelectContext(ctx, &policies, query, branchID, at)
	return policies, err
}

func (r *PGRepository) CreateSession(ctx context.Context, s *model.SamplingSession) error {
	query := `
        INSERT INTO sampling_sessions (
            id, branch_id, status, conducted_by,
            total_weight_gram, total_cost, item_count, customer_count,
            weather, foot_traffic, approved_by, approved_at, approval_notes,
            started_at, ended_at, created_at, updated_at
        )
        VALUES (
            :id, :branch_id, :status, :conducted_by,
            :total_weight_gram, :total_cost, :item_count, :customer_count,
            :weather, :foot_traffic, :approved_by, :approved_at, :approval_notes,
            :started_at, :ended_at, :created_at, :updated_at
        )
    `
	_, err := r.DB.NamedExecContext(ctx, query, s)
	return err
}

func (r *PGRepository) GetSessionByID(ctx context.Context, id string) (*model.SamplingSession, error) {
	var s model.SamplingSession
	err := r.DB.GetContext(ctx, &s, `SELECT * FROM sampling_sessions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *PGRepository) UpdateSession(ctx context.Context, s *model.SamplingSession) error {
	query := `
        UPDATE sampling_sessions SET
            status = :status,
            total_weight_gram = :total_weight_gram,
            total_cost = :total_cost,
            item_count = :item_count,
            customer_count = :customer_count,
            approved_by = :approved_by,
            approved_at = :approved_at,
            approval_notes = :approval_notes,
            ended_at = :ended_at,
            updated_at = :updated_at
        WHERE id = :id
    `
	_, err := r.DB.NamedExecContext(ctx, query, s)
	return err
}

func (r *PGRepository) CreateRecord(ctx context.Context, rec *model.SamplingRecord) error {
	query := `
        INSERT INTO sampling_records (
            id, session_id, branch_id, product_id, item_id, batch_number,
            weight_gram, unit_cost_per_gram, total_cost,
            product_condition, customer_response, resulted_in_sale, sale_amount,
            flagged, recorded_by, created_at, updated_at
        )
        VALUES (
            :id, :session_id, :branch_id, :product_id, :item_id, :batch_number,
            :weight_gram, :unit_cost_per_gram, :total_cost,
            :product_condition, :customer_response, :resulted_in_sale, :sale_amount,
            :flagged, :recorded_by, :created_at, :updated_at
        )
    `
	_, err := r.DB.NamedExecContext(ctx, query, rec)
	return err
}

func (r *PGRepository) GetRecordByID(ctx context.Context, id string) (*model.SamplingRecord, error) {
	var rec model.SamplingRecord
	err := r.DB.GetContext(ctx, &rec, `SELECT * FROM sampling_records WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *PGRepository) DeleteRecord(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM sampling_records WHERE id = $1`, id)
	return err
}

func (r *PGRepository) ListRecords(ctx context.Context, f *dto.RecordFilters) ([]model.SamplingRecord, int, error) {
	var records []model.SamplingRecord
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.BranchID != "" {
		conditions = append(conditions, "branch_id = :branch_id")
		args["branch_id"] = f.BranchID
	}
	if f.SessionID != "" {
		conditions = append(conditions, "session_id = :session_id")
		args["session_id"] = f.SessionID
	}
	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.StartDate != nil {
		conditions = append(conditions, "created_at >= :start_date")
		args["start_date"] = *f.StartDate
	}
	if f.EndDate != nil {
		conditions = append(conditions, "created_at <= :end_date")
		args["end_date"] = *f.EndDate
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT count(*) FROM sampling_records" + whereClause
	rows, err := r.DB.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	if rows.Next() {
		rows.Scan(&count)
	}

	query := "SELECT * FROM sampling_records" + whereClause + " ORDER BY created_at DESC"
	if f.PageSize > 0 {
		offset := (f.Page - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer nstmt.Close()

	err = nstmt.SelectContext(ctx, &records, args)
	return records, count, err
}

// DailyUsageGram sums the sampled weight for a branch+product on one calendar
// day, counting only records whose session is active or completed.
func (r *PGRepository) DailyUsageGram(ctx context.Context, branchID, productID string, day time.Time) (float64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	var total sql.NullFloat64
	query := `
        SELECT COALESCE(SUM(r.weight_gram), 0)
        FROM sampling_records r
        JOIN sampling_sessions s ON s.id = r.session_id
        WHERE r.branch_id = $1 AND r.product_id = $2
          AND r.created_at >= $3 AND r.created_at < $4
          AND s.status IN ('active', 'pending_approval', 'completed')
    `
	err := r.DB.GetContext(ctx, &total, query, branchID, productID, start, end)
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}

func (r *PGRepository) MonthlyCost(ctx context.Context, branchID string, month time.Time) (float64, error) {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, month.Location())
	end := start.AddDate(0, 1, 0)

	var total sql.NullFloat64
	query := `
        SELECT COALESCE(SUM(r.total_cost), 0)
        FROM sampling_records r
        JOIN sampling_sessions s ON s.id = r.session_id
        WHERE r.branch_id = $1
          AND r.created_at >= $2 AND r.created_at < $3
          AND s.status IN ('active', 'pending_approval', 'completed')
    `
	err := r.DB.GetContext(ctx, &total, query, branchID, start, end)
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}

func (r *PGRepository) DailyReport(ctx context.Context, branchID string, day time.Time) (*dto.DailyReport, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	report := &dto.DailyReport{
		BranchID: branchID,
		Date:     start.Format("2006-01-02"),
	}

	query := `
        SELECT
            COALESCE(SUM(r.weight_gram), 0) AS total_weight,
            COALESCE(SUM(r.total_cost), 0) AS total_cost,
            COUNT(r.id) AS record_count,
            COUNT(DISTINCT r.session_id) AS session_count,
            COUNT(r.id) FILTER (WHERE r.resulted_in_sale) AS sale_conversions
        FROM sampling_records r
        JOIN sampling_sessions s ON s.id = r.session_id
        WHERE r.branch_id = $1
          AND r.created_at >= $2 AND r.created_at < $3
          AND s.status IN ('active', 'pending_approval', 'completed')
    `
	row := r.DB.QueryRowxContext(ctx, query, branchID, start, end)
	if err := row.Scan(&report.TotalWeightGram, &report.TotalCost, &report.RecordCount,
		&report.SessionCount, &report.SaleConversions); err != nil {
		return nil, err
	}
	return report, nil
}

func (r *PGRepository) CreateApproval(ctx context.Context, a *model.SamplingApproval) error {
	query := `
        INSERT INTO sampling_approvals (
            id, branch_id, product_id, session_id, policy_id, status,
            requested_weight_gram, justification,
            daily_usage_snapshot_gram, daily_limit_snapshot_gram, remaining_monthly_budget,
            requested_by, approved_by, approved_weight_gram, used_weight_gram,
            decision_notes, decided_at, expires_at, created_at, updated_at
        )
        VALUES (
            :id, :branch_id, :product_id, :session_id, :policy_id, :status,
            :requested_weight_gram, :justification,
            :daily_usage_snapshot_gram, :daily_limit_snapshot_gram, :remaining_monthly_budget,
            :requested_by, :approved_by, :approved_weight_gram, :used_weight_gram,
            :decision_notes, :decided_at, :expires_at, :created_at, :updated_at
        )
    `
	_, err := r.DB.NamedExecContext(ctx, query, a)
	return err
}

func (r *PGRepository) GetApprovalByID(ctx context.Context, id string) (*model.SamplingApproval, error) {
	var a model.SamplingApproval
	err := r.DB.GetContext(ctx, &a, `SELECT * FROM sampling_approvals WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *PGRepository) UpdateApproval(ctx context.Context, a *model.SamplingApproval) error {
	query := `
        UPDATE sampling_approvals SET
            status = :status,
            approved_by = :approved_by,
            approved_weight_gram = :approved_weight_gram,
            used_weight_gram = :used_weight_gram,
            decision_notes = :decision_notes,
            decided_at = :decided_at,
            updated_at = :updated_at
        WHERE id = :id
    `
	_, err := r.DB.NamedExecContext(ctx, query, a)
	return err
}

func (r *PGRepository) ListPendingExpired(ctx context.Context, asOf time.Time) ([]model.SamplingApproval, error) {
	var approvals []model.SamplingApproval
	query := `
        SELECT * FROM sampling_approvals
        WHERE status = 'pending' AND expires_at < $1
        ORDER BY expires_at ASC
    `
	err := r.DB.SelectContext(ctx, &approvals, query, asOf)
	return approvals, err
}
