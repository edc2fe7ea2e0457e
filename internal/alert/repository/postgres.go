package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fauzanr/kurma-inventory-service/internal/model"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) Insert(ctx context.Context, alert *model.StockAlert) error {
	query := `
        INSERT INTO stock_alerts (
            id, item_id, branch_id, product_id, alert_type, severity,
            message, status, raised_at, resolved_at
        )
        VALUES (
            :id, :item_id, :branch_id, :product_id, :alert_type, :severity,
            :message, :status, :raised_at, :resolved_at
        )
    `
	_, err := r.DB.NamedExecContext(ctx, query, alert)
	return err
}

func (r *PGRepository) GetLatestByItemAndType(ctx context.Context, itemID, alertType string) (*model.StockAlert, error) {
	var alert model.StockAlert
	query := `
        SELECT * FROM stock_alerts
        WHERE item_id = $1 AND alert_type = $2
        ORDER BY raised_at DESC
        LIMIT 1
    `
	err := r.DB.GetContext(ctx, &alert, query, itemID, alertType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}

func (r *PGRepository) GetActiveByItemAndType(ctx context.Context, itemID, alertType string) (*model.StockAlert, error) {
	var alert model.StockAlert
	query := `
        SELECT * FROM stock_alerts
        WHERE item_id = $1 AND alert_type = $2 AND status = 'active'
        ORDER BY raised_at DESC
        LIMIT 1
    `
	err := r.DB.GetContext(ctx, &alert, query, itemID, alertType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}

func (r *PGRepository) Resolve(ctx context.Context, id string) error {
	query := `
        UPDATE stock_alerts
        SET status = 'resolved', resolved_at = $2
        WHERE id = $1 AND status = 'active'
    `
	_, err := r.DB.ExecContext(ctx, query, id, time.Now())
	return err
}

func (r *PGRepository) ListActive(ctx context.Context, branchID string) ([]model.StockAlert, error) {
	var alerts []model.StockAlert
	query := `SELECT * FROM stock_alerts WHERE status = 'active'`
	args := []interface{}{}
	if branchID != "" {
		query += ` AND branch_id = $1`
		args = append(args, branchID)
	}
	query += ` ORDER BY raised_at DESC`

	err := r.DB.SelectContext(ctx, &alerts, query, args...)
	return alerts, err
}
