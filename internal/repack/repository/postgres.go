package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

func (r *PGRepository) Create(ctx context.Context, order *model.RepackOrder) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	orderQuery := `
        INSERT INTO repack_orders (
            id, branch_id, status, target_product_id, target_unit,
            expected_quantity, actual_quantity, schedule_date,
            requested_by, performed_by, supervised_by,
            started_at, completed_at, notes, created_at, updated_at
        )
        VALUES (
            :id, :branch_id, :status, :target_product_id, :target_unit,
            :expected_quantity, :actual_quantity, :schedule_date,
            :requested_by, :performed_by, :supervised_by,
            :started_at, :completed_at, :notes, :created_at, :updated_at
        )
    `
	if _, err := tx.NamedExecContext(ctx, orderQuery, order); err != nil {
		return fmt.Errorf("failed to insert repack order: %w", err)
	}

	sourceQuery := `
        INSERT INTO repack_source_items (
            id, order_id, item_id, product_id, required_quantity, actual_quantity, sort_order
        )
        VALUES (:id, :order_id, :item_id, :product_id, :required_quantity, :actual_quantity, :sort_order)
    `
	for i := range order.SourceItems {
		if _, err := tx.NamedExecContext(ctx, sourceQuery, &order.SourceItems[i]); err != nil {
			return fmt.Errorf("failed to insert repack source item: %w", err)
		}
	}

	return tx.Commit()
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (*model.RepackOrder, error) {
	var order model.RepackOrder
	err := r.DB.GetContext(ctx, &order, `SELECT * FROM repack_orders WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	err = r.DB.SelectContext(ctx, &order.SourceItems,
		`SELECT * FROM repack_source_items WHERE order_id = $1 ORDER BY sort_order ASC`, id)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *PGRepository) ListByStatus(ctx context.Context, branchID, status string) ([]model.RepackOrder, error) {
	var orders []model.RepackOrder
	query := `SELECT * FROM repack_orders WHERE status = $1`
	args := []interface{}{status}
	if branchID != "" {
		query += ` AND branch_id = $2`
		args = append(args, branchID)
	}
	query += ` ORDER BY schedule_date ASC`

	if err := r.DB.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, err
	}
	return r.attachSourceItems(ctx, orders)
}

func (r *PGRepository) ListReady(ctx context.Context, branchID string, asOf time.Time) ([]model.RepackOrder, error) {
	var orders []model.RepackOrder
	query := `SELECT * FROM repack_orders WHERE status = $1 AND schedule_date <= $2`
	args := []interface{}{model.RepackStatusPlanned, asOf}
	if branchID != "" {
		query += ` AND branch_id = $3`
		args = append(args, branchID)
	}
	query += ` ORDER BY schedule_date ASC`

	if err := r.DB.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, err
	}
	return r.attachSourceItems(ctx, orders)
}

func (r *PGRepository) attachSourceItems(ctx context.Context, orders []model.RepackOrder) ([]model.RepackOrder, error) {
	for i := range orders {
		err := r.DB.SelectContext(ctx, &orders[i].SourceItems,
			`SELECT * FROM repack_source_items WHERE order_id = $1 ORDER BY sort_order ASC`, orders[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

const updateOrderQuery = `
    UPDATE repack_orders SET
        status = :status,
        actual_quantity = :actual_quantity,
        performed_by = :performed_by,
        supervised_by = :supervised_by,
        started_at = :started_at,
        completed_at = :completed_at,
        notes = :notes,
        updated_at = :updated_at
    WHERE id = :id
`

func (r *PGRepository) UpdateOrder(ctx context.Context, order *model.RepackOrder) error {
	_, err := r.DB.NamedExecContext(ctx, updateOrderQuery, order)
	return err
}

func (r *PGRepository) UpdateOrderTx(ctx context.Context, tx *sqlx.Tx, order *model.RepackOrder) error {
	_, err := tx.NamedExecContext(ctx, updateOrderQuery, order)
	if err != nil {
		return fmt.Errorf("failed to update repack order: %w", err)
	}
	return nil
}

func (r *PGRepository) UpdateSourceItemTx(ctx context.Context, tx *sqlx.Tx, source *model.RepackSourceItem) error {
	query := `
        UPDATE repack_source_items SET
            actual_quantity = :actual_quantity
        WHERE id = :id
    `
	_, err := tx.NamedExecContext(ctx, query, source)
	if err != nil {
		return fmt.Errorf("failed to update repack source item: %w", err)
	}
	return nil
}
