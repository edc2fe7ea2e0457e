package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/fauzanr/kurma-inventory-service/internal/inventory/dto"
	"github.com/fauzanr/kurma-inventory-service/internal/model"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (*model.InventoryItem, error) {
	var item model.InventoryItem
	err := r.DB.GetContext(ctx, &item, `SELECT * FROM inventory_items WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *PGRepository) GetByKey(ctx context.Context, branchID, productID string, batchNumber *string) (*model.InventoryItem, error) {
	query := `SELECT * FROM inventory_items WHERE branch_id = $1 AND product_id = $2`
	args := []interface{}{branchID, productID}

	if batchNumber != nil && *batchNumber != "" {
		query += ` AND batch_number = $3`
		args = append(args, *batchNumber)
	} else {
		query += ` AND batch_number IS NULL`
	}

	var item model.InventoryItem
	err := r.DB.GetContext(ctx, &item, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.ItemFilters) ([]model.InventoryItem, int, error) {
	var items []model.InventoryItem
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.BranchID != "" {
		conditions = append(conditions, "branch_id = :branch_id")
		args["branch_id"] = f.BranchID
	}
	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.BatchNumber != nil {
		if *f.BatchNumber == "" {
			conditions = append(conditions, "batch_number IS NULL")
		} else {
			conditions = append(conditions, "batch_number = :batch_number")
			args["batch_number"] = *f.BatchNumber
		}
	}
	if f.CategoryID != "" {
		conditions = append(conditions, "category_id = :category_id")
		args["category_id"] = f.CategoryID
	}
	if f.LowStock {
		conditions = append(conditions, "available_stock <= reorder_point AND reorder_point > 0")
	}
	if f.ExpiringWithinDays > 0 {
		conditions = append(conditions, "expiration_date IS NOT NULL AND expiration_date <= NOW() + make_interval(days => :expiring_days) AND current_stock > 0")
		args["expiring_days"] = f.ExpiringWithinDays
	}
	if f.SearchQuery != "" {
		conditions = append(conditions, "(product_id ILIKE :search OR COALESCE(batch_number, '') ILIKE :search OR COALESCE(physical_location, '') ILIKE :search)")
		args["search"] = "%" + f.SearchQuery + "%"
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT count(*) FROM inventory_items" + whereClause
	rows, err := r.DB.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	if rows.Next() {
		rows.Scan(&count)
	}

	query := "SELECT * FROM inventory_items" + whereClause + " ORDER BY updated_at DESC"
	if f.PageSize > 0 {
		offset := (f.Page - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer nstmt.Close()

	err = nstmt.SelectContext(ctx, &items, args)
	return items, count, err
}

func (r *PGRepository) BestLot(ctx context.Context, branchID, productID string) (*model.InventoryItem, error) {
	var item model.InventoryItem
	query := `
        SELECT * FROM inventory_items
        WHERE branch_id = $1 AND product_id = $2 AND current_stock > 0
        ORDER BY expiration_date ASC NULLS LAST, average_cost ASC
        LIMIT 1
    `
	err := r.DB.GetContext(ctx, &item, query, branchID, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *PGRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	var movements []model.StockMovement
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.BranchID != "" {
		conditions = append(conditions, "branch_id = :branch_id")
		args["branch_id"] = f.BranchID
	}
	if f.ItemID != "" {
		conditions = append(conditions, "item_id = :item_id")
		args["item_id"] = f.ItemID
	}
	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.MovementType != "" {
		conditions = append(conditions, "movement_type = :movement_type")
		args["movement_type"] = f.MovementType
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

	countQuery := "SELECT count(*) FROM stock_movements" + whereClause
	rows, err := r.DB.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	if rows.Next() {
		rows.Scan(&count)
	}

	query := "SELECT * FROM stock_movements" + whereClause + " ORDER BY created_at DESC"
	if f.PageSize > 0 {
		offset := (f.Page - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer nstmt.Close()

	err = nstmt.SelectContext(ctx, &movements, args)
	return movements, count, err
}

func (r *PGRepository) GetMovementByID(ctx context.Context, id string) (*model.StockMovement, error) {
	var m model.StockMovement
	err := r.DB.GetContext(ctx, &m, `SELECT * FROM stock_movements WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *PGRepository) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	return r.DB.BeginTxx(ctx, nil)
}

// GetByIDForUpdate takes the row lock that serializes concurrent mutations on
// the same item for the life of the transaction.
func (r *PGRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.InventoryItem, error) {
	var item model.InventoryItem
	err := tx.GetContext(ctx, &item, `SELECT * FROM inventory_items WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock inventory item %s: %w", id, err)
	}
	return &item, nil
}

func (r *PGRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, item *model.InventoryItem) error {
	query := `
        INSERT INTO inventory_items (
            id, branch_id, product_id, category_id, batch_number, lot_id,
            current_stock, reserved_stock, unit,
            min_stock_level, max_stock_level, reorder_point, reorder_quantity,
            unit_cost, average_cost, expiration_date, physical_location,
            created_at, updated_at
        )
        VALUES (
            :id, :branch_id, :product_id, :category_id, :batch_number, :lot_id,
            :current_stock, :reserved_stock, :unit,
            :min_stock_level, :max_stock_level, :reorder_point, :reorder_quantity,
            :unit_cost, :average_cost, :expiration_date, :physical_location,
            :created_at, :updated_at
        )
    `
	// available_stock is a generated column, never written
	_, err := tx.NamedExecContext(ctx, query, item)
	if err != nil {
		return fmt.Errorf("failed to insert inventory item: %w", err)
	}
	return nil
}

func (r *PGRepository) UpdateStockTx(ctx context.Context, tx *sqlx.Tx, item *model.InventoryItem) error {
	query := `
        UPDATE inventory_items SET
            current_stock = :current_stock,
            reserved_stock = :reserved_stock,
            unit_cost = :unit_cost,
            average_cost = :average_cost,
            updated_at = :updated_at
        WHERE id = :id
    `
	res, err := tx.NamedExecContext(ctx, query, item)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("inventory item %s vanished during update", item.ID)
	}
	return nil
}

func (r *PGRepository) InsertMovementTx(ctx context.Context, tx *sqlx.Tx, m *model.StockMovement) error {
	query := `
        INSERT INTO stock_movements (
            id, item_id, branch_id, product_id, movement_type,
            quantity, previous_stock, new_stock, reason,
            reference_type, reference_id, notes, created_by, created_at
        )
        VALUES (
            :id, :item_id, :branch_id, :product_id, :movement_type,
            :quantity, :previous_stock, :new_stock, :reason,
            :reference_type, :reference_id, :notes, :created_by, :created_at
        )
    `
	_, err := tx.NamedExecContext(ctx, query, m)
	if err != nil {
		return fmt.Errorf("failed to log movement: %w", err)
	}
	return nil
}

func (r *PGRepository) UpdateFields(ctx context.Context, item *model.InventoryItem) error {
	query := `
        UPDATE inventory_items SET
            category_id = :category_id,
            batch_number = :batch_number,
            lot_id = :lot_id,
            min_stock_level = :min_stock_level,
            max_stock_level = :max_stock_level,
            reorder_point = :reorder_point,
            reorder_quantity = :reorder_quantity,
            unit_cost = :unit_cost,
            average_cost = :average_cost,
            expiration_date = :expiration_date,
            physical_location = :physical_location,
            updated_at = :updated_at
        WHERE id = :id
    `
	_, err := r.DB.NamedExecContext(ctx, query, item)
	return err
}
