package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-retail-backend/internal/database"
	"github.com/safar/go-retail-backend/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, name, description, price, stock, reserved_stock,
	stripe_product_id, stripe_price_id, category_id, created_at, updated_at`

func scanProduct(row interface{ Scan(...interface{}) error }, p *models.Product) error {
	return row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.Stock,
		&p.ReservedStock,
		&p.StripeProductID,
		&p.StripePriceID,
		&p.CategoryID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}

type CreateProductRequest struct {
	Name            string
	Description     string
	Price           decimal.Decimal
	Stock           int
	StripeProductID string
	StripePriceID   string
	CategoryID      sql.NullInt64
}

func CreateProduct(ctx context.Context, db *sql.DB, req CreateProductRequest) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (name, description, price, stock, reserved_stock,
			stripe_product_id, stripe_price_id, category_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7, NOW(), NOW())
		RETURNING ` + productColumns

	err := scanProduct(db.QueryRowContext(ctx, query,
		req.Name, req.Description, req.Price, req.Stock,
		req.StripeProductID, req.StripePriceID, req.CategoryID), product)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	err := scanProduct(db.QueryRowContext(ctx, query, id), product)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

func UpdateProduct(ctx context.Context, db *sql.DB, id int64, req CreateProductRequest) (*models.Product, error) {
	product := &models.Product{}

	query := `
		UPDATE products
		SET name = $1, description = $2, price = $3, stock = $4,
		    stripe_product_id = $5, stripe_price_id = $6, category_id = $7,
		    updated_at = NOW()
		WHERE id = $8
		RETURNING ` + productColumns

	err := scanProduct(db.QueryRowContext(ctx, query,
		req.Name, req.Description, req.Price, req.Stock,
		req.StripeProductID, req.StripePriceID, req.CategoryID, id), product)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	return product, nil
}

// DeleteProduct removes the product row; cart lines, featured marks and
// image records go with it via ON DELETE CASCADE, order lines keep their
// frozen name with a NULL product reference.
func DeleteProduct(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

// LockProduct takes the product's row lock for the rest of the
// transaction. Every reservation-mutating path goes through here.
func LockProduct(ctx context.Context, tx *sql.Tx, productID int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	err := scanProduct(tx.QueryRowContext(ctx, query, productID), product)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product %d: %w", productID, err)
	}

	return product, nil
}

// ReserveStock adds quantity to reserved_stock. The caller must already
// hold the row lock and have verified availability; the WHERE clause is a
// second guard that keeps reserved_stock <= stock under all interleavings.
func ReserveStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET reserved_stock = reserved_stock + $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock - reserved_stock >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

// ReleaseReservedStock drops quantity from reserved_stock, clamped at
// zero because another path may have already released part of it.
func ReleaseReservedStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET reserved_stock = GREATEST(reserved_stock - $1, 0),
		     updated_at = NOW()
		 WHERE id = $2`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("release reserved stock: %w", err)
	}

	return nil
}

// CommitStock converts a reservation into a sale: true stock goes down,
// the reservation is released with the usual clamp.
func CommitStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock - $1,
		     reserved_stock = GREATEST(reserved_stock - $1, 0),
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("commit stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

func ListProducts(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &OffsetPage{
		Items:      products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}
