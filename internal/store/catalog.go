package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-retail-backend/internal/database"
	"github.com/safar/go-retail-backend/internal/models"
	"github.com/shopspring/decimal"
)

const maxFeaturedProducts = 4

func CreateCategory(ctx context.Context, db *sql.DB, name string) (*models.Category, error) {
	category := &models.Category{}

	err := db.QueryRowContext(ctx,
		`INSERT INTO categories (name) VALUES ($1) RETURNING id, name`,
		name).Scan(&category.ID, &category.Name)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}

	return category, nil
}

func ListCategories(ctx context.Context, db *sql.DB) ([]models.Category, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var category models.Category
		if err := rows.Scan(&category.ID, &category.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, category)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return categories, nil
}

func DeleteCategory(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrCategoryNotFound
	}

	return nil
}

// FeatureProduct marks a product featured. The count check and the
// insert run in one serializable transaction so the four-slot cap holds
// under concurrent admin requests; a serialization failure is retried.
func FeatureProduct(ctx context.Context, db *sql.DB, productID int64) error {
	return database.WithRetry(ctx, db, database.TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		var count int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM featured_products`).Scan(&count)
		if err != nil {
			return fmt.Errorf("count featured: %w", err)
		}
		if count >= maxFeaturedProducts {
			return database.ErrFeaturedLimit
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO featured_products (product_id) VALUES ($1)`, productID)
		if err != nil {
			if database.IsUniqueViolation(err, "featured_products_product_id_key") {
				return database.ErrAlreadyFeatured
			}
			return fmt.Errorf("feature product: %w", err)
		}

		return nil
	})
}

func UnfeatureProduct(ctx context.Context, db *sql.DB, productID int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM featured_products WHERE product_id = $1`, productID)
	if err != nil {
		return fmt.Errorf("unfeature product: %w", err)
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

func ListFeaturedProducts(ctx context.Context, db *sql.DB) ([]models.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id IN (SELECT product_id FROM featured_products)
		ORDER BY created_at DESC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list featured products: %w", err)
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

	return products, nil
}

func AddProductImage(ctx context.Context, db *sql.DB, productID int64, path string) (*models.ProductImage, error) {
	image := &models.ProductImage{}

	err := db.QueryRowContext(ctx,
		`INSERT INTO product_images (product_id, path) VALUES ($1, $2)
		 RETURNING id, product_id, path`,
		productID, path).Scan(&image.ID, &image.ProductID, &image.Path)
	if err != nil {
		return nil, fmt.Errorf("add product image: %w", err)
	}

	return image, nil
}

func DeleteProductImage(ctx context.Context, db *sql.DB, id int64) (string, error) {
	var path string
	err := db.QueryRowContext(ctx,
		`DELETE FROM product_images WHERE id = $1 RETURNING path`, id).Scan(&path)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", database.ErrProductNotFound
		}
		return "", fmt.Errorf("delete product image: %w", err)
	}
	return path, nil
}

func CreateAddress(ctx context.Context, db *sql.DB, a models.Address) (*models.Address, error) {
	address := &models.Address{}

	err := db.QueryRowContext(ctx,
		`INSERT INTO addresses (user_id, full_name, address_line_1, address_line_2, city, postcode, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING id, user_id, full_name, address_line_1, address_line_2, city, postcode, created_at`,
		a.UserID, a.FullName, a.AddressLine1, a.AddressLine2, a.City, a.Postcode).Scan(
		&address.ID,
		&address.UserID,
		&address.FullName,
		&address.AddressLine1,
		&address.AddressLine2,
		&address.City,
		&address.Postcode,
		&address.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}

	return address, nil
}

func ListAddresses(ctx context.Context, db *sql.DB, userID int64) ([]models.Address, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, full_name, address_line_1, address_line_2, city, postcode, created_at
		 FROM addresses
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	var addresses []models.Address
	for rows.Next() {
		var a models.Address
		err := rows.Scan(&a.ID, &a.UserID, &a.FullName, &a.AddressLine1,
			&a.AddressLine2, &a.City, &a.Postcode, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return addresses, nil
}

func CreatePaymentMethod(ctx context.Context, db *sql.DB, m models.PaymentMethod) (*models.PaymentMethod, error) {
	method := &models.PaymentMethod{}

	err := db.QueryRowContext(ctx,
		`INSERT INTO payment_methods (user_id, token, brand, last4, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 RETURNING id, user_id, token, brand, last4, created_at`,
		m.UserID, m.Token, m.Brand, m.Last4).Scan(
		&method.ID,
		&method.UserID,
		&method.Token,
		&method.Brand,
		&method.Last4,
		&method.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create payment method: %w", err)
	}

	return method, nil
}

func ListPaymentMethods(ctx context.Context, db *sql.DB, userID int64) ([]models.PaymentMethod, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, token, brand, last4, created_at
		 FROM payment_methods
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	defer rows.Close()

	var methods []models.PaymentMethod
	for rows.Next() {
		var m models.PaymentMethod
		err := rows.Scan(&m.ID, &m.UserID, &m.Token, &m.Brand, &m.Last4, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		methods = append(methods, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return methods, nil
}

// DashboardSummary is the admin landing-page aggregate.
type DashboardSummary struct {
	Users    int64           `json:"users"`
	Products int64           `json:"products"`
	Orders   int64           `json:"orders"`
	Revenue  decimal.Decimal `json:"revenue"`
}

func GetDashboardSummary(ctx context.Context, db *sql.DB) (*DashboardSummary, error) {
	summary := &DashboardSummary{}

	err := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM orders),
			(SELECT COALESCE(SUM(total_price), 0) FROM orders)`).Scan(
		&summary.Users,
		&summary.Products,
		&summary.Orders,
		&summary.Revenue,
	)
	if err != nil {
		return nil, fmt.Errorf("dashboard summary: %w", err)
	}

	return summary, nil
}
