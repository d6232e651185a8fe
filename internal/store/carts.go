package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/safar/go-retail-backend/internal/database"
	"github.com/safar/go-retail-backend/internal/models"
)

// Querier is satisfied by both *sql.DB and *sql.Tx; read helpers that run
// inside and outside transactions take it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const cartColumns = `id, user_id, locked, locked_at, product_added_at, created_at`

func scanCart(row interface{ Scan(...interface{}) error }, c *models.Cart) error {
	return row.Scan(
		&c.ID,
		&c.UserID,
		&c.Locked,
		&c.LockedAt,
		&c.ProductAddedAt,
		&c.CreatedAt,
	)
}

// GetOrCreateCart returns the user's cart, creating the 1:1 row on first
// touch. The ON CONFLICT no-op keeps concurrent first adds from racing.
func GetOrCreateCart(ctx context.Context, q Querier, userID int64) (*models.Cart, error) {
	_, err := q.ExecContext(ctx,
		`INSERT INTO carts (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	cart := &models.Cart{}
	err = scanCart(q.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE user_id = $1`, userID), cart)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	return cart, nil
}

func GetCartByUserID(ctx context.Context, q Querier, userID int64) (*models.Cart, error) {
	cart := &models.Cart{}

	err := scanCart(q.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE user_id = $1`, userID), cart)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCartNotFound
		}
		return nil, fmt.Errorf("get cart by user: %w", err)
	}

	return cart, nil
}

// LockCart takes the cart's row lock. Cart Service, Checkout, Finalizer
// and Reconciler all serialize on this lock.
func LockCart(ctx context.Context, tx *sql.Tx, cartID int64) (*models.Cart, error) {
	cart := &models.Cart{}

	err := scanCart(tx.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE id = $1 FOR UPDATE`, cartID), cart)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCartNotFound
		}
		return nil, fmt.Errorf("lock cart %d: %w", cartID, err)
	}

	return cart, nil
}

// LockCartForUser takes the row lock on the user's cart, creating it
// first if the user never had one.
func LockCartForUser(ctx context.Context, tx *sql.Tx, userID int64) (*models.Cart, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO carts (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	cart := &models.Cart{}
	err = scanCart(tx.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE user_id = $1 FOR UPDATE`, userID), cart)
	if err != nil {
		return nil, fmt.Errorf("lock cart for user %d: %w", userID, err)
	}

	return cart, nil
}

func UpsertCartLine(ctx context.Context, tx *sql.Tx, cartID, productID int64, quantity int) (*models.CartLine, error) {
	line := &models.CartLine{}

	query := `
		INSERT INTO cart_lines (cart_id, product_id, quantity, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity
		RETURNING id, cart_id, product_id, quantity, created_at`

	err := tx.QueryRowContext(ctx, query, cartID, productID, quantity).Scan(
		&line.ID,
		&line.CartID,
		&line.ProductID,
		&line.Quantity,
		&line.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert cart line: %w", err)
	}

	return line, nil
}

// GetCartLineForCart fetches a line scoped to the given cart so a
// customer cannot address another customer's lines.
func GetCartLineForCart(ctx context.Context, tx *sql.Tx, lineID, cartID int64) (*models.CartLine, error) {
	line := &models.CartLine{}

	err := tx.QueryRowContext(ctx,
		`SELECT id, cart_id, product_id, quantity, created_at
		 FROM cart_lines
		 WHERE id = $1 AND cart_id = $2`,
		lineID, cartID).Scan(
		&line.ID,
		&line.CartID,
		&line.ProductID,
		&line.Quantity,
		&line.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCartLineNotFound
		}
		return nil, fmt.Errorf("get cart line: %w", err)
	}

	return line, nil
}

func SetCartLineQuantity(ctx context.Context, tx *sql.Tx, lineID int64, quantity int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE cart_lines SET quantity = $1 WHERE id = $2`, quantity, lineID)
	if err != nil {
		return fmt.Errorf("set cart line quantity: %w", err)
	}
	return nil
}

func DeleteCartLine(ctx context.Context, tx *sql.Tx, lineID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE id = $1`, lineID)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	return nil
}

func ClearCartLines(ctx context.Context, tx *sql.Tx, cartID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("clear cart lines: %w", err)
	}
	return nil
}

func CountCartLines(ctx context.Context, tx *sql.Tx, cartID int64) (int, error) {
	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cart_lines WHERE cart_id = $1`, cartID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count cart lines: %w", err)
	}
	return count, nil
}

// ListCartLines returns the cart's lines joined with their product
// snapshot, product id ascending. The ordering doubles as the canonical
// lock order for callers that lock each product in turn.
func ListCartLines(ctx context.Context, q Querier, cartID int64) ([]models.CartLineDetail, error) {
	query := `
		SELECT cl.id, cl.cart_id, cl.product_id, cl.quantity, cl.created_at,
		       p.name, p.price, p.stock, p.reserved_stock, p.stripe_price_id
		FROM cart_lines cl
		JOIN products p ON p.id = cl.product_id
		WHERE cl.cart_id = $1
		ORDER BY cl.product_id`

	rows, err := q.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	defer rows.Close()

	var lines []models.CartLineDetail
	for rows.Next() {
		var line models.CartLineDetail
		err := rows.Scan(
			&line.ID,
			&line.CartID,
			&line.ProductID,
			&line.Quantity,
			&line.CreatedAt,
			&line.ProductName,
			&line.Price,
			&line.Stock,
			&line.ReservedStock,
			&line.StripePriceID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

func SetCartLocked(ctx context.Context, tx *sql.Tx, cartID int64, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE carts SET locked = TRUE, locked_at = $1 WHERE id = $2`, at, cartID)
	if err != nil {
		return fmt.Errorf("lock cart for checkout: %w", err)
	}
	return nil
}

func UnlockCart(ctx context.Context, tx *sql.Tx, cartID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE carts SET locked = FALSE, locked_at = NULL WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("unlock cart: %w", err)
	}
	return nil
}

func TouchProductAddedAt(ctx context.Context, tx *sql.Tx, cartID int64, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE carts SET product_added_at = $1 WHERE id = $2`, at, cartID)
	if err != nil {
		return fmt.Errorf("touch product_added_at: %w", err)
	}
	return nil
}

func ClearProductAddedAt(ctx context.Context, tx *sql.Tx, cartID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE carts SET product_added_at = NULL WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("clear product_added_at: %w", err)
	}
	return nil
}

// ResetCartAfterOrder returns a consumed cart to the empty idle state.
func ResetCartAfterOrder(ctx context.Context, tx *sql.Tx, cartID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE carts
		 SET locked = FALSE, locked_at = NULL, product_added_at = NULL
		 WHERE id = $1`,
		cartID)
	if err != nil {
		return fmt.Errorf("reset cart: %w", err)
	}
	return nil
}

// FindAbandonedCarts lists carts locked before the cutoff.
func FindAbandonedCarts(ctx context.Context, db *sql.DB, cutoff time.Time) ([]int64, error) {
	return findCartIDs(ctx, db,
		`SELECT id FROM carts WHERE locked AND locked_at < $1 ORDER BY locked_at`, cutoff)
}

// FindIdleCarts lists unlocked, non-empty carts last touched before the
// cutoff. Locked carts never qualify; the abandoned path owns those.
func FindIdleCarts(ctx context.Context, db *sql.DB, cutoff time.Time) ([]int64, error) {
	return findCartIDs(ctx, db,
		`SELECT id FROM carts
		 WHERE NOT locked AND product_added_at IS NOT NULL AND product_added_at < $1
		 ORDER BY product_added_at`, cutoff)
}

func findCartIDs(ctx context.Context, db *sql.DB, query string, cutoff time.Time) ([]int64, error) {
	rows, err := db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find carts: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cart id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}
