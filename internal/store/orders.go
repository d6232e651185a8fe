package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-retail-backend/internal/database"
	"github.com/safar/go-retail-backend/internal/models"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, user_id, order_date, total_price, status, full_name,
	address_line_1, address_line_2, city, postcode, customer_email, session_id, tracking_url`

func scanOrder(row interface{ Scan(...interface{}) error }, o *models.Order) error {
	return row.Scan(
		&o.ID,
		&o.UserID,
		&o.OrderDate,
		&o.TotalPrice,
		&o.Status,
		&o.FullName,
		&o.AddressLine1,
		&o.AddressLine2,
		&o.City,
		&o.Postcode,
		&o.CustomerEmail,
		&o.SessionID,
		&o.TrackingURL,
	)
}

type CreateOrderRequest struct {
	UserID        sql.NullInt64
	Shipping      models.ShippingAddress
	CustomerEmail string
	SessionID     string
}

// CreateOrder inserts the order header with a zero total; the finalizer
// accumulates the total from the lines and writes it afterwards. The
// unique session_id constraint is the idempotency key.
func CreateOrder(ctx context.Context, tx *sql.Tx, req CreateOrderRequest) (*models.Order, error) {
	order := &models.Order{}

	query := `
		INSERT INTO orders (user_id, order_date, total_price, status, full_name,
			address_line_1, address_line_2, city, postcode, customer_email, session_id)
		VALUES ($1, NOW(), 0, 'processing', $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + orderColumns

	err := scanOrder(tx.QueryRowContext(ctx, query,
		req.UserID,
		req.Shipping.FullName,
		req.Shipping.AddressLine1,
		req.Shipping.AddressLine2,
		req.Shipping.City,
		req.Shipping.Postcode,
		req.CustomerEmail,
		req.SessionID), order)
	if err != nil {
		if database.IsUniqueViolation(err, "orders_session_id_key") {
			return nil, database.ErrDuplicateSession
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	return order, nil
}

func InsertOrderLine(ctx context.Context, tx *sql.Tx, orderID, productID int64, name string, quantity int, unitPrice decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_lines (order_id, product_id, product_name, quantity, unit_price)
		 VALUES ($1, $2, $3, $4, $5)`,
		orderID, productID, name, quantity, unitPrice)
	if err != nil {
		return fmt.Errorf("insert order line: %w", err)
	}
	return nil
}

func SetOrderTotal(ctx context.Context, tx *sql.Tx, orderID int64, total decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET total_price = $1 WHERE id = $2`, total, orderID)
	if err != nil {
		return fmt.Errorf("set order total: %w", err)
	}
	return nil
}

func GetOrderBySessionID(ctx context.Context, q Querier, sessionID string) (*models.Order, error) {
	order := &models.Order{}

	err := scanOrder(q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE session_id = $1`, sessionID), order)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by session: %w", err)
	}

	return order, nil
}

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := scanOrder(db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), order)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	lines, err := listOrderLines(ctx, db, id)
	if err != nil {
		return nil, err
	}
	order.Lines = lines

	return order, nil
}

func listOrderLines(ctx context.Context, q Querier, orderID int64) ([]models.OrderLine, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, quantity, unit_price
		 FROM order_lines
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get order lines: %w", err)
	}
	defer rows.Close()

	var lines []models.OrderLine
	for rows.Next() {
		var line models.OrderLine
		err := rows.Scan(
			&line.ID,
			&line.OrderID,
			&line.ProductID,
			&line.ProductName,
			&line.Quantity,
			&line.UnitPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

func ListOrdersByUser(ctx context.Context, db *sql.DB, userID int64) ([]models.Order, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE user_id = $1
		 ORDER BY order_date DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list orders by user: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// ListOrdersCursor pages through all orders newest-first for the admin
// view, optionally narrowed to one status.
func ListOrdersCursor(ctx context.Context, db *sql.DB, status, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1 = '' OR status = $1)
		  AND (order_date, id) < ($2, $3)
		ORDER BY order_date DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, status, cursorData.OrderDate, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			OrderDate: lastOrder.OrderDate,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// LockOrder takes the order's row lock so a status change reads and
// writes the status atomically.
func LockOrder(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id), order)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order %d: %w", id, err)
	}

	return order, nil
}

func SetOrderStatus(ctx context.Context, tx *sql.Tx, id int64, status string, trackingURL sql.NullString) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, tracking_url = COALESCE($2, tracking_url) WHERE id = $3`,
		status, trackingURL, id)
	if err != nil {
		return fmt.Errorf("set order status: %w", err)
	}
	return nil
}
