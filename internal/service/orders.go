package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/safar/go-retail-backend/internal/auth"
	"github.com/safar/go-retail-backend/internal/cache"
	"github.com/safar/go-retail-backend/internal/database"
	"github.com/safar/go-retail-backend/internal/mail"
	"github.com/safar/go-retail-backend/internal/models"
	"github.com/safar/go-retail-backend/internal/store"
)

// OrderService covers the read side of orders plus the admin status
// lifecycle. Finalization itself lives in Finalizer.
type OrderService struct {
	db     *sql.DB
	cache  *cache.Cache
	mailer mail.Mailer
}

func NewOrderService(db *sql.DB, c *cache.Cache, mailer mail.Mailer) *OrderService {
	return &OrderService{db: db, cache: c, mailer: mailer}
}

// ListForCustomer returns the caller's orders, cached per user.
func (s *OrderService) ListForCustomer(ctx context.Context) ([]models.Order, error) {
	principal, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	suffix := strconv.FormatInt(principal.UserID, 10)

	var orders []models.Order
	hit, err := s.cache.Get(ctx, cache.RegionOrdersByUser, suffix, &orders)
	if err != nil {
		slog.Warn("cache read failed", "region", cache.RegionOrdersByUser, "err", err)
	}
	if hit {
		return orders, nil
	}

	orders, err = store.ListOrdersByUser(ctx, s.db, principal.UserID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(ctx, cache.RegionOrdersByUser, suffix, orders); err != nil {
		slog.Warn("cache write failed", "region", cache.RegionOrdersByUser, "err", err)
	}

	return orders, nil
}

// AdminList pages through all customer orders, optionally filtered by
// status.
func (s *OrderService) AdminList(ctx context.Context, status, cursor string, limit int) (*store.CursorPage, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	if status != "" && status != models.OrderStatusProcessing &&
		status != models.OrderStatusShipped && status != models.OrderStatusDelivered {
		return nil, &ValidationError{Field: "status"}
	}

	return store.ListOrdersCursor(ctx, s.db, status, cursor, limit)
}

// AdminGet returns the order with its lines and owning customer.
func (s *OrderService) AdminGet(ctx context.Context, orderID int64) (*models.Order, *models.User, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, nil, err
	}

	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, nil, err
	}

	var customer *models.User
	if order.UserID.Valid {
		customer, err = store.GetUser(ctx, s.db, order.UserID.Int64)
		if err != nil && err != database.ErrUserNotFound {
			return nil, nil, err
		}
	}

	return order, customer, nil
}

// UpdateStatus steps the order forward through the lifecycle. Shipping
// an order notifies the customer once.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, newStatus, trackingURL string) (*models.Order, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	var order *models.Order

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		order, err = store.LockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if !models.ValidStatusChange(order.Status, newStatus) {
			return database.ErrInvalidStatusChange
		}

		tracking := sql.NullString{String: trackingURL, Valid: trackingURL != ""}
		if err := store.SetOrderStatus(ctx, tx, orderID, newStatus, tracking); err != nil {
			return err
		}

		order.Status = newStatus
		if tracking.Valid {
			order.TrackingURL = tracking
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if newStatus == models.OrderStatusShipped && order.CustomerEmail != "" {
		msg := mail.Message{
			To:      order.CustomerEmail,
			Subject: fmt.Sprintf("Your order #%d has shipped", order.ID),
			Text:    shipmentBody(order),
		}
		if err := s.mailer.Send(ctx, msg); err != nil {
			slog.Error("shipment mail failed", "order_id", order.ID, "err", err)
		}
	}

	if err := s.cache.Invalidate(ctx, cache.RegionOrdersByUser, cache.RegionDashboard); err != nil {
		slog.Warn("cache invalidation failed", "err", err)
	}

	return order, nil
}

func shipmentBody(order *models.Order) string {
	body := fmt.Sprintf("Good news %s, your order #%d is on its way.", order.FullName, order.ID)
	if order.TrackingURL.Valid {
		body += "\n\nTrack it here: " + order.TrackingURL.String
	}
	return body
}

// Dashboard returns the admin summary through its cache region.
func (s *OrderService) Dashboard(ctx context.Context) (*store.DashboardSummary, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	var summary store.DashboardSummary
	hit, err := s.cache.Get(ctx, cache.RegionDashboard, "", &summary)
	if err != nil {
		slog.Warn("cache read failed", "region", cache.RegionDashboard, "err", err)
	}
	if hit {
		return &summary, nil
	}

	fresh, err := store.GetDashboardSummary(ctx, s.db)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(ctx, cache.RegionDashboard, "", fresh); err != nil {
		slog.Warn("cache write failed", "region", cache.RegionDashboard, "err", err)
	}

	return fresh, nil
}
