package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/safar/go-retail-backend/internal/cache"
	"github.com/safar/go-retail-backend/internal/database"
	"github.com/safar/go-retail-backend/internal/models"
	"github.com/safar/go-retail-backend/internal/payment"
	"github.com/safar/go-retail-backend/internal/store"
	"github.com/shopspring/decimal"
)

var finalizerRegions = []cache.Region{
	cache.RegionCatalogAll,
	cache.RegionCatalogAdmin,
	cache.RegionCatalogFeatured,
	cache.RegionDashboard,
	cache.RegionOrdersByUser,
}

// Finalizer converts a paid-for locked cart into an order. The unique
// session id makes the whole operation idempotent: a replayed webhook
// finds the existing order and succeeds without touching anything.
type Finalizer struct {
	db    *sql.DB
	cache *cache.Cache
}

func NewFinalizer(db *sql.DB, c *cache.Cache) *Finalizer {
	return &Finalizer{db: db, cache: c}
}

func (f *Finalizer) HandleEvent(ctx context.Context, event *payment.WebhookEvent) (*models.Order, error) {
	if event.SessionID == "" {
		return nil, &ValidationError{Field: "session_id"}
	}

	if existing, err := store.GetOrderBySessionID(ctx, f.db, event.SessionID); err == nil {
		slog.Info("payment session already finalized", "session_id", event.SessionID, "order_id", existing.ID)
		return existing, nil
	} else if !errors.Is(err, database.ErrOrderNotFound) {
		return nil, err
	}

	userID := event.UserID
	if userID == 0 {
		// Checkout normally creates the guest row; an event without a
		// user hint still gets one so the order has an owner.
		guest, err := store.CreateGuestUser(ctx, f.db)
		if err != nil {
			return nil, err
		}
		userID = guest.ID
	}

	var order *models.Order

	err := database.WithRetry(ctx, f.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cart, err := store.LockCartForUser(ctx, tx, userID)
		if err != nil {
			return err
		}

		order, err = store.CreateOrder(ctx, tx, store.CreateOrderRequest{
			UserID:        sql.NullInt64{Int64: userID, Valid: true},
			Shipping:      event.Shipping,
			CustomerEmail: event.CustomerEmail,
			SessionID:     event.SessionID,
		})
		if err != nil {
			return err
		}

		lines, err := store.ListCartLines(ctx, tx, cart.ID)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, line := range lines {
			if _, err := store.LockProduct(ctx, tx, line.ProductID); err != nil {
				return err
			}
			if err := store.InsertOrderLine(ctx, tx, order.ID, line.ProductID, line.ProductName, line.Quantity, line.Price); err != nil {
				return err
			}
			if err := store.CommitStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return err
			}
			if err := store.DeleteCartLine(ctx, tx, line.ID); err != nil {
				return err
			}
			total = total.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}

		if err := store.SetOrderTotal(ctx, tx, order.ID, total); err != nil {
			return err
		}
		order.TotalPrice = total

		return store.ResetCartAfterOrder(ctx, tx, cart.ID)
	})
	if err != nil {
		// A concurrent webhook for the same session won the insert race;
		// treat it as the earlier success.
		if errors.Is(err, database.ErrDuplicateSession) {
			return store.GetOrderBySessionID(ctx, f.db, event.SessionID)
		}
		return nil, err
	}

	if err := f.cache.Invalidate(ctx, finalizerRegions...); err != nil {
		slog.Warn("cache invalidation failed", "err", err)
	}

	slog.Info("order finalized", "order_id", order.ID, "session_id", event.SessionID, "total", order.TotalPrice)
	return order, nil
}
