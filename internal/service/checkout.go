package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/safar/go-retail-backend/internal/auth"
	"github.com/safar/go-retail-backend/internal/database"
	"github.com/safar/go-retail-backend/internal/models"
	"github.com/safar/go-retail-backend/internal/payment"
	"github.com/safar/go-retail-backend/internal/store"
)

// CheckoutService validates the cart, locks it and mints a payment
// session. Stock is not decremented here; the cart stays locked until
// the finalizer consumes it or the reconciler times the checkout out.
type CheckoutService struct {
	db      *sql.DB
	gateway payment.Gateway
}

func NewCheckoutService(db *sql.DB, gateway payment.Gateway) *CheckoutService {
	return &CheckoutService{db: db, gateway: gateway}
}

func validateShipping(shipping models.ShippingAddress) error {
	switch {
	case shipping.FullName == "":
		return &ValidationError{Field: "full_name"}
	case shipping.AddressLine1 == "":
		return &ValidationError{Field: "address_line_1"}
	case shipping.City == "":
		return &ValidationError{Field: "city"}
	case shipping.Postcode == "":
		return &ValidationError{Field: "postcode"}
	}
	return nil
}

// CreateSession runs the checkout hand-off. The caller is either a
// customer or a guest minted at the first cart write; the user id
// travels in the session metadata so the webhook phase lands on the
// same cart. The gateway is only called once the lock transaction has
// committed, so a serialization retry never mints a second session; a
// gateway failure unlocks the cart again.
func (s *CheckoutService) CreateSession(ctx context.Context, shipping models.ShippingAddress) (*payment.Session, error) {
	if err := validateShipping(shipping); err != nil {
		return nil, err
	}

	principal, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	user, err := store.GetUser(ctx, s.db, principal.UserID)
	if err != nil {
		return nil, err
	}

	userID := user.ID
	var customerEmail string
	if user.Email.Valid {
		customerEmail = user.Email.String
	}

	var (
		cartID int64
		items  []payment.LineItem
	)

	err = database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cart, err := store.LockCartForUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if cart.Locked {
			return database.ErrCartLocked
		}

		lines, err := store.ListCartLines(ctx, tx, cart.ID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return database.ErrEmptyCart
		}

		// Lines come back product-id ascending, which is the canonical
		// product lock order.
		items = make([]payment.LineItem, 0, len(lines))
		for _, line := range lines {
			product, err := store.LockProduct(ctx, tx, line.ProductID)
			if err != nil {
				return err
			}
			if product.Stock < line.Quantity || product.ReservedStock < line.Quantity {
				return &database.StockError{ProductName: product.Name, Available: product.Available()}
			}
			items = append(items, payment.LineItem{
				PriceID:  product.StripePriceID,
				Quantity: line.Quantity,
			})
		}

		cartID = cart.ID
		return store.SetCartLocked(ctx, tx, cart.ID, time.Now())
	})
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateSession(ctx, payment.CreateSessionRequest{
		UserID:        userID,
		CustomerEmail: customerEmail,
		Shipping:      shipping,
		LineItems:     items,
	})
	if err != nil {
		if uerr := s.unlockCart(ctx, cartID); uerr != nil {
			slog.Error("cart unlock after gateway failure", "cart_id", cartID, "err", uerr)
		}
		return nil, err
	}

	slog.Info("checkout session created", "user_id", userID, "session_id", session.ID)
	return session, nil
}

func (s *CheckoutService) unlockCart(ctx context.Context, cartID int64) error {
	return database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if _, err := store.LockCart(ctx, tx, cartID); err != nil {
			return err
		}
		return store.UnlockCart(ctx, tx, cartID)
	})
}

// SessionStatus looks the session up at the gateway and reports whether
// an order has already been finalized for it.
func (s *CheckoutService) SessionStatus(ctx context.Context, sessionID string) (payment.SessionStatus, bool, error) {
	status, err := s.gateway.FetchSessionStatus(ctx, sessionID)
	if err != nil {
		return "", false, err
	}

	_, err = store.GetOrderBySessionID(ctx, s.db, sessionID)
	switch err {
	case nil:
		return status, true, nil
	case database.ErrOrderNotFound:
		return status, false, nil
	default:
		return "", false, err
	}
}
