package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/safar/go-retail-backend/internal/auth"
	"github.com/safar/go-retail-backend/internal/cache"
	"github.com/safar/go-retail-backend/internal/database"
	"github.com/safar/go-retail-backend/internal/models"
	"github.com/safar/go-retail-backend/internal/store"
)

// CartService mutates the principal's cart and keeps reservations in
// step with it. Every mutation runs in one transaction holding the cart
// row lock and the touched product row lock; a locked cart refuses all
// of them.
type CartService struct {
	db    *sql.DB
	cache *cache.Cache
}

func NewCartService(db *sql.DB, c *cache.Cache) *CartService {
	return &CartService{db: db, cache: c}
}

// Add reserves quantity of the product and upserts the cart line.
func (s *CartService) Add(ctx context.Context, productID int64, quantity int) (*models.CartLine, error) {
	principal, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, &ValidationError{Field: "quantity"}
	}

	var line *models.CartLine

	err = database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cart, err := store.LockCartForUser(ctx, tx, principal.UserID)
		if err != nil {
			return err
		}
		if cart.Locked {
			return database.ErrCartLocked
		}

		product, err := store.LockProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if product.Available() < quantity {
			return &database.StockError{ProductName: product.Name, Available: product.Available()}
		}

		if err := store.ReserveStock(ctx, tx, productID, quantity); err != nil {
			return err
		}

		line, err = store.UpsertCartLine(ctx, tx, cart.ID, productID, quantity)
		if err != nil {
			return err
		}

		return store.TouchProductAddedAt(ctx, tx, cart.ID, time.Now())
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, cache.RegionCatalogAll); err != nil {
		slog.Warn("cache invalidation failed", "region", cache.RegionCatalogAll, "err", err)
	}

	slog.Info("cart line added", "user_id", principal.UserID, "product_id", productID, "quantity", quantity)
	return line, nil
}

// Update sets a line to newQuantity, adjusting the reservation by the
// delta in the same transaction.
func (s *CartService) Update(ctx context.Context, lineID int64, newQuantity int) error {
	principal, err := auth.RequireUser(ctx)
	if err != nil {
		return err
	}
	if newQuantity < 1 {
		return &ValidationError{Field: "quantity"}
	}

	err = database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cart, err := store.LockCartForUser(ctx, tx, principal.UserID)
		if err != nil {
			return err
		}
		if cart.Locked {
			return database.ErrCartLocked
		}

		line, err := store.GetCartLineForCart(ctx, tx, lineID, cart.ID)
		if err != nil {
			return err
		}

		product, err := store.LockProduct(ctx, tx, line.ProductID)
		if err != nil {
			return err
		}

		delta := newQuantity - line.Quantity
		switch {
		case delta > 0:
			if product.Available() < delta {
				return &database.StockError{ProductName: product.Name, Available: product.Available()}
			}
			if err := store.ReserveStock(ctx, tx, line.ProductID, delta); err != nil {
				return err
			}
			if err := store.TouchProductAddedAt(ctx, tx, cart.ID, time.Now()); err != nil {
				return err
			}
		case delta < 0:
			if err := store.ReleaseReservedStock(ctx, tx, line.ProductID, -delta); err != nil {
				return err
			}
		}

		return store.SetCartLineQuantity(ctx, tx, lineID, newQuantity)
	})
	if err != nil {
		return err
	}

	if err := s.cache.Invalidate(ctx, cache.RegionCatalogAll); err != nil {
		slog.Warn("cache invalidation failed", "region", cache.RegionCatalogAll, "err", err)
	}

	return nil
}

// Remove decrements the line by one, deleting it when it reaches zero,
// and releases the same amount of reservation. An emptied cart drops its
// activity timestamp.
func (s *CartService) Remove(ctx context.Context, lineID int64) error {
	principal, err := auth.RequireUser(ctx)
	if err != nil {
		return err
	}

	err = database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cart, err := store.LockCartForUser(ctx, tx, principal.UserID)
		if err != nil {
			return err
		}
		if cart.Locked {
			return database.ErrCartLocked
		}

		line, err := store.GetCartLineForCart(ctx, tx, lineID, cart.ID)
		if err != nil {
			return err
		}

		if _, err := store.LockProduct(ctx, tx, line.ProductID); err != nil {
			return err
		}
		if err := store.ReleaseReservedStock(ctx, tx, line.ProductID, 1); err != nil {
			return err
		}

		if line.Quantity > 1 {
			if err := store.SetCartLineQuantity(ctx, tx, lineID, line.Quantity-1); err != nil {
				return err
			}
		} else {
			if err := store.DeleteCartLine(ctx, tx, lineID); err != nil {
				return err
			}
		}

		remaining, err := store.CountCartLines(ctx, tx, cart.ID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			return store.ClearProductAddedAt(ctx, tx, cart.ID)
		}

		return nil
	})
	if err != nil {
		return err
	}

	if err := s.cache.Invalidate(ctx, cache.RegionCatalogAll); err != nil {
		slog.Warn("cache invalidation failed", "region", cache.RegionCatalogAll, "err", err)
	}

	return nil
}

// List returns the principal's cart lines with their product snapshots.
func (s *CartService) List(ctx context.Context) ([]models.CartLineDetail, error) {
	principal, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	cart, err := store.GetOrCreateCart(ctx, s.db, principal.UserID)
	if err != nil {
		return nil, err
	}

	return store.ListCartLines(ctx, s.db, cart.ID)
}
