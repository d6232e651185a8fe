package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/safar/go-retail-backend/internal/cache"
	"github.com/safar/go-retail-backend/internal/config"
	"github.com/safar/go-retail-backend/internal/database"
	"github.com/safar/go-retail-backend/internal/lock"
	"github.com/safar/go-retail-backend/internal/store"
)

const (
	lockAbandonedCarts = "reconciler.abandoned-carts"
	lockGuestUsers     = "reconciler.guest-users"
)

// Reconciler undoes reservations that never completed: it unlocks
// abandoned checkouts, empties carts idle past their grace window, and
// reaps expired guests.
// Each periodic job runs under a named distributed lock so one replica
// works at a time; every pass is idempotent and safe to retry.
type Reconciler struct {
	db     *sql.DB
	cache  *cache.Cache
	locker *lock.Locker
	cfg    config.WorkerConfig

	now func() time.Time
}

func NewReconciler(db *sql.DB, c *cache.Cache, locker *lock.Locker, cfg config.WorkerConfig) *Reconciler {
	return &Reconciler{db: db, cache: c, locker: locker, cfg: cfg, now: time.Now}
}

// SetClock overrides the reconciler's clock; tests use it to advance
// time past the cutoffs.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// Run drives both jobs on their tickers until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	abandonedTicker := time.NewTicker(r.cfg.AbandonedInterval)
	defer abandonedTicker.Stop()
	guestTicker := time.NewTicker(r.cfg.GuestInterval)
	defer guestTicker.Stop()

	slog.Info("reconciler started",
		"abandoned_interval", r.cfg.AbandonedInterval,
		"guest_interval", r.cfg.GuestInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler stopped")
			return
		case <-abandonedTicker.C:
			r.runLocked(ctx, lockAbandonedCarts, r.RunAbandonedCarts)
		case <-guestTicker.C:
			r.runLocked(ctx, lockGuestUsers, r.RunGuestUsers)
		}
	}
}

func (r *Reconciler) runLocked(ctx context.Context, name string, job func(context.Context) error) {
	token, ok, err := r.locker.TryAcquire(ctx, name, r.cfg.LockTTL)
	if err != nil {
		slog.Error("lock acquire failed", "lock", name, "err", err)
		return
	}
	if !ok {
		slog.Debug("another replica holds the lock", "lock", name)
		return
	}
	defer func() {
		if err := r.locker.Release(ctx, name, token); err != nil {
			slog.Error("lock release failed", "lock", name, "err", err)
		}
	}()

	if err := job(ctx); err != nil {
		slog.Error("reconciliation job failed", "lock", name, "err", err)
	}
}

// RunAbandonedCarts is one pass of the abandoned-carts job: unlock
// checkouts older than the abandon cutoff and release reservations of
// carts idle past the idle cutoff. The idle set is snapshotted before
// any unlock is applied, so a cart unlocked in this pass keeps its
// lines until a later pass; a freshly abandoned checkout gets a grace
// window instead of being emptied the moment its lock comes off.
func (r *Reconciler) RunAbandonedCarts(ctx context.Context) error {
	now := r.now()

	abandoned, err := store.FindAbandonedCarts(ctx, r.db, now.Add(-r.cfg.AbandonedCutoff))
	if err != nil {
		return err
	}
	idle, err := store.FindIdleCarts(ctx, r.db, now.Add(-r.cfg.IdleCartCutoff))
	if err != nil {
		return err
	}

	for _, cartID := range abandoned {
		if err := r.unlockCart(ctx, cartID, now); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	released := 0
	for _, cartID := range idle {
		ok, err := r.releaseIdleCart(ctx, cartID, now)
		if err != nil {
			return err
		}
		if ok {
			released++
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	if released > 0 {
		if err := r.cache.Invalidate(ctx, cache.RegionCatalogAll); err != nil {
			slog.Warn("cache invalidation failed", "err", err)
		}
	}

	if len(abandoned) > 0 || released > 0 {
		slog.Info("abandoned-carts pass done", "unlocked", len(abandoned), "released", released)
	}
	return nil
}

func (r *Reconciler) unlockCart(ctx context.Context, cartID int64, now time.Time) error {
	return database.WithRetry(ctx, r.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cart, err := store.LockCart(ctx, tx, cartID)
		if err != nil {
			if err == database.ErrCartNotFound {
				return nil
			}
			return err
		}

		// The finalizer may have won the race for this cart; whoever
		// takes the row lock first wins and the loser is a no-op.
		if !cart.Locked || !cart.LockedAt.Valid ||
			now.Sub(cart.LockedAt.Time) < r.cfg.AbandonedCutoff {
			return nil
		}

		return store.UnlockCart(ctx, tx, cart.ID)
	})
}

func (r *Reconciler) releaseIdleCart(ctx context.Context, cartID int64, now time.Time) (bool, error) {
	released := false

	err := database.WithRetry(ctx, r.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		released = false

		cart, err := store.LockCart(ctx, tx, cartID)
		if err != nil {
			if err == database.ErrCartNotFound {
				return nil
			}
			return err
		}

		// Locked carts belong to an outstanding checkout; the idle path
		// never touches them.
		if cart.Locked || !cart.ProductAddedAt.Valid ||
			now.Sub(cart.ProductAddedAt.Time) < r.cfg.IdleCartCutoff {
			return nil
		}

		if err := r.releaseCartLines(ctx, tx, cart.ID); err != nil {
			return err
		}
		if err := store.ClearProductAddedAt(ctx, tx, cart.ID); err != nil {
			return err
		}

		released = true
		return nil
	})

	return released, err
}

func (r *Reconciler) releaseCartLines(ctx context.Context, tx *sql.Tx, cartID int64) error {
	lines, err := store.ListCartLines(ctx, tx, cartID)
	if err != nil {
		return err
	}

	for _, line := range lines {
		if _, err := store.LockProduct(ctx, tx, line.ProductID); err != nil {
			return err
		}
		if err := store.ReleaseReservedStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}

	return store.ClearCartLines(ctx, tx, cartID)
}

// RunGuestUsers is one pass of the guest reaper: release reservations
// held by expired guests' carts, then delete the users (carts and lines
// cascade).
func (r *Reconciler) RunGuestUsers(ctx context.Context) error {
	expired, err := store.ListExpiredGuests(ctx, r.db, r.now().Add(-r.cfg.GuestCutoff))
	if err != nil {
		return err
	}

	for _, userID := range expired {
		err := database.WithRetry(ctx, r.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			cart, err := store.LockCartForUser(ctx, tx, userID)
			if err != nil {
				return err
			}
			if err := r.releaseCartLines(ctx, tx, cart.ID); err != nil {
				return err
			}
			return store.DeleteUser(ctx, tx, userID)
		})
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	if len(expired) > 0 {
		if err := r.cache.Invalidate(ctx,
			cache.RegionDashboard, cache.RegionAdminUsers, cache.RegionCatalogAll); err != nil {
			slog.Warn("cache invalidation failed", "err", err)
		}
		slog.Info("guest-users pass done", "reaped", len(expired))
	}
	return nil
}
