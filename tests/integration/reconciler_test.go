package integration

import (
	"context"
	"testing"
	"time"

	"github.com/safar/go-retail-backend/internal/config"
	"github.com/safar/go-retail-backend/internal/database"
	"github.com/safar/go-retail-backend/internal/lock"
	"github.com/safar/go-retail-backend/internal/payment"
	"github.com/safar/go-retail-backend/internal/service"
	"github.com/safar/go-retail-backend/internal/store"
)

func workerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		AbandonedInterval: 10 * time.Minute,
		GuestInterval:     15 * time.Minute,
		LockTTL:           30 * time.Minute,
		AbandonedCutoff:   24 * time.Hour,
		IdleCartCutoff:    time.Hour,
		GuestCutoff:       7 * 24 * time.Hour,
	}
}

func TestReconcilerUnlocksAbandonedCheckout(t *testing.T) {
	db, c, rdb, cleanup := setupTest(t)
	defer cleanup()

	user := createTestCustomer(t, db, "rec1@example.com")
	product := createTestProduct(t, db, "Abandoned", 100, 10)

	gateway := payment.NewFakeGateway("whsec_test")
	carts := service.NewCartService(db, c)
	checkout := service.NewCheckoutService(db, gateway)
	ctx := customerContext(user)

	if _, err := carts.Add(ctx, product.ID, 2); err != nil {
		t.Fatalf("Add to cart: %v", err)
	}
	if _, err := checkout.CreateSession(ctx, testShipping); err != nil {
		t.Fatalf("Create session: %v", err)
	}

	rec := service.NewReconciler(db, c, lock.New(rdb), workerConfig())

	// Two hours in: the lock is not yet stale, and a locked cart is
	// never treated as idle.
	rec.SetClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	if err := rec.RunAbandonedCarts(context.Background()); err != nil {
		t.Fatalf("Reconciliation pass: %v", err)
	}

	cart := fetchCart(t, db, user.ID)
	if !cart.Locked {
		t.Fatal("Cart should still be locked before the cutoff")
	}
	if got := fetchProduct(t, db, product.ID).ReservedStock; got != 2 {
		t.Errorf("Reservations should survive before the cutoff, got %d", got)
	}

	// Past the abandon cutoff the lock comes off, but the cart keeps
	// its lines and reservations: the idle candidates are picked before
	// the unlocks apply, so the just-unlocked cart is not among them.
	rec.SetClock(func() time.Time { return time.Now().Add(25 * time.Hour) })
	if err := rec.RunAbandonedCarts(context.Background()); err != nil {
		t.Fatalf("Reconciliation pass: %v", err)
	}

	cart = fetchCart(t, db, user.ID)
	if cart.Locked || cart.LockedAt.Valid {
		t.Error("Cart should be unlocked after the abandon cutoff")
	}
	if got := fetchProduct(t, db, product.ID).ReservedStock; got != 2 {
		t.Errorf("Reservations should survive the unlocking pass, got %d", got)
	}
	lines, err := store.ListCartLines(context.Background(), db, cart.ID)
	if err != nil {
		t.Fatalf("List cart lines: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("Cart lines should survive the unlocking pass, got %d", len(lines))
	}

	// The next pass sees an unlocked, idle cart and empties it.
	if err := rec.RunAbandonedCarts(context.Background()); err != nil {
		t.Fatalf("Reconciliation pass: %v", err)
	}

	if got := fetchProduct(t, db, product.ID).ReservedStock; got != 0 {
		t.Errorf("Expected reservations released, got %d", got)
	}
	lines, err = store.ListCartLines(context.Background(), db, cart.ID)
	if err != nil {
		t.Fatalf("List cart lines: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("Expected emptied cart, got %d lines", len(lines))
	}

	after := fetchProduct(t, db, product.ID)
	if after.Stock != 10 {
		t.Errorf("Stock should never change on reconciliation, got %d", after.Stock)
	}
}

func TestReconcilerReleasesIdleCart(t *testing.T) {
	db, c, rdb, cleanup := setupTest(t)
	defer cleanup()

	user := createTestCustomer(t, db, "rec2@example.com")
	product := createTestProduct(t, db, "Idle", 100, 10)

	carts := service.NewCartService(db, c)
	ctx := customerContext(user)

	if _, err := carts.Add(ctx, product.ID, 4); err != nil {
		t.Fatalf("Add to cart: %v", err)
	}

	rec := service.NewReconciler(db, c, lock.New(rdb), workerConfig())
	rec.SetClock(func() time.Time { return time.Now().Add(2 * time.Hour) })

	if err := rec.RunAbandonedCarts(context.Background()); err != nil {
		t.Fatalf("Reconciliation pass: %v", err)
	}

	if got := fetchProduct(t, db, product.ID).ReservedStock; got != 0 {
		t.Errorf("Expected reservations released, got %d", got)
	}

	cart := fetchCart(t, db, user.ID)
	if cart.ProductAddedAt.Valid {
		t.Error("product_added_at should be cleared on release")
	}

	lines, err := carts.List(ctx)
	if err != nil {
		t.Fatalf("List cart: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("Expected emptied cart, got %d lines", len(lines))
	}
}

func TestReconcilerReapsExpiredGuests(t *testing.T) {
	db, c, rdb, cleanup := setupTest(t)
	defer cleanup()

	ctx := context.Background()

	guest, err := store.CreateGuestUser(ctx, db)
	if err != nil {
		t.Fatalf("Create guest: %v", err)
	}
	customer := createTestCustomer(t, db, "rec3@example.com")
	product := createTestProduct(t, db, "GuestPick", 100, 10)

	carts := service.NewCartService(db, c)
	if _, err := carts.Add(customerContext(guest), product.ID, 3); err != nil {
		t.Fatalf("Guest add to cart: %v", err)
	}

	// Age both accounts past the guest cutoff; only the guest goes.
	for _, id := range []int64{guest.ID, customer.ID} {
		if _, err := db.Exec(`UPDATE users SET created_at = NOW() - INTERVAL '8 days' WHERE id = $1`, id); err != nil {
			t.Fatalf("Backdate user %d: %v", id, err)
		}
	}

	rec := service.NewReconciler(db, c, lock.New(rdb), workerConfig())
	if err := rec.RunGuestUsers(ctx); err != nil {
		t.Fatalf("Guest reaper pass: %v", err)
	}

	if _, err := store.GetUser(ctx, db, guest.ID); err != database.ErrUserNotFound {
		t.Errorf("Expected guest deleted, got: %v", err)
	}
	if _, err := store.GetUser(ctx, db, customer.ID); err != nil {
		t.Errorf("Customer should survive the reaper: %v", err)
	}

	if got := fetchProduct(t, db, product.ID).ReservedStock; got != 0 {
		t.Errorf("Guest reservations should be released, got %d", got)
	}
	if _, err := store.GetCartByUserID(ctx, db, guest.ID); err != database.ErrCartNotFound {
		t.Errorf("Guest cart should cascade, got: %v", err)
	}
}

func TestDistributedLockExcludesSecondHolder(t *testing.T) {
	rdb, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	locker := lock.New(rdb)

	token, ok, err := locker.TryAcquire(ctx, "reconciler.abandoned-carts", time.Minute)
	if err != nil || !ok {
		t.Fatalf("First acquire should succeed: ok=%v err=%v", ok, err)
	}

	_, ok, err = locker.TryAcquire(ctx, "reconciler.abandoned-carts", time.Minute)
	if err != nil {
		t.Fatalf("Second acquire: %v", err)
	}
	if ok {
		t.Fatal("Second acquire should be refused while the lock is held")
	}

	// Releasing with the wrong token must not free someone else's lock.
	if err := locker.Release(ctx, "reconciler.abandoned-carts", "not-the-token"); err != nil {
		t.Fatalf("Release with wrong token: %v", err)
	}
	_, ok, err = locker.TryAcquire(ctx, "reconciler.abandoned-carts", time.Minute)
	if err != nil {
		t.Fatalf("Re-acquire: %v", err)
	}
	if ok {
		t.Fatal("Wrong-token release should leave the lock held")
	}

	if err := locker.Release(ctx, "reconciler.abandoned-carts", token); err != nil {
		t.Fatalf("Release: %v", err)
	}
	_, ok, err = locker.TryAcquire(ctx, "reconciler.abandoned-carts", time.Minute)
	if err != nil || !ok {
		t.Fatalf("Acquire after release should succeed: ok=%v err=%v", ok, err)
	}
}
