package integration

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/safar/go-retail-backend/internal/database"
	"github.com/safar/go-retail-backend/internal/models"
	"github.com/safar/go-retail-backend/internal/objstore"
	"github.com/safar/go-retail-backend/internal/payment"
	"github.com/safar/go-retail-backend/internal/service"
	"github.com/safar/go-retail-backend/internal/store"
)

func TestFeaturedProductLimit(t *testing.T) {
	db, c, _, cleanup := setupTest(t)
	defer cleanup()

	admin := createTestAdmin(t, db)
	catalog := service.NewCatalogService(db, c, objstore.NewMemoryStore())
	ctx := customerContext(admin)

	var products []*models.Product
	for i := 0; i < 5; i++ {
		products = append(products, createTestProduct(t, db, fmt.Sprintf("Feat%d", i), 10, 5))
	}

	for i := 0; i < 4; i++ {
		if err := catalog.Feature(ctx, products[i].ID); err != nil {
			t.Fatalf("Feature product %d: %v", i, err)
		}
	}

	// The fifth slot does not exist.
	if err := catalog.Feature(ctx, products[4].ID); !errors.Is(err, database.ErrFeaturedLimit) {
		t.Fatalf("Expected featured-limit error, got: %v", err)
	}

	// Featuring an already-featured product is its own error.
	if err := catalog.Feature(ctx, products[0].ID); !errors.Is(err, database.ErrAlreadyFeatured) {
		t.Fatalf("Expected already-featured error, got: %v", err)
	}

	featured, err := catalog.Featured(ctx)
	if err != nil {
		t.Fatalf("List featured: %v", err)
	}
	if len(featured) != 4 {
		t.Fatalf("Expected 4 featured products, got %d", len(featured))
	}

	// Unfeaturing frees the slot.
	if err := catalog.Unfeature(ctx, products[0].ID); err != nil {
		t.Fatalf("Unfeature: %v", err)
	}
	if err := catalog.Feature(ctx, products[4].ID); err != nil {
		t.Fatalf("Feature after unfeature: %v", err)
	}
}

func TestConcurrentFeatureRequests(t *testing.T) {
	db, c, _, cleanup := setupTest(t)
	defer cleanup()

	admin := createTestAdmin(t, db)
	catalog := service.NewCatalogService(db, c, objstore.NewMemoryStore())
	ctx := customerContext(admin)

	var products []*models.Product
	for i := 0; i < 5; i++ {
		products = append(products, createTestProduct(t, db, fmt.Sprintf("Race%d", i), 10, 5))
	}

	for i := 0; i < 3; i++ {
		if err := catalog.Feature(ctx, products[i].ID); err != nil {
			t.Fatalf("Feature product %d: %v", i, err)
		}
	}

	// Two admins race for the last slot. The serializable loser retries
	// and lands on the limit error, never a raw serialization failure.
	errs := make(chan error, 2)
	for _, p := range products[3:] {
		go func(productID int64) {
			errs <- catalog.Feature(ctx, productID)
		}(p.ID)
	}

	var succeeded, limited int
	for i := 0; i < 2; i++ {
		switch err := <-errs; {
		case err == nil:
			succeeded++
		case errors.Is(err, database.ErrFeaturedLimit):
			limited++
		default:
			t.Fatalf("Unexpected feature error: %v", err)
		}
	}
	if succeeded != 1 || limited != 1 {
		t.Fatalf("Expected 1 success and 1 limit error, got %d/%d", succeeded, limited)
	}

	featured, err := catalog.Featured(ctx)
	if err != nil {
		t.Fatalf("List featured: %v", err)
	}
	if len(featured) != 4 {
		t.Fatalf("Expected 4 featured products, got %d", len(featured))
	}
}

func TestCatalogListCacheInvalidation(t *testing.T) {
	db, c, _, cleanup := setupTest(t)
	defer cleanup()

	admin := createTestAdmin(t, db)
	catalog := service.NewCatalogService(db, c, objstore.NewMemoryStore())
	ctx := customerContext(admin)

	createTestProduct(t, db, "CacheSeed", 10, 5)

	page, err := catalog.List(ctx, 1, 20)
	if err != nil {
		t.Fatalf("List products: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("Expected 1 product, got %d", page.Total)
	}

	// A write through the service invalidates the cached listing.
	created, err := catalog.Create(ctx, store.CreateProductRequest{
		Name:  "FreshlyAdded",
		Price: decimal.NewFromInt(25),
		Stock: 3,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	page, err = catalog.List(ctx, 1, 20)
	if err != nil {
		t.Fatalf("List products after create: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("Expected 2 products after create, got %d", page.Total)
	}

	if err := catalog.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete product: %v", err)
	}
	page, err = catalog.List(ctx, 1, 20)
	if err != nil {
		t.Fatalf("List products after delete: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("Expected 1 product after delete, got %d", page.Total)
	}
}

func TestDeleteProductKeepsOrderHistory(t *testing.T) {
	db, c, _, cleanup := setupTest(t)
	defer cleanup()

	admin := createTestAdmin(t, db)
	customer := createTestCustomer(t, db, "catalog1@example.com")
	product := createTestProduct(t, db, "Discontinued", 60, 5)

	order := placeOrder(t, db, c, payment.NewFakeGateway("whsec_test"), customer, product.ID, 2)

	catalog := service.NewCatalogService(db, c, objstore.NewMemoryStore())
	if err := catalog.Delete(customerContext(admin), product.ID); err != nil {
		t.Fatalf("Delete product: %v", err)
	}

	kept, err := store.GetOrder(context.Background(), db, order.ID)
	if err != nil {
		t.Fatalf("Get order after product delete: %v", err)
	}
	if len(kept.Lines) != 1 {
		t.Fatalf("Expected order line to survive, got %d lines", len(kept.Lines))
	}
	line := kept.Lines[0]
	if line.ProductID.Valid {
		t.Error("Order line product reference should be nulled")
	}
	if line.ProductName != "Discontinued" || !line.UnitPrice.Equal(decimal.NewFromInt(60)) {
		t.Errorf("Frozen name and price should survive, got %+v", line)
	}
}
