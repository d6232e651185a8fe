package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/safar/go-retail-backend/internal/auth"
	"github.com/safar/go-retail-backend/internal/cache"
	"github.com/safar/go-retail-backend/internal/database"
	"github.com/safar/go-retail-backend/internal/mail"
	"github.com/safar/go-retail-backend/internal/models"
	"github.com/safar/go-retail-backend/internal/payment"
	"github.com/safar/go-retail-backend/internal/service"
	"github.com/safar/go-retail-backend/internal/store"
)

func createTestAdmin(t *testing.T, db *sql.DB) *models.User {
	t.Helper()

	admin, err := store.CreateUser(context.Background(), db, "Test Admin", "admin@example.com", "x", models.RoleAdmin, "")
	if err != nil {
		t.Fatalf("Create admin: %v", err)
	}
	return admin
}

// placeOrder drives the whole pipeline and returns the finalized order.
// The gateway is shared across calls so session ids stay unique.
func placeOrder(t *testing.T, db *sql.DB, c *cache.Cache, gateway *payment.FakeGateway, user *models.User, productID int64, quantity int) *models.Order {
	t.Helper()

	carts := service.NewCartService(db, c)
	checkout := service.NewCheckoutService(db, gateway)
	finalizer := service.NewFinalizer(db, c)
	ctx := customerContext(user)

	if _, err := carts.Add(ctx, productID, quantity); err != nil {
		t.Fatalf("Add to cart: %v", err)
	}
	session, err := checkout.CreateSession(ctx, testShipping)
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}
	body, header, err := gateway.MarkPaid(session.ID)
	if err != nil {
		t.Fatalf("Mark paid: %v", err)
	}
	event, err := gateway.VerifyWebhook(body, header)
	if err != nil {
		t.Fatalf("Verify webhook: %v", err)
	}
	order, err := finalizer.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return order
}

func TestOrderStatusLifecycle(t *testing.T) {
	db, c, _, cleanup := setupTest(t)
	defer cleanup()

	customer := createTestCustomer(t, db, "orders1@example.com")
	admin := createTestAdmin(t, db)
	product := createTestProduct(t, db, "Lifecycle", 120, 10)

	order := placeOrder(t, db, c, payment.NewFakeGateway("whsec_test"), customer, product.ID, 1)

	mailer := &mail.RecordingMailer{}
	orders := service.NewOrderService(db, c, mailer)
	adminCtx := customerContext(admin)

	// Skipping straight to delivered is rejected.
	_, err := orders.UpdateStatus(adminCtx, order.ID, models.OrderStatusDelivered, "")
	if !errors.Is(err, database.ErrInvalidStatusChange) {
		t.Fatalf("Expected invalid status change, got: %v", err)
	}

	shipped, err := orders.UpdateStatus(adminCtx, order.ID, models.OrderStatusShipped, "https://track.example.com/123")
	if err != nil {
		t.Fatalf("Ship order: %v", err)
	}
	if shipped.Status != models.OrderStatusShipped {
		t.Errorf("Expected shipped, got %s", shipped.Status)
	}
	if !shipped.TrackingURL.Valid || shipped.TrackingURL.String != "https://track.example.com/123" {
		t.Errorf("Expected tracking URL on shipped order, got %+v", shipped.TrackingURL)
	}

	msgs := mailer.Messages()
	if len(msgs) != 1 {
		t.Fatalf("Shipping should send exactly one mail, got %d", len(msgs))
	}
	if msgs[0].To != "orders1@example.com" {
		t.Errorf("Mail addressed to %s", msgs[0].To)
	}

	delivered, err := orders.UpdateStatus(adminCtx, order.ID, models.OrderStatusDelivered, "")
	if err != nil {
		t.Fatalf("Deliver order: %v", err)
	}
	if delivered.Status != models.OrderStatusDelivered {
		t.Errorf("Expected delivered, got %s", delivered.Status)
	}

	// Delivery sends nothing, and the lifecycle never goes backwards.
	if len(mailer.Messages()) != 1 {
		t.Errorf("Delivery should not mail, got %d messages", len(mailer.Messages()))
	}
	_, err = orders.UpdateStatus(adminCtx, order.ID, models.OrderStatusShipped, "")
	if !errors.Is(err, database.ErrInvalidStatusChange) {
		t.Errorf("Expected invalid status change going backwards, got: %v", err)
	}

	// Non-admins cannot touch order status.
	_, err = orders.UpdateStatus(customerContext(customer), order.ID, models.OrderStatusShipped, "")
	if !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("Expected forbidden for customer, got: %v", err)
	}
}

func TestCustomerOrderListing(t *testing.T) {
	db, c, _, cleanup := setupTest(t)
	defer cleanup()

	customer := createTestCustomer(t, db, "orders2@example.com")
	other := createTestCustomer(t, db, "orders3@example.com")
	product := createTestProduct(t, db, "Listed", 50, 20)

	gateway := payment.NewFakeGateway("whsec_test")
	placeOrder(t, db, c, gateway, customer, product.ID, 2)
	placeOrder(t, db, c, gateway, customer, product.ID, 1)
	placeOrder(t, db, c, gateway, other, product.ID, 1)

	orders := service.NewOrderService(db, c, &mail.RecordingMailer{})

	mine, err := orders.ListForCustomer(customerContext(customer))
	if err != nil {
		t.Fatalf("List customer orders: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("Expected 2 orders for customer, got %d", len(mine))
	}

	// A second read comes from the cache and must match.
	cached, err := orders.ListForCustomer(customerContext(customer))
	if err != nil {
		t.Fatalf("List customer orders cached: %v", err)
	}
	if len(cached) != len(mine) {
		t.Errorf("Cached listing diverged: %d vs %d", len(cached), len(mine))
	}

	theirs, err := orders.ListForCustomer(customerContext(other))
	if err != nil {
		t.Fatalf("List other customer orders: %v", err)
	}
	if len(theirs) != 1 {
		t.Errorf("Expected 1 order for other customer, got %d", len(theirs))
	}
}

func TestAdminOrderListingPagination(t *testing.T) {
	db, c, _, cleanup := setupTest(t)
	defer cleanup()

	admin := createTestAdmin(t, db)
	product := createTestProduct(t, db, "Bulk", 10, 100)

	gateway := payment.NewFakeGateway("whsec_test")
	for i := 0; i < 15; i++ {
		customer := createTestCustomer(t, db, fmt.Sprintf("bulk%d@example.com", i))
		placeOrder(t, db, c, gateway, customer, product.ID, 1)
	}

	orders := service.NewOrderService(db, c, &mail.RecordingMailer{})
	adminCtx := customerContext(admin)

	page1, err := orders.AdminList(adminCtx, "", "", 10)
	if err != nil {
		t.Fatalf("List orders page 1: %v", err)
	}
	if len(page1.Items.([]models.Order)) != 10 {
		t.Errorf("Expected 10 orders on page 1, got %d", len(page1.Items.([]models.Order)))
	}
	if !page1.HasMore || page1.NextCursor == "" {
		t.Error("Page 1 should have more results and a cursor")
	}

	page2, err := orders.AdminList(adminCtx, "", page1.NextCursor, 10)
	if err != nil {
		t.Fatalf("List orders page 2: %v", err)
	}
	if len(page2.Items.([]models.Order)) != 5 {
		t.Errorf("Expected 5 orders on page 2, got %d", len(page2.Items.([]models.Order)))
	}
	if page2.HasMore {
		t.Error("Page 2 should be the last page")
	}

	// Status filter: nothing shipped yet.
	shippedPage, err := orders.AdminList(adminCtx, models.OrderStatusShipped, "", 10)
	if err != nil {
		t.Fatalf("List shipped orders: %v", err)
	}
	if len(shippedPage.Items.([]models.Order)) != 0 {
		t.Errorf("Expected no shipped orders, got %d", len(shippedPage.Items.([]models.Order)))
	}
}
