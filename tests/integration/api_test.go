package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/safar/go-retail-backend/internal/api"
	"github.com/safar/go-retail-backend/internal/auth"
	"github.com/safar/go-retail-backend/internal/cache"
	"github.com/safar/go-retail-backend/internal/mail"
	"github.com/safar/go-retail-backend/internal/models"
	"github.com/safar/go-retail-backend/internal/objstore"
	"github.com/safar/go-retail-backend/internal/payment"
	"github.com/safar/go-retail-backend/internal/service"
	"github.com/safar/go-retail-backend/internal/store"
)

func newTestHandler(db *sql.DB, c *cache.Cache, gateway payment.Gateway) http.Handler {
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	return api.NewServer(
		tokens,
		gateway,
		service.NewCartService(db, c),
		service.NewCheckoutService(db, gateway),
		service.NewFinalizer(db, c),
		service.NewOrderService(db, c, &mail.RecordingMailer{}),
		service.NewCatalogService(db, c, objstore.NewMemoryStore()),
		service.NewUserService(db, c, tokens),
	).Handler()
}

func TestGuestCheckoutOverHTTP(t *testing.T) {
	db, c, _, cleanup := setupTest(t)
	defer cleanup()

	product := createTestProduct(t, db, "GuestBuy", 90, 5)
	gateway := payment.NewFakeGateway("whsec_test")

	handler := newTestHandler(db, c, gateway)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	client := srv.Client()

	// Mutations without the CSRF header are refused.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+fmt.Sprintf("/cart/%d", product.ID), nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Add without CSRF header: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("Expected 403 without CSRF header, got %d", resp.StatusCode)
	}

	// Anonymous add mints a guest identity and sets its cookie.
	req, _ = http.NewRequest(http.MethodPost, srv.URL+fmt.Sprintf("/cart/%d", product.ID), bytes.NewBufferString(`{"quantity": 2}`))
	req.Header.Set("X-CSRF-Token", "1")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("Anonymous add: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 on anonymous add, got %d", resp.StatusCode)
	}

	var guestCookie *http.Cookie
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "access_token" {
			guestCookie = cookie
		}
	}
	if guestCookie == nil {
		t.Fatal("Anonymous add should set an access_token cookie")
	}

	if got := fetchProduct(t, db, product.ID).ReservedStock; got != 2 {
		t.Fatalf("Expected reserved stock 2, got %d", got)
	}

	// Checkout with the guest cookie.
	body, _ := json.Marshal(testShipping)
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/order/checkout", bytes.NewBuffer(body))
	req.Header.Set("X-CSRF-Token", "1")
	req.AddCookie(guestCookie)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("Guest checkout: %v", err)
	}
	var checkoutResp struct {
		SessionID string `json:"session_id"`
		URL       string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&checkoutResp); err != nil {
		t.Fatalf("Decode checkout response: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || checkoutResp.SessionID == "" {
		t.Fatalf("Expected 201 with a session, got %d %+v", resp.StatusCode, checkoutResp)
	}

	// The provider's webhook needs no CSRF header, only a signature.
	payload, header, err := gateway.MarkPaid(checkoutResp.SessionID)
	if err != nil {
		t.Fatalf("Mark paid: %v", err)
	}

	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/order/webhook", bytes.NewBuffer(payload))
	req.Header.Set("Stripe-Signature", header)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("Webhook delivery: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on webhook, got %d", resp.StatusCode)
	}

	// A tampered payload is rejected.
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/order/webhook", bytes.NewBuffer(append(payload, ' ')))
	req.Header.Set("Stripe-Signature", header)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("Tampered webhook delivery: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400 on bad signature, got %d", resp.StatusCode)
	}

	ctx := context.Background()
	order, err := store.GetOrderBySessionID(ctx, db, checkoutResp.SessionID)
	if err != nil {
		t.Fatalf("Order should exist for the session: %v", err)
	}
	if !order.UserID.Valid {
		t.Fatal("Order should belong to the guest user")
	}
	owner, err := store.GetUser(ctx, db, order.UserID.Int64)
	if err != nil {
		t.Fatalf("Get order owner: %v", err)
	}
	if owner.Role != models.RoleGuest {
		t.Errorf("Expected guest owner, got role %s", owner.Role)
	}

	after := fetchProduct(t, db, product.ID)
	if after.Stock != 3 || after.ReservedStock != 0 {
		t.Errorf("Expected stock 3 / reserved 0, got %d / %d", after.Stock, after.ReservedStock)
	}
}

func TestRegisterLoginOverHTTP(t *testing.T) {
	db, c, _, cleanup := setupTest(t)
	defer cleanup()

	gateway := payment.NewFakeGateway("whsec_test")
	handler := newTestHandler(db, c, gateway)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	client := srv.Client()

	register := func(email string) *http.Response {
		body := []byte(`{"full_name":"HTTP User","email":"` + email + `","password":"longenough"}`)
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/user/register", bytes.NewBuffer(body))
		req.Header.Set("X-CSRF-Token", "1")
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		return resp
	}

	resp := register("http1@example.com")
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 on register, got %d", resp.StatusCode)
	}

	// Duplicate email.
	resp = register("http1@example.com")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400 on duplicate email, got %d", resp.StatusCode)
	}

	body := []byte(`{"email":"http1@example.com","password":"longenough"}`)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/user/login", bytes.NewBuffer(body))
	req.Header.Set("X-CSRF-Token", "1")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on login, got %d", resp.StatusCode)
	}

	var token *http.Cookie
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "access_token" {
			token = cookie
		}
	}
	if token == nil {
		t.Fatal("Login should set the access_token cookie")
	}

	// Wrong password.
	body = []byte(`{"email":"http1@example.com","password":"wrong-password"}`)
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/user/login", bytes.NewBuffer(body))
	req.Header.Set("X-CSRF-Token", "1")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("Login with wrong password: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected 401 on wrong password, got %d", resp.StatusCode)
	}

	// A garbage token is an error, not an anonymous pass-through.
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/cart/", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "garbage"})
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("Request with garbage token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected 401 on garbage token, got %d", resp.StatusCode)
	}
}
