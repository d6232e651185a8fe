// Package payment adapts the external payment processor. The rest of
// the system only sees the Gateway interface; transport details and the
// webhook signature scheme live here.
package payment

import (
	"context"
	"errors"

	"github.com/safar/go-retail-backend/internal/models"
)

var (
	// ErrTransport marks a failed round-trip to the processor; callers
	// roll back and surface a bad-gateway response.
	ErrTransport = errors.New("payment gateway transport error")

	ErrBadSignature    = errors.New("webhook signature verification failed")
	ErrSessionNotFound = errors.New("payment session not found")
)

type SessionStatus string

const (
	SessionStatusPaid    SessionStatus = "paid"
	SessionStatusOpen    SessionStatus = "open"
	SessionStatusExpired SessionStatus = "expired"
)

type LineItem struct {
	PriceID  string
	Quantity int
}

type CreateSessionRequest struct {
	// UserID travels in session metadata so the webhook phase can find
	// the same cart; zero means the processor carries no user hint.
	UserID        int64
	CustomerEmail string
	Shipping      models.ShippingAddress
	LineItems     []LineItem
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// WebhookEvent is the payment-success notification after signature
// verification.
type WebhookEvent struct {
	SessionID     string                 `json:"session_id"`
	UserID        int64                  `json:"user_id,omitempty"`
	CustomerEmail string                 `json:"customer_email"`
	Shipping      models.ShippingAddress `json:"shipping"`
}

type Gateway interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error)
	VerifyWebhook(rawBody []byte, signatureHeader string) (*WebhookEvent, error)
	FetchSessionStatus(ctx context.Context, sessionID string) (SessionStatus, error)
}
