package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// FakeGateway is the in-process stand-in used by tests and local runs.
// Sessions exist only in memory; MarkPaid flips a session and returns a
// signed webhook body the real verifier accepts.
type FakeGateway struct {
	Secret string

	mu       sync.Mutex
	counter  int
	sessions map[string]*fakeSession
}

type fakeSession struct {
	req    CreateSessionRequest
	status SessionStatus
}

func NewFakeGateway(secret string) *FakeGateway {
	return &FakeGateway{
		Secret:   secret,
		sessions: make(map[string]*fakeSession),
	}
}

func (g *FakeGateway) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counter++
	id := fmt.Sprintf("sess_%d", g.counter)
	g.sessions[id] = &fakeSession{req: req, status: SessionStatusOpen}

	return &Session{ID: id, URL: "https://checkout.example.com/" + id}, nil
}

func (g *FakeGateway) VerifyWebhook(rawBody []byte, signatureHeader string) (*WebhookEvent, error) {
	if err := verifySignature(g.Secret, rawBody, signatureHeader, time.Now()); err != nil {
		return nil, err
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	return &envelope.Data, nil
}

func (g *FakeGateway) FetchSessionStatus(ctx context.Context, sessionID string) (SessionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	session, ok := g.sessions[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}
	return session.status, nil
}

// MarkPaid marks the session paid and returns a signed webhook payload
// plus its signature header.
func (g *FakeGateway) MarkPaid(sessionID string) ([]byte, string, error) {
	g.mu.Lock()
	session, ok := g.sessions[sessionID]
	if ok {
		session.status = SessionStatusPaid
	}
	g.mu.Unlock()

	if !ok {
		return nil, "", ErrSessionNotFound
	}

	body, err := json.Marshal(webhookEnvelope{
		Type: eventCheckoutCompleted,
		Data: WebhookEvent{
			SessionID:     sessionID,
			UserID:        session.req.UserID,
			CustomerEmail: session.req.CustomerEmail,
			Shipping:      session.req.Shipping,
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal webhook payload: %w", err)
	}

	now := time.Now().Unix()
	return body, SignatureHeader(g.Secret, now, body), nil
}
