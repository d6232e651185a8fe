package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/safar/go-retail-backend/internal/config"
)

const eventCheckoutCompleted = "checkout.session.completed"

type webhookEnvelope struct {
	Type string       `json:"type"`
	Data WebhookEvent `json:"data"`
}

// HTTPGateway talks to the processor's REST API with form-encoded
// requests and a bearer key, the way its official clients do.
type HTTPGateway struct {
	cfg    config.GatewayConfig
	client *http.Client
}

func NewHTTPGateway(cfg config.GatewayConfig) *HTTPGateway {
	return &HTTPGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *HTTPGateway) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", g.cfg.SuccessURL)
	form.Set("cancel_url", g.cfg.CancelURL)
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}
	if req.UserID != 0 {
		form.Set("client_reference_id", strconv.FormatInt(req.UserID, 10))
	}
	for i, item := range req.LineItems {
		form.Set(fmt.Sprintf("line_items[%d][price]", i), item.PriceID)
		form.Set(fmt.Sprintf("line_items[%d][quantity]", i), strconv.Itoa(item.Quantity))
	}

	session := &Session{}
	if err := g.post(ctx, "/v1/checkout/sessions", form, session); err != nil {
		return nil, err
	}

	return session, nil
}

func (g *HTTPGateway) VerifyWebhook(rawBody []byte, signatureHeader string) (*WebhookEvent, error) {
	if err := verifySignature(g.cfg.WebhookSecret, rawBody, signatureHeader, time.Now()); err != nil {
		return nil, err
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	if envelope.Type != eventCheckoutCompleted {
		return nil, fmt.Errorf("unexpected webhook event %q", envelope.Type)
	}

	return &envelope.Data, nil
}

func (g *HTTPGateway) FetchSessionStatus(ctx context.Context, sessionID string) (SessionStatus, error) {
	var payload struct {
		Status string `json:"payment_status"`
	}
	if err := g.get(ctx, "/v1/checkout/sessions/"+url.PathEscape(sessionID), &payload); err != nil {
		return "", err
	}

	switch payload.Status {
	case "paid":
		return SessionStatusPaid, nil
	case "expired":
		return SessionStatusExpired, nil
	default:
		return SessionStatusOpen, nil
	}
}

func (g *HTTPGateway) post(ctx context.Context, path string, form url.Values, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.cfg.APIBase+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)

	return g.do(req, dest)
}

func (g *HTTPGateway) get(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.APIBase+path, nil)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)

	return g.do(req, dest)
}

func (g *HTTPGateway) do(req *http.Request, dest interface{}) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrSessionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: gateway returned %d", ErrTransport, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}

	return nil
}
