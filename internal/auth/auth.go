package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/safar/go-retail-backend/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthenticated = errors.New("no authenticated principal")
	ErrForbidden       = errors.New("insufficient role")
	ErrInvalidToken    = errors.New("invalid or expired token")
)

// Principal is the resolved identity for the current operation.
type Principal struct {
	UserID int64
	Role   string
}

func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// RequireUser returns the current principal or the unauthenticated
// marker error.
func RequireUser(ctx context.Context) (Principal, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	return p, nil
}

// RequireAdmin gates admin-only operations.
func RequireAdmin(ctx context.Context) (Principal, error) {
	p, err := RequireUser(ctx)
	if err != nil {
		return Principal{}, err
	}
	if !p.IsAdmin() {
		return Principal{}, ErrForbidden
	}
	return p, nil
}

type tokenClaims struct {
	UserID    int64  `json:"uid"`
	Role      string `json:"role"`
	ExpiresAt int64  `json:"exp"`
}

// TokenIssuer mints and verifies the opaque access tokens the fronting
// layer carries in cookies. Payload is JSON, signature is HMAC-SHA256.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

func (i *TokenIssuer) Mint(userID int64, role string) (string, error) {
	claims := tokenClaims{
		UserID:    userID,
		Role:      role,
		ExpiresAt: time.Now().Add(i.ttl).Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + i.sign(body), nil
}

func (i *TokenIssuer) Verify(token string) (Principal, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok {
		return Principal{}, ErrInvalidToken
	}

	if !hmac.Equal([]byte(i.sign(body)), []byte(sig)) {
		return Principal{}, ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Principal{}, ErrInvalidToken
	}

	if time.Now().Unix() > claims.ExpiresAt {
		return Principal{}, ErrInvalidToken
	}

	return Principal{UserID: claims.UserID, Role: claims.Role}, nil
}

func (i *TokenIssuer) sign(body string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
