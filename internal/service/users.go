package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/safar/go-retail-backend/internal/auth"
	"github.com/safar/go-retail-backend/internal/cache"
	"github.com/safar/go-retail-backend/internal/database"
	"github.com/safar/go-retail-backend/internal/models"
	"github.com/safar/go-retail-backend/internal/store"
)

// UserService covers registration, login and verification for customer
// accounts, plus implicit guest identities for anonymous carts.
type UserService struct {
	db     *sql.DB
	cache  *cache.Cache
	tokens *auth.TokenIssuer
}

func NewUserService(db *sql.DB, c *cache.Cache, tokens *auth.TokenIssuer) *UserService {
	return &UserService{db: db, cache: c, tokens: tokens}
}

func (s *UserService) Register(ctx context.Context, fullName, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, &ValidationError{Field: "email"}
	}
	if len(password) < 8 {
		return nil, &ValidationError{Field: "password"}
	}
	if fullName == "" {
		return nil, &ValidationError{Field: "full_name"}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := store.CreateUser(ctx, s.db, fullName, email, hash, models.RoleCustomer, uuid.NewString())
	if err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, cache.RegionAdminUsers, cache.RegionDashboard); err != nil {
		slog.Warn("cache invalidation failed", "err", err)
	}

	slog.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login checks the credentials and mints an access token.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := store.GetUserByEmail(ctx, s.db, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if err == database.ErrUserNotFound {
			return nil, "", auth.ErrUnauthenticated
		}
		return nil, "", err
	}

	if user.PasswordHash == "" || !auth.CheckPassword(user.PasswordHash, password) {
		return nil, "", auth.ErrUnauthenticated
	}

	token, err := s.tokens.Mint(user.ID, user.Role)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

// CreateGuest mints an anonymous user plus an access token for it. The
// storefront calls this implicitly on the first cart write so the cart
// has an owner the webhook phase can find again.
func (s *UserService) CreateGuest(ctx context.Context) (*models.User, string, error) {
	guest, err := store.CreateGuestUser(ctx, s.db)
	if err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Mint(guest.ID, guest.Role)
	if err != nil {
		return nil, "", err
	}

	slog.Info("guest user created", "user_id", guest.ID)
	return guest, token, nil
}

func (s *UserService) Verify(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, &ValidationError{Field: "token"}
	}
	return store.MarkUserVerified(ctx, s.db, token)
}

// Addresses and payment methods are plain per-user CRUD.

func (s *UserService) Addresses(ctx context.Context) ([]models.Address, error) {
	principal, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	return store.ListAddresses(ctx, s.db, principal.UserID)
}

func (s *UserService) AddAddress(ctx context.Context, a models.Address) (*models.Address, error) {
	principal, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	if a.FullName == "" {
		return nil, &ValidationError{Field: "full_name"}
	}
	if a.AddressLine1 == "" {
		return nil, &ValidationError{Field: "address_line_1"}
	}
	a.UserID = principal.UserID
	return store.CreateAddress(ctx, s.db, a)
}

func (s *UserService) PaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	principal, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	return store.ListPaymentMethods(ctx, s.db, principal.UserID)
}

func (s *UserService) AddPaymentMethod(ctx context.Context, m models.PaymentMethod) (*models.PaymentMethod, error) {
	principal, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	if m.Token == "" {
		return nil, &ValidationError{Field: "token"}
	}
	m.UserID = principal.UserID
	return store.CreatePaymentMethod(ctx, s.db, m)
}

// AdminList pages through all users for the admin view.
func (s *UserService) AdminList(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	return store.ListUsers(ctx, s.db, page, pageSize)
}
