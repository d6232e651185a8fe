package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/safar/go-retail-backend/internal/auth"
	"github.com/safar/go-retail-backend/internal/database"
	"github.com/safar/go-retail-backend/internal/payment"
	"github.com/safar/go-retail-backend/internal/service"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"code": code, "error": message})
}

// respondServiceError maps typed service errors onto HTTP statuses.
// Internal errors are logged and never leak detail to the caller.
func respondServiceError(w http.ResponseWriter, err error) {
	var validationErr *service.ValidationError
	var stockErr *database.StockError

	switch {
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, "validation", validationErr.Error())
	case errors.As(err, &stockErr):
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"code":         "insufficient_stock",
			"error":        stockErr.Error(),
			"product_name": stockErr.ProductName,
			"available":    stockErr.Available,
		})
	case errors.Is(err, database.ErrInsufficientStock):
		respondError(w, http.StatusBadRequest, "insufficient_stock", err.Error())
	case errors.Is(err, database.ErrCartLocked):
		respondError(w, http.StatusBadRequest, "cart_locked", err.Error())
	case errors.Is(err, database.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", err.Error())
	case errors.Is(err, database.ErrDuplicateSession):
		respondError(w, http.StatusBadRequest, "duplicate_session", err.Error())
	case errors.Is(err, database.ErrAlreadyFeatured):
		respondError(w, http.StatusBadRequest, "already_featured", err.Error())
	case errors.Is(err, database.ErrFeaturedLimit):
		respondError(w, http.StatusBadRequest, "featured_limit", err.Error())
	case errors.Is(err, database.ErrInvalidStatusChange):
		respondError(w, http.StatusBadRequest, "invalid_status_change", err.Error())
	case errors.Is(err, database.ErrDuplicateEmail):
		respondError(w, http.StatusBadRequest, "duplicate_email", err.Error())
	case errors.Is(err, payment.ErrBadSignature):
		respondError(w, http.StatusBadRequest, "bad_signature", err.Error())
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid token")
	case errors.Is(err, auth.ErrForbidden):
		respondError(w, http.StatusForbidden, "forbidden", "insufficient role")
	case errors.Is(err, database.ErrUserNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrCartNotFound),
		errors.Is(err, database.ErrCartLineNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrCategoryNotFound),
		errors.Is(err, payment.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, payment.ErrTransport):
		respondError(w, http.StatusBadGateway, "gateway_unavailable", "payment gateway unavailable")
	default:
		slog.Error("internal error", "err", err)
		respondError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
