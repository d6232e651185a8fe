package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports whether err is a postgres unique-constraint
// violation, optionally narrowed to a named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrCartNotFound     = errors.New("cart not found")
	ErrCartLineNotFound = errors.New("cart line not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrCategoryNotFound = errors.New("category not found")

	ErrCartLocked          = errors.New("cart is locked for checkout")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrDuplicateSession    = errors.New("payment session already finalized")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrAlreadyFeatured     = errors.New("product already featured")
	ErrFeaturedLimit       = errors.New("featured product limit reached")
	ErrInvalidStatusChange = errors.New("invalid order status transition")
	ErrLockTimeout         = errors.New("lock timeout")
)

// StockError is the InsufficientStock failure with the remainder the
// customer could still buy. errors.Is(err, ErrInsufficientStock) matches.
type StockError struct {
	ProductName string
	Available   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: %d available", e.ProductName, e.Available)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
