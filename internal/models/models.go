package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
	RoleGuest    = "guest"
)

const (
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
)

type User struct {
	ID                int64          `json:"id"`
	FullName          string         `json:"full_name"`
	Email             sql.NullString `json:"email"`
	PasswordHash      string         `json:"-"`
	Role              string         `json:"role"`
	Verified          bool           `json:"verified"`
	VerificationToken sql.NullString `json:"-"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

type Product struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Price           decimal.Decimal `json:"price"`
	Stock           int             `json:"stock"`
	ReservedStock   int             `json:"reserved_stock"`
	StripeProductID string          `json:"stripe_product_id,omitempty"`
	StripePriceID   string          `json:"stripe_price_id,omitempty"`
	CategoryID      sql.NullInt64   `json:"category_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Available is the stock still open to new reservations.
func (p *Product) Available() int {
	return p.Stock - p.ReservedStock
}

type Cart struct {
	ID             int64        `json:"id"`
	UserID         int64        `json:"user_id"`
	Locked         bool         `json:"locked"`
	LockedAt       sql.NullTime `json:"locked_at,omitempty"`
	ProductAddedAt sql.NullTime `json:"product_added_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

type CartLine struct {
	ID        int64     `json:"id"`
	CartID    int64     `json:"cart_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// CartLineDetail joins a cart line with the product snapshot the
// storefront renders and checkout prices from.
type CartLineDetail struct {
	CartLine
	ProductName   string          `json:"product_name"`
	Price         decimal.Decimal `json:"price"`
	Stock         int             `json:"stock"`
	ReservedStock int             `json:"reserved_stock"`
	StripePriceID string          `json:"-"`
}

// ShippingAddress is the frozen shipping snapshot; it is copied onto the
// order verbatim at finalization time.
type ShippingAddress struct {
	FullName     string `json:"full_name"`
	AddressLine1 string `json:"address_line_1"`
	AddressLine2 string `json:"address_line_2,omitempty"`
	City         string `json:"city"`
	Postcode     string `json:"postcode"`
}

type Order struct {
	ID            int64           `json:"id"`
	UserID        sql.NullInt64   `json:"user_id,omitempty"`
	OrderDate     time.Time       `json:"order_date"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Status        string          `json:"status"`
	FullName      string          `json:"full_name"`
	AddressLine1  string          `json:"address_line_1"`
	AddressLine2  string          `json:"address_line_2,omitempty"`
	City          string          `json:"city"`
	Postcode      string          `json:"postcode"`
	CustomerEmail string          `json:"customer_email"`
	SessionID     string          `json:"session_id"`
	TrackingURL   sql.NullString  `json:"tracking_url,omitempty"`
	Lines         []OrderLine     `json:"lines,omitempty"`
}

type OrderLine struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   sql.NullInt64   `json:"product_id,omitempty"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Address struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	FullName     string    `json:"full_name"`
	AddressLine1 string    `json:"address_line_1"`
	AddressLine2 string    `json:"address_line_2,omitempty"`
	City         string    `json:"city"`
	Postcode     string    `json:"postcode"`
	CreatedAt    time.Time `json:"created_at"`
}

type PaymentMethod struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Token     string    `json:"-"`
	Brand     string    `json:"brand"`
	Last4     string    `json:"last4"`
	CreatedAt time.Time `json:"created_at"`
}

type ProductImage struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Path      string `json:"path"`
}

type FeaturedProduct struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"product_id"`
}

// ValidStatusChange enforces the forward-only order lifecycle
// processing -> shipped -> delivered.
func ValidStatusChange(from, to string) bool {
	switch from {
	case OrderStatusProcessing:
		return to == OrderStatusShipped
	case OrderStatusShipped:
		return to == OrderStatusDelivered
	default:
		return false
	}
}
