package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MaxAmount is the exclusive upper bound of the NUMERIC(10,2) money columns.
var MaxAmount = decimal.New(1, 8)

// Product represents a product in the catalog
type Product struct {
	ID           int64           `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Description  string          `db:"description" json:"description"`
	Price        decimal.Decimal `db:"price" json:"price"`
	Stock        int             `db:"stock" json:"stock"`
	Category     string          `db:"category" json:"category"`
	ImageURLs    StringList      `db:"image_urls" json:"image_urls"`
	MainImageURL string          `db:"main_image_url" json:"main_image_url"`
	Demanded     bool            `db:"demanded" json:"demanded"`
	Keywords     string          `db:"keywords" json:"keywords"`
	Status       string          `db:"status" json:"status"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

const ProductStatusActive = "active"

// StringList is an ordered list persisted as a JSON array.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode string list: %w", err)
	}
	*l = out
	return nil
}

// Order is a customer order. TotalAmount is frozen at creation time.
type Order struct {
	ID                int64           `db:"order_id" json:"order_id"`
	UserID            int64           `db:"user_id" json:"user_id"`
	OrderNumber       int64           `db:"order_number" json:"order_number"`
	OrderDate         time.Time       `db:"order_date" json:"order_date"`
	PaymentDate       *time.Time      `db:"payment_date" json:"payment_date"`
	TotalAmount       decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status            string          `db:"status" json:"status"`
	RemoteOrderID     *string         `db:"remote_order_id" json:"remote_order_id"`
	RemotePaymentID   *string         `db:"remote_payment_id" json:"remote_payment_id"`
	ShippingAddressID *int64          `db:"shipping_address_id" json:"shipping_address_id"`
}

// OrderItem is an immutable order line with the unit price frozen at purchase.
type OrderItem struct {
	OrderID         int64           `db:"order_id" json:"order_id"`
	ProductID       int64           `db:"product_id" json:"product_id"`
	Quantity        int             `db:"quantity" json:"quantity"`
	PriceAtPurchase decimal.Decimal `db:"price_at_purchase" json:"price_at_purchase"`
}

// OrderItemDetail is an order line joined with catalog display fields.
type OrderItemDetail struct {
	OrderItem
	Name         string `db:"name" json:"name"`
	MainImageURL string `db:"main_image_url" json:"main_image_url"`
}

// Order statuses
const (
	OrderStatusCreated    = "Created"
	OrderStatusProcessing = "Processing"
	OrderStatusPaid       = "Paid"
	OrderStatusFailed     = "Failed"
)

// CartEntry is one (user, product) line of a cart.
type CartEntry struct {
	UserID    int64 `db:"user_id" json:"user_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
}

// CartLine is a cart entry with the live product fields the cart UI shows.
type CartLine struct {
	CartEntry
	Name         string          `db:"name" json:"name"`
	Price        decimal.Decimal `db:"price" json:"price"`
	MainImageURL string          `db:"main_image_url" json:"main_image_url"`
	Stock        int             `db:"stock" json:"stock"`
}

type FavoriteEntry struct {
	UserID    int64     `db:"user_id" json:"user_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FavoriteLine is a favorite joined with product display fields.
type FavoriteLine struct {
	FavoriteEntry
	Name         string          `db:"name" json:"name"`
	Price        decimal.Decimal `db:"price" json:"price"`
	MainImageURL string          `db:"main_image_url" json:"main_image_url"`
}

// Address is a shipping address. At most one per user has IsDefault set.
type Address struct {
	ID           int64     `db:"id" json:"id"`
	UserID       int64     `db:"user_id" json:"user_id"`
	FullName     string    `db:"full_name" json:"full_name"`
	MobileNumber *string   `db:"mobile_number" json:"mobile_number"`
	Pincode      string    `db:"pincode" json:"pincode"`
	Line1        string    `db:"line1" json:"line1"`
	Line2        *string   `db:"line2" json:"line2"`
	Landmark     *string   `db:"landmark" json:"landmark"`
	City         string    `db:"city" json:"city"`
	State        string    `db:"state" json:"state"`
	Country      string    `db:"country" json:"country"`
	IsDefault    bool      `db:"is_default" json:"is_default"`
	Lat          *float64  `db:"lat" json:"lat"`
	Lon          *float64  `db:"lon" json:"lon"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// AccountKind discriminates the two actor tables, which share one lifecycle.
type AccountKind string

const (
	AccountKindUser  AccountKind = "user"
	AccountKindAgent AccountKind = "agent"
)

// Table returns the table holding accounts of this kind.
func (k AccountKind) Table() string {
	switch k {
	case AccountKindAgent:
		return "agents"
	default:
		return "users"
	}
}

func (k AccountKind) Valid() bool {
	return k == AccountKindUser || k == AccountKindAgent
}

// Account is a customer or agent. Secrets never serialize.
type Account struct {
	ID           int64      `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Email        *string    `db:"email" json:"email"`
	MobileNumber *string    `db:"mobile_number" json:"mobile_number"`
	PasswordHash string     `db:"password_hash" json:"-"`
	IsVerified   bool       `db:"is_verified" json:"is_verified"`
	Token        *string    `db:"token" json:"-"`
	TokenExpiry  *time.Time `db:"token_expiry" json:"-"`
	OTPCode      *string    `db:"otp_code" json:"-"`
	OTPExpiry    *time.Time `db:"otp_expiry" json:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}
