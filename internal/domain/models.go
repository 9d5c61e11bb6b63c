package domain

import "time"

// Product is the listing record served by /products/api/list. The JSON names
// are shared with the server-rendered forms and must not change.
type Product struct {
	ID        int64   `json:"id"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Unit      string  `json:"unit"`
	UnitPrice float64 `json:"unit_price"`
	SellPrice float64 `json:"sell_price"`
	Barcode   string  `json:"-"`
	Active    bool    `json:"-"`
}

type ProductCreateRequest struct {
	Code      string  `json:"code" validate:"required,max=32"`
	Name      string  `json:"name" validate:"required,max=120"`
	Barcode   string  `json:"barcode" validate:"omitempty,max=64"`
	Unit      string  `json:"unit" validate:"max=20"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
	SellPrice float64 `json:"sell_price" validate:"gte=0"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type TableCreateRequest struct {
	HasExpiry bool `json:"has_expiry"`
}

type RowAddRequest struct {
	ProductID  int64  `json:"product_id"`
	PriceField string `json:"price_field"`
}

// RowUpdateRequest carries the fields a clerk edited. Nil fields are untouched.
type RowUpdateRequest struct {
	Quantity   *string `json:"quantity,omitempty"`
	UnitPrice  *string `json:"unit_price,omitempty"`
	ExpiryDate *string `json:"expiry_date,omitempty"`
}

type RowView struct {
	ID         string `json:"id"`
	ProductID  int64  `json:"product_id"`
	Label      string `json:"label"`
	Quantity   string `json:"quantity"`
	UnitPrice  string `json:"unit_price"`
	ExpiryDate string `json:"expiry_date,omitempty"`
	Amount     string `json:"amount"`
}

type TableView struct {
	ID        string    `json:"id"`
	HasExpiry bool      `json:"has_expiry"`
	Rows      []RowView `json:"rows"`
	Total     string    `json:"total"`
	Seq       uint64    `json:"seq"`
}

type TableResponse struct {
	Table TableView `json:"table"`
}

type TableEvent struct {
	TableID string   `json:"table_id"`
	Kind    string   `json:"kind"`
	Seq     uint64   `json:"seq"`
	Row     *RowView `json:"row,omitempty"`
	Total   string   `json:"total"`
}

type SubmittedItem struct {
	ProductID  int64  `json:"product_id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Quantity   string `json:"quantity"`
	UnitPrice  string `json:"unit_price"`
	ExpiryDate string `json:"expiry_date,omitempty"`
	Amount     string `json:"amount"`
}

type SubmissionResponse struct {
	Items []SubmittedItem `json:"items"`
	Total string          `json:"total"`
}

const (
	RoleAdmin = "admin"
	RoleClerk = "clerk"
)

type ClerkCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ClerkUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
