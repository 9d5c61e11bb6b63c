package store

import (
	"context"
	"errors"

	"stockmaster/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("already exists")
)

// DefaultSearchLimit caps a product search when the caller passes no limit.
const DefaultSearchLimit = 50

type ProductQuery struct {
	// Text matches name, code or barcode, case-insensitively. Blank matches
	// every active product.
	Text  string
	Limit int
}

type Repository interface {
	SearchProducts(ctx context.Context, query ProductQuery) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
