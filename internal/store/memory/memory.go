package memory

import (
	"cmp"
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stockmaster/backend/internal/domain"
	"stockmaster/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	products        map[int64]domain.Product
	nextProductID   int64
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_CLERK_PASSWORD, with dev defaults otherwise.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	clerkPwd := envOr("SEED_CLERK_PASSWORD", "clerk123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CLERK_PASSWORD") == "" {
		slog.Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CLERK_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"clerk", clerkPwd, domain.RoleClerk},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			panic("memory store: hash seed password for " + u.username + ": " + err.Error())
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:        make(map[int64]domain.Product),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store holding a small demo catalog and the seed users.
func NewSeeded() *Store {
	s := New()
	for _, p := range []domain.Product{
		{Code: "PCT-500", Name: "Paracetamol 500mg", Unit: "strip", Barcode: "8991001000011", UnitPrice: 2.75, SellPrice: 3.50, Active: true},
		{Code: "AMX-250", Name: "Amoxicillin 250mg", Unit: "box", Barcode: "8991001000028", UnitPrice: 11.20, SellPrice: 14.90, Active: true},
		{Code: "VTC-1000", Name: "Vitamin C 1000mg", Unit: "bottle", Barcode: "8991001000035", UnitPrice: 6.40, SellPrice: 8.25, Active: true},
		{Code: "ORS-01", Name: "Oral Rehydration Salts", Unit: "sachet", Barcode: "8991001000042", UnitPrice: 0.35, SellPrice: 0.50, Active: true},
		{Code: "BND-10", Name: "Elastic Bandage 10cm", Unit: "roll", Barcode: "8991001000059", UnitPrice: 1.80, SellPrice: 2.60, Active: true},
		{Code: "GLV-M", Name: "Nitrile Gloves M", Unit: "box", Barcode: "8991001000066", UnitPrice: 4.10, SellPrice: 5.75, Active: true},
		{Code: "SYR-3", Name: "Syringe 3ml", Unit: "pcs", Barcode: "8991001000073", UnitPrice: 0.12, SellPrice: 0.20, Active: true},
		{Code: "IBU-400", Name: "Ibuprofen 400mg", Unit: "strip", Barcode: "8991001000080", UnitPrice: 1.95, SellPrice: 2.80, Active: true},
		{Code: "CTM-4", Name: "Chlorphenamine 4mg", Unit: "strip", Barcode: "8991001000097", UnitPrice: 0.60, SellPrice: 0.90, Active: false},
	} {
		s.nextProductID++
		p.ID = s.nextProductID
		s.products[p.ID] = p
	}
	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) SearchProducts(_ context.Context, query store.ProductQuery) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(query.Text))
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if needle != "" && !matches(p, needle) {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	limit := query.Limit
	if limit <= 0 {
		limit = store.DefaultSearchLimit
	}
	if len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func matches(p domain.Product, needle string) bool {
	return strings.Contains(strings.ToLower(p.Name), needle) ||
		strings.Contains(strings.ToLower(p.Code), needle) ||
		strings.Contains(strings.ToLower(p.Barcode), needle)
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.Code = strings.TrimSpace(product.Code)
	product.Name = strings.TrimSpace(product.Name)
	if product.Code == "" || product.Name == "" || product.UnitPrice < 0 || product.SellPrice < 0 {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.products {
		if strings.EqualFold(existing.Code, product.Code) {
			return nil, store.ErrConflict
		}
		if product.Barcode != "" && existing.Barcode == product.Barcode {
			return nil, store.ErrConflict
		}
	}

	s.nextProductID++
	product.ID = s.nextProductID
	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleClerk
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
