package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"stockmaster/backend/internal/domain"
	"stockmaster/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, users)
	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	stored, err := users.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 user, got %d", len(stored))
	}
	if stored[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(stored[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", stored[0].Password)
	}
}

func TestCreateClerkStoresPasswordHash(t *testing.T) {
	users := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  mustHashPassword(t, "admin123"),
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, users)
	clerk, err := manager.CreateClerk(context.Background(), domain.ClerkCreateRequest{
		Username: "  Gudang1 ",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create clerk failed: %v", err)
	}
	if clerk.Username != "gudang1" || clerk.Role != domain.RoleClerk {
		t.Fatalf("unexpected clerk %+v", clerk)
	}

	stored := users.users["gudang1"]
	if stored.Password == "pass1234" || !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("expected bcrypt hash, got %q", stored.Password)
	}

	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "gudang1",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("login with new clerk failed: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "gudang1" || actor.Role != domain.RoleClerk {
		t.Fatalf("unexpected actor %+v", actor)
	}

	clerks := manager.ListClerks(context.Background())
	if len(clerks) != 1 || clerks[0].Username != "gudang1" {
		t.Fatalf("expected only the clerk to be listed, got %+v", clerks)
	}
}

func TestCreateClerkRejects(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &userStoreStub{})
	if _, err := manager.CreateClerk(context.Background(), domain.ClerkCreateRequest{Username: "taken", Password: "pass1234"}); err != nil {
		t.Fatalf("seed clerk: %v", err)
	}

	tests := []struct {
		name string
		req  domain.ClerkCreateRequest
		want error
	}{
		{"short username", domain.ClerkCreateRequest{Username: "abc", Password: "pass1234"}, store.ErrInvalidInput},
		{"username with space", domain.ClerkCreateRequest{Username: "new clerk", Password: "pass1234"}, store.ErrInvalidInput},
		{"short password", domain.ClerkCreateRequest{Username: "newclerk", Password: "12345"}, store.ErrInvalidInput},
		{"duplicate", domain.ClerkCreateRequest{Username: "TAKEN", Password: "pass1234"}, store.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.CreateClerk(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	users := &userStoreStub{
		users: map[string]domain.UserAccount{
			"retired": {
				Username: "retired",
				Password: mustHashPassword(t, "pass1234"),
				Role:     domain.RoleClerk,
				Active:   false,
			},
		},
	}
	manager := NewAuthManager("test-secret", time.Hour, users)

	_, err := manager.Login(context.Background(), domain.LoginRequest{Username: "retired", Password: "pass1234"})
	if !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected inactive account error, got %v", err)
	}
	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "retired", Password: "wrong"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("secret-one", time.Hour, nil)
	verifier := NewAuthManager("secret-two", time.Hour, nil)

	token, err := issuer.sign("clerk", domain.RoleClerk, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := issuer.ParseToken(token); err != nil {
		t.Fatalf("issuer should accept its own token: %v", err)
	}
	if _, err := verifier.ParseToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}
