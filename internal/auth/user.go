// Package auth is the identity gateway: email and password accounts, signed
// session cookies and a change feed of sign-in state.
package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"gastos/internal/core"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidSession     = errors.New("invalid or expired session")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password must have at least 8 characters")
	ErrEmptyName          = errors.New("name is required")
)

// MinPasswordLength is enforced by SignUp.
const MinPasswordLength = 8

// User is a household member. ID doubles as the userId stamped on
// transactions, so it is a short lower-case slug such as "maria".
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserStore persists accounts. CreateUser returns ErrUserExists when the id or
// email is taken; lookups return ErrUserNotFound.
type UserStore interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// UserID derives the account id from a display name: accents folded, lower
// case, inner spaces replaced by dashes.
func UserID(name string) string {
	return strings.Join(strings.Fields(core.Fold(name)), "-")
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t") && strings.Count(email, "@") == 1
}

// MemoryUserStore keeps accounts in process. It backs the memory data backend
// and tests.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]User
}

var _ UserStore = (*MemoryUserStore)(nil)

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]User)}
}

func (s *MemoryUserStore) CreateUser(_ context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return User{}, ErrUserExists
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return User{}, ErrUserExists
		}
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *MemoryUserStore) GetUser(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryUserStore) FindUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (s *MemoryUserStore) ListUsers(_ context.Context) ([]User, error) {
	s.mu.RLock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
