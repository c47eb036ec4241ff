// Package auth issues and verifies bearer tokens and owns user credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gmarroquin/fabmarket/internal/models"
	"github.com/gmarroquin/fabmarket/internal/store"
)

type Service struct {
	store  *store.Store
	secret []byte
	ttl    time.Duration
}

func NewService(s *store.Store, secret string, ttl time.Duration) *Service {
	return &Service{store: s, secret: []byte(secret), ttl: ttl}
}

// Register creates a user and returns it with a fresh token.
func (s *Service) Register(ctx context.Context, email, password, name string, role models.Role) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", fmt.Errorf("%w: a valid email is required", models.ErrValidation)
	}
	if len(password) < 8 {
		return nil, "", fmt.Errorf("%w: password must be at least 8 characters", models.ErrValidation)
	}
	if strings.TrimSpace(name) == "" {
		return nil, "", fmt.Errorf("%w: name is required", models.ErrValidation)
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, "", fmt.Errorf("%w: email already registered", models.ErrValidation)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         role,
		PasswordHash: string(hash),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, "", err
	}

	return user, issueToken(s.secret, user.ID, s.ttl), nil
}

// Login validates credentials and returns the user with a fresh token.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, models.ErrNotFound) {
		return nil, "", fmt.Errorf("invalid credentials: %w", models.ErrUnauthorized)
	}
	if err != nil {
		return nil, "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", fmt.Errorf("invalid credentials: %w", models.ErrUnauthorized)
	}

	return user, issueToken(s.secret, user.ID, s.ttl), nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	userID, ok := verifyToken(s.secret, token)
	if !ok {
		return nil, fmt.Errorf("invalid or expired token: %w", models.ErrUnauthorized)
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("token user no longer exists: %w", models.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureAdmin creates the configured admin user if it does not exist yet.
// Empty credentials skip the step.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, name string) error {
	if email == "" || password == "" {
		return nil
	}

	_, err := s.store.GetUserByEmail(ctx, strings.ToLower(email))
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("check admin user existence: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	return s.store.CreateUser(ctx, &models.User{
		Email:        strings.ToLower(email),
		Name:         name,
		Role:         models.RoleAdmin,
		PasswordHash: string(hash),
	})
}
