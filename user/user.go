// Package user provides the UserDirectory implementation. Users are never
// hard deleted; Deactivate flips the active bit and the account stays on
// record.
package user

import (
	"context"
	"errors"
	"fmt"

	authkit "github.com/halcyonlabs/authkit-go"
)

// ErrNotFound is returned when no user exists with the given ID.
var ErrNotFound = errors.New("user not found")

// Backend defines the contract for pluggable directory backends.
type Backend interface {
	// Get returns a user by ID.
	Get(ctx context.Context, userID string) (*authkit.User, error)

	// List returns users with pagination.
	List(ctx context.Context, opts authkit.ListOptions) ([]*authkit.User, error)

	// SetActive flips a user's active bit.
	SetActive(ctx context.Context, userID string, active bool) error
}

// Service implements authkit.UserDirectory with a configurable backend.
type Service struct {
	backend Backend
}

var _ authkit.UserDirectory = (*Service)(nil)

// New creates a new directory service with the given backend.
func New(backend Backend) *Service {
	return &Service{backend: backend}
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, userID string) (*authkit.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("user: userID cannot be empty")
	}

	u, err := s.backend.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}
	return u, nil
}

// List returns users with pagination.
func (s *Service) List(ctx context.Context, opts authkit.ListOptions) ([]*authkit.User, error) {
	users, err := s.backend.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}
	return users, nil
}

// Deactivate soft-deletes a user.
func (s *Service) Deactivate(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user: userID cannot be empty")
	}

	if err := s.backend.SetActive(ctx, userID, false); err != nil {
		return fmt.Errorf("user: %w", err)
	}
	return nil
}

// Reactivate restores a previously deactivated user.
func (s *Service) Reactivate(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user: userID cannot be empty")
	}

	if err := s.backend.SetActive(ctx, userID, true); err != nil {
		return fmt.Errorf("user: %w", err)
	}
	return nil
}
