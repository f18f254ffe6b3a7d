package user

import (
	"context"
	"sort"
	"sync"

	authkit "github.com/halcyonlabs/authkit-go"
)

// Memory is an in-memory Backend for tests and local development. It stores
// the pointers it is given, so callers that keep a reference observe
// SetActive changes.
type Memory struct {
	mu    sync.RWMutex
	users map[string]*authkit.User
}

var _ Backend = (*Memory)(nil)

// NewMemory builds an in-memory backend from the given users.
func NewMemory(users ...*authkit.User) *Memory {
	m := &Memory{users: make(map[string]*authkit.User, len(users))}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

// Put inserts or replaces a user.
func (m *Memory) Put(u *authkit.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// Get returns a copy of the user with the given ID.
func (m *Memory) Get(_ context.Context, userID string) (*authkit.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// List returns users ordered by ID with pagination.
func (m *Memory) List(_ context.Context, opts authkit.ListOptions) ([]*authkit.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*authkit.User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size < 1 {
		size = 20
	}

	start := (page - 1) * size
	if start >= len(all) {
		return []*authkit.User{}, nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

// SetActive flips a user's active bit.
func (m *Memory) SetActive(_ context.Context, userID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	return nil
}
