package flags

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"
)

// ErrNotFound is returned by a Store when no flag has the requested key.
var ErrNotFound = errors.New("flags: not found")

// Store loads flag definitions for the evaluator.
type Store interface {
	// ByKey returns the flag with the given key, overrides included.
	ByKey(ctx context.Context, key string) (*Flag, error)
}

// Memory is an in-memory Store, useful for tests and static configuration.
type Memory struct {
	mu    sync.RWMutex
	flags map[string]*Flag
}

var _ Store = (*Memory)(nil)

// NewMemory builds an in-memory store from the given flags.
func NewMemory(defs ...Flag) *Memory {
	m := &Memory{flags: make(map[string]*Flag, len(defs))}
	for i := range defs {
		f := defs[i]
		m.flags[f.Key] = &f
	}
	return m
}

// ByKey returns the flag with the given key.
func (m *Memory) ByKey(_ context.Context, key string) (*Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.flags[key]; ok {
		return f, nil
	}
	return nil, ErrNotFound
}

// Put inserts or replaces a flag definition.
func (m *Memory) Put(f Flag) {
	m.mu.Lock()
	m.flags[f.Key] = &f
	m.mu.Unlock()
}

// Gorm is a Store over the feature flag tables.
type Gorm struct {
	db *gorm.DB
}

var _ Store = (*Gorm)(nil)

// NewGorm creates a GORM-backed store.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// AutoMigrate creates or updates the feature flag tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Flag{}, &Override{})
}

// ByKey returns the flag with the given key, overrides preloaded.
func (g *Gorm) ByKey(ctx context.Context, key string) (*Flag, error) {
	var f Flag
	err := g.db.WithContext(ctx).Preload("Overrides").First(&f, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Save inserts or updates a flag definition.
func (g *Gorm) Save(ctx context.Context, f *Flag) error {
	return g.db.WithContext(ctx).Save(f).Error
}

// SaveOverride inserts or updates an override after validating its subject.
func (g *Gorm) SaveOverride(ctx context.Context, o *Override) error {
	if err := o.Validate(); err != nil {
		return err
	}
	return g.db.WithContext(ctx).Save(o).Error
}
