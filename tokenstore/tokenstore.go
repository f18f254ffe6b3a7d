// Package tokenstore persists access/refresh tokens redundantly across
// storage channels. Environments can block any single channel (cross-origin
// cookie restrictions, disabled local storage), so writes go to every
// channel and reads fall back through a prioritized chain, ending with a
// session-scoped backup of the last successful write.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	authkit "github.com/halcyonlabs/authkit-go"
	"github.com/halcyonlabs/authkit-go/metrics"
)

// ErrEmpty is returned by a Channel holding no tokens.
var ErrEmpty = errors.New("tokenstore: channel empty")

// Record is the unit of storage: both tokens plus the computed expiry.
type Record struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (r Record) empty() bool { return r.AccessToken == "" }

// Channel is one storage mechanism.
type Channel interface {
	// Name identifies the channel in logs.
	Name() string

	// Write persists the record.
	Write(rec Record) error

	// Read returns the stored record, or ErrEmpty.
	Read() (Record, error)

	// Clear removes any stored record.
	Clear() error
}

// Store implements authkit.TokenStore over an ordered set of channels.
// The read path tries channels in construction order, then the in-process
// backup, before declaring no token.
type Store struct {
	channels []Channel
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu        sync.RWMutex
	backup    Record
	backupSet bool
}

var _ authkit.TokenStore = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger used for per-channel failure reports.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a Store over the given channels, in read-priority order.
func New(channels []Channel, opts ...Option) *Store {
	s := &Store{
		channels: channels,
		logger:   slog.Default(),
		metrics:  metrics.New(false),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetTokens writes both tokens and the computed expiry (now + expiresIn) to
// every channel. One channel failing is logged and tolerated; all channels
// failing returns ErrStorage.
func (s *Store) SetTokens(ctx context.Context, accessToken, refreshToken string, expiresIn time.Duration) error {
	if accessToken == "" {
		return fmt.Errorf("tokenstore: access token cannot be empty")
	}

	rec := Record{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(expiresIn),
	}

	ok := 0
	for _, ch := range s.channels {
		if err := ch.Write(rec); err != nil {
			s.logger.Warn("token write failed on channel",
				slog.String("channel", ch.Name()),
				slog.String("error", err.Error()))
			s.metrics.RecordChannelFailure(ch.Name())
			continue
		}
		ok++
	}
	if ok == 0 && len(s.channels) > 0 {
		return fmt.Errorf("tokenstore: all %d channels failed: %w", len(s.channels), authkit.ErrStorage)
	}

	s.mu.Lock()
	s.backup = rec
	s.backupSet = true
	s.mu.Unlock()
	return nil
}

// Token resolves the access token through the fallback chain.
func (s *Store) Token(ctx context.Context) (string, error) {
	rec, err := s.read()
	if err != nil {
		return "", err
	}
	return rec.AccessToken, nil
}

// RefreshToken resolves the refresh token through the fallback chain.
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	rec, err := s.read()
	if err != nil {
		return "", err
	}
	if rec.RefreshToken == "" {
		return "", authkit.ErrNoToken
	}
	return rec.RefreshToken, nil
}

// ExpiresAt returns the stored access token expiry.
func (s *Store) ExpiresAt(ctx context.Context) (time.Time, error) {
	rec, err := s.read()
	if err != nil {
		return time.Time{}, err
	}
	return rec.ExpiresAt, nil
}

// Clear removes tokens from every channel and drops the backup.
func (s *Store) Clear(ctx context.Context) error {
	failed := 0
	for _, ch := range s.channels {
		if err := ch.Clear(); err != nil {
			s.logger.Warn("token clear failed on channel",
				slog.String("channel", ch.Name()),
				slog.String("error", err.Error()))
			failed++
		}
	}

	s.mu.Lock()
	s.backup = Record{}
	s.backupSet = false
	s.mu.Unlock()

	if failed == len(s.channels) && failed > 0 {
		return fmt.Errorf("tokenstore: clear failed on all channels: %w", authkit.ErrStorage)
	}
	return nil
}

// read walks the channel chain, falling back to the backup record. A read
// recovered from a later channel is written back to the backup so the next
// read succeeds even if that channel degrades too.
func (s *Store) read() (Record, error) {
	for _, ch := range s.channels {
		rec, err := ch.Read()
		if err != nil {
			if !errors.Is(err, ErrEmpty) {
				s.logger.Warn("token read failed on channel",
					slog.String("channel", ch.Name()),
					slog.String("error", err.Error()))
				s.metrics.RecordChannelFailure(ch.Name())
			}
			continue
		}
		if rec.empty() {
			continue
		}
		s.mu.Lock()
		s.backup = rec
		s.backupSet = true
		s.mu.Unlock()
		return rec, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.backupSet {
		return s.backup, nil
	}
	return Record{}, authkit.ErrNoToken
}
