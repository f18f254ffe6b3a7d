// Package flags evaluates feature flags for a user. Evaluation is a fixed
// precedence chain: flag status, user override, organisation override,
// sector rules, the enabled switch, then percentage rollout. Rollout
// bucketing hashes (flag key, user ID) so a user's bucket never moves for
// the lifetime of a flag; raising the percentage only adds users at the
// boundary, it never reshuffles who was already in.
package flags

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"slices"
	"sync"
	"time"

	authkit "github.com/halcyonlabs/authkit-go"
	"github.com/halcyonlabs/authkit-go/metrics"
)

// Evaluator implements authkit.FlagEvaluator over a Store.
type Evaluator struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	ttl     time.Duration
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedResult
}

type cachedResult struct {
	result authkit.FlagResult
	at     time.Time
}

var _ authkit.FlagEvaluator = (*Evaluator)(nil)

// Option configures the Evaluator.
type Option func(*Evaluator)

// WithCacheTTL sets how long evaluation results are cached. The cache is
// per (flag, user) and keeps evaluations stable within a request window.
// Zero disables caching. Default: 10 seconds.
func WithCacheTTL(d time.Duration) Option {
	return func(e *Evaluator) { e.ttl = d }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithClock overrides the time source. Used in tests for override expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// New creates an Evaluator over the given store.
func New(store Store, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:   store,
		logger:  slog.Default(),
		metrics: metrics.New(false),
		ttl:     10 * time.Second,
		now:     time.Now,
		cache:   make(map[string]cachedResult),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate resolves whether flagKey is enabled for user. Overrides beat
// everything except flag status; a missing flag reads as disabled rather
// than failing the caller.
func (e *Evaluator) Evaluate(ctx context.Context, flagKey string, user *authkit.User) (authkit.FlagResult, error) {
	if user == nil || user.ID == "" {
		return authkit.FlagResult{}, fmt.Errorf("flags: user is required")
	}

	key := flagKey + "|" + user.ID
	if r, ok := e.cachedEval(key); ok {
		e.metrics.RecordCacheHit("flags")
		return r, nil
	}
	e.metrics.RecordCacheMiss("flags")

	flag, err := e.store.ByKey(ctx, flagKey)
	if errors.Is(err, ErrNotFound) {
		r := authkit.FlagResult{Reason: authkit.FlagNotFound}
		e.finish(key, flagKey, r)
		return r, nil
	}
	if err != nil {
		return authkit.FlagResult{}, fmt.Errorf("flags: load %q: %w", flagKey, err)
	}

	r := e.evaluate(flag, user)
	e.finish(key, flagKey, r)
	return r, nil
}

func (e *Evaluator) evaluate(flag *Flag, user *authkit.User) authkit.FlagResult {
	if flag.Status != StatusActive {
		return authkit.FlagResult{Reason: authkit.FlagInactive}
	}

	now := e.now()
	if o := findOverride(flag.Overrides, user, now); o != nil {
		reason := authkit.FlagOrgOverride
		if o.UserID != nil {
			reason = authkit.FlagUserOverride
		}
		return authkit.FlagResult{Enabled: o.Enabled, Reason: reason}
	}

	if flag.Scope == ScopeSector {
		if slices.Contains(flag.BlockedSectors, user.Sector) {
			return authkit.FlagResult{Reason: authkit.FlagSectorBlocked}
		}
		if len(flag.AllowedSectors) > 0 && !slices.Contains(flag.AllowedSectors, user.Sector) {
			return authkit.FlagResult{Reason: authkit.FlagSectorNotAllowed}
		}
	}

	if !flag.Enabled {
		return authkit.FlagResult{Reason: authkit.FlagDisabled}
	}
	if flag.RolloutPercentage >= 100 {
		return authkit.FlagResult{Enabled: true, Reason: authkit.FlagFullRollout}
	}

	enabled := Bucket(flag.Key, user.ID) < flag.RolloutPercentage
	return authkit.FlagResult{Enabled: enabled, Reason: authkit.FlagPercentRollout}
}

// findOverride returns the highest-precedence unexpired override for the
// user: user-scoped first, then organisation-scoped.
func findOverride(overrides []Override, user *authkit.User, now time.Time) *Override {
	var orgMatch *Override
	for i := range overrides {
		o := &overrides[i]
		if o.Expired(now) {
			continue
		}
		if o.UserID != nil && *o.UserID == user.ID {
			return o
		}
		if orgMatch == nil && o.OrganisationID != nil && *o.OrganisationID == user.TenantID {
			orgMatch = o
		}
	}
	return orgMatch
}

// Bucket maps a (flag key, user ID) pair onto [0,100). The hash input and
// function are part of the flag contract: changing either reshuffles every
// user's bucket.
func Bucket(flagKey, userID string) int {
	h := fnv.New32a()
	h.Write([]byte(flagKey))
	h.Write([]byte{':'})
	h.Write([]byte(userID))
	return int(h.Sum32() % 100)
}

func (e *Evaluator) cachedEval(key string) (authkit.FlagResult, bool) {
	if e.ttl <= 0 {
		return authkit.FlagResult{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.cache[key]
	if !ok || time.Since(c.at) >= e.ttl {
		return authkit.FlagResult{}, false
	}
	return c.result, true
}

func (e *Evaluator) finish(cacheKey, flagKey string, r authkit.FlagResult) {
	e.metrics.RecordFlagEvaluation(r.Reason)
	if r.Reason == authkit.FlagNotFound {
		e.logger.Debug("flag not found", slog.String("flag", flagKey))
	}
	if e.ttl <= 0 {
		return
	}
	e.mu.Lock()
	e.cache[cacheKey] = cachedResult{result: r, at: time.Now()}
	e.mu.Unlock()
}

// ClearCache drops all cached evaluations.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	e.cache = make(map[string]cachedResult)
	e.mu.Unlock()
}
