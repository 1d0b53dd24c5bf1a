// Package access answers "who is this user and what may they do" from the
// role directory, with a short-lived per-user snapshot cache.
package access

import (
	"context"
	"sync"
	"time"

	"upets/platform-service/internal/metrics"
	"upets/platform-service/internal/models"

	"go.uber.org/zap"
)

type RoleSource interface {
	GetUserRoles(ctx context.Context, userID string) ([]models.RoleGrant, error)
	UserHasPermission(ctx context.Context, userID, resource, action string) (bool, error)
}

// Snapshot is the set of grants a user held when it was fetched.
type Snapshot struct {
	UserID    string             `json:"user_id"`
	Roles     []models.RoleGrant `json:"roles"`
	FetchedAt time.Time          `json:"fetched_at"`

	now func() time.Time
}

func (s Snapshot) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

// Level is the highest level among grants that are still live.
func (s Snapshot) Level() int {
	now := s.clock()
	level := 0
	for _, grant := range s.Roles {
		if grant.Live(now) && grant.RoleLevel > level {
			level = grant.RoleLevel
		}
	}
	return level
}

func (s Snapshot) HasRole(name string) bool {
	now := s.clock()
	for _, grant := range s.Roles {
		if grant.RoleName == name && grant.Live(now) {
			return true
		}
	}
	return false
}

func (s Snapshot) HasMinimumLevel(level int) bool {
	return s.Level() >= level
}

type Options struct {
	TTL     time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type Resolver struct {
	source  RoleSource
	ttl     time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]Snapshot

	// generation moves on every Invalidate so a lookup that started before
	// it does not write its grants back.
	generation map[string]uint64
}

func NewResolver(source RoleSource, options Options) *Resolver {
	log := options.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := options.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Resolver{
		source:  source,
		ttl:     options.TTL,
		log:     log,
		metrics: options.Metrics,
		now:     now,
		cache:   map[string]Snapshot{},

		generation: map[string]uint64{},
	}
}

// Snapshot returns the cached grants when they are younger than the TTL and
// refreshes them otherwise. A failed refresh yields an empty snapshot.
func (r *Resolver) Snapshot(ctx context.Context, userID string) Snapshot {
	if cached, ok := r.fresh(userID); ok {
		r.observe("hit")
		return cached
	}
	r.observe("miss")
	snapshot, err := r.Refresh(ctx, userID)
	if err != nil {
		return r.empty(userID)
	}
	return snapshot
}

// Cached is an optimistic read for display purposes. It ignores the TTL.
func (r *Resolver) Cached(userID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot, ok := r.cache[userID]
	return snapshot, ok
}

func (r *Resolver) Refresh(ctx context.Context, userID string) (Snapshot, error) {
	r.mu.Lock()
	generation := r.generation[userID]
	r.mu.Unlock()

	grants, err := r.source.GetUserRoles(ctx, userID)
	if err != nil {
		r.observe("error")
		r.log.Warn("role lookup failed", zap.String("user_id", userID), zap.Error(err))
		r.Invalidate(userID)
		return r.empty(userID), err
	}
	snapshot := Snapshot{UserID: userID, Roles: grants, FetchedAt: r.now(), now: r.now}
	r.mu.Lock()
	if r.generation[userID] == generation {
		r.cache[userID] = snapshot
	}
	r.mu.Unlock()
	return snapshot, nil
}

func (r *Resolver) Invalidate(userID string) {
	r.mu.Lock()
	delete(r.cache, userID)
	r.generation[userID]++
	r.mu.Unlock()
}

// HasPermission always asks the directory. Any failure denies.
func (r *Resolver) HasPermission(ctx context.Context, userID, resource, action string) bool {
	ok, err := r.source.UserHasPermission(ctx, userID, resource, action)
	if err != nil {
		r.log.Warn("permission check failed",
			zap.String("user_id", userID),
			zap.String("resource", resource),
			zap.String("action", action),
			zap.Error(err),
		)
		return false
	}
	return ok
}

func (r *Resolver) fresh(userID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot, ok := r.cache[userID]
	if !ok || r.ttl <= 0 {
		return Snapshot{}, false
	}
	if r.now().Sub(snapshot.FetchedAt) >= r.ttl {
		return Snapshot{}, false
	}
	return snapshot, true
}

func (r *Resolver) empty(userID string) Snapshot {
	return Snapshot{UserID: userID, FetchedAt: r.now(), now: r.now}
}

func (r *Resolver) observe(result string) {
	if r.metrics != nil {
		r.metrics.RoleCacheHits.WithLabelValues(result).Inc()
	}
}
