package access

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"upets/platform-service/internal/metrics"
	"upets/platform-service/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	grants  map[string][]models.RoleGrant
	perms   map[string]bool
	err     error
	fetches int
}

func (f *fakeSource) GetUserRoles(_ context.Context, userID string) ([]models.RoleGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return f.grants[userID], nil
}

func (f *fakeSource) UserHasPermission(_ context.Context, userID, resource, action string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.perms[userID+":"+resource+":"+action], nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestSnapshotCachesWithinTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	source := &fakeSource{grants: map[string][]models.RoleGrant{
		"u1": {{RoleName: models.RoleBranchAdmin, RoleLevel: models.LevelBranchAdmin}},
	}}
	m := metrics.New()
	r := NewResolver(source, Options{TTL: 30 * time.Second, Now: clock.Now, Metrics: m})

	snap := r.Snapshot(ctx, "u1")
	assert.True(t, snap.HasRole(models.RoleBranchAdmin))
	assert.True(t, snap.HasMinimumLevel(models.LevelBranchAdmin))
	assert.False(t, snap.HasMinimumLevel(models.LevelCompanyAdmin))

	clock.now = clock.now.Add(10 * time.Second)
	r.Snapshot(ctx, "u1")
	assert.Equal(t, 1, source.fetches)

	clock.now = clock.now.Add(30 * time.Second)
	r.Snapshot(ctx, "u1")
	assert.Equal(t, 2, source.fetches)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoleCacheHits.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RoleCacheHits.WithLabelValues("miss")))
}

func TestSnapshotFailsClosed(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{grants: map[string][]models.RoleGrant{
		"u1": {{RoleName: models.RoleSuperAdmin, RoleLevel: models.LevelSuperAdmin}},
	}}
	clock := &fakeClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	r := NewResolver(source, Options{TTL: time.Second, Now: clock.Now})

	_, err := r.Refresh(ctx, "u1")
	require.NoError(t, err)
	_, ok := r.Cached("u1")
	require.True(t, ok)

	source.err = errors.New("db down")
	clock.now = clock.now.Add(time.Minute)
	snap := r.Snapshot(ctx, "u1")
	assert.Empty(t, snap.Roles)
	assert.False(t, snap.HasMinimumLevel(1))
	_, ok = r.Cached("u1")
	assert.False(t, ok)
}

func TestExpiredGrantIgnoredAtRead(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	expires := clock.now.Add(time.Minute)
	source := &fakeSource{grants: map[string][]models.RoleGrant{
		"u1": {{RoleName: models.RoleCompanyAdmin, RoleLevel: models.LevelCompanyAdmin, ExpiresAt: &expires}},
	}}
	r := NewResolver(source, Options{TTL: time.Hour, Now: clock.Now})

	snap := r.Snapshot(context.Background(), "u1")
	assert.Equal(t, models.LevelCompanyAdmin, snap.Level())

	clock.now = clock.now.Add(2 * time.Minute)
	snap = r.Snapshot(context.Background(), "u1")
	assert.Zero(t, snap.Level())
	assert.False(t, snap.HasRole(models.RoleCompanyAdmin))
}

func TestInvalidateAndPermission(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{perms: map[string]bool{"u1:qr_codes:create": true}}
	r := NewResolver(source, Options{TTL: time.Hour})

	r.Snapshot(ctx, "u1")
	r.Invalidate("u1")
	_, ok := r.Cached("u1")
	assert.False(t, ok)

	assert.True(t, r.HasPermission(ctx, "u1", "qr_codes", "create"))
	assert.False(t, r.HasPermission(ctx, "u1", "qr_codes", "assign"))
	source.err = errors.New("timeout")
	assert.False(t, r.HasPermission(ctx, "u1", "qr_codes", "create"))
}

type blockingSource struct {
	fakeSource
	started chan struct{}
	release chan struct{}
}

func (b *blockingSource) GetUserRoles(ctx context.Context, userID string) ([]models.RoleGrant, error) {
	close(b.started)
	<-b.release
	return b.fakeSource.GetUserRoles(ctx, userID)
}

func TestInvalidateDuringRefreshDropsStaleGrants(t *testing.T) {
	ctx := context.Background()
	source := &blockingSource{
		fakeSource: fakeSource{grants: map[string][]models.RoleGrant{
			"u1": {{RoleName: models.RoleSuperAdmin, RoleLevel: models.LevelSuperAdmin}},
		}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	r := NewResolver(source, Options{TTL: time.Hour})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := r.Refresh(ctx, "u1")
		assert.NoError(t, err)
	}()

	<-source.started
	r.Invalidate("u1")
	close(source.release)
	<-done

	_, ok := r.Cached("u1")
	assert.False(t, ok, "grants fetched before the invalidation must not be cached")
}
