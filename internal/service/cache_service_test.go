package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type fakeCacheRepo struct {
	items     map[string][]byte
	ttls      map[string]time.Duration
	getErr    error
	deleteErr error
	patterns  []string
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{items: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if f.getErr != nil {
		return f.getErr
	}
	raw, ok := f.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.items[key] = raw
	f.ttls[key] = ttl
	return nil
}

func (f *fakeCacheRepo) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	f.patterns = append(f.patterns, pattern)
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	removed := 0
	for key := range f.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(f.items, key)
			removed++
		}
	}
	return removed, nil
}

func TestSummaryKeyLayout(t *testing.T) {
	assert.Equal(t, "ledger:summary:phy:enr-1:s3:r12", SummaryKey("phy", "enr-1", 3, 12))
}

func TestCacheServiceHitAndMiss(t *testing.T) {
	repo := newFakeCacheRepo()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, time.Minute, zap.NewNop(), true)
	ctx := context.Background()
	key := SummaryKey("phy", "enr-1", 1, 1)

	var dest map[string]float64
	hit, err := svc.Get(ctx, key, &dest)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, key, map[string]float64{"average": 4.05}, 0))
	assert.Equal(t, time.Minute, repo.ttls[key])

	hit, err = svc.Get(ctx, key, &dest)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 4.05, dest["average"])

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheMisses))
	assert.Equal(t, 0.5, testutil.ToFloat64(metrics.cacheHitRatio))
}

func TestCacheServiceGetFailureSurfaces(t *testing.T) {
	repo := newFakeCacheRepo()
	repo.getErr = errors.New("connection refused")
	svc := NewCacheService(repo, nil, 0, nil, true)

	var dest map[string]float64
	hit, err := svc.Get(context.Background(), "k", &dest)
	assert.False(t, hit)
	assert.Error(t, err)
}

func TestCacheServiceInvalidation(t *testing.T) {
	repo := newFakeCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	ctx := context.Background()
	require.NoError(t, svc.Set(ctx, SummaryKey("phy", "enr-1", 1, 1), 1, 0))
	require.NoError(t, svc.Set(ctx, SummaryKey("phy", "enr-2", 1, 1), 2, 0))
	require.NoError(t, svc.Set(ctx, SummaryKey("bio", "enr-3", 1, 1), 3, 0))

	svc.InvalidateEnrollment(ctx, "phy", "enr-1")
	assert.Len(t, repo.items, 2)

	svc.InvalidateOffering(ctx, "phy")
	assert.Len(t, repo.items, 1)
	assert.Equal(t, []string{"ledger:summary:phy:enr-1:*", "ledger:summary:phy:*"}, repo.patterns)

	// Delete failures are logged only.
	repo.deleteErr = errors.New("timeout")
	svc.InvalidateOffering(ctx, "bio")
	assert.Len(t, repo.items, 1)
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newFakeCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, false)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "k", 1, 0))
	assert.Empty(t, repo.items)
	hit, err := svc.Get(ctx, "k", new(int))
	require.NoError(t, err)
	assert.False(t, hit)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	nilSvc.InvalidateOffering(ctx, "phy")
}
