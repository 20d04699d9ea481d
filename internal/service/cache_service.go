package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
}

const summaryKeyPrefix = "ledger:summary"

// SummaryKey tags a cached summary with the scheme version and score revision it was computed
// from. Both counters change inside the mutating transactions, so a mutation makes every
// older key unreachable without any explicit delete.
func SummaryKey(offeringID, enrollmentID string, schemeVersion, scoreRevision int64) string {
	return fmt.Sprintf("%s:%s:%s:s%d:r%d", summaryKeyPrefix, offeringID, enrollmentID, schemeVersion, scoreRevision)
}

func enrollmentPattern(offeringID, enrollmentID string) string {
	return fmt.Sprintf("%s:%s:%s:*", summaryKeyPrefix, offeringID, enrollmentID)
}

func offeringPattern(offeringID string) string {
	return fmt.Sprintf("%s:%s:*", summaryKeyPrefix, offeringID)
}

// CacheService orchestrates cache operations and related metrics.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache. The TTL only bounds garbage; freshness comes from the key.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// InvalidateEnrollment drops every cached summary of one enrollment.
func (s *CacheService) InvalidateEnrollment(ctx context.Context, offeringID, enrollmentID string) {
	s.invalidate(ctx, enrollmentPattern(offeringID, enrollmentID))
}

// InvalidateOffering drops every cached summary of an offering.
func (s *CacheService) InvalidateOffering(ctx context.Context, offeringID string) {
	s.invalidate(ctx, offeringPattern(offeringID))
}

// invalidate is best effort: version-tagged keys are already unreachable, deletion only
// frees memory early.
func (s *CacheService) invalidate(ctx context.Context, pattern string) {
	if !s.Enabled() {
		return
	}
	if _, err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
	}
}
