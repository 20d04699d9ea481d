package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/academic-records-api/internal/grading"
	"github.com/noah-isme/academic-records-api/internal/models"
)

// summaryConcurrency caps the per-request fan-out of summary computations.
const summaryConcurrency = 8

type ledgerEnrollmentReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ListByOffering(ctx context.Context, offeringID string) ([]models.EnrollmentDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	ListAll(ctx context.Context) ([]models.EnrollmentDetail, error)
}

type currentScoreReader interface {
	Current(ctx context.Context, enrollmentID string) ([]models.Score, error)
	History(ctx context.Context, enrollmentID string) ([]models.ScoreRevision, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// LedgerService is the read side used by presentation layers: per-enrollment summaries and
// the offering or student level views built from them.
type LedgerService struct {
	enrollments ledgerEnrollmentReader
	schemes     schemeReader
	scores      currentScoreReader
	cache       summaryCache
	policy      grading.Policy
	logger      *zap.Logger
}

// NewLedgerService constructs the service. cache may be nil.
func NewLedgerService(enrollments ledgerEnrollmentReader, schemes schemeReader, scores currentScoreReader, cache summaryCache, policy grading.Policy, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{enrollments: enrollments, schemes: schemes, scores: scores, cache: cache, policy: policy, logger: logger}
}

// Summary returns the aggregate view of one enrollment.
func (s *LedgerService) Summary(ctx context.Context, enrollmentID string) (*models.EnrollmentSummary, error) {
	detail, err := s.enrollments.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		return nil, notFoundOr(err, "enrollment not found", "failed to load enrollment")
	}
	scheme, err := s.schemes.Scheme(ctx, detail.OfferingID)
	if err != nil {
		return nil, notFoundOr(err, "offering not found", "failed to load scheme")
	}
	return s.summaryFor(ctx, *detail, *scheme)
}

// summaryFor computes or fetches the summary of detail under scheme. The cache key carries the
// scheme version and the score revision read before the scores themselves, so a key never
// addresses data older than its counters.
func (s *LedgerService) summaryFor(ctx context.Context, detail models.EnrollmentDetail, scheme models.EvaluationScheme) (*models.EnrollmentSummary, error) {
	key := SummaryKey(detail.OfferingID, detail.ID, scheme.Version, detail.ScoreRevision)
	if s.cache != nil {
		var cached models.EnrollmentSummary
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	current, err := s.scores.Current(ctx, detail.ID)
	if err != nil {
		return nil, storageError(err, "failed to load scores")
	}
	history, err := s.scores.History(ctx, detail.ID)
	if err != nil {
		return nil, storageError(err, "failed to load score history")
	}
	if history == nil {
		history = []models.ScoreRevision{}
	}
	scores := toCategoryScores(current)
	if scheme.Entries == nil {
		scheme.Entries = []models.SchemeEntry{}
	}
	detail.SchemeVersion = scheme.Version
	summary := &models.EnrollmentSummary{
		Enrollment: detail,
		Aggregate:  grading.Aggregate(scheme, scores, s.policy),
		Scheme:     scheme,
		Weights:    scheme.Weights(),
		Scores:     scores,
		History:    history,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, 0); err != nil {
			s.logger.Debug("summary not cached", zap.String("enrollment_id", detail.ID), zap.Error(err))
		}
	}
	return summary, nil
}

// Roster returns the summary of every enrollment of an offering in enrollment order.
func (s *LedgerService) Roster(ctx context.Context, offeringID string) ([]models.EnrollmentSummary, error) {
	_, summaries, err := s.roster(ctx, offeringID)
	return summaries, err
}

func (s *LedgerService) roster(ctx context.Context, offeringID string) (*models.EvaluationScheme, []models.EnrollmentSummary, error) {
	scheme, err := s.schemes.Scheme(ctx, offeringID)
	if err != nil {
		return nil, nil, notFoundOr(err, "offering not found", "failed to load scheme")
	}
	details, err := s.enrollments.ListByOffering(ctx, offeringID)
	if err != nil {
		return nil, nil, storageError(err, "failed to list enrollments")
	}
	summaries, err := s.summarize(ctx, details, func(context.Context, string) (*models.EvaluationScheme, error) {
		return scheme, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return scheme, summaries, nil
}

// Transcript lists every enrollment of a student with the mean of the available averages.
func (s *LedgerService) Transcript(ctx context.Context, studentID string) (*models.Transcript, error) {
	details, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, storageError(err, "failed to list enrollments")
	}
	summaries, err := s.summarize(ctx, details, s.schemeLoader())
	if err != nil {
		return nil, err
	}
	results := make([]models.AggregateResult, 0, len(summaries))
	for _, summary := range summaries {
		results = append(results, summary.Aggregate)
	}
	return &models.Transcript{
		StudentID:     studentID,
		Enrollments:   summaries,
		PeriodAverage: grading.PeriodAverage(results),
	}, nil
}

// AtRisk lists enrollments whose current average, provisional or final, is below the pass
// mark. An empty offeringID scans every offering. Lowest averages come first.
func (s *LedgerService) AtRisk(ctx context.Context, offeringID string) ([]models.AtRiskEntry, error) {
	var (
		summaries []models.EnrollmentSummary
		err       error
	)
	if offeringID != "" {
		summaries, err = s.Roster(ctx, offeringID)
	} else {
		var details []models.EnrollmentDetail
		details, err = s.enrollments.ListAll(ctx)
		if err != nil {
			return nil, storageError(err, "failed to list enrollments")
		}
		summaries, err = s.summarize(ctx, details, s.schemeLoader())
	}
	if err != nil {
		return nil, err
	}

	entries := make([]models.AtRiskEntry, 0)
	for _, summary := range summaries {
		if !grading.BelowThreshold(summary.Aggregate, s.policy) {
			continue
		}
		entries = append(entries, models.AtRiskEntry{
			EnrollmentID: summary.Enrollment.ID,
			StudentID:    summary.Enrollment.StudentID,
			OfferingID:   summary.Enrollment.OfferingID,
			SubjectName:  summary.Enrollment.SubjectName,
			Average:      *summary.Aggregate.Average,
			Status:       summary.Aggregate.Status,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Average != entries[j].Average {
			return entries[i].Average < entries[j].Average
		}
		return entries[i].EnrollmentID < entries[j].EnrollmentID
	})
	return entries, nil
}

// OfferingStats counts statuses across an offering's roster.
func (s *LedgerService) OfferingStats(ctx context.Context, offeringID string) (*models.OfferingStats, error) {
	scheme, summaries, err := s.roster(ctx, offeringID)
	if err != nil {
		return nil, err
	}
	results := make([]models.AggregateResult, 0, len(summaries))
	for _, summary := range summaries {
		results = append(results, summary.Aggregate)
	}
	stats := grading.Tally(offeringID, results)
	stats.SchemeComplete = scheme.IsComplete(s.policy.WeightEpsilon)
	return &stats, nil
}

type schemeLoaderFunc func(ctx context.Context, offeringID string) (*models.EvaluationScheme, error)

// schemeLoader memoises schemes per offering for the lifetime of one request.
func (s *LedgerService) schemeLoader() schemeLoaderFunc {
	var mu sync.Mutex
	loaded := make(map[string]*models.EvaluationScheme)
	return func(ctx context.Context, offeringID string) (*models.EvaluationScheme, error) {
		mu.Lock()
		scheme, ok := loaded[offeringID]
		mu.Unlock()
		if ok {
			return scheme, nil
		}
		scheme, err := s.schemes.Scheme(ctx, offeringID)
		if err != nil {
			return nil, notFoundOr(err, "offering not found", "failed to load scheme")
		}
		mu.Lock()
		loaded[offeringID] = scheme
		mu.Unlock()
		return scheme, nil
	}
}

// summarize computes summaries concurrently, keeping the input order.
func (s *LedgerService) summarize(ctx context.Context, details []models.EnrollmentDetail, load schemeLoaderFunc) ([]models.EnrollmentSummary, error) {
	out := make([]models.EnrollmentSummary, len(details))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryConcurrency)
	for i := range details {
		i := i
		g.Go(func() error {
			scheme, err := load(gctx, details[i].OfferingID)
			if err != nil {
				return err
			}
			summary, err := s.summaryFor(gctx, details[i], *scheme)
			if err != nil {
				return err
			}
			out[i] = *summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
