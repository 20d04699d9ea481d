package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/grading"
	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type mapCache struct {
	items map[string][]byte
	gets  int
	hits  int
}

func newMapCache() *mapCache { return &mapCache{items: map[string][]byte{}} }

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.gets++
	raw, ok := c.items[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.items[key] = raw
	return nil
}

func record(t *testing.T, svc *ScoreService, enrollmentID string, pairs ...interface{}) {
	t.Helper()
	for i := 0; i+1 < len(pairs); i += 2 {
		_, err := svc.RecordScore(context.Background(), models.RecordScoreRequest{
			EnrollmentID: enrollmentID,
			CategoryID:   pairs[i].(string),
			Value:        value(pairs[i+1].(float64)),
		}, instructor())
		require.NoError(t, err)
	}
}

func newLedgerForTest(store *memStore, cache summaryCache) *LedgerService {
	return NewLedgerService(store, store, store, cache, grading.DefaultPolicy(), zap.NewNop())
}

func TestLedgerSummaryPartialThenComplete(t *testing.T) {
	store := standardStore()
	scores, _, _ := newScoreServiceForTest(store, &stubNotifier{})
	ledger := newLedgerForTest(store, nil)
	ctx := context.Background()

	record(t, scores, "enr-1", "exam", 4.0, "lab", 4.5)
	summary, err := ledger.Summary(ctx, "enr-1")
	require.NoError(t, err)
	require.NotNil(t, summary.Aggregate.Average)
	assert.Equal(t, 4.21, *summary.Aggregate.Average)
	assert.Equal(t, models.StatusPending, summary.Aggregate.Status)
	assert.ElementsMatch(t, []string{"project", "part"}, summary.Aggregate.Missing)
	require.Len(t, summary.History, 2)
	assert.Equal(t, "exam", summary.History[0].CategoryID)
	assert.Equal(t, "lab", summary.History[1].CategoryID)

	record(t, scores, "enr-1", "project", 3.0, "part", 5.0)
	summary, err = ledger.Summary(ctx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, 4.05, *summary.Aggregate.Average)
	assert.Equal(t, models.StatusPassing, summary.Aggregate.Status)
	assert.Equal(t, 100.0, summary.Weights["exam"]+summary.Weights["lab"]+summary.Weights["project"]+summary.Weights["part"])
	assert.Len(t, summary.Scores, 4)

	record(t, scores, "enr-1", "exam", 4.5)
	summary, err = ledger.Summary(ctx, "enr-1")
	require.NoError(t, err)
	require.Len(t, summary.History, 5)
	for i := 1; i < len(summary.History); i++ {
		assert.Less(t, summary.History[i-1].Revision, summary.History[i].Revision)
	}
	last := summary.History[4]
	assert.Equal(t, models.RevisionUpdate, last.Action)
	assert.Equal(t, 4.5, last.Value)
	assert.Equal(t, models.RevisionCreate, summary.History[0].Action)
	assert.Equal(t, 4.0, summary.History[0].Value)
}

func TestLedgerSummaryUsesVersionedCache(t *testing.T) {
	store := standardStore()
	scores, _, _ := newScoreServiceForTest(store, &stubNotifier{})
	cache := newMapCache()
	ledger := newLedgerForTest(store, cache)
	ctx := context.Background()

	record(t, scores, "enr-1", "exam", 2.0)
	first, err := ledger.Summary(ctx, "enr-1")
	require.NoError(t, err)
	again, err := ledger.Summary(ctx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, *first.Aggregate.Average, *again.Aggregate.Average)

	// A new score bumps the revision, so the old entry is never read again.
	record(t, scores, "enr-1", "exam", 3.0)
	fresh, err := ledger.Summary(ctx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, 3.0, *fresh.Aggregate.Average)
	assert.Len(t, cache.items, 2)
}

func TestLedgerSummaryIncompleteScheme(t *testing.T) {
	store := newMemStore()
	store.addOffering("bio", "exam", 60.0)
	store.addEnrollment("enr-2", "stu-2", "bio")
	scores, _, _ := newScoreServiceForTest(store, &stubNotifier{})
	record(t, scores, "enr-2", "exam", 5.0)

	summary, err := newLedgerForTest(store, nil).Summary(context.Background(), "enr-2")
	require.NoError(t, err)
	assert.Nil(t, summary.Aggregate.Average)
	assert.Equal(t, models.StatusPending, summary.Aggregate.Status)
	assert.Equal(t, models.ReasonSchemeIncomplete, summary.Aggregate.Reason)
	assert.False(t, summary.Aggregate.SchemeComplete)
}

func TestLedgerSummaryMissingEnrollment(t *testing.T) {
	_, err := newLedgerForTest(standardStore(), nil).Summary(context.Background(), "ghost")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestLedgerRosterStatsAndAtRisk(t *testing.T) {
	store := standardStore()
	store.addEnrollment("enr-2", "stu-2", "phy")
	store.addEnrollment("enr-3", "stu-3", "phy")
	scores, _, _ := newScoreServiceForTest(store, &stubNotifier{})
	record(t, scores, "enr-1", "exam", 4.0, "lab", 4.5, "project", 3.0, "part", 5.0)
	record(t, scores, "enr-2", "exam", 2.0, "lab", 2.0, "project", 2.0, "part", 2.0)
	record(t, scores, "enr-3", "exam", 2.5)
	ledger := newLedgerForTest(store, nil)
	ctx := context.Background()

	roster, err := ledger.Roster(ctx, "phy")
	require.NoError(t, err)
	require.Len(t, roster, 3)
	assert.Equal(t, "enr-1", roster[0].Enrollment.ID)
	assert.Equal(t, models.StatusFailing, roster[1].Aggregate.Status)
	assert.Equal(t, 2.0, *roster[1].Aggregate.Average)

	stats, err := ledger.OfferingStats(ctx, "phy")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Enrolled)
	assert.Equal(t, 1, stats.Passing)
	assert.Equal(t, 1, stats.Failing)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 50.0, *stats.PassRate)
	assert.True(t, stats.SchemeComplete)

	atRisk, err := ledger.AtRisk(ctx, "")
	require.NoError(t, err)
	require.Len(t, atRisk, 2)
	assert.Equal(t, "enr-2", atRisk[0].EnrollmentID)
	assert.Equal(t, "enr-3", atRisk[1].EnrollmentID)
	assert.Equal(t, models.StatusPending, atRisk[1].Status)
}

func TestLedgerRosterUnknownOffering(t *testing.T) {
	_, err := newLedgerForTest(standardStore(), nil).Roster(context.Background(), "ghost")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestLedgerTranscript(t *testing.T) {
	store := standardStore()
	store.addOffering("bio", "exam", 100.0)
	store.addEnrollment("enr-4", "stu-1", "bio")
	store.addOffering("art", "exam", 50.0)
	store.addEnrollment("enr-5", "stu-1", "art")
	scores, _, _ := newScoreServiceForTest(store, &stubNotifier{})
	record(t, scores, "enr-1", "exam", 4.0, "lab", 4.5, "project", 3.0, "part", 5.0)
	record(t, scores, "enr-4", "exam", 3.0)
	record(t, scores, "enr-5", "exam", 1.0)

	transcript, err := newLedgerForTest(store, nil).Transcript(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, transcript.Enrollments, 3)
	require.NotNil(t, transcript.PeriodAverage)
	// (4.05 + 3.00) / 2; the incomplete art scheme has no average.
	assert.Equal(t, 3.53, *transcript.PeriodAverage)
}
