package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/grading"
	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/internal/repository"
	"github.com/noah-isme/academic-records-api/pkg/database"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

// memStore is an in-memory stand-in for the score, enrollment and scheme repositories that
// keeps the same transactional contract: current rows, append-only history, one event per
// committed mutation.
type memStore struct {
	mu          sync.Mutex
	enrollments map[string]models.EnrollmentDetail
	schemes     map[string]models.EvaluationScheme
	categories  map[string]string
	current     map[string]map[string]models.Score
	history     []models.ScoreRevision
	events      []models.ScoreEvent
	seq         int
	failRecord  error
}

func newMemStore() *memStore {
	return &memStore{
		enrollments: map[string]models.EnrollmentDetail{},
		schemes:     map[string]models.EvaluationScheme{},
		categories:  map[string]string{"exam": "Exam", "lab": "Lab", "project": "Project", "part": "Participation"},
		current:     map[string]map[string]models.Score{},
	}
}

func (m *memStore) addOffering(id string, weights ...interface{}) {
	scheme := models.EvaluationScheme{OfferingID: id, Version: 1}
	for i := 0; i+1 < len(weights); i += 2 {
		cat := weights[i].(string)
		scheme.Entries = append(scheme.Entries, models.SchemeEntry{OfferingID: id, CategoryID: cat, CategoryName: m.categories[cat], Weight: weights[i+1].(float64)})
	}
	m.schemes[id] = scheme
}

func (m *memStore) addEnrollment(id, studentID, offeringID string) {
	m.enrollments[id] = models.EnrollmentDetail{
		Enrollment:   models.Enrollment{ID: id, StudentID: studentID, OfferingID: offeringID},
		OfferingCode: "OFF-" + offeringID,
		SubjectName:  "Physics",
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

func (m *memStore) list(match func(models.EnrollmentDetail) bool) []models.EnrollmentDetail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EnrollmentDetail
	for _, d := range m.enrollments {
		if match(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) ListByOffering(ctx context.Context, offeringID string) ([]models.EnrollmentDetail, error) {
	return m.list(func(d models.EnrollmentDetail) bool { return d.OfferingID == offeringID }), nil
}

func (m *memStore) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return m.list(func(d models.EnrollmentDetail) bool { return d.StudentID == studentID }), nil
}

func (m *memStore) ListAll(ctx context.Context) ([]models.EnrollmentDetail, error) {
	return m.list(func(models.EnrollmentDetail) bool { return true }), nil
}

func (m *memStore) Scheme(ctx context.Context, offeringID string) (*models.EvaluationScheme, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schemes[offeringID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	s.Entries = append([]models.SchemeEntry(nil), s.Entries...)
	return &s, nil
}

func (m *memStore) stamp(enrollmentID string, kind models.ScoreEventKind, actor models.Actor) (models.EnrollmentDetail, models.ScoreEvent) {
	d := m.enrollments[enrollmentID]
	d.ScoreRevision++
	m.enrollments[enrollmentID] = d
	return d, models.ScoreEvent{
		ID:           m.nextID("evt"),
		Kind:         kind,
		EnrollmentID: d.ID,
		StudentID:    d.StudentID,
		OfferingID:   d.OfferingID,
		SubjectName:  d.SubjectName,
		ActorID:      actor.UserID,
		Origin:       actor.Origin,
	}
}

func (m *memStore) Record(ctx context.Context, w repository.ScoreWrite) (*repository.ScoreWriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRecord != nil {
		return nil, m.failRecord
	}
	d, ok := m.enrollments[w.EnrollmentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if _, ok := m.schemes[d.OfferingID].Entry(w.CategoryID); !ok {
		return nil, repository.ErrNotInScheme
	}
	scores := m.current[w.EnrollmentID]
	if scores == nil {
		scores = map[string]models.Score{}
		m.current[w.EnrollmentID] = scores
	}
	score, exists := scores[w.CategoryID]
	kind, action := models.EventScoreUpdated, models.RevisionUpdate
	if !exists {
		score = models.Score{ID: m.nextID("score"), EnrollmentID: w.EnrollmentID, CategoryID: w.CategoryID, CategoryName: m.categories[w.CategoryID]}
		kind, action = models.EventScoreCreated, models.RevisionCreate
	}
	score.Value, score.Note, score.RecordedBy = w.Value, w.Note, w.Actor.UserID
	scores[w.CategoryID] = score

	d, event := m.stamp(w.EnrollmentID, kind, w.Actor)
	m.history = append(m.history, models.ScoreRevision{ScoreID: score.ID, EnrollmentID: w.EnrollmentID, CategoryID: w.CategoryID, Value: w.Value, Action: action, Revision: d.ScoreRevision})
	value := w.Value
	event.ScoreID, event.CategoryID, event.CategoryName, event.Value = &score.ID, &score.CategoryID, score.CategoryName, &value
	m.events = append(m.events, event)
	return &repository.ScoreWriteResult{Score: score, Created: !exists, Event: event}, nil
}

func (m *memStore) Remove(ctx context.Context, scoreID string, actor models.Actor) (*repository.ScoreWriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for enrollmentID, scores := range m.current {
		for cat, score := range scores {
			if score.ID != scoreID {
				continue
			}
			delete(scores, cat)
			d, event := m.stamp(enrollmentID, models.EventScoreRemoved, actor)
			m.history = append(m.history, models.ScoreRevision{ScoreID: score.ID, EnrollmentID: enrollmentID, CategoryID: cat, Value: score.Value, Action: models.RevisionDelete, Revision: d.ScoreRevision})
			value := score.Value
			event.ScoreID, event.CategoryID, event.CategoryName, event.Value = &score.ID, &score.CategoryID, score.CategoryName, &value
			m.events = append(m.events, event)
			return &repository.ScoreWriteResult{Score: score, Event: event}, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) Current(ctx context.Context, enrollmentID string) ([]models.Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Score
	for _, s := range m.current[enrollmentID] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out, nil
}

func (m *memStore) History(ctx context.Context, enrollmentID string) ([]models.ScoreRevision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ScoreRevision
	for _, h := range m.history {
		if h.EnrollmentID == enrollmentID {
			out = append(out, h)
		}
	}
	return out, nil
}

type stubNotifier struct {
	mu        sync.Mutex
	delivered []models.ScoreEvent
	err       error
}

func (s *stubNotifier) Deliver(ctx context.Context, event models.ScoreEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.delivered = append(s.delivered, event)
	return nil
}

type stubInvalidator struct {
	enrollments []string
	offerings   []string
}

func (s *stubInvalidator) InvalidateEnrollment(ctx context.Context, offeringID, enrollmentID string) {
	s.enrollments = append(s.enrollments, enrollmentID)
}

func (s *stubInvalidator) InvalidateOffering(ctx context.Context, offeringID string) {
	s.offerings = append(s.offerings, offeringID)
}

func standardStore() *memStore {
	store := newMemStore()
	store.addOffering("phy", "exam", 40.0, "lab", 30.0, "project", 20.0, "part", 10.0)
	store.addEnrollment("enr-1", "stu-1", "phy")
	return store
}

func newScoreServiceForTest(store *memStore, notifier *stubNotifier) (*ScoreService, *MetricsService, *stubInvalidator) {
	metrics := NewMetricsService()
	cache := &stubInvalidator{}
	svc := NewScoreService(store, store, store, cache, notifier, metrics, grading.DefaultPolicy(), nil, zap.NewNop())
	return svc, metrics, cache
}

func instructor() models.Actor {
	return models.Actor{UserID: "teacher-1", Role: models.RoleTeacher, Origin: "203.0.113.7"}
}

func value(v float64) *float64 { return &v }

func TestScoreServiceRecordTwiceKeepsOneCurrentScore(t *testing.T) {
	store := standardStore()
	notifier := &stubNotifier{}
	svc, metrics, cache := newScoreServiceForTest(store, notifier)
	ctx := context.Background()

	first, err := svc.RecordScore(ctx, models.RecordScoreRequest{EnrollmentID: "enr-1", CategoryID: "exam", Value: value(3.5)}, instructor())
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := svc.RecordScore(ctx, models.RecordScoreRequest{EnrollmentID: "enr-1", CategoryID: "exam", Value: value(4.0)}, instructor())
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Score.ID, second.Score.ID)

	seq, err := svc.CurrentScores(ctx, "enr-1")
	require.NoError(t, err)
	require.Equal(t, 1, seq.Len())
	assert.Equal(t, 4.0, seq.Slice()[0].Value)

	history, err := svc.History(ctx, "enr-1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(history), 2)
	assert.Equal(t, models.RevisionCreate, history[0].Action)
	assert.Equal(t, models.RevisionUpdate, history[1].Action)

	require.Len(t, notifier.delivered, 2)
	assert.Equal(t, models.EventScoreCreated, notifier.delivered[0].Kind)
	assert.Equal(t, models.EventScoreUpdated, notifier.delivered[1].Kind)
	assert.Equal(t, []string{"enr-1", "enr-1"}, cache.enrollments)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.scoreMutations.WithLabelValues(string(models.EventScoreUpdated))))
}

func TestScoreServiceRemoveMissingScore(t *testing.T) {
	store := standardStore()
	notifier := &stubNotifier{}
	svc, _, cache := newScoreServiceForTest(store, notifier)

	err := svc.RemoveScore(context.Background(), "missing", instructor())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Empty(t, notifier.delivered)
	assert.Empty(t, store.events)
	assert.Empty(t, store.history)
	assert.Empty(t, cache.enrollments)
}

func TestScoreServiceRemoveScore(t *testing.T) {
	store := standardStore()
	notifier := &stubNotifier{}
	svc, _, _ := newScoreServiceForTest(store, notifier)
	ctx := context.Background()

	res, err := svc.RecordScore(ctx, models.RecordScoreRequest{EnrollmentID: "enr-1", CategoryID: "lab", Value: value(2.5)}, instructor())
	require.NoError(t, err)
	require.NoError(t, svc.RemoveScore(ctx, res.Score.ID, instructor()))

	seq, err := svc.CurrentScores(ctx, "enr-1")
	require.NoError(t, err)
	assert.Zero(t, seq.Len())
	require.Len(t, notifier.delivered, 2)
	removed := notifier.delivered[1]
	assert.Equal(t, models.EventScoreRemoved, removed.Kind)
	assert.Equal(t, 2.5, *removed.Value)
}

func TestScoreServiceRejectsOutOfRangeWithoutTouchingCurrent(t *testing.T) {
	store := standardStore()
	notifier := &stubNotifier{}
	svc, _, _ := newScoreServiceForTest(store, notifier)
	ctx := context.Background()

	_, err := svc.RecordScore(ctx, models.RecordScoreRequest{EnrollmentID: "enr-1", CategoryID: "exam", Value: value(4.0)}, instructor())
	require.NoError(t, err)

	for _, bad := range []float64{5.5, -0.01} {
		_, err = svc.RecordScore(ctx, models.RecordScoreRequest{EnrollmentID: "enr-1", CategoryID: "exam", Value: value(bad)}, instructor())
		require.Error(t, err)
		var appErr *appErrors.Error
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, appErrors.ErrOutOfRange.Code, appErr.Code)
		assert.Equal(t, "value", appErr.Field)
		assert.Contains(t, appErr.Message, fmt.Sprintf("%v", bad))
	}

	seq, err := svc.CurrentScores(ctx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, seq.Slice()[0].Value)
	assert.Len(t, notifier.delivered, 1)
}

func TestScoreServiceBoundsAreInclusive(t *testing.T) {
	svc, _, _ := newScoreServiceForTest(standardStore(), &stubNotifier{})
	for _, ok := range []float64{0, 5} {
		res, err := svc.ValidateValue(ok)
		require.NoError(t, err)
		assert.True(t, res.Valid)
	}
	res, err := svc.ValidateValue(5.01)
	require.Error(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, 5.0, res.Max)
}

func TestScoreServiceRoundsToStoredPrecision(t *testing.T) {
	store := standardStore()
	notifier := &stubNotifier{}
	svc, _, _ := newScoreServiceForTest(store, notifier)
	ctx := context.Background()

	res, err := svc.RecordScore(ctx, models.RecordScoreRequest{EnrollmentID: "enr-1", CategoryID: "exam", Value: value(4.333)}, instructor())
	require.NoError(t, err)
	assert.Equal(t, 4.33, res.Score.Value)
	require.Len(t, notifier.delivered, 1)
	assert.Equal(t, 4.33, *notifier.delivered[0].Value)

	_, err = svc.RecordScore(ctx, models.RecordScoreRequest{EnrollmentID: "enr-1", CategoryID: "lab", Value: value(4.335)}, instructor())
	require.NoError(t, err)
	seq, err := svc.CurrentScores(ctx, "enr-1")
	require.NoError(t, err)
	values := map[string]float64{}
	for _, cs := range seq.Slice() {
		values[cs.CategoryID] = cs.Value
	}
	assert.Equal(t, map[string]float64{"exam": 4.33, "lab": 4.34}, values)

	check, err := svc.ValidateValue(3.456)
	require.NoError(t, err)
	assert.Equal(t, 3.46, check.Value)
}

func TestScoreServiceUnknownCategory(t *testing.T) {
	store := standardStore()
	store.categories["quiz"] = "Quiz"
	svc, _, _ := newScoreServiceForTest(store, &stubNotifier{})

	_, err := svc.RecordScore(context.Background(), models.RecordScoreRequest{EnrollmentID: "enr-1", CategoryID: "quiz", Value: value(3)}, instructor())
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrUnknownCategory.Code, appErr.Code)
	assert.Equal(t, "category_id", appErr.Field)
	assert.Empty(t, store.events)
}

func TestScoreServiceUnknownEnrollment(t *testing.T) {
	svc, _, _ := newScoreServiceForTest(standardStore(), &stubNotifier{})

	_, err := svc.RecordScore(context.Background(), models.RecordScoreRequest{EnrollmentID: "nope", CategoryID: "exam", Value: value(3)}, instructor())
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.CurrentScores(context.Background(), "nope")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestScoreServiceMissingValueIsValidationError(t *testing.T) {
	svc, _, _ := newScoreServiceForTest(standardStore(), &stubNotifier{})

	_, err := svc.RecordScore(context.Background(), models.RecordScoreRequest{EnrollmentID: "enr-1", CategoryID: "exam"}, instructor())
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "value", appErr.Field)
}

func TestScoreServiceNotifierFailureDoesNotFailWrite(t *testing.T) {
	store := standardStore()
	notifier := &stubNotifier{err: errors.New("smtp down")}
	svc, metrics, _ := newScoreServiceForTest(store, notifier)

	res, err := svc.RecordScore(context.Background(), models.RecordScoreRequest{EnrollmentID: "enr-1", CategoryID: "exam", Value: value(4.5)}, instructor())
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Len(t, store.events, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.notifierFailures.WithLabelValues("inline")))
}

func TestScoreServiceStorageTimeout(t *testing.T) {
	store := standardStore()
	store.failRecord = fmt.Errorf("record: %w", database.ErrTimeout)
	svc, _, _ := newScoreServiceForTest(store, &stubNotifier{})

	_, err := svc.RecordScore(context.Background(), models.RecordScoreRequest{EnrollmentID: "enr-1", CategoryID: "exam", Value: value(4.5)}, instructor())
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrStorageTimeout.Code, appErr.Code)
	assert.Equal(t, 503, appErr.Status)
}

func TestScoreSeqIsRestartable(t *testing.T) {
	store := standardStore()
	svc, _, _ := newScoreServiceForTest(store, &stubNotifier{})
	ctx := context.Background()
	for _, cat := range []string{"exam", "lab"} {
		_, err := svc.RecordScore(ctx, models.RecordScoreRequest{EnrollmentID: "enr-1", CategoryID: cat, Value: value(3)}, instructor())
		require.NoError(t, err)
	}
	seq, err := svc.CurrentScores(ctx, "enr-1")
	require.NoError(t, err)

	count := func() int {
		n := 0
		seq.Each(func(models.CategoryScore) bool { n++; return true })
		return n
	}
	assert.Equal(t, 2, count())
	assert.Equal(t, 2, count())

	stopped := 0
	seq.Each(func(models.CategoryScore) bool { stopped++; return false })
	assert.Equal(t, 1, stopped)
}
