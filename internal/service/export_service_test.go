package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

type rosterStub struct {
	summaries []models.EnrollmentSummary
}

func (r rosterStub) Roster(ctx context.Context, offeringID string) ([]models.EnrollmentSummary, error) {
	return r.summaries, nil
}

func rosterFixture() []models.EnrollmentSummary {
	avg := 4.05
	enrolled := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	return []models.EnrollmentSummary{
		{
			Enrollment: models.EnrollmentDetail{Enrollment: models.Enrollment{ID: "e1", StudentID: "stu-1", EnrolledAt: enrolled}},
			Aggregate:  models.AggregateResult{Average: &avg, Status: models.StatusPassing, Reason: models.ReasonComplete, Missing: []string{}},
		},
		{
			Enrollment: models.EnrollmentDetail{Enrollment: models.Enrollment{ID: "e2", StudentID: "stu-2", EnrolledAt: enrolled}},
			Aggregate:  models.AggregateResult{Status: models.StatusPending, Reason: models.ReasonNoScores, Missing: []string{"exam", "lab"}},
		},
	}
}

func newExportServiceForTest() *ExportService {
	svc := NewExportService(rosterStub{summaries: rosterFixture()}, mockOfferingReader{}, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestExportServiceRosterCSV(t *testing.T) {
	result, err := newExportServiceForTest().Roster(context.Background(), "phy", "CSV")
	require.NoError(t, err)
	assert.Equal(t, "roster_PHY-101_20240630_120000.csv", result.Filename)
	assert.Equal(t, "text/csv", result.ContentType)

	lines := strings.Split(strings.TrimSpace(string(result.Body)), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "Student,Enrolled,Average,Status,Reason,Missing", strings.TrimSpace(lines[0]))
	assert.Equal(t, "stu-1,2024-02-01,4.05,PASSING,COMPLETE,0", strings.TrimSpace(lines[1]))
	assert.Equal(t, "stu-2,2024-02-01,-,PENDING,NO_SCORES,2", strings.TrimSpace(lines[2]))
	assert.Contains(t, string(result.Body), "Passing: 1  Failing: 0  Pending: 1")
}

func TestExportServiceRosterPDF(t *testing.T) {
	result, err := newExportServiceForTest().Roster(context.Background(), "phy", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, bytes.HasPrefix(result.Body, []byte("%PDF")))
}

func TestExportServiceRosterErrors(t *testing.T) {
	svc := newExportServiceForTest()

	_, err := svc.Roster(context.Background(), "phy", "xlsx")
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "format", appErr.Field)

	_, err = svc.Roster(context.Background(), "missing", "csv")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
