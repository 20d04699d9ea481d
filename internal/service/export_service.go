package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
	"github.com/noah-isme/academic-records-api/pkg/export"
)

// Export formats accepted by the roster export.
const (
	FormatCSV = "csv"
	FormatPDF = "pdf"
)

type rosterSource interface {
	Roster(ctx context.Context, offeringID string) ([]models.EnrollmentSummary, error)
}

type renderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportResult is a rendered file ready to stream.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders offering rosters as CSV or PDF.
type ExportService struct {
	ledger    rosterSource
	offerings offeringReader
	renderers map[string]renderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService with the CSV and PDF renderers.
func NewExportService(ledger rosterSource, offerings offeringReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		ledger:    ledger,
		offerings: offerings,
		renderers: map[string]renderer{
			FormatCSV: export.NewCSVExporter(),
			FormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
		now:    time.Now,
	}
}

// Roster renders the roster of an offering in the requested format.
func (s *ExportService) Roster(ctx context.Context, offeringID, format string) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatCSV
	}
	r, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.WithField(appErrors.ErrValidation, "format", fmt.Sprintf("unsupported export format %q", format))
	}
	offering, err := s.offerings.FindOffering(ctx, offeringID)
	if err != nil {
		return nil, notFoundOr(err, "offering not found", "failed to load offering")
	}
	summaries, err := s.ledger.Roster(ctx, offeringID)
	if err != nil {
		return nil, err
	}

	body, err := r.Render(RosterDataset(offering, summaries, s.now().UTC()))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	filename := fmt.Sprintf("roster_%s_%s.%s", sanitizeFilename(offering.Code), s.now().UTC().Format("20060102_150405"), r.Extension())
	s.logger.Info("roster exported", zap.String("offering_id", offeringID), zap.String("format", format), zap.Int("rows", len(summaries)))
	return &ExportResult{Filename: filename, ContentType: r.ContentType(), Body: body}, nil
}

// RosterDataset lays out one row per enrollment plus a status footer.
func RosterDataset(offering *models.Offering, summaries []models.EnrollmentSummary, generatedAt time.Time) export.Dataset {
	rows := make([]map[string]string, 0, len(summaries))
	var passing, failing, pending int
	for _, summary := range summaries {
		agg := summary.Aggregate
		switch agg.Status {
		case models.StatusPassing:
			passing++
		case models.StatusFailing:
			failing++
		default:
			pending++
		}
		average := "-"
		if agg.Average != nil {
			average = fmt.Sprintf("%.2f", *agg.Average)
		}
		rows = append(rows, map[string]string{
			"student":  summary.Enrollment.StudentID,
			"enrolled": summary.Enrollment.EnrolledAt.UTC().Format("2006-01-02"),
			"average":  average,
			"status":   string(agg.Status),
			"reason":   string(agg.Reason),
			"missing":  fmt.Sprintf("%d", len(agg.Missing)),
		})
	}
	return export.Dataset{
		Title: fmt.Sprintf("Roster %s - %s (%s)", offering.Code, offering.SubjectName, offering.TermName),
		Columns: []export.Column{
			{Key: "student", Label: "Student"},
			{Key: "enrolled", Label: "Enrolled"},
			{Key: "average", Label: "Average", Align: "R"},
			{Key: "status", Label: "Status"},
			{Key: "reason", Label: "Reason"},
			{Key: "missing", Label: "Missing", Align: "R"},
		},
		Rows: rows,
		Footer: []string{
			fmt.Sprintf("Passing: %d  Failing: %d  Pending: %d", passing, failing, pending),
			fmt.Sprintf("Generated %s", generatedAt.Format(time.RFC3339)),
		},
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
