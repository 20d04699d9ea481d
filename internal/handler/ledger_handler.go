package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
	"github.com/noah-isme/academic-records-api/pkg/response"
)

type ledgerService interface {
	Summary(ctx context.Context, enrollmentID string) (*models.EnrollmentSummary, error)
	Roster(ctx context.Context, offeringID string) ([]models.EnrollmentSummary, error)
	Transcript(ctx context.Context, studentID string) (*models.Transcript, error)
	AtRisk(ctx context.Context, offeringID string) ([]models.AtRiskEntry, error)
	OfferingStats(ctx context.Context, offeringID string) (*models.OfferingStats, error)
}

// LedgerHandler exposes the derived grade views.
type LedgerHandler struct {
	ledger ledgerService
}

// NewLedgerHandler constructs LedgerHandler.
func NewLedgerHandler(ledger ledgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// Summary godoc
// @Summary Enrollment grade summary
// @Description Scheme, current scores and the derived average and status. Students only see their own.
// @Tags Ledger
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/summary [get]
func (h *LedgerHandler) Summary(c *gin.Context) {
	summary, err := h.ledger.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if isStudent(c) && summary.Enrollment.StudentID != claimsFromContext(c).UserID {
		// Same answer as a missing enrollment so ids of other students do not leak.
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found"))
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Roster godoc
// @Summary Offering roster
// @Tags Ledger
// @Produce json
// @Param id path string true "Offering ID"
// @Success 200 {object} response.Envelope
// @Router /offerings/{id}/roster [get]
func (h *LedgerHandler) Roster(c *gin.Context) {
	roster, err := h.ledger.Roster(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil, map[string]interface{}{"count": len(roster)})
}

// Stats godoc
// @Summary Offering statistics
// @Tags Ledger
// @Produce json
// @Param id path string true "Offering ID"
// @Success 200 {object} response.Envelope
// @Router /offerings/{id}/stats [get]
func (h *LedgerHandler) Stats(c *gin.Context) {
	stats, err := h.ledger.OfferingStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Transcript godoc
// @Summary Student transcript
// @Tags Ledger
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/transcript [get]
func (h *LedgerHandler) Transcript(c *gin.Context) {
	transcript, err := h.ledger.Transcript(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transcript, nil)
}

// AtRisk godoc
// @Summary Enrollments below the pass threshold
// @Tags Ledger
// @Produce json
// @Param offering_id query string false "Restrict to one offering"
// @Success 200 {object} response.Envelope
// @Router /reports/at-risk [get]
func (h *LedgerHandler) AtRisk(c *gin.Context) {
	entries, err := h.ledger.AtRisk(c.Request.Context(), c.Query("offering_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil, map[string]interface{}{"count": len(entries)})
}
