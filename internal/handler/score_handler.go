package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-records-api/internal/middleware"
	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
	"github.com/noah-isme/academic-records-api/pkg/response"
)

type scoreService interface {
	RecordScore(ctx context.Context, req models.RecordScoreRequest, actor models.Actor) (*models.RecordScoreResult, error)
	RemoveScore(ctx context.Context, scoreID string, actor models.Actor) error
	ValidateValue(value float64) (*models.ScoreValidation, error)
	CurrentScores(ctx context.Context, enrollmentID string) (models.ScoreSeq, error)
	History(ctx context.Context, enrollmentID string) ([]models.ScoreRevision, error)
}

// ScoreHandler exposes score recording endpoints.
type ScoreHandler struct {
	scores scoreService
}

// NewScoreHandler constructs ScoreHandler.
func NewScoreHandler(scores scoreService) *ScoreHandler {
	return &ScoreHandler{scores: scores}
}

// Record godoc
// @Summary Record score
// @Description Creates the current score or replaces it, keeping the previous value in history.
// @Tags Scores
// @Accept json
// @Produce json
// @Param payload body models.RecordScoreRequest true "Score payload"
// @Success 201 {object} response.Envelope "created"
// @Success 200 {object} response.Envelope "replaced"
// @Failure 422 {object} response.Envelope
// @Router /scores [post]
func (h *ScoreHandler) Record(c *gin.Context) {
	var req models.RecordScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.scores.RecordScore(c.Request.Context(), req, middleware.ActorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	response.JSON(c, status, result, nil)
}

// Remove godoc
// @Summary Remove score
// @Tags Scores
// @Param id path string true "Score ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /scores/{id} [delete]
func (h *ScoreHandler) Remove(c *gin.Context) {
	if err := h.scores.RemoveScore(c.Request.Context(), c.Param("id"), middleware.ActorFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Validate godoc
// @Summary Validate score value
// @Description Dry-run range check. Out-of-range values answer 200 with valid=false.
// @Tags Scores
// @Accept json
// @Produce json
// @Param payload body models.ValidateScoreRequest true "Value"
// @Success 200 {object} response.Envelope
// @Router /scores/validate [post]
func (h *ScoreHandler) Validate(c *gin.Context) {
	var req models.ValidateScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if req.Value == nil {
		response.Error(c, appErrors.WithField(appErrors.ErrValidation, "value", "value is required"))
		return
	}
	result, err := h.scores.ValidateValue(*req.Value)
	if err != nil && result == nil {
		response.Error(c, err)
		return
	}
	var meta map[string]interface{}
	if err != nil {
		meta = map[string]interface{}{"message": appErrors.FromError(err).Message}
	}
	response.JSON(c, http.StatusOK, result, nil, meta)
}

// Current godoc
// @Summary Current scores of an enrollment
// @Tags Scores
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/scores [get]
func (h *ScoreHandler) Current(c *gin.Context) {
	seq, err := h.scores.CurrentScores(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, seq.Slice(), nil)
}

// History godoc
// @Summary Score history of an enrollment
// @Tags Scores
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/history [get]
func (h *ScoreHandler) History(c *gin.Context) {
	history, err := h.scores.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}
