package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/pkg/response"
)

type auditService interface {
	Trail(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, *models.Pagination, error)
}

// AuditHandler exposes the audit trail.
type AuditHandler struct {
	audit auditService
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(audit auditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// Trail godoc
// @Summary Audit trail
// @Tags Audit
// @Produce json
// @Param actor_id query string false "Actor"
// @Param entity_type query string false "Score, EvaluationScheme, Enrollment or EvaluationCategory"
// @Param entity_id query string false "Entity"
// @Param action query string false "CREATE, EDIT or DELETE"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit [get]
func (h *AuditHandler) Trail(c *gin.Context) {
	var filter models.AuditFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	entries, pagination, err := h.audit.Trail(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}
