package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/pkg/response"
)

type archiveService interface {
	List(ctx context.Context, offeringID string, page models.PageRequest) ([]models.ArchivedEnrollment, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.ArchiveDetail, error)
}

// ArchiveHandler exposes snapshots of enrollments removed with their scores.
type ArchiveHandler struct {
	archives archiveService
}

// NewArchiveHandler constructs ArchiveHandler.
func NewArchiveHandler(archives archiveService) *ArchiveHandler {
	return &ArchiveHandler{archives: archives}
}

// List godoc
// @Summary List enrollment archives of an offering
// @Tags Archives
// @Produce json
// @Param id path string true "Offering ID"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /offerings/{id}/archives [get]
func (h *ArchiveHandler) List(c *gin.Context) {
	var page models.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	items, pagination, err := h.archives.List(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get enrollment archive
// @Tags Archives
// @Produce json
// @Param id path string true "Archive ID"
// @Success 200 {object} response.Envelope
// @Router /archives/{id} [get]
func (h *ArchiveHandler) Get(c *gin.Context) {
	detail, err := h.archives.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}
