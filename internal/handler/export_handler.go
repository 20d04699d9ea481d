package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-records-api/internal/service"
	"github.com/noah-isme/academic-records-api/pkg/response"
)

type exportService interface {
	Roster(ctx context.Context, offeringID, format string) (*service.ExportResult, error)
}

// ExportHandler streams rendered roster files.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Roster godoc
// @Summary Export offering roster
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Offering ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /offerings/{id}/roster/export [get]
func (h *ExportHandler) Roster(c *gin.Context) {
	result, err := h.exports.Roster(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", service.FormatCSV))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Body)
}
