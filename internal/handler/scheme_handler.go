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

type schemeService interface {
	SetWeight(ctx context.Context, offeringID, categoryID string, percent float64, actor models.Actor) (*models.SchemeEntry, error)
	RemoveWeight(ctx context.Context, offeringID, categoryID string, actor models.Actor) error
	View(ctx context.Context, offeringID string) (*models.SchemeView, error)
	ListCategories(ctx context.Context) ([]models.EvaluationCategory, error)
	CreateCategory(ctx context.Context, req models.CreateCategoryRequest) (*models.EvaluationCategory, error)
	RenameCategory(ctx context.Context, id string, req models.RenameCategoryRequest) (*models.EvaluationCategory, error)
}

// SchemeHandler exposes the category catalog and offering weights.
type SchemeHandler struct {
	schemes schemeService
}

// NewSchemeHandler constructs SchemeHandler.
func NewSchemeHandler(schemes schemeService) *SchemeHandler {
	return &SchemeHandler{schemes: schemes}
}

// ListCategories godoc
// @Summary List evaluation categories
// @Tags Categories
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /categories [get]
func (h *SchemeHandler) ListCategories(c *gin.Context) {
	categories, err := h.schemes.ListCategories(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, categories, nil)
}

// CreateCategory godoc
// @Summary Create evaluation category
// @Tags Categories
// @Accept json
// @Produce json
// @Param payload body models.CreateCategoryRequest true "Category payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /categories [post]
func (h *SchemeHandler) CreateCategory(c *gin.Context) {
	var req models.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	category, err := h.schemes.CreateCategory(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, category)
}

// RenameCategory godoc
// @Summary Rename evaluation category
// @Description Fails with CATEGORY_IN_USE once any offering weights the category.
// @Tags Categories
// @Accept json
// @Produce json
// @Param id path string true "Category ID"
// @Param payload body models.RenameCategoryRequest true "Rename payload"
// @Success 200 {object} response.Envelope
// @Router /categories/{id} [put]
func (h *SchemeHandler) RenameCategory(c *gin.Context) {
	var req models.RenameCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	category, err := h.schemes.RenameCategory(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, category, nil)
}

// GetScheme godoc
// @Summary Offering evaluation scheme
// @Description Weights, total and completeness of the offering's scheme.
// @Tags Schemes
// @Produce json
// @Param id path string true "Offering ID"
// @Success 200 {object} response.Envelope
// @Router /offerings/{id}/scheme [get]
func (h *SchemeHandler) GetScheme(c *gin.Context) {
	view, err := h.schemes.View(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// SetWeight godoc
// @Summary Set category weight
// @Tags Schemes
// @Accept json
// @Produce json
// @Param id path string true "Offering ID"
// @Param categoryId path string true "Category ID"
// @Param payload body models.SetWeightRequest true "Weight payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /offerings/{id}/scheme/{categoryId} [put]
func (h *SchemeHandler) SetWeight(c *gin.Context) {
	var req models.SetWeightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if req.Weight == nil {
		response.Error(c, appErrors.WithField(appErrors.ErrValidation, "weight", "weight is required"))
		return
	}
	entry, err := h.schemes.SetWeight(c.Request.Context(), c.Param("id"), c.Param("categoryId"), *req.Weight, middleware.ActorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// RemoveWeight godoc
// @Summary Remove category from scheme
// @Description Refused with CONFLICT while scores reference the category.
// @Tags Schemes
// @Param id path string true "Offering ID"
// @Param categoryId path string true "Category ID"
// @Success 204
// @Router /offerings/{id}/scheme/{categoryId} [delete]
func (h *SchemeHandler) RemoveWeight(c *gin.Context) {
	if err := h.schemes.RemoveWeight(c.Request.Context(), c.Param("id"), c.Param("categoryId"), middleware.ActorFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
